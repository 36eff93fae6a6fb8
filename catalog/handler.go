package catalog

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"vidvault/httputil"
	"vidvault/sources"

	"github.com/go-chi/chi/v5"
)

// Handler holds dependencies for the video browsing endpoints.
type Handler struct {
	Store    *Store
	Resolver *sources.Resolver

	// TagMinVideos hides rarely-used tags from GET /api/tags.
	TagMinVideos int
}

func parseID(r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	return id, err == nil && id > 0
}

func parseFilterParam(r *http.Request, name string) int64 {
	id, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil || id < 1 {
		return 0
	}
	return id
}

// HandleGetVideo serves video detail. For an external video with no stored
// sources it resolves candidates before responding; the view counter is
// bumped in the background either way.
func (h *Handler) HandleGetVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		httputil.WriteError(w, 400, "invalid video id")
		return
	}

	v, err := h.Store.GetVideo(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteError(w, 404, "video not found")
		return
	}
	if err != nil {
		log.Printf("HandleGetVideo: %v", err)
		httputil.WriteError(w, 500, "failed to fetch video")
		return
	}

	if v.Type == TypeExternal && h.Resolver != nil {
		v.Sources = h.Resolver.ResolveIfNeeded(r.Context(), v.ExternalKey, v.VideoID, v.Sources)
		if len(v.Sources) == 0 {
			// Served degraded; stays eligible for re-resolution next time.
			log.Printf("HandleGetVideo: no working sources for video %d", id)
		}
	}

	// The response does not wait on the counter write.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.Store.IncrementViews(ctx, id); err != nil {
			log.Printf("HandleGetVideo: %v", err)
		}
	}()

	related, err := h.Store.RelatedVideos(r.Context(), v, 10)
	if err != nil {
		log.Printf("HandleGetVideo: related videos for %d: %v", id, err)
		related = []Summary{}
	}

	httputil.WriteJSON(w, 200, struct {
		*Video
		RelatedVideos []Summary `json:"related_videos"`
	}{v, related})
}

// HandleExplore lists playable videos, newest first.
func (h *Handler) HandleExplore(w http.ResponseWriter, r *http.Request) {
	page, limit := httputil.ParsePageParams(r)
	category := parseFilterParam(r, "category")
	tag := parseFilterParam(r, "tag")

	videos, total, err := h.Store.NewestVideos(r.Context(), category, tag, page, limit)
	if err != nil {
		log.Printf("HandleExplore: %v", err)
		httputil.WriteError(w, 500, "failed to fetch videos")
		return
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{
		"videos":     videos,
		"pagination": httputil.NewPagination(page, limit, total),
	})
}

// HandleTrending lists the most viewed videos within the requested period.
func (h *Handler) HandleTrending(w http.ResponseWriter, r *http.Request) {
	page, limit := httputil.ParsePageParams(r)
	category := parseFilterParam(r, "category")
	tag := parseFilterParam(r, "tag")
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "week"
	}

	videos, total, err := h.Store.TrendingVideos(r.Context(), category, tag, period, page, limit)
	if err != nil {
		log.Printf("HandleTrending: %v", err)
		httputil.WriteError(w, 500, "failed to fetch videos")
		return
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{
		"videos":     videos,
		"pagination": httputil.NewPagination(page, limit, total),
	})
}

// HandleSearch runs full-text title search.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		httputil.WriteError(w, 400, "search query is required")
		return
	}
	page, limit := httputil.ParsePageParams(r)
	category := parseFilterParam(r, "category")
	tag := parseFilterParam(r, "tag")

	videos, total, err := h.Store.SearchVideos(r.Context(), q, category, tag, page, limit)
	if err != nil {
		log.Printf("HandleSearch: %v", err)
		httputil.WriteError(w, 500, "search failed")
		return
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{
		"videos":     videos,
		"pagination": httputil.NewPagination(page, limit, total),
	})
}

// HandleListCategories returns every category.
func (h *Handler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Store.ListCategories(r.Context())
	if err != nil {
		log.Printf("HandleListCategories: %v", err)
		httputil.WriteError(w, 500, "failed to fetch categories")
		return
	}
	httputil.WriteJSON(w, 200, cats)
}

// HandleListTags returns tags in wide enough use, most used first.
func (h *Handler) HandleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.Store.ListTags(r.Context(), h.TagMinVideos)
	if err != nil {
		log.Printf("HandleListTags: %v", err)
		httputil.WriteError(w, 500, "failed to fetch tags")
		return
	}
	httputil.WriteJSON(w, 200, tags)
}

// HandleCategoryVideos lists one category's videos with the category details.
func (h *Handler) HandleCategoryVideos(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		httputil.WriteError(w, 400, "invalid category id")
		return
	}
	page, limit := httputil.ParsePageParams(r)

	category, err := h.Store.GetCategory(r.Context(), id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		log.Printf("HandleCategoryVideos: %v", err)
		httputil.WriteError(w, 500, "failed to fetch category")
		return
	}

	videos, total, err := h.Store.VideosByCategory(r.Context(), id, page, limit)
	if err != nil {
		log.Printf("HandleCategoryVideos: %v", err)
		httputil.WriteError(w, 500, "failed to fetch videos")
		return
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{
		"category":   category,
		"videos":     videos,
		"pagination": httputil.NewPagination(page, limit, total),
	})
}

// HandleTagVideos lists one tag's videos with the tag details.
func (h *Handler) HandleTagVideos(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		httputil.WriteError(w, 400, "invalid tag id")
		return
	}
	page, limit := httputil.ParsePageParams(r)

	tag, err := h.Store.GetTag(r.Context(), id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		log.Printf("HandleTagVideos: %v", err)
		httputil.WriteError(w, 500, "failed to fetch tag")
		return
	}

	videos, total, err := h.Store.VideosByTag(r.Context(), id, page, limit)
	if err != nil {
		log.Printf("HandleTagVideos: %v", err)
		httputil.WriteError(w, 500, "failed to fetch videos")
		return
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{
		"tag":        tag,
		"videos":     videos,
		"pagination": httputil.NewPagination(page, limit, total),
	})
}
