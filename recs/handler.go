package recs

import (
	"log"
	"net/http"
	"strconv"

	"vidvault/httputil"
)

// Handler serves the personalized recommendation endpoint.
type Handler struct {
	Profiler *Profiler
	Ranker   *Ranker
}

// HandleRecommended serves GET /api/recommended. The client supplies its
// watch history as repeated watched parameters; those videos shape the
// profile and are excluded from the results.
func (h *Handler) HandleRecommended(w http.ResponseWriter, r *http.Request) {
	page, limit := httputil.ParsePageParams(r)

	watched, ok := parseWatched(r)
	if !ok {
		httputil.WriteError(w, 400, "invalid watched video id")
		return
	}

	profile, err := h.Profiler.Profile(r.Context(), watched)
	if err != nil {
		log.Printf("HandleRecommended: %v", err)
		httputil.WriteError(w, 500, "failed to build recommendations")
		return
	}

	videos, total, err := h.Ranker.Rank(r.Context(), profile, watched, page, limit)
	if err != nil {
		log.Printf("HandleRecommended: %v", err)
		httputil.WriteError(w, 500, "failed to build recommendations")
		return
	}

	httputil.WriteJSON(w, 200, map[string]interface{}{
		"videos":     videos,
		"pagination": httputil.NewPagination(page, limit, total),
	})
}

func parseWatched(r *http.Request) ([]int64, bool) {
	values := r.URL.Query()["watched"]
	if len(values) == 0 {
		return nil, true
	}
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id < 1 {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}
