package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vidvault/sources"

	"github.com/go-chi/chi/v5"
)

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	return m
}

// allowAll answers every probe positively.
type allowAll struct{}

func (allowAll) Probe(context.Context, string) bool { return true }

func TestHandleGetVideoNotFound(t *testing.T) {
	h := &Handler{Store: newTestStore(t)}

	rec := httptest.NewRecorder()
	h.HandleGetVideo(rec, withChiParam(httptest.NewRequest("GET", "/api/videos/999", nil), "id", "999"))
	if rec.Code != 404 {
		t.Errorf("missing video: status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.HandleGetVideo(rec, withChiParam(httptest.NewRequest("GET", "/api/videos/abc", nil), "id", "abc"))
	if rec.Code != 400 {
		t.Errorf("bad id: status = %d, want 400", rec.Code)
	}
}

func TestHandleGetVideoResolvesExternal(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.DB.ExecContext(context.Background(),
		`INSERT INTO videos (video_id, title, type, external_key, added) VALUES (?, ?, ?, ?, ?)`,
		1, "external video", TypeExternal, "abc123", agoStamp(time.Hour)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	h := &Handler{
		Store: s,
		Resolver: &sources.Resolver{
			Prober:    allowAll{},
			Store:     s,
			Templates: sources.DefaultTemplates("http://localhost:8080/proxy", "https://upstream.test"),
		},
	}

	rec := httptest.NewRecorder()
	h.HandleGetVideo(rec, withChiParam(httptest.NewRequest("GET", "/api/videos/1", nil), "id", "1"))
	if rec.Code != 200 {
		t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
	}

	resp := decodeJSON(t, rec)
	srcs, _ := resp["video_src"].([]interface{})
	if len(srcs) != 5 {
		t.Fatalf("video_src has %d entries, want 5", len(srcs))
	}
	if srcs[0] != "https://upstream.test/vsrc/h264/abc123" {
		t.Errorf("first source = %v, want upstream original", srcs[0])
	}

	// The resolved set is persisted, so the next request is a cache hit.
	var stored int
	if err := s.DB.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM video_sources WHERE video_id = ?`, 1).Scan(&stored); err != nil {
		t.Fatalf("count sources: %v", err)
	}
	if stored != 5 {
		t.Errorf("persisted %d sources, want 5", stored)
	}
}

func TestHandleExplorePagination(t *testing.T) {
	s := newTestStore(t)
	for id := int64(1); id <= 15; id++ {
		seedVideo(t, s, id, fmt.Sprintf("v%d", id), agoStamp(time.Duration(id)*time.Hour))
		seedSource(t, s, id, fmt.Sprintf("https://cdn/%d.mp4", id))
	}
	h := &Handler{Store: s}

	rec := httptest.NewRecorder()
	h.HandleExplore(rec, httptest.NewRequest("GET", "/api/explore?page=2&limit=10", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeJSON(t, rec)
	videos, _ := resp["videos"].([]interface{})
	if len(videos) != 5 {
		t.Errorf("page 2 size = %d, want 5", len(videos))
	}
	pagination, _ := resp["pagination"].(map[string]interface{})
	if pagination["total"].(float64) != 15 || pagination["pages"].(float64) != 2 {
		t.Errorf("pagination = %v, want total 15 pages 2", pagination)
	}
}

func TestHandleSearchRequiresQuery(t *testing.T) {
	h := &Handler{Store: newTestStore(t)}
	rec := httptest.NewRecorder()
	h.HandleSearch(rec, httptest.NewRequest("GET", "/api/search", nil))
	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleTrendingDefaultPeriod(t *testing.T) {
	s := newTestStore(t)
	seedVideo(t, s, 1, "recent", agoStamp(24*time.Hour))
	seedVideo(t, s, 2, "stale", agoStamp(150*24*time.Hour))
	h := &Handler{Store: s}

	rec := httptest.NewRecorder()
	h.HandleTrending(rec, httptest.NewRequest("GET", "/api/trending", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeJSON(t, rec)
	videos, _ := resp["videos"].([]interface{})
	if len(videos) != 1 {
		t.Errorf("default period returned %d videos, want only the recent one", len(videos))
	}
}

func TestHandleCategoryVideosUnknownCategory(t *testing.T) {
	h := &Handler{Store: newTestStore(t)}
	rec := httptest.NewRecorder()
	h.HandleCategoryVideos(rec, withChiParam(httptest.NewRequest("GET", "/api/categories/42/videos", nil), "id", "42"))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeJSON(t, rec)
	if resp["category"] != nil {
		t.Errorf("category = %v, want null", resp["category"])
	}
	videos, _ := resp["videos"].([]interface{})
	if len(videos) != 0 {
		t.Errorf("videos = %v, want empty", videos)
	}
}

func TestHandleListTags(t *testing.T) {
	s := newTestStore(t)
	seedVideo(t, s, 1, "a", agoStamp(time.Hour))
	seedVideo(t, s, 2, "b", agoStamp(2*time.Hour))
	seedTag(t, s, 10, "popular", 1, 2)
	seedTag(t, s, 11, "rare", 1)
	h := &Handler{Store: s, TagMinVideos: 1}

	rec := httptest.NewRecorder()
	h.HandleListTags(rec, httptest.NewRequest("GET", "/api/tags", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	var tags []TagCount
	if err := json.NewDecoder(rec.Body).Decode(&tags); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tags) != 1 || tags[0].Name != "popular" {
		t.Errorf("tags = %v, want only popular", tags)
	}
}
