package sources

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeProber answers per-URL with optional artificial delays, so tests can
// force later templates to finish before earlier ones.
type fakeProber struct {
	mu        sync.Mutex
	reachable map[string]bool
	delays    map[string]time.Duration
	calls     int32
}

func (f *fakeProber) Probe(ctx context.Context, url string) bool {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	delay := f.delays[url]
	ok := f.reachable[url]
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return false
		}
	}
	return ok
}

// recordingStore captures SetSourceList calls.
type recordingStore struct {
	mu      sync.Mutex
	calls   int
	videoID int64
	urls    []string
	err     error
}

func (s *recordingStore) SetSourceList(ctx context.Context, videoID int64, urls []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.videoID = videoID
	s.urls = append([]string(nil), urls...)
	return s.err
}

func testTemplates() []Template {
	return DefaultTemplates("http://localhost:8080/proxy", "https://upstream.test")
}

func TestDefaultTemplates_FiveVariants(t *testing.T) {
	tpls := testTemplates()
	if len(tpls) != 5 {
		t.Fatalf("got %d templates, want 5", len(tpls))
	}
	for _, tpl := range tpls {
		if !strings.Contains(tpl.Proxy, KeyPlaceholder) || !strings.Contains(tpl.Original, KeyPlaceholder) {
			t.Errorf("template missing key placeholder: %+v", tpl)
		}
		if !strings.HasPrefix(tpl.Proxy, "http://localhost:8080/proxy/") {
			t.Errorf("proxy pattern = %q", tpl.Proxy)
		}
		if !strings.HasPrefix(tpl.Original, "https://upstream.test/") {
			t.Errorf("original pattern = %q", tpl.Original)
		}
	}
}

func TestTemplate_KeySubstitution(t *testing.T) {
	tpl := Template{
		Proxy:    "http://localhost:8080/proxy/vsrc/HD/{key}",
		Original: "https://upstream.test/vsrc/HD/{key}",
	}
	if got := tpl.ProxyURL("abc123"); got != "http://localhost:8080/proxy/vsrc/HD/abc123" {
		t.Errorf("ProxyURL = %q", got)
	}
	if got := tpl.OriginalURL("abc123"); got != "https://upstream.test/vsrc/HD/abc123" {
		t.Errorf("OriginalURL = %q", got)
	}
}

func TestResolve_ProbesEveryTemplateOnce(t *testing.T) {
	tpls := testTemplates()
	fp := &fakeProber{reachable: map[string]bool{}}
	r := &Resolver{Prober: fp, Templates: tpls}

	r.Resolve(context.Background(), "k1", 42)
	if n := atomic.LoadInt32(&fp.calls); int(n) != len(tpls) {
		t.Errorf("probe calls = %d, want %d", n, len(tpls))
	}
}

func TestResolve_ReturnsOriginalsNotProxies(t *testing.T) {
	tpls := testTemplates()
	fp := &fakeProber{reachable: map[string]bool{
		tpls[0].ProxyURL("k1"): true,
	}}
	r := &Resolver{Prober: fp, Templates: tpls}

	got := r.Resolve(context.Background(), "k1", 42)
	want := []string{tpls[0].OriginalURL("k1")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve = %v, want %v", got, want)
	}
}

// Order must follow template declaration order even when a later probe
// finishes first.
func TestResolve_DeclarationOrderIndependentOfTiming(t *testing.T) {
	tpls := testTemplates()
	fp := &fakeProber{
		reachable: map[string]bool{
			tpls[0].ProxyURL("k1"): true,
			tpls[2].ProxyURL("k1"): true,
			tpls[4].ProxyURL("k1"): true,
		},
		delays: map[string]time.Duration{
			// First template answers last.
			tpls[0].ProxyURL("k1"): 80 * time.Millisecond,
			tpls[2].ProxyURL("k1"): 20 * time.Millisecond,
		},
	}
	st := &recordingStore{}
	r := &Resolver{Prober: fp, Store: st, Templates: tpls}

	got := r.Resolve(context.Background(), "k1", 42)
	want := []string{
		tpls[0].OriginalURL("k1"),
		tpls[2].OriginalURL("k1"),
		tpls[4].OriginalURL("k1"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve = %v, want declaration order %v", got, want)
	}
	if !reflect.DeepEqual(st.urls, want) {
		t.Errorf("persisted = %v, want %v", st.urls, want)
	}
}

func TestResolve_AllUnreachable_NoPersistence(t *testing.T) {
	tpls := testTemplates()
	fp := &fakeProber{reachable: map[string]bool{}}
	st := &recordingStore{}
	r := &Resolver{Prober: fp, Store: st, Templates: tpls}

	got := r.Resolve(context.Background(), "k1", 42)
	if len(got) != 0 {
		t.Errorf("Resolve = %v, want empty", got)
	}
	if st.calls != 0 {
		t.Errorf("SetSourceList called %d times, want 0", st.calls)
	}
}

// Scenario: proxy A times out, B 404s, C succeeds → only C's original URL.
func TestResolve_MixedOutcomes(t *testing.T) {
	tpls := testTemplates()[:3]
	slow := &fakeProber{
		reachable: map[string]bool{
			tpls[0].ProxyURL("k1"): true, // would succeed, but after the deadline
			tpls[2].ProxyURL("k1"): true,
		},
		delays: map[string]time.Duration{
			tpls[0].ProxyURL("k1"): 5 * time.Second,
		},
	}
	st := &recordingStore{}
	r := &Resolver{Prober: slow, Store: st, Templates: tpls}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	got := r.Resolve(ctx, "k1", 42)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("resolution took %v; a slow probe must not delay the join past its timeout", elapsed)
	}

	want := []string{tpls[2].OriginalURL("k1")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve = %v, want %v", got, want)
	}
}

func TestResolve_PersistFailureStillReturnsURLs(t *testing.T) {
	tpls := testTemplates()
	fp := &fakeProber{reachable: map[string]bool{tpls[1].ProxyURL("k1"): true}}
	st := &recordingStore{err: errors.New("db down")}
	r := &Resolver{Prober: fp, Store: st, Templates: tpls}

	got := r.Resolve(context.Background(), "k1", 42)
	if len(got) != 1 {
		t.Fatalf("Resolve = %v, want one URL despite persistence failure", got)
	}
	if st.calls != 1 {
		t.Errorf("SetSourceList calls = %d, want 1", st.calls)
	}
}

func TestResolveIfNeeded_CacheHit(t *testing.T) {
	fp := &fakeProber{reachable: map[string]bool{}}
	r := &Resolver{Prober: fp, Templates: testTemplates()}

	cached := []string{"https://upstream.test/vsrc/h264/k1"}
	got := r.ResolveIfNeeded(context.Background(), "k1", 42, cached)
	if !reflect.DeepEqual(got, cached) {
		t.Errorf("ResolveIfNeeded = %v, want cached list unchanged", got)
	}
	if atomic.LoadInt32(&fp.calls) != 0 {
		t.Error("cache hit must not probe")
	}
}

func TestResolveIfNeeded_NoKey(t *testing.T) {
	fp := &fakeProber{reachable: map[string]bool{}}
	r := &Resolver{Prober: fp, Templates: testTemplates()}

	got := r.ResolveIfNeeded(context.Background(), "", 42, nil)
	if len(got) != 0 {
		t.Errorf("ResolveIfNeeded = %v, want empty", got)
	}
	if atomic.LoadInt32(&fp.calls) != 0 {
		t.Error("missing key must not probe")
	}
}
