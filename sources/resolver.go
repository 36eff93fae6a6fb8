package sources

import (
	"context"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"
)

// KeyPlaceholder marks where a video's external key is substituted into a
// candidate URL pattern.
const KeyPlaceholder = "{key}"

// Template is one candidate upstream variant: the proxy URL that gets probed
// and the original URL that gets persisted and served to the player.
type Template struct {
	Proxy    string
	Original string
}

// ProxyURL substitutes key into the probe-side pattern.
func (t Template) ProxyURL(key string) string {
	return strings.ReplaceAll(t.Proxy, KeyPlaceholder, key)
}

// OriginalURL substitutes key into the persisted-side pattern.
func (t Template) OriginalURL(key string) string {
	return strings.ReplaceAll(t.Original, KeyPlaceholder, key)
}

// variantPaths are the upstream quality/format variants tried during
// resolution, in the order results are returned.
var variantPaths = []string{
	"/vsrc/h264/" + KeyPlaceholder,
	"/vsrc/HD/" + KeyPlaceholder,
	"/vsrc/iphone/" + KeyPlaceholder,
	"/vsrc/h264/" + KeyPlaceholder + "/HD",
	"/vsrc/h264/" + KeyPlaceholder + "/720p",
}

// DefaultTemplates builds the fixed candidate set from the local proxy mount
// and the upstream origin, e.g. ("http://localhost:8080/proxy",
// "https://upstream.example.com").
func DefaultTemplates(proxyBase, upstreamBase string) []Template {
	proxyBase = strings.TrimSuffix(proxyBase, "/")
	upstreamBase = strings.TrimSuffix(upstreamBase, "/")
	templates := make([]Template, len(variantPaths))
	for i, p := range variantPaths {
		templates[i] = Template{Proxy: proxyBase + p, Original: upstreamBase + p}
	}
	return templates
}

// SourceStore persists a video's resolved source list.
type SourceStore interface {
	SetSourceList(ctx context.Context, videoID int64, urls []string) error
}

// Resolver probes all candidate templates for a video concurrently and
// persists the surviving original URLs.
type Resolver struct {
	Prober    Prober
	Store     SourceStore
	Templates []Template
}

// Resolve fans out one probe per template, each independently timed out, and
// returns the original URLs whose proxy counterpart answered. The result
// order always follows template declaration order, regardless of which probe
// finishes first. A non-empty result is written through the store; a write
// failure is logged and the URLs are still returned, so the caller serves
// this request and the next one re-resolves from scratch.
func (r *Resolver) Resolve(ctx context.Context, key string, videoID int64) []string {
	// One slot per template: probes share nothing, so no locking is needed.
	results := make([]string, len(r.Templates))

	g, gctx := errgroup.WithContext(ctx)
	for i, tpl := range r.Templates {
		i, tpl := i, tpl
		g.Go(func() error {
			if r.Prober.Probe(gctx, tpl.ProxyURL(key)) {
				results[i] = tpl.OriginalURL(key)
			}
			return nil
		})
	}
	g.Wait()

	urls := make([]string, 0, len(results))
	for _, u := range results {
		if u != "" {
			urls = append(urls, u)
		}
	}

	if len(urls) > 0 && r.Store != nil {
		if err := r.Store.SetSourceList(ctx, videoID, urls); err != nil {
			log.Printf("resolver: persist sources for video %d: %v", videoID, err)
		}
	}
	return urls
}

// ResolveIfNeeded resolves only when no sources are stored yet; a non-empty
// current list is a cache hit and is returned unchanged.
func (r *Resolver) ResolveIfNeeded(ctx context.Context, key string, videoID int64, current []string) []string {
	if len(current) > 0 || key == "" {
		return current
	}
	return r.Resolve(ctx, key, videoID)
}
