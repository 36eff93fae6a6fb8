// Package proxy forwards player requests to the upstream video host so the
// browser never talks to it directly.
package proxy

import (
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
)

// Handler rewrites /proxy/* requests onto the upstream host. The upstream
// rejects cross-origin requests, so the Origin header is pinned to "null"
// the way an opaque-origin embed would send it.
type Handler struct {
	upstream *url.URL
	rp       *httputil.ReverseProxy
}

// New builds a Handler targeting upstreamBase, e.g. "https://cdn.example.com".
func New(upstreamBase string) (*Handler, error) {
	target, err := url.Parse(upstreamBase)
	if err != nil {
		return nil, err
	}
	h := &Handler{upstream: target}
	h.rp = &httputil.ReverseProxy{
		Director: h.direct,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Printf("proxy: upstream %s: %v", r.URL.Path, err)
			w.WriteHeader(http.StatusBadGateway)
		},
	}
	return h, nil
}

func (h *Handler) direct(r *http.Request) {
	r.URL.Scheme = h.upstream.Scheme
	r.URL.Host = h.upstream.Host
	r.URL.Path = "/" + strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/proxy"), "/")
	r.Host = h.upstream.Host
	r.Header.Set("Origin", "null")
	r.Header.Del("Cookie")
	r.Header.Del("Referer")
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.rp.ServeHTTP(w, r)
}
