package sources

import (
	"context"
	"net/http"
	"time"
)

// DefaultProbeTimeout bounds a single candidate check. A probe that has not
// answered within this window is treated as unreachable.
const DefaultProbeTimeout = 5 * time.Second

// Prober checks whether a single candidate URL is reachable.
type Prober interface {
	Probe(ctx context.Context, url string) bool
}

// HTTPProber issues a HEAD request against a candidate URL with headers
// shaped like a legitimate player request. Success is any status below 400;
// transport errors, timeouts, and 4xx/5xx all count as unreachable. It never
// retries; retry policy belongs to the caller.
type HTTPProber struct {
	Client  *http.Client
	Timeout time.Duration
	Referer string
}

func (p *HTTPProber) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return http.DefaultClient
}

func (p *HTTPProber) timeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return DefaultProbeTimeout
}

// Probe reports whether url answers a lightweight existence check in time.
// The deadline cancels the in-flight request, so a hung upstream cannot hold
// the caller past the timeout.
func (p *HTTPProber) Probe(ctx context.Context, url string) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Priority", "u=1, i")
	if p.Referer != "" {
		req.Header.Set("Referer", p.Referer)
	}

	resp, err := p.client().Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 400
}
