package mirror

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// DefaultProbeTimeout bounds a single reachability check.
const DefaultProbeTimeout = 2 * time.Second

// HTTPProber checks a mirror with a HEAD request. Any transport error,
// timeout or non-2xx status counts as unreachable.
type HTTPProber struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPProber creates a prober with the given per-probe timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &HTTPProber{
		Client:  &http.Client{Timeout: timeout},
		Timeout: timeout,
	}
}

// Probe implements domain.MirrorProber.
func (p *HTTPProber) Probe(ctx context.Context, address string) bool {
	url := address
	if !strings.HasPrefix(url, "http") {
		url = "http://" + url
	}

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
