package resilience

import (
	"context"
	"net/http"
	"time"
)

// ReachabilityProbe is a cheap connectivity check, distinct from the operation
// being attempted. An unreachable report makes the guard fail fast with
// ErrNetworkUnreachable instead of burning retry budget on a dead link.
type ReachabilityProbe interface {
	Reachable(ctx context.Context) bool
}

// HTTPProbe performs a short-timeout HEAD request against a known endpoint
// (typically the provider's health path). Any HTTP response counts as
// reachable, including error statuses; only transport failures do not.
type HTTPProbe struct {
	endpoint string
	client   *http.Client
}

func NewHTTPProbe(endpoint string, timeout time.Duration) *HTTPProbe {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPProbe{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProbe) Reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
