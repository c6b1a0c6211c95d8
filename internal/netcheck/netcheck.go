// Package netcheck answers one question for the retry loops: is the network
// up right now? Segment fetch failures are only retried indefinitely while the
// host is offline.
package netcheck

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Probe reports current connectivity.
type Probe interface {
	Online(ctx context.Context) bool
}

// HTTPProbe treats any HTTP response from URL as proof of connectivity.
type HTTPProbe struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
}

// NewHTTPProbe constructs a probe against url with a short timeout.
func NewHTTPProbe(url string, timeout time.Duration) *HTTPProbe {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPProbe{URL: strings.TrimSpace(url), Timeout: timeout, Client: &http.Client{Timeout: timeout}}
}

// Online issues a HEAD request. An empty URL is always considered online.
func (p *HTTPProbe) Online(ctx context.Context) bool {
	if p == nil || p.URL == "" {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// Always is a probe with a fixed answer, used by tests and by callers that
// have no probe URL.
type Always bool

func (a Always) Online(context.Context) bool { return bool(a) }

// WaitOnline blocks until probe reports online or ctx ends. It reports
// whether the host had been offline at least once.
func WaitOnline(ctx context.Context, probe Probe, poll time.Duration) (wasOffline bool, err error) {
	if probe == nil {
		return false, nil
	}
	for {
		if probe.Online(ctx) {
			return wasOffline, nil
		}
		wasOffline = true
		select {
		case <-ctx.Done():
			return wasOffline, ctx.Err()
		case <-time.After(poll):
		}
	}
}
