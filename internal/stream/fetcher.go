package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"reeler/internal/services"
)

// Fetcher retrieves one segment body. Implementations classify failures with
// services.ErrNetwork (transport level or overloaded server),
// services.ErrNotFound (the server answered but has no such segment) or
// services.ErrAuthentication (the server refused the session).
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HeaderSource returns request headers for url, typically the browser
// session's cookies for that host.
type HeaderSource func(ctx context.Context, url string) (http.Header, error)

// HTTPFetcher fetches segments over HTTP with a per-request timeout.
type HTTPFetcher struct {
	Client *http.Client
	Header http.Header
	Source HeaderSource

	mu      sync.Mutex
	session http.Header
}

// NewHTTPFetcher builds a fetcher whose requests time out after timeout and
// carry header. When source is non-nil its headers are added on top and
// refreshed once after the server refuses a request.
func NewHTTPFetcher(timeout time.Duration, header http.Header, source HeaderSource) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &HTTPFetcher{
		Client: &http.Client{Timeout: timeout},
		Header: header.Clone(),
		Source: source,
	}
}

// Fetch performs one GET, retrying once with fresh session headers when the
// server answers 401 or 403.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	body, err := f.fetch(ctx, url, false)
	if errors.Is(err, services.ErrAuthentication) && f.Source != nil {
		body, err = f.fetch(ctx, url, true)
	}
	return body, err
}

func (f *HTTPFetcher) fetch(ctx context.Context, url string, refresh bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build segment request: %w", err)
	}
	session, err := f.sessionHeader(ctx, url, refresh)
	if err != nil {
		return nil, err
	}
	for _, header := range []http.Header{f.Header, session} {
		for key, values := range header {
			req.Header.Del(key)
			for _, value := range values {
				req.Header.Add(key, value)
			}
		}
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrNetwork, "stream", "fetch", url, err)
	}
	defer resp.Body.Close()

	status := fmt.Sprintf("%s: status %d", url, resp.StatusCode)
	switch {
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, services.Wrap(services.ErrNetwork, "stream", "fetch", status, nil)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, services.Wrap(services.ErrAuthentication, "stream", "fetch", status, nil)
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, services.Wrap(services.ErrNotFound, "stream", "fetch", status, nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrNetwork, "stream", "read body", url, err)
	}
	if len(body) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "stream", "fetch", url+": empty body", nil)
	}
	return body, nil
}

// sessionHeader returns the cached source headers, asking the source again
// when nothing is cached yet or refresh is set.
func (f *HTTPFetcher) sessionHeader(ctx context.Context, url string, refresh bool) (http.Header, error) {
	if f.Source == nil {
		return nil, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session != nil && !refresh {
		return f.session, nil
	}
	header, err := f.Source(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrNetwork, "stream", "session headers", url, err)
	}
	if header == nil {
		header = http.Header{}
	}
	f.session = header
	return header, nil
}

func isNull(err error) bool {
	return err == nil || errors.Is(err, services.ErrNotFound)
}
