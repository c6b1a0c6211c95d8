package netcheck

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	url := srv.URL

	probe := NewHTTPProbe(url, time.Second)
	if !probe.Online(context.Background()) {
		t.Fatal("any HTTP response should count as online")
	}
	srv.Close()
	if probe.Online(context.Background()) {
		t.Fatal("closed server should count as offline")
	}
	if !NewHTTPProbe("", 0).Online(context.Background()) {
		t.Fatal("empty url should count as online")
	}
}

type flakyProbe struct {
	offlineFor int32
	calls      atomic.Int32
}

func (p *flakyProbe) Online(context.Context) bool {
	return p.calls.Add(1) > p.offlineFor
}

func TestWaitOnlinePollsUntilUp(t *testing.T) {
	probe := &flakyProbe{offlineFor: 2}
	wasOffline, err := WaitOnline(context.Background(), probe, time.Millisecond)
	if err != nil {
		t.Fatalf("WaitOnline: %v", err)
	}
	if !wasOffline {
		t.Fatal("expected offline period to be reported")
	}
	if got := probe.calls.Load(); got != 3 {
		t.Fatalf("expected 3 probes, got %d", got)
	}
}

func TestWaitOnlineHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := WaitOnline(ctx, Always(false), 5*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
