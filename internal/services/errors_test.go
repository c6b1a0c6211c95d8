package services_test

import (
	"errors"
	"strings"
	"testing"

	"reeler/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "convert", "ffmpeg", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"convert", "ffmpeg", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected io marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestIsFatal(t *testing.T) {
	if !services.IsFatal(services.Wrap(services.ErrStructure, "portal", "gallery", "missing link", nil)) {
		t.Fatal("expected structure error to be fatal")
	}
	if !services.IsFatal(services.Wrap(services.ErrAuthentication, "stream", "fetch", "status 403", nil)) {
		t.Fatal("expected authentication error to be fatal")
	}
	if services.IsFatal(services.Wrap(services.ErrNetwork, "download", "segment", "reset", nil)) {
		t.Fatal("expected network error to be non-fatal")
	}
	if services.IsFatal(nil) {
		t.Fatal("expected nil to be non-fatal")
	}
}

func TestClaimLost(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{services.Wrap(services.ErrConflict, "coordinator", "heartbeat", "record #3 is not converting", nil), true},
		{services.Wrap(services.ErrNotFound, "api", "remote", "record #3", nil), true},
		{services.Wrap(services.ErrNetwork, "api", "remote", "connection refused", nil), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := services.ClaimLost(tt.err); got != tt.want {
			t.Fatalf("ClaimLost(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
