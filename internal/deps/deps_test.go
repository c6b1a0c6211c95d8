package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected status for unset command: %#v", results[2])
	}
}

func TestCheckBinariesAlternatives(t *testing.T) {
	binDir := t.TempDir()
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(filepath.Join(binDir, "chromium"), script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	t.Setenv("PATH", binDir)

	results := CheckBinaries([]Requirement{
		{Name: "Browser", Alternatives: BrowserCandidates()},
		{Name: "Other", Alternatives: []string{"nope-one", "nope-two"}, Optional: true},
	})
	if !results[0].Available {
		t.Fatalf("expected browser alternative to resolve, got %#v", results[0])
	}
	if results[0].Command != filepath.Join(binDir, "chromium") {
		t.Fatalf("unexpected resolved command %q", results[0].Command)
	}
	if results[1].Available || results[1].Command != "nope-one" {
		t.Fatalf("unexpected status for missing alternatives: %#v", results[1])
	}
	if missing := Missing(results); len(missing) != 0 {
		t.Fatalf("optional dependency should not count as missing: %#v", missing)
	}
}
