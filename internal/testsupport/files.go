package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path (and its parent directories) holding size bytes of
// filler that looks like an MPEG-TS payload. A size <= 0 writes one packet.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	const packet = 188
	if size <= 0 {
		size = packet
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	// 0x47 is the transport stream sync byte.
	pattern := append([]byte{0x47}, bytes.Repeat([]byte{0xff}, packet-1)...)
	data := bytes.Repeat(pattern, int(size/packet)+1)[:size]
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// MustExist fails the test unless path exists.
func MustExist(t testing.TB, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected %s to exist: %v", path, err)
	}
}

// MustNotExist fails the test if path exists.
func MustNotExist(t testing.TB, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Fatalf("expected %s to be absent", path)
	} else if !os.IsNotExist(err) {
		t.Fatalf("stat %s: %v", path, err)
	}
}
