package drapto

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	draptolib "github.com/five82/drapto"

	"reeler/internal/services"
)

func stubEncode(t *testing.T, fn func(ctx context.Context, input, outputDir string, rep draptolib.Reporter) error) {
	t.Helper()
	original := runEncode
	runEncode = fn
	t.Cleanup(func() { runEncode = original })
}

func TestEncodeMovesOutputIntoPlace(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "Lecture.12.ts")
	output := filepath.Join(dir, "Lecture.12-drapto.mkv")

	var scratch string
	stubEncode(t, func(_ context.Context, in, outputDir string, rep draptolib.Reporter) error {
		scratch = outputDir
		if in != input {
			t.Fatalf("unexpected input %q", in)
		}
		rep.EncodingStarted(100)
		rep.Warning("low bitrate source")
		return os.WriteFile(filepath.Join(outputDir, "Lecture.12.mkv"), []byte("av1"), 0o644)
	})

	var updates []ProgressUpdate
	if err := NewLibrary().Encode(context.Background(), input, output, func(u ProgressUpdate) {
		updates = append(updates, u)
	}); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	data, err := os.ReadFile(output)
	if err != nil || string(data) != "av1" {
		t.Fatalf("expected moved output, got %q err=%v", data, err)
	}
	if !strings.HasPrefix(filepath.Base(scratch), ".reeler-drapto-") || filepath.Dir(scratch) != dir {
		t.Fatalf("unexpected scratch dir %q", scratch)
	}
	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Fatalf("expected scratch dir removed, stat err=%v", err)
	}
	if len(updates) != 2 || updates[0].TotalFrames != 100 || updates[1].Type != EventWarning {
		t.Fatalf("unexpected updates %+v", updates)
	}
}

func TestEncodeRejectsExistingTarget(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.mkv")
	if err := os.WriteFile(output, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}
	stubEncode(t, func(context.Context, string, string, draptolib.Reporter) error {
		t.Fatal("encoder should not run")
		return nil
	})
	err := NewLibrary().Encode(context.Background(), filepath.Join(dir, "in.ts"), output, nil)
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestEncodeFailureWrapsExternalTool(t *testing.T) {
	dir := t.TempDir()
	stubEncode(t, func(context.Context, string, string, draptolib.Reporter) error {
		return errors.New("svt-av1 exited 1")
	})
	err := NewLibrary().Encode(context.Background(), filepath.Join(dir, "in.ts"), filepath.Join(dir, "out.mkv"), nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestEncodeMissingOutput(t *testing.T) {
	dir := t.TempDir()
	stubEncode(t, func(context.Context, string, string, draptolib.Reporter) error { return nil })
	err := NewLibrary().Encode(context.Background(), filepath.Join(dir, "in.ts"), filepath.Join(dir, "out.mkv"), nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestEncodeCancelled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	stubEncode(t, func(ctx context.Context, _ string, _ string, _ draptolib.Reporter) error {
		cancel()
		return errors.New("interrupted")
	})
	err := NewLibrary().Encode(ctx, filepath.Join(dir, "in.ts"), filepath.Join(dir, "out.mkv"), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestReporterErrorMessage(t *testing.T) {
	var got ProgressUpdate
	rep := newReporter(func(u ProgressUpdate) { got = u })
	rep.Error(draptolib.ReporterError{Title: "Encode failed", Message: "bad input", Suggestion: "check source"})
	if got.Type != EventError || got.Message != "Encode failed: bad input (check source)" {
		t.Fatalf("unexpected update %+v", got)
	}
}
