package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"reeler/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DownloadsDir = filepath.Join(base, "downloads")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Store.Path = filepath.Join(base, "state", "videos.json")
	cfgVal.Store.HistoryPath = filepath.Join(base, "state", "history.db")
	cfgVal.Store.LockPollMs = 5
	cfgVal.Store.SaveRetryMs = 50
	cfgVal.Portal.BaseURL = "http://portal.invalid"
	cfgVal.Portal.Username = "tester"
	cfgVal.Portal.Password = "secret"
	cfgVal.Download.MinFreeGiB = 0
	cfgVal.Download.NullRetryDelayMs = 0
	cfgVal.Service.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithEncoder selects the converter backend.
func WithEncoder(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Converter.Encoder = name
	}
}

// WithDropPolicy sets the drop policy, creating a drop directory for "move".
func WithDropPolicy(policy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Converter.DropPolicy = policy
		if policy == config.DropPolicyMove && b.cfg.Paths.DropDir == "" {
			b.cfg.Paths.DropDir = filepath.Join(b.baseDir, "dropped")
		}
	}
}

// WithServiceURL points workers at a coordinator service.
func WithServiceURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Service.URL = url
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default reeler external
// binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe", "chromium"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DownloadsDir)
}
