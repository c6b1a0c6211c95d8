package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"reeler/internal/api"
	"reeler/internal/config"
	"reeler/internal/converter"
	"reeler/internal/coordinator"
	"reeler/internal/downloader"
	"reeler/internal/logging"
	"reeler/internal/records"
)

type commandContext struct {
	configFlag *string
	logLevel   *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logCfg := *cfg
	if c.logLevel != nil && strings.TrimSpace(*c.logLevel) != "" {
		logCfg.Logging.Level = strings.TrimSpace(*c.logLevel)
	}
	logger, err := logging.NewFromConfig(&logCfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// workQueue is what the worker and maintenance commands need from either the
// local coordinator or the remote service.
type workQueue interface {
	downloader.Queue
	converter.Queue
	Entry(ctx context.Context, id int64) (*records.Record, error)
	MergeEntry(ctx context.Context, id int64, patch map[string]any) (*records.Record, error)
}

type repeatMarker interface {
	MarkRepeat(ctx context.Context, ids ...int64) (int, error)
}

// openQueue returns the coordinator service client when service.url is set
// and the flock-guarded local store otherwise.
func (c *commandContext) openQueue(logger *slog.Logger) (workQueue, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Remote() {
		client := api.NewClient(cfg.Service.URL, 0)
		logger.Debug("using coordinator service", logging.String("url", client.BaseURL()))
		return client, func() {}, nil
	}
	local, err := coordinator.OpenLocal(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open record store: %w", err)
	}
	return local, func() { _ = local.Close() }, nil
}

func openStore(cfg *config.Config, logger *slog.Logger) (*records.Store, error) {
	return records.Open(cfg.Store.Path, logger,
		records.WithRetryDelay(cfg.SaveRetry()),
		records.WithLockPoll(cfg.LockPoll()),
	)
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func hostname() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "unknown"
	}
	return host
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
