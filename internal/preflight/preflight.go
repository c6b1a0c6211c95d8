package preflight

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reeler/internal/config"
	"reeler/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunDownload executes the checks the downloader needs before claiming jobs.
func RunDownload(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("Downloads directory", cfg.Paths.DownloadsDir),
		CheckFreeSpace("Downloads free space", cfg.Paths.DownloadsDir, cfg.Download.MinFreeGiB),
		CheckEndpoint(ctx, "Portal", cfg.Portal.BaseURL),
	}
	if cfg.Remote() {
		results = append(results, CheckCoordinator(ctx, cfg.Service.URL))
	}
	return results
}

// RunConvert executes the checks the conversion runner needs.
func RunConvert(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("Downloads directory", cfg.Paths.DownloadsDir),
	}
	if cfg.Converter.DropPolicy == config.DropPolicyMove {
		results = append(results, CheckDirectoryAccess("Drop directory", cfg.Paths.DropDir))
	}
	if cfg.Remote() {
		results = append(results, CheckCoordinator(ctx, cfg.Service.URL))
	}
	return results
}

// FirstFailure folds every failed result into one validation error.
func FirstFailure(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return services.Wrap(services.ErrValidation, "preflight", "check", strings.Join(failed, "; "), errors.New("preflight failed"))
}
