package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"reeler/internal/config"
	"reeler/internal/deps"
)

const bytesPerGiB = 1024 * 1024 * 1024

// statfs is swapped in tests.
var statfs = func(path string) (free uint64, err error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies that at least minGiB are available on the filesystem
// holding path. A zero minimum always passes.
func CheckFreeSpace(name, path string, minGiB int) Result {
	free, err := statfs(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	freeGiB := float64(free) / bytesPerGiB
	if minGiB > 0 && free < uint64(minGiB)*bytesPerGiB {
		return Result{Name: name, Detail: fmt.Sprintf("%.1f GiB free, need %d GiB", freeGiB, minGiB)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%.1f GiB free", freeGiB)}
}

// CheckEndpoint verifies that an HTTP(S) endpoint answers at all. Any HTTP
// status counts as reachable; only transport failures fail the check.
func CheckEndpoint(ctx context.Context, name, rawURL string) Result {
	base := strings.TrimSpace(rawURL)
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid url (%v)", err)}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable (%v)", err)}
	}
	resp.Body.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable (%d)", resp.StatusCode)}
}

// CheckCoordinator verifies that a remote coordinator service is healthy.
func CheckCoordinator(ctx context.Context, serviceURL string) Result {
	const name = "Coordinator"
	base := strings.TrimRight(strings.TrimSpace(serviceURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid url (%v)", err)}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable (%v)", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%d)", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: "healthy"}
}

// CheckSystemDeps evaluates the external binaries the configured workers need.
// Both the doctor command and the worker commands use this list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:         "Browser",
			Alternatives: deps.BrowserCandidates(),
			Description:  "Required by the downloader to drive the portal",
		},
	}
	if cfg.Converter.Encoder == config.EncoderFFmpeg {
		requirements = append(requirements, deps.Requirement{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Required for conversion",
		})
	} else {
		requirements = append(requirements, deps.Requirement{
			Name:        "FFmpeg",
			Command:     "ffmpeg",
			Description: "Used by the drapto encoder",
		}, deps.Requirement{
			Name:        "FFprobe",
			Command:     "ffprobe",
			Description: "Used by the drapto encoder for media analysis",
		})
	}
	return deps.CheckBinaries(requirements)
}
