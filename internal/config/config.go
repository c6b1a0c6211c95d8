package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DownloadsDir string `toml:"downloads_dir"`
	StateDir     string `toml:"state_dir"`
	DropDir      string `toml:"drop_dir"`
}

// Store contains configuration for the persisted record store.
type Store struct {
	Path        string `toml:"path"`
	HistoryPath string `toml:"history_path"`
	LockPollMs  int    `toml:"lock_poll_ms"`
	SaveRetryMs int    `toml:"save_retry_ms"`
}

// Portal contains the video portal location and credentials.
type Portal struct {
	BaseURL        string `toml:"base_url"`
	GalleryPath    string `toml:"gallery_path"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	Headless       bool   `toml:"headless"`
	SegmentPattern string `toml:"segment_pattern"`
	PageTimeout    int    `toml:"page_timeout"`
}

// Download contains stream acquisition thresholds.
type Download struct {
	VideoPartTimeout int    `toml:"video_part_timeout"`
	SegmentTimeout   int    `toml:"segment_timeout"`
	NullRetryBudget  int    `toml:"null_retry_budget"`
	NullRetryDelayMs int    `toml:"null_retry_delay_ms"`
	ScanAhead        int    `toml:"scan_ahead"`
	ConnectivityPoll int    `toml:"connectivity_poll"`
	ConnectivityURL  string `toml:"connectivity_url"`
	MinFreeGiB       int    `toml:"min_free_gib"`
}

// Converter contains conversion runner settings.
type Converter struct {
	Encoder           string `toml:"encoder"`
	FFmpegPath        string `toml:"ffmpeg_path"`
	DropPolicy        string `toml:"drop_policy"`
	PollInterval      int    `toml:"poll_interval"`
	HeartbeatInterval int    `toml:"heartbeat_interval"`
}

// Service contains coordinator service settings. URL is set on worker hosts
// that talk to a remote coordinator instead of the local store.
type Service struct {
	Bind            string `toml:"bind"`
	URL             string `toml:"url"`
	Certificate     string `toml:"certificate"`
	PrivateKey      string `toml:"private_key"`
	StaleAfterHours int    `toml:"stale_after_hours"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	// File, when set, receives a copy of everything written to stderr.
	File string `toml:"file"`
}

// Config encapsulates all configuration values for reeler.
//
// Configuration sections by subsystem:
//   - Paths: downloads, state, and drop directories
//   - Store: record store file, journal, and lock timing
//   - Portal: portal URL, credentials, and browser behaviour
//   - Download: segment timeouts and retry thresholds
//   - Converter: encoder backend, drop policy, and polling
//   - Service: coordinator bind address, TLS, and staleness
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Store     Store     `toml:"store"`
	Portal    Portal    `toml:"portal"`
	Download  Download  `toml:"download"`
	Converter Converter `toml:"converter"`
	Service   Service   `toml:"service"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv populates unset environment variables from a dotenv file.
// A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reeler.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for worker operation.
// The drop directory is only created when the move policy needs it.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DownloadsDir, c.Paths.StateDir, filepath.Dir(c.Store.Path)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Converter.DropPolicy == DropPolicyMove && strings.TrimSpace(c.Paths.DropDir) != "" {
		if err := os.MkdirAll(c.Paths.DropDir, 0o755); err != nil {
			return fmt.Errorf("create drop directory %q: %w", c.Paths.DropDir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable used by the ffmpeg encoder.
func (c *Config) FFmpegBinary() string {
	if bin := strings.TrimSpace(c.Converter.FFmpegPath); bin != "" {
		return bin
	}
	return "ffmpeg"
}

// LockFilePath returns the single-instance lock used by the coordinator service.
func (c *Config) LockFilePath() string {
	return filepath.Join(c.Paths.StateDir, "reeler.lock")
}

// Remote reports whether workers talk to a coordinator service over HTTP.
func (c *Config) Remote() bool {
	return strings.TrimSpace(c.Service.URL) != ""
}

// TLSEnabled reports whether the coordinator service serves HTTPS.
func (c *Config) TLSEnabled() bool {
	return c.Service.Certificate != "" && c.Service.PrivateKey != ""
}

// VideoPartTimeout returns how long one stream trigger wait lasts.
func (c *Config) VideoPartTimeout() time.Duration {
	return time.Duration(c.Download.VideoPartTimeout) * time.Second
}

// SegmentTimeout returns the per-segment HTTP timeout.
func (c *Config) SegmentTimeout() time.Duration {
	return time.Duration(c.Download.SegmentTimeout) * time.Second
}

// NullRetryDelay returns the pause between same-index segment retries.
func (c *Config) NullRetryDelay() time.Duration {
	return time.Duration(c.Download.NullRetryDelayMs) * time.Millisecond
}

// ConnectivityPoll returns the offline polling interval.
func (c *Config) ConnectivityPoll() time.Duration {
	return time.Duration(c.Download.ConnectivityPoll) * time.Second
}

// PageTimeout returns the browser navigation timeout.
func (c *Config) PageTimeout() time.Duration {
	return time.Duration(c.Portal.PageTimeout) * time.Second
}

// PollInterval returns the converter idle poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Converter.PollInterval) * time.Second
}

// HeartbeatInterval returns the minimum spacing of converter heartbeats.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Converter.HeartbeatInterval) * time.Second
}

// StaleAfter returns how long a converting claim stays fresh.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Service.StaleAfterHours) * time.Hour
}

// LockPoll returns the store lock polling interval.
func (c *Config) LockPoll() time.Duration {
	return time.Duration(c.Store.LockPollMs) * time.Millisecond
}

// SaveRetry returns the delay before the deferred store save retry.
func (c *Config) SaveRetry() time.Duration {
	return time.Duration(c.Store.SaveRetryMs) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
