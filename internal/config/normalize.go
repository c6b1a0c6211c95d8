package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStore(); err != nil {
		return err
	}
	c.normalizePortal()
	c.normalizeDownload()
	if err := c.normalizeConverter(); err != nil {
		return err
	}
	if err := c.normalizeService(); err != nil {
		return err
	}
	return c.normalizeLogging()
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DownloadsDir) == "" {
		c.Paths.DownloadsDir = defaultDownloadsDir
	}
	if c.Paths.DownloadsDir, err = expandPath(c.Paths.DownloadsDir); err != nil {
		return fmt.Errorf("paths.downloads_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.DropDir, err = expandPath(strings.TrimSpace(c.Paths.DropDir)); err != nil {
		return fmt.Errorf("paths.drop_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStore() error {
	var err error
	if strings.TrimSpace(c.Store.Path) == "" {
		c.Store.Path = filepath.Join(c.Paths.StateDir, defaultStoreFile)
	}
	if c.Store.Path, err = expandPath(c.Store.Path); err != nil {
		return fmt.Errorf("store.path: %w", err)
	}
	if strings.TrimSpace(c.Store.HistoryPath) == "" {
		c.Store.HistoryPath = filepath.Join(c.Paths.StateDir, defaultHistoryFile)
	}
	if c.Store.HistoryPath, err = expandPath(c.Store.HistoryPath); err != nil {
		return fmt.Errorf("store.history_path: %w", err)
	}
	if c.Store.LockPollMs <= 0 {
		c.Store.LockPollMs = defaultLockPollMs
	}
	if c.Store.SaveRetryMs <= 0 {
		c.Store.SaveRetryMs = defaultSaveRetryMs
	}
	return nil
}

func (c *Config) normalizePortal() {
	c.Portal.BaseURL = strings.TrimRight(strings.TrimSpace(c.Portal.BaseURL), "/")
	c.Portal.GalleryPath = strings.TrimSpace(c.Portal.GalleryPath)
	if c.Portal.GalleryPath == "" {
		c.Portal.GalleryPath = defaultGalleryPath
	}
	c.Portal.Username = strings.TrimSpace(c.Portal.Username)
	if c.Portal.Username == "" {
		if value, ok := os.LookupEnv(envPortalUsername); ok {
			c.Portal.Username = strings.TrimSpace(value)
		}
	}
	if c.Portal.Password == "" {
		if value, ok := os.LookupEnv(envPortalPassword); ok {
			c.Portal.Password = value
		}
	}
	c.Portal.SegmentPattern = strings.TrimSpace(c.Portal.SegmentPattern)
	if c.Portal.SegmentPattern == "" {
		c.Portal.SegmentPattern = defaultSegmentPattern
	}
	if c.Portal.PageTimeout <= 0 {
		c.Portal.PageTimeout = defaultPageTimeout
	}
}

func (c *Config) normalizeDownload() {
	if c.Download.VideoPartTimeout <= 0 {
		c.Download.VideoPartTimeout = defaultVideoPartTimeout
	}
	if c.Download.SegmentTimeout <= 0 {
		c.Download.SegmentTimeout = defaultSegmentTimeout
	}
	if c.Download.NullRetryBudget < 0 {
		c.Download.NullRetryBudget = defaultNullRetryBudget
	}
	if c.Download.NullRetryDelayMs < 0 {
		c.Download.NullRetryDelayMs = defaultNullRetryDelayMs
	}
	if c.Download.ScanAhead < 0 {
		c.Download.ScanAhead = defaultScanAhead
	}
	if c.Download.ConnectivityPoll <= 0 {
		c.Download.ConnectivityPoll = defaultConnectivityPoll
	}
	c.Download.ConnectivityURL = strings.TrimSpace(c.Download.ConnectivityURL)
	if c.Download.ConnectivityURL == "" {
		c.Download.ConnectivityURL = c.Portal.BaseURL
	}
	if c.Download.MinFreeGiB < 0 {
		c.Download.MinFreeGiB = 0
	}
}

func (c *Config) normalizeConverter() error {
	c.Converter.Encoder = strings.ToLower(strings.TrimSpace(c.Converter.Encoder))
	if c.Converter.Encoder == "" {
		c.Converter.Encoder = defaultEncoder
	}
	c.Converter.FFmpegPath = strings.TrimSpace(c.Converter.FFmpegPath)
	if strings.ContainsRune(c.Converter.FFmpegPath, filepath.Separator) || strings.HasPrefix(c.Converter.FFmpegPath, "~") {
		var err error
		if c.Converter.FFmpegPath, err = expandPath(c.Converter.FFmpegPath); err != nil {
			return fmt.Errorf("converter.ffmpeg_path: %w", err)
		}
	}
	c.Converter.DropPolicy = strings.ToLower(strings.TrimSpace(c.Converter.DropPolicy))
	if c.Converter.DropPolicy == "" {
		// A configured drop directory without a policy means "move there".
		if c.Paths.DropDir != "" {
			c.Converter.DropPolicy = DropPolicyMove
		} else {
			c.Converter.DropPolicy = defaultDropPolicy
		}
	}
	if c.Converter.PollInterval <= 0 {
		c.Converter.PollInterval = defaultConverterPollInterval
	}
	if c.Converter.HeartbeatInterval <= 0 {
		c.Converter.HeartbeatInterval = defaultConverterHeartbeat
	}
	return nil
}

func (c *Config) normalizeService() error {
	c.Service.Bind = strings.TrimSpace(c.Service.Bind)
	if c.Service.Bind == "" {
		c.Service.Bind = defaultServiceBind
	}
	c.Service.URL = strings.TrimSpace(c.Service.URL)
	if c.Service.URL == "" {
		if value, ok := os.LookupEnv(envServiceURL); ok {
			c.Service.URL = strings.TrimSpace(value)
		}
	}
	c.Service.URL = strings.TrimRight(c.Service.URL, "/")
	var err error
	if c.Service.Certificate, err = expandPath(strings.TrimSpace(c.Service.Certificate)); err != nil {
		return fmt.Errorf("service.certificate: %w", err)
	}
	if c.Service.PrivateKey, err = expandPath(strings.TrimSpace(c.Service.PrivateKey)); err != nil {
		return fmt.Errorf("service.private_key: %w", err)
	}
	if c.Service.StaleAfterHours <= 0 {
		c.Service.StaleAfterHours = defaultStaleAfterHours
	}
	return nil
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if file := strings.TrimSpace(c.Logging.File); file != "" {
		expanded, err := expandPath(file)
		if err != nil {
			return fmt.Errorf("logging.file: %w", err)
		}
		c.Logging.File = expanded
	}
	return nil
}
