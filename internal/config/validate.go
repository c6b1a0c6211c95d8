package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Validate ensures the configuration is usable. Portal credentials are only
// required by the downloader and are checked there through RequirePortal.
func (c *Config) Validate() error {
	if err := c.validatePortal(); err != nil {
		return err
	}
	if err := c.validateDownload(); err != nil {
		return err
	}
	if err := c.validateConverter(); err != nil {
		return err
	}
	if err := c.validateService(); err != nil {
		return err
	}
	return nil
}

// RequirePortal reports a descriptive error when the downloader cannot log in.
func (c *Config) RequirePortal() error {
	if c.Portal.BaseURL == "" {
		return fmt.Errorf("portal.base_url is required. Edit %s (create with 'reeler config init')", c.configHint())
	}
	if c.Portal.Username == "" || c.Portal.Password == "" {
		return fmt.Errorf("portal credentials are required. Set %s and %s or edit %s", envPortalUsername, envPortalPassword, c.configHint())
	}
	return nil
}

func (c *Config) configHint() string {
	path, err := DefaultConfigPath()
	if err != nil {
		return defaultConfigPath
	}
	return path
}

func (c *Config) validatePortal() error {
	if c.Portal.BaseURL != "" {
		if err := validateHTTPURL("portal.base_url", c.Portal.BaseURL); err != nil {
			return err
		}
	}
	if _, err := regexp.Compile(c.Portal.SegmentPattern); err != nil {
		return fmt.Errorf("portal.segment_pattern: %w", err)
	}
	return nil
}

func (c *Config) validateDownload() error {
	if err := ensurePositiveMap(map[string]int{
		"download.video_part_timeout": c.Download.VideoPartTimeout,
		"download.segment_timeout":    c.Download.SegmentTimeout,
		"download.connectivity_poll":  c.Download.ConnectivityPoll,
		"portal.page_timeout":         c.Portal.PageTimeout,
	}); err != nil {
		return err
	}
	if c.Download.ConnectivityURL != "" {
		if err := validateHTTPURL("download.connectivity_url", c.Download.ConnectivityURL); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateConverter() error {
	switch c.Converter.Encoder {
	case EncoderFFmpeg, EncoderDrapto:
	default:
		return fmt.Errorf("converter.encoder must be %q or %q, got %q", EncoderFFmpeg, EncoderDrapto, c.Converter.Encoder)
	}
	switch c.Converter.DropPolicy {
	case DropPolicyDelete, DropPolicyRename, DropPolicyKeep:
	case DropPolicyMove:
		if c.Paths.DropDir == "" {
			return errors.New("paths.drop_dir must be set when converter.drop_policy is \"move\"")
		}
	default:
		return fmt.Errorf("converter.drop_policy must be one of delete, move, rename, keep; got %q", c.Converter.DropPolicy)
	}
	if c.Converter.HeartbeatInterval >= c.Service.StaleAfterHours*3600 {
		return errors.New("converter.heartbeat_interval must be shorter than service.stale_after_hours")
	}
	return nil
}

func (c *Config) validateService() error {
	if c.Service.URL != "" {
		if err := validateHTTPURL("service.url", c.Service.URL); err != nil {
			return err
		}
	}
	if (c.Service.Certificate == "") != (c.Service.PrivateKey == "") {
		return errors.New("service.certificate and service.private_key must be set together")
	}
	return nil
}

func validateHTTPURL(key, value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if (scheme != "http" && scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", key, value)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
