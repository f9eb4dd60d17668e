package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDownloads(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DownloadDir) == "" {
		return errors.New("paths.download_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind %q is not host:port: %w", c.Paths.APIBind, err)
	}
	return nil
}

func (c *Config) validateDownloads() error {
	if err := ensurePositiveMap(map[string]int{
		"downloads.max_concurrent":    c.Downloads.MaxConcurrent,
		"downloads.idle_timeout":      c.Downloads.IdleTimeout,
		"downloads.request_timeout":   c.Downloads.RequestTimeout,
		"downloads.retention_seconds": c.Downloads.RetentionSeconds,
	}); err != nil {
		return err
	}
	if c.Downloads.IdleTimeout < 5 {
		return errors.New("downloads.idle_timeout must be at least 5 seconds")
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
