package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"sceneflow/internal/services"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	for _, check := range []func() error{
		c.validatePaths,
		c.validateRemote,
		c.validateScenes,
		c.validateWorkflow,
		c.validateLogging,
	} {
		if err := check(); err != nil {
			return services.Wrap(services.ErrConfiguration, "config", "validate", "", err)
		}
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.WorkingDir == "" {
		return errors.New("paths.working_dir must be set")
	}
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	return nil
}

func (c *Config) validateRemote() error {
	if !c.Remote.Online {
		return nil
	}
	if c.Remote.LoginURL == "" {
		return errors.New("remote.login_url must be set when remote.online is true")
	}
	if !strings.Contains(c.Remote.DownloadURL, "{") {
		return fmt.Errorf("remote.download_url %q has no placeholders", c.Remote.DownloadURL)
	}
	if c.Remote.LoginInterval < 0 {
		return errors.New("remote.login_interval must be >= 0")
	}
	if c.Remote.RequestTimeout < 0 {
		return errors.New("remote.request_timeout must be >= 0")
	}
	if c.Remote.RequestsPerSecond < 0 {
		return errors.New("remote.requests_per_second must be >= 0")
	}
	return nil
}

func (c *Config) validateScenes() error {
	for i, filter := range c.Scenes {
		if filter.Path < 1 || filter.Path > 999 {
			return fmt.Errorf("scenes[%d].path must be between 1 and 999", i)
		}
		if len(filter.Rows) == 0 {
			return fmt.Errorf("scenes[%d].rows must list at least one row", i)
		}
		for _, row := range filter.Rows {
			if row < 1 || row > 999 {
				return fmt.Errorf("scenes[%d].rows contains %d; rows must be between 1 and 999", i, row)
			}
		}
		if filter.Start.IsZero() || filter.End.IsZero() {
			return fmt.Errorf("scenes[%d] requires start_date and end_date", i)
		}
		if filter.End.Before(filter.Start) {
			return fmt.Errorf("scenes[%d].end_date precedes start_date", i)
		}
		if filter.MaxCloudCover > 100 {
			return fmt.Errorf("scenes[%d].max_cloud_cover must be <= 100", i)
		}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	for i, step := range c.Workflow.Steps {
		if step.Command == "" {
			return fmt.Errorf("workflow.steps[%d].command must be set", i)
		}
	}
	for _, pattern := range append(append([]string{}, c.Workflow.CleanupPatterns...), c.Workflow.CleanupExclude...) {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("workflow cleanup pattern %q: %w", pattern, err)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
