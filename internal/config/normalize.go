package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// DateLayout is the calendar date format accepted for scene filter bounds.
const DateLayout = "2006-01-02"

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRemote()
	if err := c.normalizeScenes(); err != nil {
		return err
	}
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkingDir, err = expandPath(c.Paths.WorkingDir); err != nil {
		return fmt.Errorf("paths.working_dir: %w", err)
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Catalog.Path, err = expandPath(c.Catalog.Path); err != nil {
		return fmt.Errorf("catalog.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeRemote() {
	if c.Remote.Username == "" {
		if value, ok := os.LookupEnv("SCENEFLOW_USERNAME"); ok {
			c.Remote.Username = value
		}
	}
	if c.Remote.Password == "" {
		if value, ok := os.LookupEnv("SCENEFLOW_PASSWORD"); ok {
			c.Remote.Password = value
		}
	}
	c.Remote.LoginURL = strings.TrimSpace(c.Remote.LoginURL)
	c.Remote.DownloadURL = strings.TrimSpace(c.Remote.DownloadURL)
	if c.Remote.DownloadURL == "" {
		c.Remote.DownloadURL = defaultDownloadURL
	}
	if c.Remote.ChunkSize <= 0 {
		c.Remote.ChunkSize = defaultChunkSize
	}
	if c.Remote.LoginRetries < 0 {
		c.Remote.LoginRetries = 0
	}
}

func (c *Config) normalizeScenes() error {
	for i := range c.Scenes {
		filter := &c.Scenes[i]
		start, err := parseDate(filter.StartDate)
		if err != nil {
			return fmt.Errorf("scenes[%d].start_date: %w", i, err)
		}
		end, err := parseDate(filter.EndDate)
		if err != nil {
			return fmt.Errorf("scenes[%d].end_date: %w", i, err)
		}
		filter.Start = start
		filter.End = end
		if filter.MaxCloudCover <= 0 {
			filter.MaxCloudCover = 100
		}
	}
	return nil
}

func (c *Config) normalizeWorkflow() {
	c.Workflow.Name = strings.ToLower(strings.TrimSpace(c.Workflow.Name))
	if c.Workflow.Name == "" {
		c.Workflow.Name = defaultWorkflowName
	}
	for i := range c.Workflow.Steps {
		c.Workflow.Steps[i].Command = strings.TrimSpace(c.Workflow.Steps[i].Command)
		c.Workflow.Steps[i].Description = strings.TrimSpace(c.Workflow.Steps[i].Description)
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
		c.Logging.Format = "json"
	default:
		c.Logging.Format = format
	}
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD, got %q", value)
	}
	return parsed, nil
}
