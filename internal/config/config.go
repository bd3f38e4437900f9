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

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkingDir string `toml:"working_dir"`
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
}

// Remote contains configuration for the archive download service.
type Remote struct {
	Online            bool                `toml:"online"`
	LoginURL          string              `toml:"login_url"`
	Username          string              `toml:"username"`
	Password          string              `toml:"password"`
	DownloadURL       string              `toml:"download_url"`
	Repositories      map[string][]string `toml:"repositories"`
	LoginInterval     int                 `toml:"login_interval"`
	LoginRetries      int                 `toml:"login_retries"`
	RequestTimeout    int                 `toml:"request_timeout"`
	RequestsPerSecond float64             `toml:"requests_per_second"`
	ChunkSize         int                 `toml:"chunk_size"`
	Progress          bool                `toml:"progress"`
}

// Catalog contains configuration for the scene metadata catalog.
type Catalog struct {
	Path string `toml:"path"`
}

// SceneFilter selects catalog candidates for one path and a set of rows.
type SceneFilter struct {
	Path          int     `toml:"path"`
	Rows          []int   `toml:"rows"`
	StartDate     string  `toml:"start_date"`
	EndDate       string  `toml:"end_date"`
	MaxCloudCover float64 `toml:"max_cloud_cover"`

	Start time.Time `toml:"-"`
	End   time.Time `toml:"-"`
}

// WorkflowStep describes one externally executed processing step.
type WorkflowStep struct {
	Description string   `toml:"description"`
	Command     string   `toml:"command"`
	Args        []string `toml:"args"`
}

// Workflow contains configuration for scene processing.
type Workflow struct {
	Name            string         `toml:"name"`
	Cleanup         bool           `toml:"cleanup"`
	CleanupPatterns []string       `toml:"cleanup_patterns"`
	CleanupExclude  []string       `toml:"cleanup_exclude"`
	Steps           []WorkflowStep `toml:"steps"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for sceneflow.
//
// Configuration sections by subsystem:
//   - Paths: working area for archives, state databases, logs
//   - Remote: download service login, URL template, throttling
//   - Catalog: metadata catalog database
//   - Scenes: path/row/date filters that drive the transfer manager
//   - Workflow: registered workflow name, cleanup rules, command steps
//   - Logging: log format and level
type Config struct {
	Paths    Paths         `toml:"paths"`
	Remote   Remote        `toml:"remote"`
	Catalog  Catalog       `toml:"catalog"`
	Scenes   []SceneFilter `toml:"scenes"`
	Workflow Workflow      `toml:"workflow"`
	Logging  Logging       `toml:"logging"`
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

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
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

	projectPath, err := filepath.Abs("sceneflow.toml")
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

// EnsureDirectories creates the working, data, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkingDir, c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CheckpointDBPath returns the SQLite file holding step checkpoints.
func (c *Config) CheckpointDBPath() string {
	return filepath.Join(c.Paths.DataDir, "checkpoints.db")
}

// LedgerDBPath returns the SQLite file holding the download ledger.
func (c *Config) LedgerDBPath() string {
	return filepath.Join(c.Paths.DataDir, "downloads.db")
}

// LockPath returns the batch lock file guarding single-writer access to the stores.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "sceneflow.lock")
}

// LoginInterval returns the credential renewal period.
func (c *Config) LoginInterval() time.Duration {
	return time.Duration(c.Remote.LoginInterval) * time.Second
}

// RequestTimeout returns the per-request timeout for the download client.
// Zero means no timeout; archives can take a long time to stream.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Remote.RequestTimeout) * time.Second
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
