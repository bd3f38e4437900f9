package testsupport

import (
	"path/filepath"
	"testing"

	"sceneflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Remote access is disabled unless WithRemote is applied.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkingDir = filepath.Join(base, "scenes")
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Catalog.Path = filepath.Join(base, "data", "catalog.db")
	cfgVal.Remote.Online = false
	cfgVal.Remote.LoginInterval = 0
	cfgVal.Remote.RequestsPerSecond = 0
	cfgVal.Remote.Progress = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	return builder.cfg
}

// WithRemote enables online mode against baseURL (typically an httptest server).
func WithRemote(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Remote.Online = true
		b.cfg.Remote.LoginURL = baseURL + "/login/"
		b.cfg.Remote.DownloadURL = baseURL + "/download/{product_id}"
		b.cfg.Remote.Username = "tester"
		b.cfg.Remote.Password = "secret"
		b.cfg.Remote.LoginRetries = 0
	}
}

// WithWorkflow sets the workflow name used by the run.
func WithWorkflow(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.Name = name
	}
}

// WithSceneFilter appends a scene filter.
func WithSceneFilter(filter config.SceneFilter) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scenes = append(b.cfg.Scenes, filter)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkingDir)
}
