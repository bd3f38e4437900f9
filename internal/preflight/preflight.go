package preflight

import (
	"context"
	"path/filepath"
	"strings"

	"sceneflow/internal/config"
	"sceneflow/internal/deps"
	"sceneflow/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Options adjusts which checks apply to a run.
type Options struct {
	// Offline skips the download service check.
	Offline bool
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Working directory", cfg.Paths.WorkingDir),
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	if catalogDir := filepath.Dir(cfg.Catalog.Path); cfg.Catalog.Path != "" && filepath.Clean(catalogDir) != filepath.Clean(cfg.Paths.DataDir) {
		results = append(results, CheckDirectoryAccess("Catalog directory", catalogDir))
	}

	if cfg.Remote.Online && !opts.Offline {
		results = append(results, CheckRemote(ctx, cfg.Remote.LoginURL))
	}

	if len(cfg.Workflow.Steps) > 0 {
		results = append(results, CheckStepCommands(deps.CheckBinaries(deps.StepRequirements(cfg.Workflow.Steps)))...)
	}

	return results
}

// Err collapses failed results into a configuration error, or nil when every
// check passed.
func Err(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r.Name+": "+r.Detail)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "run", strings.Join(failed, "; "), nil)
}
