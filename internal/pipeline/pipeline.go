package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sceneflow/internal/catalog"
	"sceneflow/internal/checkpoint"
	"sceneflow/internal/config"
	"sceneflow/internal/credentials"
	"sceneflow/internal/ledger"
	"sceneflow/internal/logging"
	"sceneflow/internal/preflight"
	"sceneflow/internal/scene"
	"sceneflow/internal/services"
	"sceneflow/internal/transfer"
	"sceneflow/internal/workflow"
	"sceneflow/internal/workqueue"
)

const component = "pipeline"

// Options configures a batch run.
type Options struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *workflow.Registry
	// Catalog overrides the SQLite catalog at cfg.Catalog.Path.
	Catalog catalog.Catalog
	// Session overrides the login session built from cfg.Remote.
	Session transfer.Session
	Force   bool
	Offline bool
	// Progress receives download progress bars; nil disables them.
	Progress io.Writer
	// SkipPreflight disables directory and remote readiness checks.
	SkipPreflight bool
}

// Summary aggregates the outcome of a batch.
type Summary struct {
	RunID      string
	Workflow   string
	Transfer   transfer.Summary
	Processing workflow.ConsumerSummary
	Elapsed    time.Duration
}

// Run executes one batch: the transfer manager produces scenes into the work
// queue while the consumer runs the configured workflow over them. Only one
// batch may hold the data directory at a time.
func Run(ctx context.Context, opts Options) (Summary, error) {
	summary := Summary{RunID: uuid.NewString()}
	cfg := opts.Config
	if cfg == nil {
		return summary, services.Wrap(services.ErrConfiguration, component, "run", "config required", nil)
	}
	logger := logging.NewComponentLogger(opts.Logger, component).With(logging.String(logging.FieldRunID, summary.RunID))
	ctx = services.WithRunID(ctx, summary.RunID)
	started := time.Now()

	wf, err := resolveWorkflow(cfg, opts.Registry, opts.Logger)
	if err != nil {
		return summary, err
	}
	summary.Workflow = wf.Name()

	if !opts.SkipPreflight {
		if err := preflight.Err(preflight.RunAll(ctx, cfg, preflight.Options{Offline: opts.Offline})); err != nil {
			return summary, err
		}
	}

	unlock, err := acquireLock(cfg.LockPath())
	if err != nil {
		return summary, err
	}
	defer unlock()

	checkpoints, err := checkpoint.Open(ctx, cfg.CheckpointDBPath())
	if err != nil {
		return summary, err
	}
	defer checkpoints.Close()

	downloads, err := ledger.Open(ctx, cfg.LedgerDBPath())
	if err != nil {
		return summary, err
	}
	defer downloads.Close()

	cat := opts.Catalog
	if cat == nil {
		store, err := catalog.Open(ctx, cfg.Catalog.Path)
		if err != nil {
			return summary, err
		}
		defer store.Close()
		cat = store
	}

	session := opts.Session
	offline := opts.Offline || !cfg.Remote.Online
	if session == nil && !offline {
		session = credentials.NewSession(credentials.SettingsFromConfig(cfg), opts.Logger)
	}

	queue := workqueue.New()
	manager, err := transfer.New(transfer.Options{
		Config:   cfg,
		Catalog:  cat,
		Ledger:   downloads,
		Queue:    queue,
		Session:  session,
		Logger:   opts.Logger,
		Offline:  offline,
		Progress: opts.Progress,
	})
	if err != nil {
		return summary, err
	}
	runner := workflow.NewRunner(checkpoints, opts.Logger)
	consumer := workflow.NewConsumer(cfg, runner, wf, opts.Force, opts.Logger)

	logger.Info("batch started",
		logging.String(logging.FieldWorkflow, summary.Workflow),
		logging.Bool("force", opts.Force),
		logging.Bool("offline", offline),
		logging.Int("filters", len(cfg.Scenes)),
	)

	// The producer never cancels the group: the consumer must drain every
	// scene queued before the sentinel even when the transfer fails.
	var transferErr error
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		summary.Transfer, transferErr = manager.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		var err error
		summary.Processing, err = consumer.Run(groupCtx, queue)
		return err
	})
	consumerErr := group.Wait()
	summary.Elapsed = time.Since(started)

	err = consumerErr
	if err == nil {
		err = transferErr
	}
	attrs := []logging.Attr{
		logging.Int("downloaded", summary.Transfer.Downloaded),
		logging.Int("reused", summary.Transfer.Reused),
		logging.Int("processed", summary.Processing.Processed),
		logging.Int("failed", summary.Processing.Failed),
		logging.Int64("downloaded_bytes", summary.Transfer.Bytes),
		logging.Duration("elapsed", summary.Elapsed),
	}
	if err != nil {
		logging.ErrorWithContext(logger, "batch failed", "batch_failed", append(attrs, logging.ErrorAttrs(err)...)...)
		return summary, err
	}
	logger.Info("batch finished", logging.Args(attrs...)...)
	return summary, nil
}

// ProcessArchive runs the configured workflow over a single local archive
// without consulting the catalog, ledger, or download service.
func ProcessArchive(ctx context.Context, opts Options, key scene.Key, archivePath string) (workflow.Result, error) {
	var result workflow.Result
	cfg := opts.Config
	if cfg == nil {
		return result, services.Wrap(services.ErrConfiguration, component, "process", "config required", nil)
	}
	if err := key.Validate(); err != nil {
		return result, err
	}
	abs, err := filepath.Abs(archivePath)
	if err != nil {
		return result, services.Wrap(services.ErrValidation, component, "process", archivePath, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return result, services.Wrap(services.ErrNotFound, component, "process", abs, err)
	}

	wf, err := resolveWorkflow(cfg, opts.Registry, opts.Logger)
	if err != nil {
		return result, err
	}
	unlock, err := acquireLock(cfg.LockPath())
	if err != nil {
		return result, err
	}
	defer unlock()

	checkpoints, err := checkpoint.Open(ctx, cfg.CheckpointDBPath())
	if err != nil {
		return result, err
	}
	defer checkpoints.Close()

	ctx = services.WithRunID(ctx, uuid.NewString())
	s := &scene.Scene{Key: key, ArchiveRef: abs, CleanupAllowed: cfg.Workflow.Cleanup}
	return workflow.NewRunner(checkpoints, opts.Logger).Run(ctx, wf, s, opts.Force)
}

func resolveWorkflow(cfg *config.Config, registry *workflow.Registry, logger *slog.Logger) (workflow.Workflow, error) {
	if registry == nil {
		registry = workflow.DefaultRegistry()
	}
	return registry.Resolve(cfg.Workflow.Name, workflow.Deps{Config: cfg, Logger: logger})
}

func acquireLock(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, services.Wrap(services.ErrStorage, component, "lock", "create lock directory", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, component, "lock", path, err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, component, "lock",
			fmt.Sprintf("another sceneflow batch holds %s", path), nil)
	}
	return func() { _ = lock.Unlock() }, nil
}
