package workflow

import (
	"context"
	"errors"
	"log/slog"

	"sceneflow/internal/config"
	"sceneflow/internal/logging"
	"sceneflow/internal/scene"
	"sceneflow/internal/services"
)

// Source yields scenes until the end-of-work sentinel.
type Source interface {
	Dequeue(ctx context.Context) (scene.Scene, error)
}

// ConsumerSummary counts per-scene outcomes.
type ConsumerSummary struct {
	Processed int
	Failed    int
	Invalid   int
	Removed   int
}

// Consumer drains a Source through the runner, one scene at a time.
type Consumer struct {
	runner   *Runner
	workflow Workflow
	cfg      *config.Config
	force    bool
	logger   *slog.Logger
}

// NewConsumer wires a consumer for the given workflow.
func NewConsumer(cfg *config.Config, runner *Runner, wf Workflow, force bool, logger *slog.Logger) *Consumer {
	return &Consumer{
		runner:   runner,
		workflow: wf,
		cfg:      cfg,
		force:    force,
		logger:   logging.NewComponentLogger(logger, "consumer"),
	}
}

// Run processes scenes in FIFO order and returns when the sentinel is
// dequeued. Scene-level failures are logged and counted; storage and
// configuration failures end the loop.
func (c *Consumer) Run(ctx context.Context, src Source) (ConsumerSummary, error) {
	var summary ConsumerSummary
	for {
		s, err := src.Dequeue(ctx)
		if err != nil {
			return summary, err
		}
		if s.IsStop() {
			c.logger.Info("end of work received",
				logging.Int("processed", summary.Processed),
				logging.Int("failed", summary.Failed),
				logging.Int("invalid", summary.Invalid),
			)
			return summary, nil
		}
		if err := c.Process(ctx, &s, &summary); err != nil {
			return summary, err
		}
	}
}

// Process runs one scene and applies cleanup on success. It returns an error
// only when the batch must stop.
func (c *Consumer) Process(ctx context.Context, s *scene.Scene, summary *ConsumerSummary) error {
	if summary == nil {
		summary = &ConsumerSummary{}
	}
	_, err := c.runner.Run(ctx, c.workflow, s, c.force)
	switch {
	case err == nil:
		summary.Processed++
	case errors.Is(err, services.ErrStepExecution):
		summary.Failed++
		return nil
	case errors.Is(err, services.ErrValidation):
		logging.WarnWithContext(c.logger, "scene rejected", "scene_invalid",
			append(logging.ErrorAttrs(err), logging.String(logging.FieldEntity, s.Key.String()))...)
		summary.Invalid++
		return nil
	default:
		if ctx.Err() == nil {
			logging.ErrorWithContext(c.logger, "processing stopped", "consumer_failed",
				append(logging.ErrorAttrs(err), logging.String(logging.FieldEntity, s.Key.String()))...)
		}
		return err
	}

	if !c.cfg.Workflow.Cleanup || !s.CleanupAllowed {
		return nil
	}
	removed, err := scene.Cleanup(s.Key.Dir(c.cfg.Paths.WorkingDir), c.cfg.Workflow.CleanupPatterns, c.cfg.Workflow.CleanupExclude)
	summary.Removed += len(removed)
	if err != nil {
		logging.WarnWithContext(c.logger, "cleanup incomplete", "cleanup_failed",
			append(logging.ErrorAttrs(err),
				logging.String(logging.FieldEntity, s.Key.String()),
				logging.String(logging.FieldImpact, "intermediate files left on disk"),
			)...)
		return nil
	}
	if len(removed) > 0 {
		c.logger.Debug("working area cleaned",
			logging.String(logging.FieldEntity, s.Key.String()),
			logging.Int("removed", len(removed)),
		)
	}
	return nil
}
