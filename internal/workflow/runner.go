package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sceneflow/internal/logging"
	"sceneflow/internal/scene"
	"sceneflow/internal/services"
)

// Checkpoints is the step-completion store the runner consults.
type Checkpoints interface {
	HasRun(ctx context.Context, workflow string, key scene.Key, stepID int) (bool, error)
	RecordComplete(ctx context.Context, workflow string, key scene.Key, stepID int, description string) error
	ClearAll(ctx context.Context, workflow string, key scene.Key) (int64, error)
}

// Workflow produces the ordered steps for a scene.
type Workflow interface {
	Name() string
	Plan(s *scene.Scene) ([]Step, error)
}

// Result reports which steps ran and which were already complete.
type Result struct {
	Executed []int
	Skipped  []int
	Cleared  int64
}

// Runner executes workflow steps with checkpointing.
type Runner struct {
	checkpoints Checkpoints
	logger      *slog.Logger
}

// NewRunner constructs a runner backed by the given checkpoint store.
func NewRunner(checkpoints Checkpoints, logger *slog.Logger) *Runner {
	return &Runner{checkpoints: checkpoints, logger: logging.NewComponentLogger(logger, "runner")}
}

// Run executes the workflow's steps for s in id order. Completed steps are
// skipped; a step is checkpointed only after its action succeeds. With force
// every checkpoint for the scene is cleared first.
//
// A failing action stops the scene, disables its cleanup, and returns an
// error marked services.ErrStepExecution. Checkpoint store failures are
// returned as services.ErrStorage and should end the batch.
func (r *Runner) Run(ctx context.Context, wf Workflow, s *scene.Scene, force bool) (Result, error) {
	var result Result
	if err := s.Validate(); err != nil {
		return result, err
	}
	if wf == nil {
		return result, services.Wrap(services.ErrConfiguration, "runner", "run", "workflow required", nil)
	}

	name := wf.Name()
	key := s.Key
	ctx = services.WithEntity(services.WithWorkflow(ctx, name), key.String())
	logger := logging.WithContext(ctx, r.logger)

	if force {
		cleared, err := r.checkpoints.ClearAll(ctx, name, key)
		if err != nil {
			return result, err
		}
		result.Cleared = cleared
		logger.Info("checkpoints cleared", logging.String(logging.FieldReason, "forced re-run"), logging.Int64("cleared", cleared))
	}

	steps, err := wf.Plan(s)
	if err != nil {
		return result, err
	}

	started := time.Now()
	for _, step := range steps {
		stepCtx := services.WithStepID(ctx, step.ID)
		stepLogger := logger.With(logging.Int(logging.FieldStepID, step.ID), logging.String("step", step.Description))

		done, err := r.checkpoints.HasRun(stepCtx, name, key, step.ID)
		if err != nil {
			return result, err
		}
		if done {
			stepLogger.Info("step skipped", logging.String(logging.FieldReason, "already completed"))
			result.Skipped = append(result.Skipped, step.ID)
			continue
		}

		stepStart := time.Now()
		stepLogger.Debug("step started", logging.String("phase", step.Phase))
		if err := step.Action(stepCtx, s, step.ID); err != nil {
			s.DisableCleanup()
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return result, ctxErr
			}
			wrapped := services.Wrap(services.ErrStepExecution, "runner", "run",
				fmt.Sprintf("%s step %d (%s)", key, step.ID, step.Description), err)
			logging.WarnWithContext(stepLogger, "step failed; scene aborted", "step_failed",
				append(logging.ErrorAttrs(err),
					logging.String(logging.FieldImpact, "remaining steps skipped; working area kept"),
					logging.String(logging.FieldErrorHint, "fix the cause and re-run; completed steps will be skipped"),
				)...)
			return result, wrapped
		}

		if err := r.checkpoints.RecordComplete(stepCtx, name, key, step.ID, step.Description); err != nil {
			return result, err
		}
		result.Executed = append(result.Executed, step.ID)
		stepLogger.Info("step completed", logging.Duration("step_duration", time.Since(stepStart)))
	}

	logger.Info("scene processed",
		logging.Int("executed", len(result.Executed)),
		logging.Int("skipped", len(result.Skipped)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}
