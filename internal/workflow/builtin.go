package workflow

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"sceneflow/internal/archive"
	"sceneflow/internal/config"
	"sceneflow/internal/logging"
	"sceneflow/internal/scene"
	"sceneflow/internal/services"
)

// Built-in workflow names.
const (
	ExampleName = "example"
	CommandName = "command"
)

const (
	phasePreparation = "preparation"
	phaseMain        = "main"
)

// outputTailLines bounds how much command output lands in an error message.
const outputTailLines = 20

// preparation returns the preparation phase: archive extraction into the
// scene's Bands directory. Scenes without a local archive get no preparation steps.
func preparation(root string, s *scene.Scene, logger *slog.Logger) []Step {
	seq := NewSequence(phasePreparation, PreparationBase)
	if s.HasArchive() {
		seq.Add("extract archive", func(ctx context.Context, s *scene.Scene, stepID int) error {
			target := s.Key.BandsDir(root)
			files, err := archive.Extract(s.ArchiveRef, target)
			if err != nil {
				return err
			}
			logging.WithContext(ctx, logger).Info("archive extracted",
				logging.String("target", target),
				logging.Int("files", len(files)),
			)
			return nil
		})
	} else {
		logging.NewComponentLogger(logger, "workflow").Debug("no local archive; preparation skipped",
			logging.String(logging.FieldEntity, s.Key.String()))
	}
	return seq.Steps()
}

type exampleWorkflow struct {
	root   string
	logger *slog.Logger
}

// NewExample builds the "example" workflow: archive preparation followed by
// logged no-op main steps. It exercises checkpointing without external tools.
func NewExample(deps Deps) (Workflow, error) {
	return &exampleWorkflow{
		root:   deps.Config.Paths.WorkingDir,
		logger: logging.NewComponentLogger(deps.Logger, ExampleName),
	}, nil
}

func (w *exampleWorkflow) Name() string { return ExampleName }

func (w *exampleWorkflow) Plan(s *scene.Scene) ([]Step, error) {
	steps := preparation(w.root, s, w.logger)
	main := NewSequence(phaseMain, MainBase)
	for _, description := range []string{
		"verify bands",
		"radiometric calibration",
		"cloud mask",
		"spectral indices",
		"classification",
		"export products",
	} {
		main.Add(description, w.noop(description))
	}
	return append(steps, main.Steps()...), nil
}

func (w *exampleWorkflow) noop(description string) Action {
	return func(ctx context.Context, s *scene.Scene, stepID int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		logging.WithContext(ctx, w.logger).Debug("example step", logging.String("step", description))
		return nil
	}
}

type commandWorkflow struct {
	root   string
	steps  []config.WorkflowStep
	logger *slog.Logger
}

// NewCommand builds the "command" workflow: each configured step runs an
// external command in the scene directory. Commands see SCENE_KEY, SCENE_DIR,
// SCENE_BANDS_DIR, SCENE_ARCHIVE, and STEP_ID in their environment, and the
// same variables are expanded in their arguments.
func NewCommand(deps Deps) (Workflow, error) {
	if len(deps.Config.Workflow.Steps) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, CommandName, "init", "workflow.steps is empty", nil)
	}
	steps := make([]config.WorkflowStep, len(deps.Config.Workflow.Steps))
	copy(steps, deps.Config.Workflow.Steps)
	return &commandWorkflow{
		root:   deps.Config.Paths.WorkingDir,
		steps:  steps,
		logger: logging.NewComponentLogger(deps.Logger, CommandName),
	}, nil
}

func (w *commandWorkflow) Name() string { return CommandName }

func (w *commandWorkflow) Plan(s *scene.Scene) ([]Step, error) {
	steps := preparation(w.root, s, w.logger)
	main := NewSequence(phaseMain, MainBase)
	for _, step := range w.steps {
		description := strings.TrimSpace(step.Description)
		if description == "" {
			description = step.Command
		}
		main.Add(description, w.run(step))
	}
	return append(steps, main.Steps()...), nil
}

func (w *commandWorkflow) run(step config.WorkflowStep) Action {
	return func(ctx context.Context, s *scene.Scene, stepID int) error {
		env := sceneEnv(w.root, s, stepID)
		lookup := func(name string) string {
			if value, ok := env[name]; ok {
				return value
			}
			return os.Getenv(name)
		}
		args := make([]string, len(step.Args))
		for i, arg := range step.Args {
			args[i] = os.Expand(arg, lookup)
		}

		dir := s.Key.Dir(w.root)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return services.Wrap(services.ErrStorage, CommandName, "run", "create scene directory", err)
		}
		cmd := exec.CommandContext(ctx, step.Command, args...)
		cmd.Dir = dir
		cmd.Env = os.Environ()
		for name, value := range env {
			cmd.Env = append(cmd.Env, name+"="+value)
		}
		var output bytes.Buffer
		cmd.Stdout = &output
		cmd.Stderr = &output

		logger := logging.WithContext(ctx, w.logger)
		logger.Debug("running step command", logging.String("command", step.Command), logging.Any("args", args))
		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%s: %w: %s", step.Command, err, tail(output.String(), outputTailLines))
		}
		if out := strings.TrimSpace(output.String()); out != "" {
			logger.Debug("step command output", logging.String("output", tail(out, outputTailLines)))
		}
		return nil
	}
}

func sceneEnv(root string, s *scene.Scene, stepID int) map[string]string {
	return map[string]string{
		"SCENE_KEY":       s.Key.String(),
		"SCENE_DIR":       s.Key.Dir(root),
		"SCENE_BANDS_DIR": s.Key.BandsDir(root),
		"SCENE_ARCHIVE":   s.ArchiveRef,
		"STEP_ID":         strconv.Itoa(stepID),
	}
}

func tail(text string, n int) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
