package logging

import (
	"context"
	"log/slog"

	"sceneflow/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEntity is the standardized key for the canonical scene key (PPPRRR_YYYYMMDD).
	FieldEntity = "entity"
	// FieldWorkflow is the standardized key for the registered workflow name.
	FieldWorkflow = "workflow"
	// FieldStepID is the standardized key for numeric step identifiers.
	FieldStepID = "step_id"
	// FieldRunID is the standardized key for the batch run correlation identifier.
	FieldRunID = "run_id"
	// FieldEventType classifies warnings and errors for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldErrorKind carries services.Kind for the logged error.
	FieldErrorKind = "error_kind"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldReason explains why a scene or step was skipped.
	FieldReason = "reason"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if rid, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, rid))
	}
	if name, ok := services.WorkflowFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldWorkflow, name))
	}
	if key, ok := services.EntityFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldEntity, key))
	}
	if id, ok := services.StepIDFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldStepID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}

// ErrorAttrs returns the error plus its classification for structured logs.
func ErrorAttrs(err error) []Attr {
	return []Attr{Error(err), String(FieldErrorKind, services.Kind(err))}
}
