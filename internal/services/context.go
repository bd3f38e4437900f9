package services

import "context"

type contextKey string

const (
	entityKey   contextKey = "entity"
	workflowKey contextKey = "workflow"
	stepIDKey   contextKey = "step_id"
	runIDKey    contextKey = "run_id"
)

// WithEntity annotates context with the canonical scene key being processed.
func WithEntity(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, entityKey, key)
}

// EntityFromContext returns the scene key if present.
func EntityFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(entityKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithWorkflow annotates context with the active workflow name.
func WithWorkflow(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, workflowKey, name)
}

// WorkflowFromContext returns the workflow name if present.
func WorkflowFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(workflowKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStepID annotates context with the step identifier currently executing.
func WithStepID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, stepIDKey, id)
}

// StepIDFromContext extracts the step identifier if present.
func StepIDFromContext(ctx context.Context) (int, bool) {
	v := ctx.Value(stepIDKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	default:
		return 0, false
	}
}

// WithRunID annotates context with the batch run correlation identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
