package workflow

import (
	"context"

	"sceneflow/internal/scene"
)

// Step id layout. Preparation steps count up from PreparationBase and main
// steps from MainBase, both in StepIncrement strides.
const (
	PreparationBase = 0
	MainBase        = 1000
	StepIncrement   = 10
)

// Action performs one processing step for a scene. Actions must be safe to
// re-run after a crash between completion and checkpointing.
type Action func(ctx context.Context, s *scene.Scene, stepID int) error

// Step is one checkpointed unit of work.
type Step struct {
	ID          int
	Phase       string
	Description string
	Action      Action
}

// Sequence hands out step ids for one phase.
type Sequence struct {
	phase string
	next  int
	steps []Step
}

// NewSequence starts a phase whose first step id is base.
func NewSequence(phase string, base int) *Sequence {
	return &Sequence{phase: phase, next: base}
}

// Add appends a step and returns its id.
func (s *Sequence) Add(description string, action Action) int {
	id := s.next
	s.steps = append(s.steps, Step{ID: id, Phase: s.phase, Description: description, Action: action})
	s.next += StepIncrement
	return id
}

// Steps returns the steps added so far in id order.
func (s *Sequence) Steps() []Step {
	out := make([]Step, len(s.steps))
	copy(out, s.steps)
	return out
}
