// Package workflow runs scenes through ordered, checkpointed processing steps.
//
// A Workflow plans a list of Steps for a scene: an optional preparation phase
// (ids from PreparationBase) that extracts the scene archive, followed by the
// main phase (ids from MainBase), both spaced by StepIncrement. The Runner
// consults the checkpoint store before each step and records completion only
// after the step's action succeeds, so an interrupted batch resumes at the
// first incomplete step.
//
// Workflows are looked up by name in a Registry. The Consumer drains the work
// queue until the end-of-work sentinel and applies working-area cleanup to
// scenes whose steps all succeeded.
package workflow
