// Package logging assembles structured slog loggers and formatting helpers used
// across sceneflow components.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so transfer and workflow code can
// tag log lines with scene keys, workflow names, step ids, and run ids. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail.
package logging
