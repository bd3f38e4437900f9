// Package services defines shared error markers and context helpers consumed
// by the transfer, workflow, and storage packages.
//
// Key responsibilities:
//   - Context helpers that stamp scene keys, workflow names, step identifiers,
//     and run identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can decide with
//     errors.Is whether a failure aborts one scene or the whole run.
//
// Use these helpers when wiring new components so error handling and
// observability stay uniform across the pipeline.
package services
