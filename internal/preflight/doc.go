// Package preflight provides readiness checks for the filesystem paths,
// download service, and external step commands that a batch depends on.
//
// These checks run in two contexts:
//   - The pipeline calls RunAll before opening any store. A failed check
//     stops the batch before a single scene is touched.
//   - The CLI "sceneflow config validate" command prints each Result.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
