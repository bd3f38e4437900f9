// Package checkpoint persists which processing steps have completed for each
// scene under each workflow.
//
// A record's presence means the step finished successfully; there is no
// partial state. Records are unique per (workflow, scene key, step id), are
// written only after a step succeeds, and are removed in bulk when a scene is
// forcibly re-run. Schema changes bump schemaVersion; operators delete the
// database to adopt the new schema.
package checkpoint
