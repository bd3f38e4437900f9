// Package pipeline wires the transfer manager, work queue, and workflow
// consumer into a single batch run.
//
// Run holds an exclusive file lock in the data directory for the duration of
// the batch, tags every log line with a per-run id, and runs the producer and
// consumer goroutines in an errgroup. ProcessArchive runs a workflow over one
// local archive without any transfer.
package pipeline
