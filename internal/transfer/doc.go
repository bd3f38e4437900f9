// Package transfer downloads scene archives exactly once and hands them to the
// work queue.
//
// For each configured scene filter the Manager resolves candidates from the
// catalog and consults the download ledger before touching the network: an
// archive whose ledger size matches the file on disk is enqueued without a
// request. Stale records are deleted and the archive is streamed again in
// fixed-size chunks. Only archives whose received size matches the declared
// Content-Length are recorded in the ledger and enqueued.
//
// Run always finishes by pushing the end-of-work sentinel and stopping the
// credential renewal timer, whether it returns an error or not.
package transfer
