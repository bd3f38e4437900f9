// Package ledger records which scene archives have been fully downloaded, and
// at what size, so the transfer manager can skip them on later runs.
//
// A record exists only for a download believed complete. Records are unique on
// (filename, location); a size that no longer matches the file on disk marks
// the record stale, and the transfer manager deletes it before re-fetching.
// Deduplication is size-based only.
package ledger
