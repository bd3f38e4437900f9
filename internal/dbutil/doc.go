// Package dbutil holds the SQLite plumbing shared by the checkpoint store, the
// download ledger, and the metadata catalog: connection pragmas, schema
// versioning, busy retries, and scoped transactions.
//
// Each store owns its own database file and schema; this package only
// standardizes how those files are opened and written.
package dbutil
