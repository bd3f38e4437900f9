// Package catalog answers "which scenes exist for this path/row and date
// range" for the transfer manager.
//
// Store keeps bulk scene metadata in SQLite and can be refreshed from the
// provider's bulk-metadata CSV export. Other implementations of Catalog can be
// swapped in; the transfer manager only depends on the interface.
package catalog
