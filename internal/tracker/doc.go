// Package tracker holds the bookkeeping of a replica: the per-item sync
// state, the failed-item ledger and the per-type watermark.
//
// The interfaces here are implemented by the SQLite store
// (internal/store) and by Memory, an in-process implementation used by
// tests and dry runs. Neither carries business logic beyond last write
// wins per id.
package tracker
