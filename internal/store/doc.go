// Package store provides SQLite-backed durable storage for a replica.
//
// The store holds:
//   - Collections: one entity_<type> table per entity type, keyed by a
//     local integer primary key with a UNIQUE index on the remote id
//   - Sync states: per (entity type, id) lifecycle state
//   - Failed items: the most recent apply failure per (entity type, id)
//   - Watermarks: last successful sync time per entity type
//
// # Transactions
//
// Collection.Transact binds a collection to one SQLite transaction. Each
// statement inside it is atomic on its own: a failing insert, update or
// delete does not abort the surrounding transaction, so a sync cycle can
// record per-item failures and still commit the rest.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - One open connection: writers are serialized
//
// Timestamps are stored as Unix nanoseconds, 0 meaning unset.
package store
