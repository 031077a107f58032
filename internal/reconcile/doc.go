// Package reconcile computes the operations that converge a local
// collection onto a remote snapshot.
//
// Diff is a pure function of two snapshots: the Old Set read from the
// local store and the New Set derived from the remote. It walks the Old
// Set first (deletes and updates) and then the New Set (inserts), so the
// resulting Operation List is deterministic for identical inputs and is
// built in linear time.
//
// Conflicts are resolved last-writer-wins on lastUpdated: a remote
// entity replaces a local one only when its timestamp is strictly later.
package reconcile
