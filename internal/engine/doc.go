// Package engine runs sync cycles.
//
// A Controller owns one entity type. Each call to RunCycle walks the
// phases Idle → Fetching → Reconciling → Applying → {Committed |
// PartiallyFailed}:
//
//  1. Fetching asks the Source for entities updated strictly after the
//     stored watermark and, concurrently, for the ids still live remotely.
//  2. Reconciling loads the whole local collection (the Old Set), builds
//     the New Set and diffs the two with reconcile.Compare.
//  3. Applying runs the Operation List inside one store transaction. Every
//     operation's outcome is recorded on its own; one failure never
//     blocks the rest.
//  4. After the transaction commits, sync states and failure records are
//     written, and the watermark is advanced last.
//
// The New Set takes, for each live id, the fetched entity if there is one,
// otherwise the payload of a pending failure (so failed inserts and
// updates are retried), otherwise the local copy. Fetched entities missing
// from the id listing are kept as well. An incremental fetch therefore
// never looks like a mass deletion, and ids that vanished remotely still
// produce deletes.
//
// Cancellation is honoured until Applying starts. From then on the cycle
// runs to completion on a context detached from the caller's.
//
// A Runner drives the controllers of several entity types concurrently.
package engine
