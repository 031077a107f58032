// Package harness runs sync scenarios end to end.
//
// A scenario drives a real Controller over an in-memory SQLite store and
// a fake remote source, one cycle per step, and checks each cycle, a set
// of invariants and the final state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files. Times are written "tN", meaning
// Epoch plus N hours:
//
//	name: update_and_insert
//	description: "Newer remote entities update and insert locally"
//	entity_type: users
//	setup:
//	  local:  [{id: A, at: t1}, {id: B, at: t2}]
//	  remote: [{id: A, at: t1}, {id: B, at: t3}, {id: C, at: t4}]
//	  watermark: t2
//	steps:
//	  - faults: [{op: update, id: B}]
//	    expect:
//	      outcome: partially_failed
//	      operations: [update B, insert C]
//	      failed: [update B]
//	      watermark: t4
//	  - heal: true
//	    expect: {outcome: committed, operations: [update B]}
//	assertions:
//	  - {type: local, rows: {A: t1, B: t3, C: t4}}
//	  - {type: failures, ids: []}
//	  - {type: watermark, at: t4}
//	  - {type: state, id: B, state: synced}
//
// A step may put and remove remote entities, make the fetch or the id
// listing fail, arm store faults or heal every fault before its cycle.
//
// # Assertion Types
//
//   - local: the collection holds exactly these rows
//   - failures: the failed item ledger holds exactly these ids
//   - watermark: the stored watermark, or "unset"
//   - state: one item's sync state
//
// # Deterministic Testing
//
// Cycle ids are "cycle-1", "cycle-2", ... and the clock only advances
// between steps, so traces are identical across runs and can be compared
// against golden files with RunWithGolden.
package harness
