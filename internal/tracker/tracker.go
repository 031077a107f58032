package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/replica/internal/entity"
	"github.com/roach88/replica/internal/reconcile"
)

// State is the lifecycle state of one replicated item.
type State string

const (
	StateSynced   State = "synced"
	StateToPost   State = "to_post"
	StateToUpdate State = "to_update"
	StateToDelete State = "to_delete"
	StateError    State = "error"
)

// ParseState validates a state name.
func ParseState(s string) (State, error) {
	switch st := State(s); st {
	case StateSynced, StateToPost, StateToUpdate, StateToDelete, StateError:
		return st, nil
	default:
		return "", fmt.Errorf("unknown sync state %q", s)
	}
}

// StateRecord is one row of the sync state table.
type StateRecord struct {
	EntityType entity.Type `json:"entity_type"`
	ID         string      `json:"id"`
	State      State       `json:"state"`
}

// FailedItem records the most recent failure to apply an operation.
type FailedItem struct {
	EntityType entity.Type    `json:"entity_type"`
	ID         string         `json:"id"`
	Operation  reconcile.Kind `json:"operation"`
	Reason     string         `json:"reason"`
	FailedAt   time.Time      `json:"failed_at"`

	// CycleID identifies the cycle that produced the failure.
	CycleID string `json:"cycle_id"`

	// Payload is the encoded entity whose apply failed. Empty for deletes.
	// The next cycle retries from it.
	Payload []byte `json:"-"`

	// Attempts counts failures recorded for this id since it was last cleared.
	Attempts int `json:"attempts"`
}

// StateTracker stores per-item sync state.
// GetState returns StateSynced when nothing is recorded.
type StateTracker interface {
	MarkState(ctx context.Context, typ entity.Type, id string, state State) error
	GetState(ctx context.Context, typ entity.Type, id string) (State, error)
	DeleteState(ctx context.Context, typ entity.Type, id string) error
	ListStates(ctx context.Context, typ entity.Type) ([]StateRecord, error)
}

// FailureLedger stores one FailedItem per (type, id).
//
// RecordFailure overwrites any previous record for the same id and sets
// Attempts to the previous count plus one. ListFailures with an empty
// type lists every type. Results are ordered by type then id.
type FailureLedger interface {
	RecordFailure(ctx context.Context, item FailedItem) error
	ListFailures(ctx context.Context, typ entity.Type) ([]FailedItem, error)
	ClearFailure(ctx context.Context, typ entity.Type, id string) error
}

// WatermarkStore persists the last successful sync time per type.
// GetWatermark returns the zero time when unset.
type WatermarkStore interface {
	GetWatermark(ctx context.Context, typ entity.Type) (time.Time, error)
	SetWatermark(ctx context.Context, typ entity.Type, ts time.Time) error
	ListWatermarks(ctx context.Context) (map[entity.Type]time.Time, error)
}

// Tracker is the full bookkeeping surface used by a sync controller.
type Tracker interface {
	StateTracker
	FailureLedger
	WatermarkStore
}
