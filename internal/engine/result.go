package engine

import (
	"fmt"
	"time"

	"github.com/roach88/replica/internal/entity"
	"github.com/roach88/replica/internal/reconcile"
	"github.com/roach88/replica/internal/tracker"
)

// CycleResult reports one sync cycle.
type CycleResult struct {
	EntityType entity.Type       `json:"entity_type"`
	CycleID    string            `json:"cycle_id"`
	Outcome    Outcome           `json:"outcome"`
	Summary    reconcile.Summary `json:"summary"`

	// Fetched counts the entities returned by the incremental fetch.
	Fetched int `json:"fetched"`

	// Applied counts operations that succeeded.
	Applied int `json:"applied"`

	// Failed holds the failure records written by this cycle.
	Failed []tracker.FailedItem `json:"failed,omitempty"`

	// Unresolved lists ids the remote reports live that this cycle could
	// not replicate: not fetched, no local row and no retry payload.
	Unresolved []string `json:"unresolved,omitempty"`

	WatermarkBefore time.Time     `json:"watermark_before"`
	WatermarkAfter  time.Time     `json:"watermark_after"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration_ns"`

	// Err is the cycle-level error, if any.
	Err error `json:"-"`
}

// FailedCount returns the number of operations that failed.
func (r CycleResult) FailedCount() int {
	return len(r.Failed)
}

// OK returns true if the cycle committed.
func (r CycleResult) OK() bool {
	return r.Outcome == OutcomeCommitted
}

// String returns a one-line human-readable summary.
func (r CycleResult) String() string {
	switch r.Outcome {
	case OutcomeCommitted:
		return fmt.Sprintf("%s: committed, %d applied (%s), watermark %s",
			r.EntityType, r.Applied, r.Summary.String(), formatWatermark(r.WatermarkAfter))
	case OutcomePartiallyFailed:
		return fmt.Sprintf("%s: partially failed, %d applied, %d failed, watermark %s",
			r.EntityType, r.Applied, r.FailedCount(), formatWatermark(r.WatermarkAfter))
	default:
		return fmt.Sprintf("%s: %s: %v", r.EntityType, r.Outcome, r.Err)
	}
}

func formatWatermark(t time.Time) string {
	if t.IsZero() {
		return "unset"
	}
	return t.UTC().Format(time.RFC3339Nano)
}
