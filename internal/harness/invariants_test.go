package harness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/replica/internal/engine"
	"github.com/roach88/replica/internal/entity"
	"github.com/roach88/replica/internal/testutil"
)

func at(n int) time.Time {
	return Epoch.Add(time.Duration(n) * time.Hour)
}

func TestCheckInvariants(t *testing.T) {
	source := testutil.NewFakeSource(
		entity.NewRecord("A", at(1), nil),
		entity.NewRecord("B", at(2), nil),
	)
	synced := localState{rows: map[string]time.Time{"A": at(1), "B": at(2)}, watermark: at(2)}

	tests := []struct {
		name    string
		outcome engine.Outcome
		before  localState
		after   localState
		wantErr string
	}{
		{
			name:    "committed and consistent",
			outcome: engine.OutcomeCommitted,
			before:  localState{rows: map[string]time.Time{}},
			after:   synced,
		},
		{
			name:    "watermark backwards",
			outcome: engine.OutcomePartiallyFailed,
			before:  synced,
			after:   localState{rows: synced.rows, watermark: at(1)},
			wantErr: "watermark moved backwards from t2 to t1",
		},
		{
			name:    "duplicate ids",
			outcome: engine.OutcomePartiallyFailed,
			before:  synced,
			after:   localState{rows: synced.rows, duplicates: []string{"A"}, watermark: at(2)},
			wantErr: "ids stored more than once: [A]",
		},
		{
			name:    "network error changed rows",
			outcome: engine.OutcomeNetworkError,
			before:  localState{rows: map[string]time.Time{"A": at(1)}, watermark: at(1)},
			after:   localState{rows: map[string]time.Time{}, watermark: at(1)},
			wantErr: "network_error cycle changed local rows",
		},
		{
			name:    "aborted moved watermark",
			outcome: engine.OutcomeAborted,
			before:  localState{rows: map[string]time.Time{}, watermark: at(1)},
			after:   localState{rows: map[string]time.Time{}, watermark: at(3)},
			wantErr: "aborted cycle moved the watermark",
		},
		{
			name:    "committed but missing rows",
			outcome: engine.OutcomeCommitted,
			before:  localState{rows: map[string]time.Time{}},
			after:   localState{rows: map[string]time.Time{"A": at(1)}, watermark: at(1)},
			wantErr: "committed cycle left local ids [A], remote has [A B]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := engine.CycleResult{Outcome: tt.outcome}
			errs := checkInvariants(0, res, tt.before, tt.after, source)
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			if assert.Len(t, errs, 1) {
				assert.Contains(t, errs[0], "steps[0]: invariant violated: ")
				assert.Contains(t, errs[0], tt.wantErr)
			}
		})
	}
}

func TestCheckExpect_OnlyChecksGivenFields(t *testing.T) {
	trace := CycleTrace{Outcome: "committed", Operations: []string{"insert A"}, Failed: []string{}, Watermark: "t1"}

	assert.Empty(t, checkExpect(0, &Expect{Outcome: "committed"}, trace))
	assert.Empty(t, checkExpect(0, &Expect{Outcome: "committed", Watermark: "2024-01-01T01:00:00Z"}, trace),
		"RFC 3339 and tN forms compare equal")

	errs := checkExpect(2, &Expect{Outcome: "committed", Operations: []string{}}, trace)
	assert.Equal(t, []string{"steps[2].expect.operations: expected [], got [insert A]"}, errs)
}
