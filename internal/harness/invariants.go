package harness

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/roach88/replica/internal/engine"
	"github.com/roach88/replica/internal/entity"
	"github.com/roach88/replica/internal/testutil"
)

// localState is the replicated state of the scenario's collection.
type localState struct {
	rows       map[string]time.Time
	duplicates []string
	watermark  time.Time
}

func (h *Harness) snapshot(ctx context.Context) (localState, error) {
	all, err := h.coll.QueryAll(ctx)
	if err != nil {
		return localState{}, fmt.Errorf("query local rows: %w", err)
	}
	wm, err := h.store.GetWatermark(ctx, h.scenario.EntityType)
	if err != nil {
		return localState{}, fmt.Errorf("get watermark: %w", err)
	}

	state := localState{rows: make(map[string]time.Time, len(all)), watermark: wm}
	for _, s := range all {
		if _, ok := state.rows[s.ID()]; ok {
			state.duplicates = append(state.duplicates, s.ID())
		}
		state.rows[s.ID()] = s.LastUpdated()
	}
	return state, nil
}

// checkInvariants verifies the properties every cycle must keep,
// whatever the scenario expects:
//
//   - the watermark never moves backwards
//   - no id is stored twice
//   - a cycle that ends without applying leaves rows and watermark as
//     they were
//   - after a committed cycle the local ids are exactly the remote ids
func checkInvariants(index int, res engine.CycleResult, before, after localState, source *testutil.FakeSource[entity.Record]) []string {
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf("steps[%d]: invariant violated: ", index)+fmt.Sprintf(format, args...))
	}

	if after.watermark.Before(before.watermark) {
		fail("watermark moved backwards from %s to %s", FormatAt(before.watermark), FormatAt(after.watermark))
	}

	if len(after.duplicates) > 0 {
		fail("ids stored more than once: %v", after.duplicates)
	}

	switch res.Outcome {
	case engine.OutcomeNetworkError, engine.OutcomeAborted:
		if !maps.Equal(before.rows, after.rows) {
			fail("%s cycle changed local rows", res.Outcome)
		}
		if !after.watermark.Equal(before.watermark) {
			fail("%s cycle moved the watermark", res.Outcome)
		}
	case engine.OutcomeCommitted:
		local := slices.Sorted(maps.Keys(after.rows))
		remote := source.IDs()
		slices.Sort(remote)
		if !slices.Equal(local, remote) {
			fail("committed cycle left local ids %v, remote has %v", local, remote)
		}
	}

	return errs
}
