package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/replica/internal/entity"
	"github.com/roach88/replica/internal/reconcile"
	"github.com/roach88/replica/internal/tracker"
)

// RunTrackerSuite checks the tracker.Tracker contract against the
// implementation returned by newTracker. Each subtest gets a fresh one.
func RunTrackerSuite(t *testing.T, newTracker func(t *testing.T) tracker.Tracker) {
	t.Helper()
	ctx := context.Background()
	failedAt := time.Date(2024, 2, 3, 4, 5, 6, 7, time.UTC)

	t.Run("state defaults to synced", func(t *testing.T) {
		tr := newTracker(t)
		st, err := tr.GetState(ctx, "users", "missing")
		require.NoError(t, err)
		assert.Equal(t, tracker.StateSynced, st)
	})

	t.Run("state last write wins", func(t *testing.T) {
		tr := newTracker(t)
		require.NoError(t, tr.MarkState(ctx, "users", "u1", tracker.StateToPost))
		require.NoError(t, tr.MarkState(ctx, "users", "u1", tracker.StateError))

		st, err := tr.GetState(ctx, "users", "u1")
		require.NoError(t, err)
		assert.Equal(t, tracker.StateError, st)
	})

	t.Run("states are scoped by type", func(t *testing.T) {
		tr := newTracker(t)
		require.NoError(t, tr.MarkState(ctx, "users", "x", tracker.StateToUpdate))
		require.NoError(t, tr.MarkState(ctx, "programs", "x", tracker.StateToDelete))

		st, err := tr.GetState(ctx, "users", "x")
		require.NoError(t, err)
		assert.Equal(t, tracker.StateToUpdate, st)

		states, err := tr.ListStates(ctx, "programs")
		require.NoError(t, err)
		assert.Equal(t, []tracker.StateRecord{{EntityType: "programs", ID: "x", State: tracker.StateToDelete}}, states)

		all, err := tr.ListStates(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 2)
		assert.Equal(t, entity.Type("programs"), all[0].EntityType)
	})

	t.Run("delete state restores default", func(t *testing.T) {
		tr := newTracker(t)
		require.NoError(t, tr.MarkState(ctx, "users", "u1", tracker.StateError))
		require.NoError(t, tr.DeleteState(ctx, "users", "u1"))

		st, err := tr.GetState(ctx, "users", "u1")
		require.NoError(t, err)
		assert.Equal(t, tracker.StateSynced, st)
		require.NoError(t, tr.DeleteState(ctx, "users", "never-existed"))
	})

	t.Run("failure overwrite keeps latest and counts attempts", func(t *testing.T) {
		tr := newTracker(t)
		first := tracker.FailedItem{
			EntityType: "users", ID: "u1", Operation: reconcile.KindInsert,
			Reason: "disk full", FailedAt: failedAt, CycleID: "c-1", Payload: []byte(`{"id":"u1"}`),
		}
		second := first
		second.Operation = reconcile.KindUpdate
		second.Reason = "constraint"
		second.CycleID = "c-2"
		second.FailedAt = failedAt.Add(time.Minute)

		require.NoError(t, tr.RecordFailure(ctx, first))
		require.NoError(t, tr.RecordFailure(ctx, second))

		items, err := tr.ListFailures(ctx, "users")
		require.NoError(t, err)
		require.Len(t, items, 1)
		got := items[0]
		assert.Equal(t, reconcile.KindUpdate, got.Operation)
		assert.Equal(t, "constraint", got.Reason)
		assert.Equal(t, "c-2", got.CycleID)
		assert.True(t, got.FailedAt.Equal(second.FailedAt))
		assert.Equal(t, []byte(`{"id":"u1"}`), got.Payload)
		assert.Equal(t, 2, got.Attempts)
	})

	t.Run("list failures orders by type then id", func(t *testing.T) {
		tr := newTracker(t)
		for _, k := range []struct {
			typ entity.Type
			id  string
		}{{"users", "b"}, {"programs", "z"}, {"users", "a"}} {
			require.NoError(t, tr.RecordFailure(ctx, tracker.FailedItem{
				EntityType: k.typ, ID: k.id, Operation: reconcile.KindDelete,
				Reason: "boom", FailedAt: failedAt,
			}))
		}

		all, err := tr.ListFailures(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "z", all[0].ID)
		assert.Equal(t, "a", all[1].ID)
		assert.Equal(t, "b", all[2].ID)
		assert.Empty(t, all[0].Payload)

		users, err := tr.ListFailures(ctx, "users")
		require.NoError(t, err)
		assert.Len(t, users, 2)
	})

	t.Run("clear failure", func(t *testing.T) {
		tr := newTracker(t)
		require.NoError(t, tr.RecordFailure(ctx, tracker.FailedItem{
			EntityType: "users", ID: "u1", Operation: reconcile.KindInsert, Reason: "x", FailedAt: failedAt,
		}))
		require.NoError(t, tr.ClearFailure(ctx, "users", "u1"))

		items, err := tr.ListFailures(ctx, "users")
		require.NoError(t, err)
		assert.Empty(t, items)

		// A failure recorded after clearing starts counting again.
		require.NoError(t, tr.RecordFailure(ctx, tracker.FailedItem{
			EntityType: "users", ID: "u1", Operation: reconcile.KindInsert, Reason: "y", FailedAt: failedAt,
		}))
		items, err = tr.ListFailures(ctx, "users")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, 1, items[0].Attempts)
	})

	t.Run("watermark defaults to zero", func(t *testing.T) {
		tr := newTracker(t)
		wm, err := tr.GetWatermark(ctx, "users")
		require.NoError(t, err)
		assert.True(t, wm.IsZero())
	})

	t.Run("watermark round trip", func(t *testing.T) {
		tr := newTracker(t)
		ts := time.Date(2024, 6, 1, 10, 0, 0, 123, time.UTC)
		require.NoError(t, tr.SetWatermark(ctx, "users", ts))
		require.NoError(t, tr.SetWatermark(ctx, "programs", ts.Add(time.Hour)))

		wm, err := tr.GetWatermark(ctx, "users")
		require.NoError(t, err)
		assert.True(t, wm.Equal(ts))

		all, err := tr.ListWatermarks(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
		assert.True(t, all["programs"].Equal(ts.Add(time.Hour)))
	})
}
