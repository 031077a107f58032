package tracker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseState(t *testing.T) {
	for _, st := range []State{StateSynced, StateToPost, StateToUpdate, StateToDelete, StateError} {
		got, err := ParseState(string(st))
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}

	_, err := ParseState("pending")
	assert.Error(t, err)
}

func TestMemory_RejectsUnknownState(t *testing.T) {
	m := NewMemory()
	err := m.MarkState(context.Background(), "users", "u1", State("bogus"))
	assert.Error(t, err)
}

func TestMemory_ListWatermarksIsACopy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	all, err := m.ListWatermarks(ctx)
	require.NoError(t, err)
	all["users"] = all["users"].AddDate(1, 0, 0)

	wm, err := m.GetWatermark(ctx, "users")
	require.NoError(t, err)
	assert.True(t, wm.IsZero())
}
