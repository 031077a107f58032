package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/replica/internal/entity"
	"github.com/roach88/replica/internal/tracker"
)

func TestClock_AdvanceAndSet(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewClock(start)

	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start.Add(time.Second), clock.Advance(time.Second))

	clock.Set(start)
	assert.Equal(t, start, clock.Now())
}

func TestSequentialIDs(t *testing.T) {
	ids := NewSequentialIDs("cycle")
	assert.Equal(t, "cycle-1", ids.Generate())
	assert.Equal(t, "cycle-2", ids.Generate())

	ids.Reset()
	assert.Equal(t, "cycle-1", ids.Generate())
}

func TestSequentialIDs_ThreadSafe(t *testing.T) {
	ids := NewSequentialIDs("x")
	seen := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := ids.Generate()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 50)
}

func TestFakeSource_FetchSinceIsStrict(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := NewFakeSource(
		entity.NewRecord("a", t1, nil),
		entity.NewRecord("b", t1.Add(time.Hour), nil),
	)

	got, err := src.FetchSince(context.Background(), t1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID())

	ids, err := src.ListIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.Equal(t, []time.Time{t1}, src.Fetches())
	assert.Equal(t, 1, src.Lists())
}

func TestFakeSource_RemoveAndFail(t *testing.T) {
	src := NewFakeSource(entity.NewRecord("a", time.Now(), nil))
	src.Remove("a")
	src.Remove("a")

	ids, err := src.ListIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)

	boom := errors.New("boom")
	src.FailFetch(boom)
	_, err = src.FetchSince(context.Background(), time.Time{})
	assert.ErrorIs(t, err, boom)

	src.FailList(boom)
	_, err = src.ListIDs(context.Background())
	assert.ErrorIs(t, err, boom)

	src.Put(entity.NewRecord("b", time.Now(), nil))
	assert.Equal(t, []string{"b"}, src.IDs(), "IDs ignores the armed failure")
}

func TestMemoryTrackerConformance(t *testing.T) {
	RunTrackerSuite(t, func(t *testing.T) tracker.Tracker {
		return tracker.NewMemory()
	})
}
