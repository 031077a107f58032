package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/replica/internal/entity"
	"github.com/roach88/replica/internal/store"
	"github.com/roach88/replica/internal/testutil"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// ts returns the n-th test timestamp, one hour apart.
func ts(n int) time.Time {
	return epoch.Add(time.Duration(n) * time.Hour)
}

func rec(id string, n int) entity.Record {
	return entity.NewRecord(id, ts(n), map[string]any{"name": id})
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *store.Store
	coll   *store.Collection[entity.Record]
	faulty *testutil.FaultyStore[entity.Record]
	source *testutil.FakeSource[entity.Record]
	clock  *testutil.Clock
	rec    *recordingRecorder
	ctrl   *Controller[entity.Record]
}

func newFixture(t *testing.T, typ entity.Type, remote ...entity.Record) *fixture {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	coll, err := store.OpenCollection(ctx, s, typ, entity.JSONCodec[entity.Record]{})
	require.NoError(t, err)

	f := &fixture{
		t:      t,
		ctx:    ctx,
		store:  s,
		coll:   coll,
		faulty: testutil.NewFaultyStore[entity.Record](coll),
		source: testutil.NewFakeSource(remote...),
		clock:  testutil.NewClock(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)),
		rec:    &recordingRecorder{},
	}
	f.ctrl = NewController[entity.Record](typ, f.source, f.faulty, s, entity.JSONCodec[entity.Record]{},
		WithIDGenerator(testutil.NewSequentialIDs("cycle")),
		WithClock(f.clock.Now),
		WithRecorder(f.rec),
	)
	return f
}

func (f *fixture) run() CycleResult {
	f.t.Helper()
	res, err := f.ctrl.RunCycle(f.ctx)
	require.NoError(f.t, err)
	return res
}

func (f *fixture) watermark() time.Time {
	f.t.Helper()
	wm, err := f.store.GetWatermark(f.ctx, f.ctrl.EntityType())
	require.NoError(f.t, err)
	return wm
}

// local returns id -> lastUpdated of the local collection.
func (f *fixture) local() map[string]time.Time {
	f.t.Helper()
	all, err := f.coll.QueryAll(f.ctx)
	require.NoError(f.t, err)
	out := make(map[string]time.Time, len(all))
	for _, s := range all {
		out[s.ID()] = s.LastUpdated()
	}
	return out
}

type recordingRecorder struct {
	mu     sync.Mutex
	phases []Phase
	cycles []CycleResult
}

func (r *recordingRecorder) ObservePhase(_ entity.Type, p Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, p)
}

func (r *recordingRecorder) ObserveCycle(res CycleResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles = append(r.cycles, res)
}
