package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/replica/internal/engine"
	"github.com/roach88/replica/internal/entity"
	"github.com/roach88/replica/internal/reconcile"
	"github.com/roach88/replica/internal/store"
	"github.com/roach88/replica/internal/testutil"
)

// Harness runs one scenario against a real SQLite store, a fake remote
// source and a fault-injecting wrapper around the collection.
type Harness struct {
	scenario *Scenario
	store    *store.Store
	coll     *store.Collection[entity.Record]
	faulty   *testutil.FaultyStore[entity.Record]
	writes   *writeLog
	source   *testutil.FakeSource[entity.Record]
	clock    *testutil.Clock
	ctrl     *engine.Controller[entity.Record]
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a frozen clock and
// sequential cycle ids ("cycle-1", "cycle-2", ...), so traces are
// identical across runs. The returned error reports a harness failure;
// unmet expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(ctx, scenario, st)
	if err != nil {
		return nil, err
	}

	if err := h.setup(ctx); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.runStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	actx := &AssertionContext{
		Ctx:        ctx,
		Store:      st,
		Collection: h.coll,
		EntityType: scenario.EntityType,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

func newHarness(ctx context.Context, scenario *Scenario, st *store.Store) (*Harness, error) {
	codec := entity.JSONCodec[entity.Record]{}
	coll, err := store.OpenCollection(ctx, st, scenario.EntityType, codec)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection: %w", err)
	}

	h := &Harness{
		scenario: scenario,
		store:    st,
		coll:     coll,
		faulty:   testutil.NewFaultyStore[entity.Record](coll),
		source:   testutil.NewFakeSource[entity.Record](),
		clock:    testutil.NewClock(Epoch.Add(1000 * time.Hour)),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	h.writes = &writeLog{TxStore: h.faulty}
	h.ctrl = engine.NewController[entity.Record](scenario.EntityType, h.source, h.writes, st, codec,
		engine.WithLogger(h.logger),
		engine.WithIDGenerator(testutil.NewSequentialIDs("cycle")),
		engine.WithClock(h.clock.Now),
	)
	return h, nil
}

// setup writes the initial local rows, watermark and remote entities
// without running a cycle.
func (h *Harness) setup(ctx context.Context) error {
	for _, item := range h.scenario.Setup.Local {
		rec, err := item.record()
		if err != nil {
			return err
		}
		if _, err := h.coll.Insert(ctx, rec); err != nil {
			return fmt.Errorf("insert local %s: %w", item.ID, err)
		}
	}

	if w := h.scenario.Setup.Watermark; w != "" {
		at, err := ParseAt(w)
		if err != nil {
			return err
		}
		if err := h.store.SetWatermark(ctx, h.scenario.EntityType, at); err != nil {
			return fmt.Errorf("set watermark: %w", err)
		}
	}

	for _, item := range h.scenario.Setup.Remote {
		rec, err := item.record()
		if err != nil {
			return err
		}
		h.source.Put(rec)
	}
	return nil
}

// runStep applies a step's changes, runs one cycle and checks the
// step's expectations and the sync invariants.
func (h *Harness) runStep(ctx context.Context, index int, step Step, result *Result) error {
	if step.Heal {
		h.faulty.Heal()
		h.source.FailFetch(nil)
		h.source.FailList(nil)
	}
	for _, item := range step.Put {
		rec, err := item.record()
		if err != nil {
			return err
		}
		h.source.Put(rec)
	}
	for _, id := range step.Remove {
		h.source.Remove(id)
	}
	if step.FailFetch != "" {
		h.source.FailFetch(fmt.Errorf("%s: %w", step.FailFetch, engine.ErrNetwork))
	}
	if step.FailList != "" {
		h.source.FailList(fmt.Errorf("%s: %w", step.FailList, engine.ErrNetwork))
	}
	for _, f := range step.Faults {
		kind, err := reconcile.ParseKind(f.Op)
		if err != nil {
			return err
		}
		h.faulty.FailOn(kind, f.ID)
	}

	before, err := h.snapshot(ctx)
	if err != nil {
		return err
	}

	h.writes.reset()
	res, err := h.ctrl.RunCycle(ctx)
	if err != nil && !engine.IsCycleError(err) {
		return fmt.Errorf("run cycle: %w", err)
	}
	h.clock.Advance(time.Minute)

	after, err := h.snapshot(ctx)
	if err != nil {
		return err
	}

	trace := CycleTrace{
		Step:       index,
		CycleID:    res.CycleID,
		Outcome:    res.Outcome.String(),
		Operations: h.writes.attempted(),
		Failed:     h.writes.failed(),
		Applied:    res.Applied,
		Watermark:  FormatAt(after.watermark),
	}
	result.AddCycle(trace)

	if step.Expect != nil {
		for _, msg := range checkExpect(index, step.Expect, trace) {
			result.AddError(msg)
		}
	}

	for _, msg := range checkInvariants(index, res, before, after, h.source) {
		result.AddError(msg)
	}
	return nil
}

// writeLog records every write the controller attempts inside a
// transaction, in order, with its error.
type writeLog struct {
	store.TxStore[entity.Record]

	mu      sync.Mutex
	entries []writeEntry
}

type writeEntry struct {
	desc string
	err  error
}

func (w *writeLog) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = nil
}

func (w *writeLog) add(kind reconcile.Kind, id string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, writeEntry{desc: kind.String() + " " + id, err: err})
}

func (w *writeLog) attempted() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.entries))
	for i, e := range w.entries {
		out[i] = e.desc
	}
	return out
}

func (w *writeLog) failed() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := []string{}
	for _, e := range w.entries {
		if e.err != nil {
			out = append(out, e.desc)
		}
	}
	return out
}

// Transact wraps the transaction's store so its writes are logged.
func (w *writeLog) Transact(ctx context.Context, fn func(tx store.EntityStore[entity.Record]) error) error {
	return w.TxStore.Transact(ctx, func(tx store.EntityStore[entity.Record]) error {
		return fn(&loggedTx{EntityStore: tx, log: w})
	})
}

type loggedTx struct {
	store.EntityStore[entity.Record]
	log *writeLog
}

func (t *loggedTx) Insert(ctx context.Context, e entity.Record) (int64, error) {
	key, err := t.EntityStore.Insert(ctx, e)
	t.log.add(reconcile.KindInsert, e.ID(), err)
	return key, err
}

func (t *loggedTx) Update(ctx context.Context, e entity.Record, localKey int64) error {
	err := t.EntityStore.Update(ctx, e, localKey)
	t.log.add(reconcile.KindUpdate, e.ID(), err)
	return err
}

func (t *loggedTx) Delete(ctx context.Context, e entity.Record) error {
	err := t.EntityStore.Delete(ctx, e)
	t.log.add(reconcile.KindDelete, e.ID(), err)
	return err
}
