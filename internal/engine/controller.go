package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/replica/internal/entity"
	"github.com/roach88/replica/internal/reconcile"
	"github.com/roach88/replica/internal/store"
	"github.com/roach88/replica/internal/tracker"
)

// Source is the remote side of a collection.
//
// FetchSince returns entities whose lastUpdated is strictly after since.
// ListIDs returns the id of every entity that is live remotely. Errors
// should wrap ErrNetwork or ErrAuth; other errors are treated as
// ErrNetwork.
type Source[E entity.Entity] interface {
	FetchSince(ctx context.Context, since time.Time) ([]E, error)
	ListIDs(ctx context.Context) ([]string, error)
}

// Controller syncs one entity type.
//
// Thread-safety: RunCycle and Plan are safe to call from any goroutine.
// Calls are serialized; a second call waits for the running cycle.
type Controller[E entity.Entity] struct {
	typ     entity.Type
	source  Source[E]
	store   store.TxStore[E]
	tracker tracker.Tracker
	codec   entity.Codec[E]

	logger   *slog.Logger
	ids      IDGenerator
	now      func() time.Time
	recorder Recorder

	mu    sync.Mutex
	phase atomic.Int32
}

// NewController creates a controller for typ.
func NewController[E entity.Entity](
	typ entity.Type,
	source Source[E],
	st store.TxStore[E],
	tr tracker.Tracker,
	codec entity.Codec[E],
	opts ...Option,
) *Controller[E] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Controller[E]{
		typ:      typ,
		source:   source,
		store:    st,
		tracker:  tr,
		codec:    codec,
		logger:   o.logger.With("entity_type", string(typ)),
		ids:      o.ids,
		now:      o.now,
		recorder: o.recorder,
	}
}

// EntityType returns the type this controller syncs.
func (c *Controller[E]) EntityType() entity.Type {
	return c.typ
}

// Phase returns the current phase. After a cycle ends it reports the
// terminal phase, or PhaseIdle if the cycle did not reach Applying.
func (c *Controller[E]) Phase() Phase {
	return Phase(c.phase.Load())
}

func (c *Controller[E]) setPhase(p Phase) {
	c.phase.Store(int32(p))
	c.recorder.ObservePhase(c.typ, p)
}

// snapshot is everything Reconciling produces.
type snapshot[E entity.Entity] struct {
	watermark time.Time
	fetched   int
	newSet    *reconcile.Set[E]
	plan      reconcile.Plan[E]
	failures  map[string]tracker.FailedItem

	// unresolved holds live ids that are neither local nor fetched.
	unresolved []string
}

// Plan fetches and reconciles without writing anything.
func (c *Controller[E]) Plan(ctx context.Context) (reconcile.Plan[E], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, _, err := c.prepare(ctx)
	if err != nil {
		return reconcile.Plan[E]{}, err
	}
	return snap.plan, nil
}

// RunCycle runs one full sync cycle.
//
// The returned error is non-nil exactly when the outcome is
// OutcomeNetworkError or OutcomeAborted, or when bookkeeping after a
// committed apply failed. Item-level failures are reported through
// CycleResult.Failed, not as an error.
func (c *Controller[E]) RunCycle(ctx context.Context) (CycleResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := CycleResult{
		EntityType: c.typ,
		CycleID:    c.ids.Generate(),
		StartedAt:  c.now(),
	}
	logger := c.logger.With("cycle_id", result.CycleID)
	logger.Debug("Starting sync cycle")

	snap, failedPhase, err := c.prepare(ctx)
	if err != nil {
		return c.abort(logger, result, failedPhase, err)
	}
	result.WatermarkBefore = snap.watermark
	result.WatermarkAfter = snap.watermark
	result.Summary = snap.plan.Summary
	result.Fetched = snap.fetched
	result.Unresolved = snap.unresolved

	// Last chance to honour cancellation with nothing applied.
	if err := ctx.Err(); err != nil {
		return c.abort(logger, result, PhaseReconciling, err)
	}

	// Applying runs to completion regardless of the caller's context.
	applyCtx := context.WithoutCancel(ctx)
	c.setPhase(PhaseApplying)

	outcomes, err := c.apply(applyCtx, snap.plan.Operations)
	if err != nil {
		return c.abort(logger, result, PhaseApplying, err)
	}

	maxApplied, bookErr := c.record(applyCtx, logger, &result, outcomes, snap.failures)

	if len(result.Failed) == 0 {
		result.Outcome = OutcomeCommitted
	} else {
		result.Outcome = OutcomePartiallyFailed
	}

	if bookErr == nil {
		target := snap.watermark
		if result.Outcome == OutcomeCommitted {
			for _, e := range snap.newSet.Values() {
				target = entity.MaxTime(target, e.LastUpdated())
			}
		} else {
			target = entity.MaxTime(target, maxApplied)
		}
		if target.After(snap.watermark) {
			if err := c.tracker.SetWatermark(applyCtx, c.typ, target); err != nil {
				bookErr = fmt.Errorf("set watermark: %w", err)
			} else {
				result.WatermarkAfter = target
			}
		}
	} else {
		logger.Warn("Bookkeeping failed; watermark left unchanged", "error", bookErr)
	}

	if result.Outcome == OutcomeCommitted {
		c.setPhase(PhaseCommitted)
	} else {
		c.setPhase(PhasePartiallyFailed)
	}
	result.Duration = c.now().Sub(result.StartedAt)

	logger.Info("Sync cycle finished",
		"outcome", result.Outcome.String(),
		"fetched", result.Fetched,
		"inserts", result.Summary.Inserts,
		"updates", result.Summary.Updates,
		"deletes", result.Summary.Deletes,
		"failed", result.FailedCount(),
		"unresolved", len(result.Unresolved),
		"watermark", formatWatermark(result.WatermarkAfter),
	)
	for _, item := range result.Failed {
		logger.Warn("Operation failed", "id", item.ID, "operation", item.Operation.String(), "reason", item.Reason)
	}

	if bookErr != nil {
		result.Err = &CycleError{EntityType: c.typ, CycleID: result.CycleID, Phase: PhaseApplying, Err: bookErr}
	}
	c.recorder.ObserveCycle(result)
	return result, result.Err
}

// abort ends a cycle that never applied anything.
func (c *Controller[E]) abort(logger *slog.Logger, result CycleResult, phase Phase, err error) (CycleResult, error) {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		result.Outcome = OutcomeAborted
	case phase == PhaseFetching:
		result.Outcome = OutcomeNetworkError
		err = asNetworkError(err)
	default:
		result.Outcome = OutcomeAborted
	}
	result.Err = &CycleError{EntityType: c.typ, CycleID: result.CycleID, Phase: phase, Err: err}
	result.Duration = c.now().Sub(result.StartedAt)
	c.setPhase(PhaseIdle)

	logger.Warn("Sync cycle aborted",
		"outcome", result.Outcome.String(),
		"phase", phase.String(),
		"error", err,
	)
	c.recorder.ObserveCycle(result)
	return result, result.Err
}

// prepare runs Fetching and Reconciling. On error it also returns the
// phase that failed.
func (c *Controller[E]) prepare(ctx context.Context) (snapshot[E], Phase, error) {
	var snap snapshot[E]

	c.setPhase(PhaseFetching)
	wm, err := c.tracker.GetWatermark(ctx, c.typ)
	if err != nil {
		return snap, PhaseIdle, fmt.Errorf("get watermark: %w", err)
	}
	snap.watermark = wm

	fetched, live, err := c.fetch(ctx, wm)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return snap, PhaseFetching, fmt.Errorf("fetch: %w", ctxErr)
		}
		return snap, PhaseFetching, err
	}
	snap.fetched = len(fetched)

	c.setPhase(PhaseReconciling)
	olds, err := c.store.QueryAll(ctx)
	if err != nil {
		return snap, PhaseReconciling, fmt.Errorf("load local %s: %w", c.typ, err)
	}
	oldSet := reconcile.NewSet(olds...)

	pending, err := c.tracker.ListFailures(ctx, c.typ)
	if err != nil {
		return snap, PhaseReconciling, fmt.Errorf("load failures: %w", err)
	}
	snap.failures = make(map[string]tracker.FailedItem, len(pending))
	for _, item := range pending {
		snap.failures[item.ID] = item
	}

	snap.newSet, snap.unresolved = c.buildNewSet(fetched, live, oldSet, snap.failures)
	snap.plan = reconcile.Compare(oldSet, snap.newSet)
	return snap, PhaseIdle, nil
}

// fetch runs the incremental fetch and the id listing concurrently.
func (c *Controller[E]) fetch(ctx context.Context, since time.Time) ([]E, []string, error) {
	var (
		fetched []E
		live    []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := c.source.FetchSince(gctx, since)
		if err != nil {
			return fmt.Errorf("fetch %s since %s: %w", c.typ, formatWatermark(since), err)
		}
		fetched = items
		return nil
	})
	g.Go(func() error {
		ids, err := c.source.ListIDs(gctx)
		if err != nil {
			return fmt.Errorf("list %s ids: %w", c.typ, err)
		}
		live = ids
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return fetched, live, nil
}

// buildNewSet assembles the remote snapshot. See the package doc. It also
// returns the live ids it could not resolve: the remote lists them, but
// they are older than the watermark and have neither a local row nor a
// retry payload.
func (c *Controller[E]) buildNewSet(
	fetched []E,
	live []string,
	oldSet *reconcile.Set[entity.Stored[E]],
	failures map[string]tracker.FailedItem,
) (*reconcile.Set[E], []string) {
	fetchedSet := reconcile.NewSet(fetched...)
	newSet := reconcile.NewSet[E]()
	var unresolved []string

	for _, id := range live {
		if e, ok := fetchedSet.Get(id); ok {
			newSet.Add(e)
			continue
		}

		old, hasOld := oldSet.Get(id)
		if retry, ok := c.retryPayload(failures, id); ok {
			if !hasOld || retry.LastUpdated().After(old.LastUpdated()) {
				newSet.Add(retry)
				continue
			}
		}
		if hasOld {
			newSet.Add(old.Entity)
			continue
		}
		c.logger.Warn("Live id unknown locally and not fetched", "id", id)
		unresolved = append(unresolved, id)
	}

	for _, e := range fetched {
		if !newSet.Has(e.ID()) {
			newSet.Add(e)
		}
	}
	return newSet, unresolved
}

// retryPayload decodes the entity of a failed insert or update.
func (c *Controller[E]) retryPayload(failures map[string]tracker.FailedItem, id string) (E, bool) {
	var zero E
	item, ok := failures[id]
	if !ok || item.Operation == reconcile.KindDelete || len(item.Payload) == 0 {
		return zero, false
	}
	e, err := c.codec.Decode(item.Payload)
	if err != nil || e.ID() != id {
		c.logger.Warn("Ignoring undecodable retry payload", "id", id, "error", err)
		return zero, false
	}
	return e, true
}

type opOutcome[E entity.Entity] struct {
	op  reconcile.Operation[E]
	err error
}

// apply runs every operation inside one transaction. Item failures are
// returned per operation; the error is non-nil only when the transaction
// itself could not be opened or committed.
func (c *Controller[E]) apply(ctx context.Context, ops []reconcile.Operation[E]) ([]opOutcome[E], error) {
	if len(ops) == 0 {
		return nil, nil
	}

	var outcomes []opOutcome[E]
	err := c.store.Transact(ctx, func(tx store.EntityStore[E]) error {
		outcomes = make([]opOutcome[E], 0, len(ops))
		for _, op := range ops {
			outcomes = append(outcomes, opOutcome[E]{op: op, err: applyOne(ctx, tx, op)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcomes, nil
}

func applyOne[E entity.Entity](ctx context.Context, tx store.EntityStore[E], op reconcile.Operation[E]) error {
	var err error
	switch op.Kind {
	case reconcile.KindInsert:
		_, err = tx.Insert(ctx, op.Entity)
	case reconcile.KindUpdate:
		err = tx.Update(ctx, op.Entity, op.LocalKey)
	case reconcile.KindDelete:
		err = tx.Delete(ctx, op.Entity)
	default:
		err = fmt.Errorf("unknown operation kind %d", int(op.Kind))
	}
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrStore, op.Kind, op.ID(), err)
	}
	return nil
}

// record writes sync states and failure records for a committed apply.
// It returns the latest lastUpdated among applied inserts and updates.
func (c *Controller[E]) record(
	ctx context.Context,
	logger *slog.Logger,
	result *CycleResult,
	outcomes []opOutcome[E],
	pending map[string]tracker.FailedItem,
) (time.Time, error) {
	var (
		maxApplied time.Time
		errs       []error
	)

	for _, o := range outcomes {
		id := o.op.ID()

		if o.err == nil {
			result.Applied++
			if o.op.Kind == reconcile.KindDelete {
				errs = append(errs, c.tracker.DeleteState(ctx, c.typ, id))
			} else {
				maxApplied = entity.MaxTime(maxApplied, o.op.Entity.LastUpdated())
				errs = append(errs, c.tracker.MarkState(ctx, c.typ, id, tracker.StateSynced))
			}
			if _, ok := pending[id]; ok {
				logger.Info("Cleared failure after successful retry", "id", id)
				errs = append(errs, c.tracker.ClearFailure(ctx, c.typ, id))
			}
			continue
		}

		item := tracker.FailedItem{
			EntityType: c.typ,
			ID:         id,
			Operation:  o.op.Kind,
			Reason:     o.err.Error(),
			FailedAt:   c.now().UTC(),
			CycleID:    result.CycleID,
			Attempts:   pending[id].Attempts + 1,
		}
		if o.op.Kind != reconcile.KindDelete {
			payload, err := c.codec.Encode(o.op.Entity)
			if err != nil {
				errs = append(errs, fmt.Errorf("encode retry payload %s: %w", id, err))
			} else {
				item.Payload = payload
			}
		}
		errs = append(errs,
			c.tracker.RecordFailure(ctx, item),
			c.tracker.MarkState(ctx, c.typ, id, tracker.StateError),
		)
		result.Failed = append(result.Failed, item)
	}

	return maxApplied, errors.Join(errs...)
}
