package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/replica/internal/entity"
	"github.com/roach88/replica/internal/reconcile"
	"github.com/roach88/replica/internal/store"
)

// ErrInjected is the cause of every failure produced by FaultyStore.
var ErrInjected = errors.New("injected fault")

type fault struct {
	kind reconcile.Kind
	id   string
}

// FaultyStore wraps a TxStore and fails selected writes.
//
// Faults are keyed by operation kind and entity id and stay armed until
// Heal is called. Reads are never failed.
type FaultyStore[E entity.Entity] struct {
	store.TxStore[E]

	mu     sync.Mutex
	faults map[fault]bool
}

var _ store.TxStore[entity.Record] = (*FaultyStore[entity.Record])(nil)

// NewFaultyStore wraps inner.
func NewFaultyStore[E entity.Entity](inner store.TxStore[E]) *FaultyStore[E] {
	return &FaultyStore[E]{TxStore: inner, faults: make(map[fault]bool)}
}

// FailOn arms a fault for kind on id.
func (f *FaultyStore[E]) FailOn(kind reconcile.Kind, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[fault{kind, id}] = true
}

// Heal disarms every fault.
func (f *FaultyStore[E]) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = make(map[fault]bool)
}

func (f *FaultyStore[E]) check(kind reconcile.Kind, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.faults[fault{kind, id}] {
		return fmt.Errorf("%s %s: %w", kind, id, ErrInjected)
	}
	return nil
}

// Insert fails when armed, otherwise delegates.
func (f *FaultyStore[E]) Insert(ctx context.Context, e E) (int64, error) {
	if err := f.check(reconcile.KindInsert, e.ID()); err != nil {
		return 0, err
	}
	return f.TxStore.Insert(ctx, e)
}

// Update fails when armed, otherwise delegates.
func (f *FaultyStore[E]) Update(ctx context.Context, e E, localKey int64) error {
	if err := f.check(reconcile.KindUpdate, e.ID()); err != nil {
		return err
	}
	return f.TxStore.Update(ctx, e, localKey)
}

// Delete fails when armed, otherwise delegates.
func (f *FaultyStore[E]) Delete(ctx context.Context, e E) error {
	if err := f.check(reconcile.KindDelete, e.ID()); err != nil {
		return err
	}
	return f.TxStore.Delete(ctx, e)
}

// Transact runs fn against the inner transaction with the same faults
// armed.
func (f *FaultyStore[E]) Transact(ctx context.Context, fn func(tx store.EntityStore[E]) error) error {
	return f.TxStore.Transact(ctx, func(tx store.EntityStore[E]) error {
		return fn(&faultyTx[E]{EntityStore: tx, parent: f})
	})
}

type faultyTx[E entity.Entity] struct {
	store.EntityStore[E]
	parent *FaultyStore[E]
}

func (t *faultyTx[E]) Insert(ctx context.Context, e E) (int64, error) {
	if err := t.parent.check(reconcile.KindInsert, e.ID()); err != nil {
		return 0, err
	}
	return t.EntityStore.Insert(ctx, e)
}

func (t *faultyTx[E]) Update(ctx context.Context, e E, localKey int64) error {
	if err := t.parent.check(reconcile.KindUpdate, e.ID()); err != nil {
		return err
	}
	return t.EntityStore.Update(ctx, e, localKey)
}

func (t *faultyTx[E]) Delete(ctx context.Context, e E) error {
	if err := t.parent.check(reconcile.KindDelete, e.ID()); err != nil {
		return err
	}
	return t.EntityStore.Delete(ctx, e)
}
