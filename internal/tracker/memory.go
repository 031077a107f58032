package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/roach88/replica/internal/entity"
)

type itemKey struct {
	typ entity.Type
	id  string
}

// Memory is an in-process Tracker.
type Memory struct {
	mu         sync.RWMutex
	states     map[itemKey]State
	failures   map[itemKey]FailedItem
	watermarks map[entity.Type]time.Time
}

var _ Tracker = (*Memory)(nil)

// NewMemory returns an empty tracker.
func NewMemory() *Memory {
	return &Memory{
		states:     make(map[itemKey]State),
		failures:   make(map[itemKey]FailedItem),
		watermarks: make(map[entity.Type]time.Time),
	}
}

// MarkState implements StateTracker.
func (m *Memory) MarkState(_ context.Context, typ entity.Type, id string, state State) error {
	if _, err := ParseState(string(state)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[itemKey{typ, id}] = state
	return nil
}

// GetState implements StateTracker.
func (m *Memory) GetState(_ context.Context, typ entity.Type, id string) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.states[itemKey{typ, id}]; ok {
		return st, nil
	}
	return StateSynced, nil
}

// DeleteState implements StateTracker.
func (m *Memory) DeleteState(_ context.Context, typ entity.Type, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, itemKey{typ, id})
	return nil
}

// ListStates implements StateTracker.
func (m *Memory) ListStates(_ context.Context, typ entity.Type) ([]StateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StateRecord, 0)
	for k, st := range m.states {
		if typ != "" && k.typ != typ {
			continue
		}
		out = append(out, StateRecord{EntityType: k.typ, ID: k.id, State: st})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityType != out[j].EntityType {
			return out[i].EntityType < out[j].EntityType
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// RecordFailure implements FailureLedger.
func (m *Memory) RecordFailure(_ context.Context, item FailedItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := itemKey{item.EntityType, item.ID}
	item.Attempts = m.failures[k].Attempts + 1
	item.Payload = append([]byte(nil), item.Payload...)
	m.failures[k] = item
	return nil
}

// ListFailures implements FailureLedger.
func (m *Memory) ListFailures(_ context.Context, typ entity.Type) ([]FailedItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]FailedItem, 0)
	for k, item := range m.failures {
		if typ != "" && k.typ != typ {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityType != out[j].EntityType {
			return out[i].EntityType < out[j].EntityType
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ClearFailure implements FailureLedger.
func (m *Memory) ClearFailure(_ context.Context, typ entity.Type, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, itemKey{typ, id})
	return nil
}

// GetWatermark implements WatermarkStore.
func (m *Memory) GetWatermark(_ context.Context, typ entity.Type) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.watermarks[typ], nil
}

// SetWatermark implements WatermarkStore.
func (m *Memory) SetWatermark(_ context.Context, typ entity.Type, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watermarks[typ] = ts.UTC()
	return nil
}

// ListWatermarks implements WatermarkStore.
func (m *Memory) ListWatermarks(_ context.Context) (map[entity.Type]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[entity.Type]time.Time, len(m.watermarks))
	for k, v := range m.watermarks {
		out[k] = v
	}
	return out, nil
}
