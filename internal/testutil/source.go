package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/replica/internal/entity"
)

// FakeSource is an in-memory remote entity source.
//
// FetchSince returns entities whose lastUpdated is strictly after since,
// in the order they were first put. ListIDs returns every live id in the
// same order. Errors set with FailFetch or FailList are returned until
// cleared with a nil error.
type FakeSource[E entity.Entity] struct {
	mu       sync.Mutex
	order    []string
	items    map[string]E
	fetchErr error
	listErr  error

	fetches []time.Time
	lists   int

	// OnFetch, when set, runs at the start of every FetchSince call.
	OnFetch func(ctx context.Context)
}

// NewFakeSource creates a source holding items.
func NewFakeSource[E entity.Entity](items ...E) *FakeSource[E] {
	s := &FakeSource[E]{items: make(map[string]E)}
	for _, item := range items {
		s.Put(item)
	}
	return s
}

// Put adds or replaces an entity.
func (s *FakeSource[E]) Put(e E) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[e.ID()]; !ok {
		s.order = append(s.order, e.ID())
	}
	s.items[e.ID()] = e
}

// Remove deletes an entity remotely.
func (s *FakeSource[E]) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return
	}
	delete(s.items, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// FailFetch makes FetchSince return err.
func (s *FakeSource[E]) FailFetch(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErr = err
}

// FailList makes ListIDs return err.
func (s *FakeSource[E]) FailList(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

// FetchSince implements the remote source contract.
func (s *FakeSource[E]) FetchSince(ctx context.Context, since time.Time) ([]E, error) {
	if s.OnFetch != nil {
		s.OnFetch(ctx)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches = append(s.fetches, since)
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}

	out := make([]E, 0)
	for _, id := range s.order {
		e := s.items[id]
		if e.LastUpdated().After(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListIDs implements the remote source contract.
func (s *FakeSource[E]) ListIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	if s.listErr != nil {
		return nil, s.listErr
	}
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids, nil
}

// Lists returns the number of ListIDs calls so far.
func (s *FakeSource[E]) Lists() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists
}

// Fetches returns the since argument of every FetchSince call so far.
func (s *FakeSource[E]) Fetches() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Time, len(s.fetches))
	copy(out, s.fetches)
	return out
}

// IDs returns every live id in put order. Unlike ListIDs it never fails
// and is not counted.
func (s *FakeSource[E]) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids
}
