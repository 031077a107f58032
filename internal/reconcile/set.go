package reconcile

import "github.com/roach88/replica/internal/entity"

// Set is an insertion-ordered snapshot of entities keyed by id.
//
// Iteration order is the order ids were first added. Adding an id that is
// already present replaces the value in place.
type Set[T entity.Entity] struct {
	order []string
	items map[string]T
}

// NewSet builds a set from items in order.
func NewSet[T entity.Entity](items ...T) *Set[T] {
	s := &Set[T]{
		order: make([]string, 0, len(items)),
		items: make(map[string]T, len(items)),
	}
	for _, item := range items {
		s.Add(item)
	}
	return s
}

// Add inserts or replaces item.
func (s *Set[T]) Add(item T) {
	if s.items == nil {
		s.items = make(map[string]T)
	}
	id := item.ID()
	if _, ok := s.items[id]; !ok {
		s.order = append(s.order, id)
	}
	s.items[id] = item
}

// Get returns the item with the given id.
func (s *Set[T]) Get(id string) (T, bool) {
	if s == nil {
		var zero T
		return zero, false
	}
	item, ok := s.items[id]
	return item, ok
}

// Has reports whether id is present.
func (s *Set[T]) Has(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.items[id]
	return ok
}

// Len returns the number of distinct ids.
func (s *Set[T]) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// IDs returns the ids in insertion order.
func (s *Set[T]) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids
}

// Values returns the items in insertion order.
func (s *Set[T]) Values() []T {
	if s == nil {
		return nil
	}
	values := make([]T, 0, len(s.order))
	for _, id := range s.order {
		values = append(values, s.items[id])
	}
	return values
}
