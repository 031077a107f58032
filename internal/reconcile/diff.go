package reconcile

import (
	"fmt"
	"strings"

	"github.com/roach88/replica/internal/entity"
)

// Plan is the Operation List for one collection together with a summary.
type Plan[E entity.Entity] struct {
	// Operations is ordered: old-set-derived operations first, then inserts.
	Operations []Operation[E]

	Summary Summary
}

// Summary counts the operations of a Plan.
type Summary struct {
	Inserts   int `json:"inserts"`
	Updates   int `json:"updates"`
	Deletes   int `json:"deletes"`
	Unchanged int `json:"unchanged"`
}

// HasChanges returns true if the plan contains any operation.
func (s Summary) HasChanges() bool {
	return s.Inserts > 0 || s.Updates > 0 || s.Deletes > 0
}

// TotalOperations returns the number of operations.
func (s Summary) TotalOperations() int {
	return s.Inserts + s.Updates + s.Deletes
}

// String returns a human-readable summary.
func (s Summary) String() string {
	if !s.HasChanges() {
		return fmt.Sprintf("No changes (%d unchanged)", s.Unchanged)
	}
	parts := []string{
		fmt.Sprintf("%d inserts", s.Inserts),
		fmt.Sprintf("%d updates", s.Updates),
		fmt.Sprintf("%d deletes", s.Deletes),
	}
	return fmt.Sprintf("Total: %d operations (%s), %d unchanged",
		s.TotalOperations(), strings.Join(parts, ", "), s.Unchanged)
}

// Diff returns the operations that turn oldSet into newSet.
//
//  1. For each old entity in order: absent from newSet gives Delete; present
//     with a strictly later lastUpdated gives Update; anything else is a no-op.
//  2. For each new entity in order whose id is absent from oldSet: Insert.
//
// Neither set is modified.
func Diff[E entity.Entity](oldSet *Set[entity.Stored[E]], newSet *Set[E]) []Operation[E] {
	return Compare(oldSet, newSet).Operations
}

// Compare is Diff plus a Summary.
func Compare[E entity.Entity](oldSet *Set[entity.Stored[E]], newSet *Set[E]) Plan[E] {
	var plan Plan[E]
	plan.Operations = make([]Operation[E], 0)

	for _, old := range oldSet.Values() {
		current, ok := newSet.Get(old.ID())
		switch {
		case !ok:
			plan.Operations = append(plan.Operations, Delete(old))
			plan.Summary.Deletes++
		case current.LastUpdated().After(old.LastUpdated()):
			plan.Operations = append(plan.Operations, Update(current, old.LocalKey))
			plan.Summary.Updates++
		default:
			plan.Summary.Unchanged++
		}
	}

	for _, current := range newSet.Values() {
		if oldSet.Has(current.ID()) {
			continue
		}
		plan.Operations = append(plan.Operations, Insert(current))
		plan.Summary.Inserts++
	}

	return plan
}
