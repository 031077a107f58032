package reconcile

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/replica/internal/entity"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// at returns the n-th test timestamp, one day apart.
func at(n int) time.Time {
	return base.AddDate(0, 0, n-1)
}

func rec(id string, n int) entity.Record {
	return entity.NewRecord(id, at(n), nil)
}

func stored(id string, n int, key int64) entity.Stored[entity.Record] {
	return entity.Stored[entity.Record]{Entity: rec(id, n), LocalKey: key}
}

func oldSet(items ...entity.Stored[entity.Record]) *Set[entity.Stored[entity.Record]] {
	return NewSet(items...)
}

func newSet(items ...entity.Record) *Set[entity.Record] {
	return NewSet(items...)
}

func kinds(ops []Operation[entity.Record]) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = fmt.Sprintf("%s:%s", op.Kind, op.ID())
	}
	return out
}

func TestDiffUpdateAndInsert(t *testing.T) {
	ops := Diff(
		oldSet(stored("A", 1, 1), stored("B", 2, 2)),
		newSet(rec("A", 1), rec("B", 3), rec("C", 4)),
	)

	require.Len(t, ops, 2)
	assert.Equal(t, KindUpdate, ops[0].Kind)
	assert.Equal(t, "B", ops[0].ID())
	assert.Equal(t, int64(2), ops[0].LocalKey, "update targets the existing row")
	assert.True(t, ops[0].Entity.LastUpdated().Equal(at(3)))

	assert.Equal(t, KindInsert, ops[1].Kind)
	assert.Equal(t, "C", ops[1].ID())
	assert.Zero(t, ops[1].LocalKey)
}

func TestDiffRemoteDeletion(t *testing.T) {
	ops := Diff(
		oldSet(stored("A", 1, 1), stored("B", 2, 2)),
		newSet(rec("B", 2)),
	)

	require.Len(t, ops, 1)
	assert.Equal(t, KindDelete, ops[0].Kind)
	assert.Equal(t, "A", ops[0].ID())
	assert.Equal(t, int64(1), ops[0].LocalKey)
	assert.True(t, ops[0].Entity.LastUpdated().Equal(at(1)))
}

func TestDiffEmptyOldInsertsEverything(t *testing.T) {
	ops := Diff(oldSet(), newSet(rec("A", 1), rec("B", 2), rec("C", 3)))
	assert.Equal(t, []string{"insert:A", "insert:B", "insert:C"}, kinds(ops))
}

func TestDiffEmptyNewDeletesEverything(t *testing.T) {
	ops := Diff(oldSet(stored("A", 1, 1), stored("B", 2, 2)), newSet())
	assert.Equal(t, []string{"delete:A", "delete:B"}, kinds(ops))
}

func TestDiffIdenticalSetsIsEmpty(t *testing.T) {
	ops := Diff(
		oldSet(stored("A", 1, 1), stored("B", 2, 2)),
		newSet(rec("A", 1), rec("B", 2)),
	)
	assert.Empty(t, ops)
	assert.NotNil(t, ops)
}

func TestDiffNilSets(t *testing.T) {
	assert.Empty(t, Diff[entity.Record](nil, nil))
}

func TestDiffNeverUpdatesOnEqualOrOlderTimestamp(t *testing.T) {
	ops := Diff(
		oldSet(stored("A", 5, 1), stored("B", 5, 2)),
		newSet(rec("A", 5), rec("B", 4)),
	)
	assert.Empty(t, ops)
}

func TestDiffDisjointSets(t *testing.T) {
	var olds []entity.Stored[entity.Record]
	var news []entity.Record
	for i := 0; i < 50; i++ {
		olds = append(olds, stored(fmt.Sprintf("old-%02d", i), 1, int64(i+1)))
	}
	for i := 0; i < 30; i++ {
		news = append(news, rec(fmt.Sprintf("new-%02d", i), 2))
	}

	plan := Compare(oldSet(olds...), newSet(news...))
	assert.Equal(t, 30, plan.Summary.Inserts)
	assert.Equal(t, 50, plan.Summary.Deletes)
	assert.Zero(t, plan.Summary.Updates)
	assert.Len(t, plan.Operations, 80)
}

func TestDiffInsertsFollowOldSetOperations(t *testing.T) {
	ops := Diff(
		oldSet(stored("A", 1, 1), stored("B", 1, 2), stored("C", 1, 3)),
		newSet(rec("X", 2), rec("A", 2), rec("Y", 2), rec("C", 1)),
	)

	assert.Equal(t, []string{"update:A", "delete:B", "insert:X", "insert:Y"}, kinds(ops))

	seenInsert := false
	for _, op := range ops {
		if op.Kind == KindInsert {
			seenInsert = true
			continue
		}
		assert.False(t, seenInsert, "%s emitted after an insert", op.Describe())
	}
}

func TestDiffIsPure(t *testing.T) {
	o := oldSet(stored("A", 1, 1), stored("B", 2, 2), stored("D", 1, 4))
	n := newSet(rec("A", 1), rec("B", 3), rec("C", 4))

	first := Diff(o, n)
	second := Diff(o, n)

	assert.Equal(t, first, second)
	assert.Equal(t, 3, o.Len(), "old set untouched")
	assert.Equal(t, 3, n.Len(), "new set untouched")
}

func TestCompareSummary(t *testing.T) {
	plan := Compare(
		oldSet(stored("A", 1, 1), stored("B", 2, 2), stored("D", 1, 4)),
		newSet(rec("A", 1), rec("B", 3), rec("C", 4)),
	)

	assert.Equal(t, Summary{Inserts: 1, Updates: 1, Deletes: 1, Unchanged: 1}, plan.Summary)
	assert.True(t, plan.Summary.HasChanges())
	assert.Equal(t, 3, plan.Summary.TotalOperations())
	assert.Equal(t, "Total: 3 operations (1 inserts, 1 updates, 1 deletes), 1 unchanged", plan.Summary.String())

	assert.Equal(t, "No changes (2 unchanged)", Summary{Unchanged: 2}.String())
}

func TestComparePlanGolden(t *testing.T) {
	plan := Compare(
		oldSet(stored("A", 1, 1), stored("B", 2, 2), stored("D", 1, 4)),
		newSet(rec("A", 1), rec("B", 3), rec("C", 4)),
	)

	var b strings.Builder
	for _, op := range plan.Operations {
		b.WriteString(op.Describe())
		b.WriteByte('\n')
	}
	b.WriteString(plan.Summary.String())
	b.WriteByte('\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "plan_mixed", []byte(b.String()))
}
