package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/roach88/replica/internal/engine"
	"github.com/roach88/replica/internal/tracker"
)

func TestMetrics_ObserveCycle(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	watermark := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.ObserveCycle(engine.CycleResult{
		EntityType:     "users",
		Outcome:        engine.OutcomeCommitted,
		Applied:        3,
		WatermarkAfter: watermark,
		Duration:       250 * time.Millisecond,
	})
	m.ObserveCycle(engine.CycleResult{
		EntityType: "users",
		Outcome:    engine.OutcomePartiallyFailed,
		Applied:    1,
		Failed:     []tracker.FailedItem{{ID: "a"}, {ID: "b"}},
		Unresolved: []string{"c"},
		Duration:   time.Second,
	})
	m.ObserveCycle(engine.CycleResult{
		EntityType: "groups",
		Outcome:    engine.OutcomeNetworkError,
	})

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CyclesTotal.WithLabelValues("users", "committed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CyclesTotal.WithLabelValues("users", "partially_failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CyclesTotal.WithLabelValues("groups", "network_error")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.AppliedTotal.WithLabelValues("users")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.FailedTotal.WithLabelValues("users")))
	assert.Equal(t, float64(watermark.Unix()), testutil.ToFloat64(m.Watermark.WithLabelValues("users")))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Unresolved.WithLabelValues("users")))

	// No watermark or unresolved sample for a cycle that never reconciled.
	assert.Equal(t, 1, testutil.CollectAndCount(m.Watermark))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Unresolved))
	assert.Equal(t, 2, testutil.CollectAndCount(m.CycleDuration))
}

func TestMetrics_ObservePhase(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObservePhase("users", engine.PhaseApplying)
	assert.Equal(t, float64(engine.PhaseApplying), testutil.ToFloat64(m.Phase.WithLabelValues("users")))

	m.ObservePhase("users", engine.PhaseIdle)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Phase.WithLabelValues("users")))
}

func TestNew_InstanceRegistries(t *testing.T) {
	// Two registries must not collide.
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})

	registry := prometheus.NewRegistry()
	New(registry)
	assert.Panics(t, func() { New(registry) }, "duplicate registration")
}
