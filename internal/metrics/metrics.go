package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/replica/internal/engine"
	"github.com/roach88/replica/internal/entity"
)

// Metrics holds the sync metrics. It implements engine.Recorder.
type Metrics struct {
	CyclesTotal   *prometheus.CounterVec
	CycleDuration *prometheus.HistogramVec
	Phase         *prometheus.GaugeVec
	AppliedTotal  *prometheus.CounterVec
	FailedTotal   *prometheus.CounterVec
	Watermark     *prometheus.GaugeVec
	Unresolved    *prometheus.GaugeVec
}

var _ engine.Recorder = (*Metrics)(nil)

// New creates all sync metrics and registers them with registry.
// Pass an instance registry from prometheus.NewRegistry.
func New(registry prometheus.Registerer) *Metrics {
	return &Metrics{
		CyclesTotal: NewCounterVec(
			registry,
			"replica_sync_cycles_total",
			"Total number of sync cycles by outcome",
			[]string{"entity_type", "outcome"},
		),
		CycleDuration: NewHistogramVec(
			registry,
			"replica_sync_cycle_duration_seconds",
			"Time spent in sync cycles",
			DurationBuckets(),
			[]string{"entity_type"},
		),
		Phase: NewGaugeVec(
			registry,
			"replica_sync_phase",
			"Current controller phase (0=idle 1=fetching 2=reconciling 3=applying 4=committed 5=partially_failed)",
			[]string{"entity_type"},
		),
		AppliedTotal: NewCounterVec(
			registry,
			"replica_sync_operations_applied_total",
			"Total number of operations applied to the local store",
			[]string{"entity_type"},
		),
		FailedTotal: NewCounterVec(
			registry,
			"replica_sync_operations_failed_total",
			"Total number of operations recorded as failed",
			[]string{"entity_type"},
		),
		Watermark: NewGaugeVec(
			registry,
			"replica_sync_watermark_seconds",
			"Watermark of each entity type as a Unix timestamp",
			[]string{"entity_type"},
		),
		Unresolved: NewGaugeVec(
			registry,
			"replica_sync_unresolved_items",
			"Live remote ids the last finished cycle could not replicate",
			[]string{"entity_type"},
		),
	}
}

// ObservePhase implements engine.Recorder.
func (m *Metrics) ObservePhase(typ entity.Type, phase engine.Phase) {
	m.Phase.WithLabelValues(string(typ)).Set(float64(phase))
}

// ObserveCycle implements engine.Recorder.
func (m *Metrics) ObserveCycle(result engine.CycleResult) {
	typ := string(result.EntityType)

	m.CyclesTotal.WithLabelValues(typ, result.Outcome.String()).Inc()
	m.CycleDuration.WithLabelValues(typ).Observe(result.Duration.Seconds())
	m.AppliedTotal.WithLabelValues(typ).Add(float64(result.Applied))
	m.FailedTotal.WithLabelValues(typ).Add(float64(result.FailedCount()))

	if result.Outcome == engine.OutcomeCommitted || result.Outcome == engine.OutcomePartiallyFailed {
		m.Unresolved.WithLabelValues(typ).Set(float64(len(result.Unresolved)))
	}
	if !result.WatermarkAfter.IsZero() {
		m.Watermark.WithLabelValues(typ).Set(float64(result.WatermarkAfter.UnixNano()) / 1e9)
	}
}
