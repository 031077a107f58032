package engine

import (
	"log/slog"
	"time"

	"github.com/roach88/replica/internal/entity"
)

// Recorder observes controller activity. Implemented by the metrics
// package; the default discards everything.
type Recorder interface {
	ObservePhase(typ entity.Type, phase Phase)
	ObserveCycle(result CycleResult)
}

type nopRecorder struct{}

func (nopRecorder) ObservePhase(entity.Type, Phase) {}
func (nopRecorder) ObserveCycle(CycleResult)        {}

type options struct {
	logger   *slog.Logger
	ids      IDGenerator
	now      func() time.Time
	recorder Recorder
}

func defaultOptions() options {
	return options{
		logger:   slog.Default(),
		ids:      UUIDv7Generator{},
		now:      time.Now,
		recorder: nopRecorder{},
	}
}

// Option configures a Controller.
type Option func(*options)

// WithLogger sets the logger. The controller adds its entity type.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithIDGenerator sets the cycle id generator.
func WithIDGenerator(ids IDGenerator) Option {
	return func(o *options) {
		if ids != nil {
			o.ids = ids
		}
	}
}

// WithClock sets the wall clock used for failure timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRecorder sets the activity recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}
