package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/replica/internal/entity"
)

// Cycler is anything that runs sync cycles for one entity type.
// Implemented by Controller.
type Cycler interface {
	EntityType() entity.Type
	RunCycle(ctx context.Context) (CycleResult, error)
}

// Runner runs the cycles of several entity types concurrently.
//
// Cycles of different types are independent: one failing does not cancel
// the others.
type Runner struct {
	cyclers     []Cycler
	byType      map[entity.Type]Cycler
	concurrency int
	logger      *slog.Logger
}

// NewRunner creates a runner. concurrency bounds how many cycles run at
// once; zero or less means one per type.
func NewRunner(concurrency int, cyclers ...Cycler) (*Runner, error) {
	r := &Runner{
		byType:      make(map[entity.Type]Cycler, len(cyclers)),
		concurrency: concurrency,
		logger:      slog.Default(),
	}
	for _, c := range cyclers {
		typ := c.EntityType()
		if _, dup := r.byType[typ]; dup {
			return nil, fmt.Errorf("duplicate controller for entity type %q", typ)
		}
		r.byType[typ] = c
		r.cyclers = append(r.cyclers, c)
	}
	return r, nil
}

// WithLogger sets a custom logger for the runner.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	r.logger = logger
	return r
}

// Types returns the entity types in registration order.
func (r *Runner) Types() []entity.Type {
	types := make([]entity.Type, len(r.cyclers))
	for i, c := range r.cyclers {
		types[i] = c.EntityType()
	}
	return types
}

// Run runs one cycle for each of types, or for every registered type when
// none are given. Results come back in the order of types. The error joins
// the cycle errors of every cycle that returned one.
func (r *Runner) Run(ctx context.Context, types ...entity.Type) ([]CycleResult, error) {
	selected := r.cyclers
	if len(types) > 0 {
		selected = make([]Cycler, 0, len(types))
		for _, typ := range types {
			c, ok := r.byType[typ]
			if !ok {
				return nil, fmt.Errorf("no controller for entity type %q", typ)
			}
			selected = append(selected, c)
		}
	}

	start := time.Now()
	r.logger.Info("Starting sync run", "types", len(selected), "concurrency", r.concurrency)

	results := make([]CycleResult, len(selected))
	errs := make([]error, len(selected))

	var g errgroup.Group
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}
	for i, c := range selected {
		g.Go(func() error {
			results[i], errs[i] = c.RunCycle(ctx)
			return nil
		})
	}
	_ = g.Wait()

	committed := 0
	for _, res := range results {
		if res.OK() {
			committed++
		}
	}
	r.logger.Info("Sync run finished",
		"committed", committed,
		"total", len(results),
		"duration", time.Since(start),
	)

	return results, errors.Join(errs...)
}
