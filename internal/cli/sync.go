package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/replica/internal/engine"
	"github.com/roach88/replica/internal/entity"
	"github.com/roach88/replica/internal/reconcile"
	"github.com/roach88/replica/internal/tracker"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [type...]",
		Short: "Run one sync cycle per entity type",
		Long: `Run one sync cycle for each named entity type, or for every configured
type when none are named. Cycles of different types run concurrently.

Exits with status 1 when any cycle does not commit.

Example:
  replica sync
  replica sync users groups --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, args, cmd)
		},
	}

	return cmd
}

// cycleView is the JSON form of a CycleResult.
type cycleView struct {
	EntityType      entity.Type          `json:"entity_type"`
	CycleID         string               `json:"cycle_id"`
	Outcome         engine.Outcome       `json:"outcome"`
	Summary         reconcile.Summary    `json:"summary"`
	Fetched         int                  `json:"fetched"`
	Applied         int                  `json:"applied"`
	Failed          []tracker.FailedItem `json:"failed,omitempty"`
	Unresolved      []string             `json:"unresolved,omitempty"`
	WatermarkBefore *time.Time           `json:"watermark_before,omitempty"`
	WatermarkAfter  *time.Time           `json:"watermark_after,omitempty"`
	DurationMS      int64                `json:"duration_ms"`
	Error           string               `json:"error,omitempty"`
}

func newCycleView(r engine.CycleResult) cycleView {
	v := cycleView{
		EntityType: r.EntityType,
		CycleID:    r.CycleID,
		Outcome:    r.Outcome,
		Summary:    r.Summary,
		Fetched:    r.Fetched,
		Applied:    r.Applied,
		Failed:     r.Failed,
		Unresolved: r.Unresolved,
		DurationMS: r.Duration.Milliseconds(),
	}
	if !r.WatermarkBefore.IsZero() {
		v.WatermarkBefore = &r.WatermarkBefore
	}
	if !r.WatermarkAfter.IsZero() {
		v.WatermarkAfter = &r.WatermarkAfter
	}
	if r.Err != nil {
		v.Error = r.Err.Error()
	}
	return v
}

// syncReport is the JSON payload of the sync command.
type syncReport struct {
	Results   []cycleView `json:"results"`
	Committed int         `json:"committed"`
	Total     int         `json:"total"`
}

func runSync(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.newFormatter(cmd)

	types, err := entity.ParseTypes(args)
	if err != nil {
		return WrapExitError(ExitCommandError, ErrCodeUsage, "invalid entity types", err)
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	a, err := openApp(ctx, opts, cmd.ErrOrStderr(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, typ := range types {
		if _, err := a.controller(string(typ)); err != nil {
			return err
		}
	}

	if len(types) == 0 {
		types = a.types
	}
	formatter.VerboseLog("Syncing %d entity type(s) from %s remote", len(types), a.cfg.Remote.Kind)
	results, runErr := a.runner.Run(ctx, types...)

	return reportCycles(formatter, results, runErr)
}

// reportCycles prints cycle results and turns failed cycles into an exit
// error.
func reportCycles(formatter *OutputFormatter, results []engine.CycleResult, runErr error) error {
	committed := 0
	for _, r := range results {
		if r.OK() {
			committed++
		}
	}

	if formatter.IsJSON() {
		report := syncReport{
			Results:   make([]cycleView, len(results)),
			Committed: committed,
			Total:     len(results),
		}
		for i, r := range results {
			report.Results[i] = newCycleView(r)
		}
		if err := formatter.Success(report); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			fmt.Fprintln(formatter.Writer, r.String())
			for _, item := range r.Failed {
				fmt.Fprintf(formatter.Writer, "  failed: %s %s: %s\n", item.Operation, item.ID, item.Reason)
			}
		}
		fmt.Fprintf(formatter.Writer, "Synced %d of %d entity types\n", committed, len(results))
	}

	switch {
	case committed < len(results):
		code := ErrCodeSync
		if engine.IsNetworkError(runErr) {
			code = ErrCodeNetwork
		}
		return WrapExitError(ExitFailure, code,
			fmt.Sprintf("%d of %d cycles did not commit", len(results)-committed, len(results)), runErr)
	case runErr != nil:
		return WrapExitError(ExitFailure, ErrCodeSync, "sync finished with errors", runErr)
	}
	return nil
}
