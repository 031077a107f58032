package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/replica/internal/entity"
	"github.com/roach88/replica/internal/store"
	"github.com/roach88/replica/internal/tracker"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show watermarks, row counts and pending items per entity type",
		Long: `Show the local replica state of every configured entity type: the
watermark, the number of replicated rows and the newest lastUpdated
among them, the items whose last operation did not complete, and the
failed items awaiting retry. JSON output also carries a fingerprint of
the replicated rows; two replicas with equal fingerprints hold the
same entities.

Reads the local database only; the remote is not contacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}

	return cmd
}

// typeStatus is the status of one entity type.
type typeStatus struct {
	EntityType  entity.Type `json:"entity_type"`
	Rows        int         `json:"rows"`
	Newest      *time.Time  `json:"newest,omitempty"`
	Fingerprint string      `json:"fingerprint,omitempty"`
	Watermark   *time.Time  `json:"watermark,omitempty"`
	Pending     int         `json:"pending"`
	Errors      int         `json:"errors"`
	Failures    int         `json:"failures"`
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.newFormatter(cmd)

	ctx, cancel := signalContext(cmd)
	defer cancel()

	a, err := openApp(ctx, opts, cmd.ErrOrStderr(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	statuses := make([]typeStatus, 0, len(a.types))
	for _, typ := range a.types {
		st, err := collectStatus(ctx, a.store, typ)
		if err != nil {
			return WrapExitError(ExitCommandError, ErrCodeStore, fmt.Sprintf("failed to read status of %s", typ), err)
		}
		statuses = append(statuses, st)
	}

	if formatter.IsJSON() {
		return formatter.Success(statuses)
	}

	w := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tROWS\tWATERMARK\tNEWEST\tPENDING\tERRORS\tFAILURES")
	for _, st := range statuses {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%d\t%d\n",
			st.EntityType, st.Rows, formatTime(st.Watermark, "unset"), formatTime(st.Newest, "-"),
			st.Pending, st.Errors, st.Failures)
	}
	return w.Flush()
}

func formatTime(t *time.Time, empty string) string {
	if t == nil {
		return empty
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func collectStatus(ctx context.Context, s *store.Store, typ entity.Type) (typeStatus, error) {
	st := typeStatus{EntityType: typ}

	stats, err := s.Stats(ctx, typ)
	if err != nil {
		return st, err
	}
	st.Rows = stats.Rows
	st.Fingerprint = stats.Fingerprint
	if !stats.Newest.IsZero() {
		st.Newest = &stats.Newest
	}

	watermark, err := s.GetWatermark(ctx, typ)
	if err != nil {
		return st, err
	}
	if !watermark.IsZero() {
		st.Watermark = &watermark
	}

	states, err := s.ListStates(ctx, typ)
	if err != nil {
		return st, err
	}
	for _, rec := range states {
		switch rec.State {
		case tracker.StateSynced:
		case tracker.StateError:
			st.Errors++
		default:
			st.Pending++
		}
	}

	failures, err := s.ListFailures(ctx, typ)
	if err != nil {
		return st, err
	}
	st.Failures = len(failures)

	return st, nil
}
