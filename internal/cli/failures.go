package cli

import (
	"fmt"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/replica/internal/entity"
	"github.com/roach88/replica/internal/tracker"
)

// NewFailuresCommand creates the failures command group.
func NewFailuresCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failures",
		Short: "Inspect and clear the failed item ledger",
		Long: `Items whose operation failed during a cycle are recorded in the failed
item ledger and retried on the next cycle. These commands list and clear
ledger entries.`,
	}

	cmd.AddCommand(newFailuresListCommand(rootOpts))
	cmd.AddCommand(newFailuresClearCommand(rootOpts))

	return cmd
}

func newFailuresListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list [type]",
		Short: "List failed items, optionally for one entity type",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var typ entity.Type
			if len(args) == 1 {
				typ = entity.Type(args[0])
				if err := typ.Validate(); err != nil {
					return WrapExitError(ExitCommandError, ErrCodeUsage, "invalid entity type", err)
				}
			}
			return runFailuresList(rootOpts, typ, cmd)
		},
	}
}

type failuresClearOptions struct {
	*RootOptions
	All bool
}

func newFailuresClearCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &failuresClearOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "clear <type> [id]",
		Short: "Remove failed items from the ledger",
		Long: `Remove one failed item, or every failed item of a type with --all.
A cleared item is no longer retried from its recorded payload.

Example:
  replica failures clear users u-42
  replica failures clear users --all`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFailuresClear(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "clear every failed item of the type")

	return cmd
}

// failedView is the JSON form of a ledger entry.
type failedView struct {
	EntityType entity.Type `json:"entity_type"`
	ID         string      `json:"id"`
	Operation  string      `json:"operation"`
	Reason     string      `json:"reason"`
	FailedAt   time.Time   `json:"failed_at"`
	CycleID    string      `json:"cycle_id"`
	Attempts   int         `json:"attempts"`
}

func runFailuresList(opts *RootOptions, typ entity.Type, cmd *cobra.Command) error {
	formatter := opts.newFormatter(cmd)

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	st, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	items, err := st.ListFailures(cmd.Context(), typ)
	if err != nil {
		return WrapExitError(ExitCommandError, ErrCodeStore, "failed to list failures", err)
	}

	if formatter.IsJSON() {
		views := make([]failedView, len(items))
		for i, item := range items {
			views[i] = failedView{
				EntityType: item.EntityType,
				ID:         item.ID,
				Operation:  item.Operation.String(),
				Reason:     item.Reason,
				FailedAt:   item.FailedAt,
				CycleID:    item.CycleID,
				Attempts:   item.Attempts,
			}
		}
		return formatter.Success(views)
	}

	if len(items) == 0 {
		fmt.Fprintln(formatter.Writer, "No failed items")
		return nil
	}

	w := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tID\tOPERATION\tATTEMPTS\tFAILED_AT\tREASON")
	for _, item := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			item.EntityType, item.ID, item.Operation, item.Attempts,
			item.FailedAt.UTC().Format(time.RFC3339), item.Reason)
	}
	return w.Flush()
}

func runFailuresClear(opts *failuresClearOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.newFormatter(cmd)

	typ := entity.Type(args[0])
	if err := typ.Validate(); err != nil {
		return WrapExitError(ExitCommandError, ErrCodeUsage, "invalid entity type", err)
	}
	switch {
	case opts.All && len(args) == 2:
		return NewExitError(ExitCommandError, ErrCodeUsage, "give either an id or --all, not both")
	case !opts.All && len(args) == 1:
		return NewExitError(ExitCommandError, ErrCodeUsage, "give an id to clear, or --all")
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	st, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	var cleared int64
	if opts.All {
		cleared, err = st.ClearFailures(cmd.Context(), typ)
		if err != nil {
			return WrapExitError(ExitCommandError, ErrCodeStore, "failed to clear failures", err)
		}
	} else {
		items, err := st.ListFailures(cmd.Context(), typ)
		if err != nil {
			return WrapExitError(ExitCommandError, ErrCodeStore, "failed to list failures", err)
		}
		if !slices.ContainsFunc(items, func(item tracker.FailedItem) bool { return item.ID == args[1] }) {
			return NewExitError(ExitFailure, ErrCodeUsage, fmt.Sprintf("no failed item %s/%s", typ, args[1]))
		}
		if err := st.ClearFailure(cmd.Context(), typ, args[1]); err != nil {
			return WrapExitError(ExitCommandError, ErrCodeStore, "failed to clear failure", err)
		}
		cleared = 1
	}

	if formatter.IsJSON() {
		return formatter.Success(map[string]any{"entity_type": typ, "cleared": cleared})
	}
	if opts.All {
		fmt.Fprintf(formatter.Writer, "Cleared %d failed item(s) of %s\n", cleared, typ)
	} else {
		fmt.Fprintf(formatter.Writer, "Cleared failed item %s/%s\n", typ, args[1])
	}
	return nil
}
