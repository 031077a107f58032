package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/replica/internal/engine"
	"github.com/roach88/replica/internal/entity"
	"github.com/roach88/replica/internal/reconcile"
)

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <type>",
		Short: "Show what the next sync cycle would change",
		Long: `Fetch and reconcile one entity type without writing anything, and print
the operations the next cycle would apply.

Example:
  replica plan users
  replica plan users --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

// operationView is the JSON form of one planned operation.
type operationView struct {
	Kind        reconcile.Kind `json:"kind"`
	ID          string         `json:"id"`
	LocalKey    int64          `json:"local_key,omitempty"`
	LastUpdated time.Time      `json:"last_updated"`
}

// planView is the JSON payload of the plan command.
type planView struct {
	EntityType entity.Type       `json:"entity_type"`
	Operations []operationView   `json:"operations"`
	Summary    reconcile.Summary `json:"summary"`
}

func runPlan(opts *RootOptions, typeName string, cmd *cobra.Command) error {
	formatter := opts.newFormatter(cmd)

	ctx, cancel := signalContext(cmd)
	defer cancel()

	a, err := openApp(ctx, opts, cmd.ErrOrStderr(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ctrl, err := a.controller(typeName)
	if err != nil {
		return err
	}

	plan, err := ctrl.Plan(ctx)
	if err != nil {
		code := ErrCodeSync
		if engine.IsNetworkError(err) {
			code = ErrCodeNetwork
		}
		return WrapExitError(ExitFailure, code, fmt.Sprintf("failed to plan %s", typeName), err)
	}

	if formatter.IsJSON() {
		view := planView{
			EntityType: ctrl.EntityType(),
			Operations: make([]operationView, len(plan.Operations)),
			Summary:    plan.Summary,
		}
		for i, op := range plan.Operations {
			view.Operations[i] = operationView{
				Kind:        op.Kind,
				ID:          op.ID(),
				LocalKey:    op.LocalKey,
				LastUpdated: op.Entity.LastUpdated(),
			}
		}
		return formatter.Success(view)
	}

	for _, op := range plan.Operations {
		fmt.Fprintln(formatter.Writer, op.Describe())
	}
	fmt.Fprintln(formatter.Writer, plan.Summary.String())
	return nil
}
