package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/daybook-app/daybook/internal/model"
	"github.com/daybook-app/daybook/internal/order"
	"github.com/daybook-app/daybook/internal/store"
)

// CheckResult holds the findings of an invariant sweep.
type CheckResult struct {
	Users      int      `json:"users"`
	Partitions int      `json:"partitions"`
	Violations []string `json:"violations,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <database-path>",
		Short: "Audit ordering and summary invariants of a database",
		Long: `Sweep every plan and task partition of the database and report
violations: non-dense sort orders and done_percent summaries that do not
match the underlying task counts.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args[0], cmd)
		},
	}
}

func runCheck(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer st.Close()

	result, err := sweep(cmd.Context(), st)
	if err != nil {
		return WrapExitError(ExitCommandError, "sweep database", err)
	}

	if len(result.Violations) > 0 {
		msg := fmt.Sprintf("%d violation(s) in %d partition(s)", len(result.Violations), result.Partitions)
		if opts.Format != "json" {
			for _, v := range result.Violations {
				fmt.Fprintln(cmd.OutOrStdout(), "violation:", v)
			}
		}
		return formatter.Failure(ExitFailure, result, msg)
	}
	return formatter.Success(result,
		fmt.Sprintf("ok: %d user(s), %d partition(s), no violations", result.Users, result.Partitions))
}

// sweep walks every (user, type) plan partition and every plan's task
// partition, collecting density and summary violations.
func sweep(ctx context.Context, st *store.Store) (*CheckResult, error) {
	db := st.DB()
	result := &CheckResult{}

	userIDs, err := st.Users.ListIDs(ctx, db)
	if err != nil {
		return nil, err
	}
	result.Users = len(userIDs)

	for _, userID := range userIDs {
		for _, t := range []model.PlanType{model.PlanTypeMain, model.PlanTypeArchived} {
			orders, err := st.Plans.SortOrders(ctx, db, userID, t)
			if err != nil {
				return nil, err
			}
			result.Partitions++
			if !order.Dense(orders) {
				result.Violations = append(result.Violations,
					fmt.Sprintf("plans of user %s type %s: orders %v not dense", userID, t, orders))
			}

			plans, err := st.Plans.ListByOwner(ctx, db, userID, t)
			if err != nil {
				return nil, err
			}
			for _, plan := range plans {
				taskOrders, err := st.Tasks.SortOrders(ctx, db, plan.ID)
				if err != nil {
					return nil, err
				}
				result.Partitions++
				if !order.Dense(taskOrders) {
					result.Violations = append(result.Violations,
						fmt.Sprintf("tasks of plan %s: orders %v not dense", plan.ID, taskOrders))
				}

				done, total, err := st.Tasks.CountDone(ctx, db, plan.ID)
				if err != nil {
					return nil, err
				}
				if want := fmt.Sprintf("%d/%d", done, total); plan.DonePercent != want {
					result.Violations = append(result.Violations,
						fmt.Sprintf("plan %s: done_percent %q, tasks say %q", plan.ID, plan.DonePercent, want))
				}
			}
		}
	}
	return result, nil
}
