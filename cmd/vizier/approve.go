package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jordan-tan/vizier/pkg/console"
	"github.com/jordan-tan/vizier/pkg/runtime"
)

func newApproveCommand() *cobra.Command {
	var stopCondition string
	var retryBudget uint32
	cmd := &cobra.Command{
		Use:   "approve <slug>",
		Short: "Apply a drafted plan once, retrying against a stop-condition script",
		Long: `Approve applies the plan branch once, then retries against a
stop-condition script until it passes or the retry budget is exhausted.
Each retry creates its own job record, so ` + "`jobs list`" + ` shows every
individual attempt.

Examples:
  vizier approve refactor-auth --stop-condition ./scripts/check.sh --retry-budget 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := resolveDeps()
			if err != nil {
				return err
			}
			report, err := deps.Approve(cmd.Context(), args[0], stopCondition, retryBudget)
			if err != nil {
				return err
			}
			reportApprove(cmd, report)
			return nil
		},
	}
	cmd.Flags().StringVar(&stopCondition, "stop-condition", "", "Path to the stop-condition script the retry loop gates on")
	cmd.Flags().Uint32Var(&retryBudget, "retry-budget", 0, "Number of retries against the stop condition (0 disables retrying)")
	_ = cmd.MarkFlagRequired("stop-condition")
	return cmd
}

func reportApprove(cmd *cobra.Command, report runtime.ApproveStopConditionReport) {
	for i, attempt := range report.Attempts {
		fmt.Fprintln(cmd.OutOrStdout(), console.FormatListItem(
			fmt.Sprintf("attempt %d: %s (exit %d)", i+1, attempt.Status, attempt.ExitCode)))
	}
	fmt.Fprintln(cmd.OutOrStdout(), console.FormatInfoMessage(fmt.Sprintf("%d attempt(s) recorded", report.Count())))
}
