package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jordan-tan/vizier/internal/cliapp"
	"github.com/jordan-tan/vizier/pkg/console"
)

func newSaveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "save <message>",
		Short: "Capture the current worktree as a patch artifact",
		Long: `Save runs a single job that snapshots the current worktree into a
durable patch artifact under an exclusive worktree lock, so concurrent
saves serialize rather than race.

Examples:
  vizier save "wip: checkpoint before refactor"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := resolveDeps()
			if err != nil {
				return err
			}
			res, err := deps.Save(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			reportResult(cmd, res)
			return nil
		},
	}
}

func reportResult(cmd *cobra.Command, res cliapp.CommandResult) {
	for _, id := range res.JobIDs {
		fmt.Fprintln(cmd.OutOrStdout(), console.FormatCommandMessage(id))
	}
	fmt.Fprintln(cmd.OutOrStdout(), console.FormatInfoMessage(fmt.Sprintf("final status: %s", res.LastStatus)))
}
