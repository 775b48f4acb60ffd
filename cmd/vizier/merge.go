package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jordan-tan/vizier/pkg/console"
	"github.com/jordan-tan/vizier/pkg/mergeengine"
)

func newMergeCommand() *cobra.Command {
	var squash bool
	var implementationMessage string
	var squashMainline int
	var completeConflict bool
	var strategy string

	cmd := &cobra.Command{
		Use:   "merge <slug> <source-branch> <target-branch>",
		Short: "Merge or squash-merge a plan branch into its target",
		Long: `Merge drives the merge conflict engine directly against source and
target branches, bypassing the job scheduler: the engine already persists
its own resumable state under .vizier/tmp/merge-conflicts/<slug>.json.

Use --complete-conflict to resume a merge left pending by conflicts, after
manually resolving and staging the reported files.

Examples:
  vizier merge refactor-auth plan/refactor-auth main
  vizier merge refactor-auth plan/refactor-auth main --complete-conflict`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			slug, source, target := args[0], args[1], args[2]
			deps, err := resolveDeps()
			if err != nil {
				return err
			}

			if completeConflict {
				res, err := deps.CompleteConflict(cmd.Context(), slug, source, target)
				if err != nil {
					return err
				}
				reportMerge(cmd, res)
				return nil
			}

			req := mergeengine.Request{
				Slug:                  slug,
				SourceBranch:          source,
				TargetBranch:          target,
				Squash:                squash,
				ImplementationMessage: implementationMessage,
				Strategy:              mergeengine.ConflictStrategy(strategy),
			}
			if squashMainline > 0 {
				req.SquashMainline = &squashMainline
			}
			res, err := deps.Merge(cmd.Context(), req)
			if err != nil {
				return err
			}
			reportMerge(cmd, res)
			return nil
		},
	}

	cmd.Flags().BoolVar(&squash, "squash", false, "Squash the source branch into a single commit before merging")
	cmd.Flags().StringVar(&implementationMessage, "message", "", "Commit message for a squash merge")
	cmd.Flags().IntVar(&squashMainline, "mainline", 0, "Mainline parent number, required when the squash plan reports merge commits in source history")
	cmd.Flags().StringVar(&strategy, "strategy", string(mergeengine.StrategyManual), "Conflict resolution strategy: manual or agent")
	cmd.Flags().BoolVar(&completeConflict, "complete-conflict", false, "Resume a merge left pending by conflicts")
	return cmd
}

func reportMerge(cmd *cobra.Command, res mergeengine.Result) {
	out := cmd.OutOrStdout()
	switch {
	case res.AlreadyMerged:
		fmt.Fprintln(out, console.FormatSuccessMessage("target already contains source; nothing to merge"))
	case res.Pending != nil:
		fmt.Fprintln(out, console.FormatWarningMessage("merge blocked on conflicts"))
		fmt.Fprintln(out, console.FormatCommandMessage(res.ResumeCommand))
	default:
		fmt.Fprintln(out, console.FormatSuccessMessage(fmt.Sprintf("merged: %s", res.Committed)))
	}
}
