package main

import (
	"github.com/spf13/cobra"
)

func newDraftCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "draft <slug> <prompt>",
		Short: "Generate a plan branch/doc/commit range for a slug",
		Long: `Draft runs a single agent job that publishes a plan branch, a plan
doc artifact, and a commit-range artifact for the given slug, held under an
exclusive per-slug lock so two drafts for the same slug never interleave.

Examples:
  vizier draft refactor-auth "move session handling behind an interface"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := resolveDeps()
			if err != nil {
				return err
			}
			res, err := deps.Draft(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			reportResult(cmd, res)
			return nil
		},
	}
}
