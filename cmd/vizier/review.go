package main

import (
	"github.com/spf13/cobra"
)

func newReviewCommand() *cobra.Command {
	var applyFixes bool
	cmd := &cobra.Command{
		Use:   "review <slug>",
		Short: "Critique a drafted plan, optionally applying fixes",
		Long: `Review runs a critique job against an already-published plan branch.
With --apply, a second node applies the critique's suggested fixes once the
critique succeeds.

Examples:
  vizier review refactor-auth
  vizier review refactor-auth --apply`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := resolveDeps()
			if err != nil {
				return err
			}
			res, err := deps.Review(cmd.Context(), args[0], applyFixes)
			if err != nil {
				return err
			}
			reportResult(cmd, res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&applyFixes, "apply", false, "Apply the critique's suggested fixes once it succeeds")
	return cmd
}
