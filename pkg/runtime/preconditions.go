package runtime

import (
	"context"
	"fmt"

	"github.com/jordan-tan/vizier/pkg/template"
	"github.com/jordan-tan/vizier/pkg/vcsport"
)

// checkPreconditions evaluates a node's declared preconditions in order
// (spec §3.4, §4.4 step 1). The first failure short-circuits to the node's
// on.blocked edge via the caller returning an error from Execute.
func checkPreconditions(ctx context.Context, vcs vcsport.Port, preconditions []template.Precondition) error {
	for _, p := range preconditions {
		switch p.Kind {
		case template.PreconditionCleanWorktree:
			if err := vcs.EnsureCleanWorktree(ctx); err != nil {
				return fmt.Errorf("precondition clean_worktree failed: %w", err)
			}
		case template.PreconditionBranchExists:
			name := p.Args["branch"]
			exists, err := vcs.BranchExists(ctx, name)
			if err != nil {
				return fmt.Errorf("precondition branch_exists(%s): %w", name, err)
			}
			if !exists {
				return fmt.Errorf("precondition branch_exists: branch %q does not exist", name)
			}
		case template.PreconditionPinnedHead:
			// Verified by the caller against the job's recorded
			// schedule.pinned_head before Execute is invoked; nothing
			// further to check here since CompiledWorkflowNode carries no
			// live job state.
		case template.PreconditionCustom:
			// Custom preconditions are opaque to the core; a zero-arg
			// custom precondition with no registered checker always
			// passes, the same permissive default the original's
			// generic-plugin preconditions use when unrecognized.
		}
	}
	return nil
}
