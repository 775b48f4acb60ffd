package cliapp

import (
	"context"
	"errors"

	"github.com/jordan-tan/vizier/internal/vizerr"
	"github.com/jordan-tan/vizier/pkg/mergeengine"
)

// Merge runs `vizier merge <slug> <source> <target>` (spec §4.4.2): it
// drives the merge conflict engine directly rather than routing through the
// scheduler/job-record machinery, since the engine already persists its own
// resumable state under .vizier/tmp/merge-conflicts.
func (d *Deps) Merge(ctx context.Context, req mergeengine.Request) (mergeengine.Result, error) {
	eng := mergeengine.New(d.VCS, d.Backend, d.RepoRoot)
	res, err := eng.Run(ctx, req)
	if err != nil {
		return res, classifyMergeErr(req.Slug, err)
	}
	return res, nil
}

// CompleteConflict runs `vizier merge <slug> --complete-conflict
// <source> <target>` (spec §4.4.2 Resume): it resumes a pending merge after
// the operator has manually resolved the reported conflicts.
func (d *Deps) CompleteConflict(ctx context.Context, slug, source, target string) (mergeengine.Result, error) {
	eng := mergeengine.New(d.VCS, d.Backend, d.RepoRoot)
	res, err := eng.Resume(ctx, slug, source, target)
	if err != nil {
		return res, classifyMergeErr(slug, err)
	}
	return res, nil
}

func classifyMergeErr(slug string, err error) error {
	var stillBlocked *mergeengine.ErrStillBlocked
	if errors.As(err, &stillBlocked) {
		return vizerr.New(vizerr.KindConflictBlocked, err).WithPlan(slug).
			WithRemediation("resolve the remaining files, then rerun `vizier merge " + slug + " --complete-conflict`")
	}

	var pendingInvalid *mergeengine.ErrPendingMergeInvalid
	if errors.As(err, &pendingInvalid) {
		switch pendingInvalid.Reason {
		case mergeengine.ReasonNotInMerge:
			return vizerr.New(vizerr.KindPreconditions, err).WithPlan(slug).
				WithRemediation("rerun `vizier merge " + slug + "` without --complete-conflict to start a new merge")
		default:
			return vizerr.New(vizerr.KindPreconditions, err).WithPlan(slug).
				WithRemediation("checkout the original source/target branches, then rerun `vizier merge " + slug + " --complete-conflict`")
		}
	}

	return vizerr.New(vizerr.KindConflictBlocked, err).WithPlan(slug)
}
