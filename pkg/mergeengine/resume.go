package mergeengine

import (
	"context"
	"fmt"

	"github.com/jordan-tan/vizier/pkg/vcsport"
)

// PendingMergeReason classifies why a persisted state can't be resumed
// (spec §4.4.2 Resume steps 1-2): wrong branch or no longer mid-merge.
// Unresolved conflicts are reported separately through ErrStillBlocked.
type PendingMergeReason string

const (
	ReasonWrongBranch PendingMergeReason = "wrong_branch"
	ReasonNotInMerge  PendingMergeReason = "not_in_merge"
)

// ErrPendingMergeInvalid reports that a persisted conflict state can't be
// resumed as-is: either it was recorded against different branches than
// requested (ReasonWrongBranch), or the repository has moved past the
// replay's expected position (ReasonNotInMerge). Both cases drop the stale
// state rather than attempting a replay (spec §4.4.2 Resume steps 1-2).
type ErrPendingMergeInvalid struct {
	Slug   string
	Reason PendingMergeReason
}

func (e *ErrPendingMergeInvalid) Error() string {
	switch e.Reason {
	case ReasonNotInMerge:
		return fmt.Sprintf("vizier has merge metadata for plan %s but the repository is no longer mid-merge; rerun `vizier merge %s` (without --complete-conflict) to start a new merge if needed", e.Slug, e.Slug)
	default:
		return fmt.Sprintf("pending vizier merge for plan %s is tied to a different branch pairing; checkout the original branches and rerun `%s` to finalize the conflict resolution", e.Slug, resumeCommand(e.Slug))
	}
}

// ErrStillBlocked reports that conflicts remain after staging; the caller
// should surface the listed paths and the resume command again (spec
// §4.4.2 Resume step 3).
type ErrStillBlocked struct {
	Slug  string
	Files []string
}

func (e *ErrStillBlocked) Error() string {
	if len(e.Files) == 0 {
		return fmt.Sprintf("merge conflicts for plan %s are still unresolved; fix them, stage the results, then rerun `%s`", e.Slug, resumeCommand(e.Slug))
	}
	preview := e.Files
	more := ""
	if len(preview) > 3 {
		more = fmt.Sprintf(" (+%d more)", len(preview)-3)
		preview = preview[:3]
	}
	return fmt.Sprintf("merge conflicts for plan %s remain (%s%s); resolve and stage them, then rerun `%s`", e.Slug, joinComma(preview), more, resumeCommand(e.Slug))
}

func joinComma(items []string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += ", "
		}
		out += it
	}
	return out
}

// Resume drives spec §4.4.2's "--complete-conflict" resume path: load state,
// validate it against the requested branches and current HEAD, stage
// resolutions, commit the in-progress step, then continue the cherry-pick
// replay (squash) or finalize directly (merge).
func (e *Engine) Resume(ctx context.Context, slug, requestedSource, requestedTarget string) (Result, error) {
	state, err := Load(e.RepoRoot, slug)
	if err != nil {
		return Result{}, err
	}

	if state.SourceBranch != requestedSource || state.TargetBranch != requestedTarget {
		_ = Clear(e.RepoRoot, slug)
		return Result{}, &ErrPendingMergeInvalid{Slug: slug, Reason: ReasonWrongBranch}
	}

	currentHead, err := e.VCS.PeelBranchToCommit(ctx, "HEAD")
	if err != nil {
		return Result{}, fmt.Errorf("mergeengine: resolving current HEAD: %w", err)
	}
	expectedHead := expectedReplayHead(state)
	if currentHead != expectedHead {
		_ = Clear(e.RepoRoot, slug)
		return Result{}, &ErrPendingMergeInvalid{Slug: slug, Reason: ReasonNotInMerge}
	}

	if err := e.VCS.Stage(ctx, nil); err != nil {
		return Result{}, fmt.Errorf("mergeengine: staging resolved files: %w", err)
	}
	remaining, err := e.VCS.ListConflictedPaths(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("mergeengine: list_conflicted_paths: %w", err)
	}
	if len(remaining) > 0 {
		return Result{Pending: state, ResumeCommand: resumeCommand(slug)}, &ErrStillBlocked{Slug: slug, Files: remaining}
	}

	if state.Squash {
		return e.resumeSquash(ctx, state)
	}
	return e.resumeMerge(ctx, state)
}

// expectedReplayHead is the oid the repository's HEAD should be sitting at
// given the replay's progress so far (spec §4.4.2 Resume step 2).
func expectedReplayHead(state *ConflictState) string {
	if state.Replay == nil {
		return state.HeadOID
	}
	if n := len(state.Replay.AppliedCommits); n > 0 {
		return state.Replay.AppliedCommits[n-1]
	}
	return state.Replay.StartOID
}

func (e *Engine) resumeMerge(ctx context.Context, state *ConflictState) (Result, error) {
	oid, err := e.finalizeConflictFree(ctx, state)
	if err != nil {
		return Result{}, err
	}
	return Result{Committed: oid}, nil
}

func (e *Engine) resumeSquash(ctx context.Context, state *ConflictState) (Result, error) {
	mainline := 0
	if state.Replay.SquashMainline != nil {
		mainline = *state.Replay.SquashMainline
	}

	// Commit the in-progress cherry-pick step before continuing the
	// sequence (spec §4.4.2 Resume step 4).
	lastApplied := ""
	if n := len(state.Replay.AppliedCommits); n > 0 {
		lastApplied = state.Replay.AppliedCommits[n-1]
	} else {
		lastApplied = state.Replay.StartOID
	}
	commitOID, err := e.VCS.CommitInProgressCherryPick(ctx, "", lastApplied)
	if err != nil {
		return Result{}, fmt.Errorf("mergeengine: commit_in_progress_cherry_pick: %w", err)
	}
	state.Replay.AppliedCommits = append(state.Replay.AppliedCommits, commitOID)

	remainingCommits := remainingAfter(state.Replay.SourceCommits, state.Replay.AppliedCommits)
	if len(remainingCommits) > 0 {
		outcome, err := e.VCS.ApplyCherryPickSequence(ctx, commitOID, remainingCommits, vcsport.FavorOurs, mainline)
		if err != nil {
			return Result{}, fmt.Errorf("mergeengine: apply_cherry_pick_sequence (resume): %w", err)
		}
		state.Replay.AppliedCommits = append(state.Replay.AppliedCommits, outcome.Applied...)
		if outcome.Conflicted {
			if err := Save(e.RepoRoot, state); err != nil {
				return Result{}, err
			}
			return Result{Pending: state, ResumeCommand: resumeCommand(state.Slug)}, &ErrStillBlocked{Slug: state.Slug, Files: outcome.Files}
		}
	}

	oid, err := e.VCS.CommitSoftSquash(ctx, state.ImplementationMessage, state.Replay.MergeBaseOID, "")
	if err != nil {
		return Result{}, fmt.Errorf("mergeengine: commit_soft_squash: %w", err)
	}
	if err := Clear(e.RepoRoot, state.Slug); err != nil {
		return Result{}, err
	}
	return Result{Committed: oid}, nil
}

func remainingAfter(all, applied []string) []string {
	appliedSet := make(map[string]bool, len(applied))
	for _, oid := range applied {
		appliedSet[oid] = true
	}
	var remaining []string
	for _, oid := range all {
		if !appliedSet[oid] {
			remaining = append(remaining, oid)
		}
	}
	return remaining
}
