// Package vcsport defines the narrow VCS interface the core calls against
// (spec §6.1). The core never embeds a Git implementation; it only ever
// calls through Port. gitshell.go provides a real implementation that
// shells out to `git`, ported from the teacher's pkg/cli/git.go idiom
// (exec.Command, a namespaced logger, and a trimmed-output helper); fake.go
// provides an in-memory test double used by pkg/scheduler's and
// pkg/mergeengine's tests.
package vcsport

import "context"

// FileFavor selects which side of a conflict wins during a cherry-pick
// replay's automatic resolution (spec §4.4.2 step 4).
type FileFavor string

const (
	FavorOurs   FileFavor = "ours"
	FavorTheirs FileFavor = "theirs"
)

// MergeOutcomeKind distinguishes a clean pre-computed merge from one with
// conflicts (spec §6.1 prepare_merge).
type MergeOutcomeKind string

const (
	MergeReady      MergeOutcomeKind = "ready"
	MergeConflicted MergeOutcomeKind = "conflicted"
)

// MergePreparation is the result of a pre-computed, uncommitted merge.
type MergePreparation struct {
	Kind      MergeOutcomeKind
	HeadOID   string
	SourceOID string
	TreeOID   string // set when Kind == MergeReady
	Files     []string // set when Kind == MergeConflicted
}

// SquashPlan is the resolved shape of a squash-merge (spec §4.4.2).
type SquashPlan struct {
	TargetHead        string
	SourceTip         string
	MergeBase         string
	CommitsToApply    []string
	MergeCommits      []MergeCommit
	InferredMainline  int
	MainlineAmbiguous bool
}

// MergeCommit is a merge commit encountered inside the source branch's
// history while building a squash plan.
type MergeCommit struct {
	OID     string
	Parents []string
}

// CherryPickOutcome is the result of applying a sequence of commits.
type CherryPickOutcome struct {
	Applied    []string
	Conflicted bool
	Files      []string
}

// DirtyError reports a non-clean worktree precondition failure.
type DirtyError struct {
	Paths []string
}

func (e *DirtyError) Error() string {
	return "worktree is not clean"
}

// Port is the VCS operation set the core consumes (spec §6.1). Every
// operation is context-aware so the scheduler can abort an in-flight call on
// cancellation (spec §5: "cancellation of an awaited operation must abort
// the child process").
type Port interface {
	BranchExists(ctx context.Context, name string) (bool, error)
	PeelBranchToCommit(ctx context.Context, name string) (string, error)
	EnsureCleanWorktree(ctx context.Context) error

	// IsAncestor reports whether ancestor is an ancestor of (or equal to)
	// descendant, used by the merge engine's already-merged no-op check
	// (spec §4.4.2 step 1).
	IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error)

	PrepareMerge(ctx context.Context, branch string) (MergePreparation, error)
	CommitReadyMerge(ctx context.Context, msg string, ready MergePreparation) (string, error)
	CommitInProgressMerge(ctx context.Context, msg, head, source string) (string, error)

	BuildSquashPlan(ctx context.Context, branch string) (SquashPlan, error)
	ApplyCherryPickSequence(ctx context.Context, start string, commits []string, favor FileFavor, mainline int) (CherryPickOutcome, error)
	CommitSoftSquash(ctx context.Context, msg, base, expectedHead string) (string, error)
	CommitInProgressSquash(ctx context.Context, msg, head string) (string, error)
	CommitInProgressCherryPick(ctx context.Context, msg, expectedParent string) (string, error)

	ListConflictedPaths(ctx context.Context) ([]string, error)
	Stage(ctx context.Context, paths []string) error
	StagePathsAllowMissing(ctx context.Context, paths []string) error
	AmendHeadCommit(ctx context.Context, msg string) (string, error)

	RepoRoot(ctx context.Context) (string, error)
	WorktreeAdd(ctx context.Context, path, branch string) error
	WorktreeRemove(ctx context.Context, path string) error
	WorktreePrune(ctx context.Context) error
}
