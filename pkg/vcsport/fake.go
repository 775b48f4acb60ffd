package vcsport

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Port double used by pkg/scheduler's and
// pkg/mergeengine's tests. It models branches as commit oid strings and
// scripts conflicts/merge plans explicitly rather than running real Git, the
// same role the teacher's agentic_engine_interface_test.go fakes play for
// AgenticEngine.
type Fake struct {
	mu sync.Mutex

	Branches  map[string]string // branch name -> oid
	Worktrees map[string]string // path -> branch

	// Scripted responses, keyed by branch/slug so tests can arrange
	// deterministic outcomes per scenario.
	MergePreparations map[string]MergePreparation
	SquashPlans       map[string]SquashPlan
	CherryPickResults []CherryPickOutcome // consumed in order by ApplyCherryPickSequence

	ConflictedPaths []string
	Dirty           bool

	Root string

	NextOID int

	// AncestorOf[descendant] is the set of oids that are ancestors of
	// descendant, scripted by tests arranging IsAncestor scenarios.
	AncestorOf map[string]map[string]bool
}

// NewFake returns an empty Fake ready for test arrangement.
func NewFake() *Fake {
	return &Fake{
		Branches:          map[string]string{},
		Worktrees:         map[string]string{},
		MergePreparations: map[string]MergePreparation{},
		SquashPlans:       map[string]SquashPlan{},
		Root:              "/repo",
	}
}

func (f *Fake) nextOID() string {
	f.NextOID++
	return fmt.Sprintf("oid-%d", f.NextOID)
}

func (f *Fake) BranchExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.Branches[name]
	return ok, nil
}

func (f *Fake) PeelBranchToCommit(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	oid, ok := f.Branches[name]
	if !ok {
		return "", fmt.Errorf("unknown branch %q", name)
	}
	return oid, nil
}

func (f *Fake) EnsureCleanWorktree(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Dirty {
		return &DirtyError{Paths: []string{"dirty"}}
	}
	return nil
}

func (f *Fake) IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ancestor == descendant {
		return true, nil
	}
	return f.AncestorOf[descendant][ancestor], nil
}

func (f *Fake) PrepareMerge(ctx context.Context, branch string) (MergePreparation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if prep, ok := f.MergePreparations[branch]; ok {
		return prep, nil
	}
	return MergePreparation{Kind: MergeReady, HeadOID: f.Branches["HEAD"], SourceOID: f.Branches[branch], TreeOID: f.nextOID()}, nil
}

func (f *Fake) CommitReadyMerge(ctx context.Context, msg string, ready MergePreparation) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	oid := f.nextOID()
	f.Branches["HEAD"] = oid
	return oid, nil
}

func (f *Fake) CommitInProgressMerge(ctx context.Context, msg, head, source string) (string, error) {
	return f.CommitReadyMerge(ctx, msg, MergePreparation{})
}

func (f *Fake) BuildSquashPlan(ctx context.Context, branch string) (SquashPlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if plan, ok := f.SquashPlans[branch]; ok {
		return plan, nil
	}
	return SquashPlan{TargetHead: f.Branches["HEAD"], SourceTip: f.Branches[branch], InferredMainline: 1}, nil
}

func (f *Fake) ApplyCherryPickSequence(ctx context.Context, start string, commits []string, favor FileFavor, mainline int) (CherryPickOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.CherryPickResults) > 0 {
		out := f.CherryPickResults[0]
		f.CherryPickResults = f.CherryPickResults[1:]
		return out, nil
	}
	return CherryPickOutcome{Applied: commits}, nil
}

func (f *Fake) CommitSoftSquash(ctx context.Context, msg, base, expectedHead string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	oid := f.nextOID()
	f.Branches["HEAD"] = oid
	return oid, nil
}

func (f *Fake) CommitInProgressSquash(ctx context.Context, msg, head string) (string, error) {
	return f.CommitSoftSquash(ctx, msg, head, "")
}

func (f *Fake) CommitInProgressCherryPick(ctx context.Context, msg, expectedParent string) (string, error) {
	return f.CommitSoftSquash(ctx, msg, expectedParent, "")
}

func (f *Fake) ListConflictedPaths(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ConflictedPaths...), nil
}

func (f *Fake) Stage(ctx context.Context, paths []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(paths) == 0 {
		// "stage everything" only picks up already-resolved content; it
		// does not clear paths a test has scripted as still conflicted.
		return nil
	}
	remaining := f.ConflictedPaths[:0]
	staged := make(map[string]bool, len(paths))
	for _, p := range paths {
		staged[p] = true
	}
	for _, p := range f.ConflictedPaths {
		if !staged[p] {
			remaining = append(remaining, p)
		}
	}
	f.ConflictedPaths = remaining
	return nil
}

func (f *Fake) StagePathsAllowMissing(ctx context.Context, paths []string) error {
	return f.Stage(ctx, paths)
}

func (f *Fake) AmendHeadCommit(ctx context.Context, msg string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	oid := f.nextOID()
	f.Branches["HEAD"] = oid
	return oid, nil
}

func (f *Fake) RepoRoot(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Root, nil
}

func (f *Fake) WorktreeAdd(ctx context.Context, path, branch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Worktrees[path] = branch
	return nil
}

func (f *Fake) WorktreeRemove(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Worktrees[path]; !ok {
		return fmt.Errorf("worktree %q not registered", path)
	}
	delete(f.Worktrees, path)
	return nil
}

func (f *Fake) WorktreePrune(ctx context.Context) error {
	return nil
}

var _ Port = (*Fake)(nil)
