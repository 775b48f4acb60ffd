package mergeengine

import (
	"context"
	"fmt"

	"github.com/jordan-tan/vizier/pkg/backendport"
	"github.com/jordan-tan/vizier/pkg/template"
	"github.com/jordan-tan/vizier/pkg/vcsport"
)

// ConflictStrategy controls how a conflicted merge is handled (spec §4.4.2
// "Policies").
type ConflictStrategy string

const (
	StrategyManual ConflictStrategy = "manual"
	StrategyAgent  ConflictStrategy = "agent"
)

// Request parameterizes one merge or squash-merge attempt.
type Request struct {
	Slug         string
	SourceBranch string
	TargetBranch string
	MergeMessage string

	Squash                bool
	ImplementationMessage string
	// SquashMainline is required when the squash plan reports merge commits
	// inside the source history (spec §4.4.2 "Squash path").
	SquashMainline *int

	Strategy ConflictStrategy

	// ConflictResolutionNode, when non-nil, is the template's
	// GateConflictResolution node; its auto_resolve flag and on.succeeded
	// edge back to the integrate node gate whether the Agent strategy may
	// run (spec §4.4.2 "conflict_strategy = Agent").
	ConflictResolutionNode *template.Node
	IntegrateNodeID        string
}

// Result reports the outcome of a merge attempt.
type Result struct {
	// AlreadyMerged is true when target already contains source (spec
	// §4.4.2 step 1): the job succeeds with no commit made.
	AlreadyMerged bool

	// Committed is the resulting commit oid, set when the merge/squash
	// completed without being left in a pending conflict state.
	Committed string

	// Pending is set when the attempt is blocked on unresolved conflicts;
	// its ConflictState has already been persisted to disk.
	Pending *ConflictState

	// ResumeCommand is the exact command the operator should run to resume
	// a pending merge (spec §4.4.2 "exact resume command").
	ResumeCommand string
}

// Engine drives the merge conflict state machine against a VCS port and,
// for the Agent strategy, a backend runner (spec §4.4.2).
type Engine struct {
	VCS      vcsport.Port
	Backend  backendport.Runner
	RepoRoot string
}

// New returns an Engine wired to vcs/backend, rooted at repoRoot (used to
// locate the conflict-state directory).
func New(vcs vcsport.Port, backend backendport.Runner, repoRoot string) *Engine {
	return &Engine{VCS: vcs, Backend: backend, RepoRoot: repoRoot}
}

func resumeCommand(slug string) string {
	return fmt.Sprintf("vizier merge %s --complete-conflict", slug)
}

// Run executes one merge or squash-merge attempt end to end (spec §4.4.2
// "Merge preparation" through "Apply sequence").
func (e *Engine) Run(ctx context.Context, req Request) (Result, error) {
	if err := e.VCS.EnsureCleanWorktree(ctx); err != nil {
		return Result{}, fmt.Errorf("mergeengine: %w", err)
	}

	sourceOID, err := e.VCS.PeelBranchToCommit(ctx, req.SourceBranch)
	if err != nil {
		return Result{}, fmt.Errorf("mergeengine: resolving source branch %s: %w", req.SourceBranch, err)
	}
	targetOID, err := e.VCS.PeelBranchToCommit(ctx, req.TargetBranch)
	if err != nil {
		return Result{}, fmt.Errorf("mergeengine: resolving target branch %s: %w", req.TargetBranch, err)
	}

	already, err := e.VCS.IsAncestor(ctx, sourceOID, targetOID)
	if err != nil {
		return Result{}, fmt.Errorf("mergeengine: ancestry check: %w", err)
	}
	if already {
		return Result{AlreadyMerged: true}, nil
	}

	if req.Squash {
		return e.runSquash(ctx, req, targetOID, sourceOID)
	}
	return e.runMerge(ctx, req, targetOID, sourceOID)
}

func (e *Engine) runMerge(ctx context.Context, req Request, targetOID, sourceOID string) (Result, error) {
	prep, err := e.VCS.PrepareMerge(ctx, req.SourceBranch)
	if err != nil {
		return Result{}, fmt.Errorf("mergeengine: prepare_merge: %w", err)
	}

	if prep.Kind == vcsport.MergeReady {
		oid, err := e.VCS.CommitReadyMerge(ctx, req.MergeMessage, prep)
		if err != nil {
			return Result{}, fmt.Errorf("mergeengine: commit_ready_merge: %w", err)
		}
		return Result{Committed: oid}, nil
	}

	state := &ConflictState{
		Slug:         req.Slug,
		SourceBranch: req.SourceBranch,
		TargetBranch: req.TargetBranch,
		HeadOID:      prep.HeadOID,
		SourceOID:    prep.SourceOID,
		MergeMessage: req.MergeMessage,
		Squash:       false,
	}
	return e.enterConflictResolution(ctx, req, state, prep.Files)
}

// ValidateSquashMainline enforces the squash-merge mainline rules (spec
// §4.4.2 "Squash path"): any in-source merge commit with more than two
// parents is refused outright, and any merge commit requires an explicit
// 1-based squashMainline that indexes one of its parents. It returns the
// resolved mainline, 0 when the plan contains no merge commits.
func ValidateSquashMainline(commits []vcsport.MergeCommit, squashMainline *int) (int, error) {
	if len(commits) == 0 {
		return 0, nil
	}
	for _, mc := range commits {
		if len(mc.Parents) > 2 {
			return 0, fmt.Errorf("mergeengine: octopus merge commit %s (%d parents) is refused", mc.OID, len(mc.Parents))
		}
	}
	if squashMainline == nil {
		return 0, fmt.Errorf("mergeengine: source history contains merge commits; an explicit squash_mainline is required")
	}
	mainline := *squashMainline
	for _, mc := range commits {
		if mainline < 1 || mainline > len(mc.Parents) {
			return 0, fmt.Errorf("mergeengine: squash_mainline %d does not index a parent of merge commit %s (%d parents)", mainline, mc.OID, len(mc.Parents))
		}
	}
	return mainline, nil
}

func (e *Engine) runSquash(ctx context.Context, req Request, targetOID, sourceOID string) (Result, error) {
	plan, err := e.VCS.BuildSquashPlan(ctx, req.SourceBranch)
	if err != nil {
		return Result{}, fmt.Errorf("mergeengine: build_squash_plan: %w", err)
	}

	mainline, err := ValidateSquashMainline(plan.MergeCommits, req.SquashMainline)
	if err != nil {
		return Result{}, err
	}

	outcome, err := e.VCS.ApplyCherryPickSequence(ctx, plan.MergeBase, plan.CommitsToApply, vcsport.FavorOurs, mainline)
	if err != nil {
		return Result{}, fmt.Errorf("mergeengine: apply_cherry_pick_sequence: %w", err)
	}

	if !outcome.Conflicted {
		oid, err := e.VCS.CommitSoftSquash(ctx, req.ImplementationMessage, plan.TargetHead, "")
		if err != nil {
			return Result{}, fmt.Errorf("mergeengine: commit_soft_squash: %w", err)
		}
		return Result{Committed: oid}, nil
	}

	var mainlinePtr *int
	if mainline > 0 {
		m := mainline
		mainlinePtr = &m
	}
	state := &ConflictState{
		Slug:                   req.Slug,
		SourceBranch:           req.SourceBranch,
		TargetBranch:           req.TargetBranch,
		HeadOID:                plan.TargetHead,
		SourceOID:              plan.SourceTip,
		Squash:                 true,
		ImplementationMessage:  req.ImplementationMessage,
		SquashMainline:         mainlinePtr,
		Replay: &ReplayState{
			MergeBaseOID:   plan.MergeBase,
			StartOID:       plan.MergeBase,
			SourceCommits:  plan.CommitsToApply,
			AppliedCommits: outcome.Applied,
			SquashMainline: mainlinePtr,
		},
	}
	return e.enterConflictResolution(ctx, req, state, outcome.Files)
}

// enterConflictResolution applies the Manual/Agent policy to a freshly
// conflicted attempt (spec §4.4.2 "Policies").
func (e *Engine) enterConflictResolution(ctx context.Context, req Request, state *ConflictState, files []string) (Result, error) {
	if req.Strategy == StrategyAgent && agentAutoResolveEligible(req) {
		resolved, err := e.tryAgentResolve(ctx, req, files)
		if err != nil {
			return Result{}, err
		}
		if resolved {
			oid, err := e.finalizeConflictFree(ctx, state)
			if err != nil {
				return Result{}, err
			}
			return Result{Committed: oid}, nil
		}
		log.Printf("agent conflict resolution left unresolved paths for %s, falling back to manual", state.Slug)
	}

	if err := Save(e.RepoRoot, state); err != nil {
		return Result{}, err
	}
	return Result{Pending: state, ResumeCommand: resumeCommand(state.Slug)}, nil
}

// agentAutoResolveEligible mirrors spec §4.4.2: the template must declare a
// GateConflictResolution node with auto_resolve=true and an on.succeeded
// edge back to the integrate node.
func agentAutoResolveEligible(req Request) bool {
	node := req.ConflictResolutionNode
	if node == nil {
		return false
	}
	for _, g := range node.Gates {
		if g.Kind == template.GateKindCustom && g.AutoResolve {
			return node.On.ContainsTarget("succeeded", req.IntegrateNodeID)
		}
	}
	// AutoResolve is also exposed via Cicd-shaped gates reused for conflict
	// resolution in some templates.
	for _, g := range node.Gates {
		if g.AutoResolve {
			return node.On.ContainsTarget("succeeded", req.IntegrateNodeID)
		}
	}
	return false
}

func (e *Engine) tryAgentResolve(ctx context.Context, req Request, files []string) (bool, error) {
	if e.Backend == nil {
		return false, nil
	}
	resp, err := e.Backend.Run(ctx, backendport.Request{
		Capability: "vizier.gate.conflict_resolution",
		Metadata:   map[string]string{"files": fmt.Sprintf("%v", files)},
	})
	if err != nil {
		return false, fmt.Errorf("mergeengine: agent conflict resolution: %w", err)
	}
	// The merge command drives this engine directly, bypassing the job
	// scheduler (cmd/vizier/merge.go), so there is no job record to
	// aggregate resp.Usage onto; the agent's resolved content is already on
	// disk via e.VCS.Stage below.
	_ = resp
	if err := e.VCS.Stage(ctx, files); err != nil {
		return false, fmt.Errorf("mergeengine: staging agent-resolved files: %w", err)
	}
	remaining, err := e.VCS.ListConflictedPaths(ctx)
	if err != nil {
		return false, fmt.Errorf("mergeengine: list_conflicted_paths: %w", err)
	}
	return len(remaining) == 0, nil
}

func (e *Engine) finalizeConflictFree(ctx context.Context, state *ConflictState) (string, error) {
	if state.Squash {
		oid, err := e.VCS.CommitInProgressSquash(ctx, state.ImplementationMessage, state.HeadOID)
		if err != nil {
			return "", fmt.Errorf("mergeengine: commit_in_progress_squash: %w", err)
		}
		if err := Clear(e.RepoRoot, state.Slug); err != nil {
			return oid, err
		}
		return oid, nil
	}
	oid, err := e.VCS.CommitInProgressMerge(ctx, state.MergeMessage, state.HeadOID, state.SourceOID)
	if err != nil {
		return "", fmt.Errorf("mergeengine: commit_in_progress_merge: %w", err)
	}
	if err := Clear(e.RepoRoot, state.Slug); err != nil {
		return oid, err
	}
	return oid, nil
}
