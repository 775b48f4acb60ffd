package mergeengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jordan-tan/vizier/pkg/backendport"
	"github.com/jordan-tan/vizier/pkg/vcsport"
)

func TestRunAlreadyMerged(t *testing.T) {
	vcs := vcsport.NewFake()
	vcs.Branches["feature"] = "src-1"
	vcs.Branches["main"] = "tgt-1"
	vcs.AncestorOf = map[string]map[string]bool{"tgt-1": {"src-1": true}}

	eng := New(vcs, nil, t.TempDir())
	res, err := eng.Run(context.Background(), Request{Slug: "s1", SourceBranch: "feature", TargetBranch: "main"})
	require.NoError(t, err)
	require.True(t, res.AlreadyMerged)
}

func TestRunCleanMerge(t *testing.T) {
	vcs := vcsport.NewFake()
	vcs.Branches["feature"] = "src-1"
	vcs.Branches["main"] = "tgt-1"
	vcs.MergePreparations["feature"] = vcsport.MergePreparation{Kind: vcsport.MergeReady, HeadOID: "tgt-1", SourceOID: "src-1", TreeOID: "tree-1"}

	eng := New(vcs, nil, t.TempDir())
	res, err := eng.Run(context.Background(), Request{Slug: "s2", SourceBranch: "feature", TargetBranch: "main", MergeMessage: "merge feature"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Committed)
	require.Nil(t, res.Pending)
}

func TestRunConflictedMergePersistsStateAndResumeCommand(t *testing.T) {
	repoRoot := t.TempDir()
	vcs := vcsport.NewFake()
	vcs.Branches["feature"] = "src-1"
	vcs.Branches["main"] = "tgt-1"
	vcs.MergePreparations["feature"] = vcsport.MergePreparation{Kind: vcsport.MergeConflicted, HeadOID: "tgt-1", SourceOID: "src-1", Files: []string{"a.go"}}

	eng := New(vcs, nil, repoRoot)
	res, err := eng.Run(context.Background(), Request{Slug: "s3", SourceBranch: "feature", TargetBranch: "main", Strategy: StrategyManual})
	require.NoError(t, err)
	require.NotNil(t, res.Pending)
	require.Equal(t, "vizier merge s3 --complete-conflict", res.ResumeCommand)

	loaded, err := Load(repoRoot, "s3")
	require.NoError(t, err)
	require.Equal(t, "feature", loaded.SourceBranch)
	require.False(t, loaded.Squash)
	require.Nil(t, loaded.Replay) // replay state is only populated for squash merges
}

func TestResumeStaleBranchesDiscardsState(t *testing.T) {
	repoRoot := t.TempDir()
	vcs := vcsport.NewFake()
	eng := New(vcs, nil, repoRoot)

	require.NoError(t, Save(repoRoot, &ConflictState{Slug: "s4", SourceBranch: "feature", TargetBranch: "main"}))

	_, err := eng.Resume(context.Background(), "s4", "other-feature", "main")
	require.Error(t, err)
	var invalid *ErrPendingMergeInvalid
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, ReasonWrongBranch, invalid.Reason)

	_, loadErr := Load(repoRoot, "s4")
	require.ErrorIs(t, loadErr, ErrNoPendingMerge)
}

func TestResumeHeadMovedDiscardsState(t *testing.T) {
	repoRoot := t.TempDir()
	vcs := vcsport.NewFake()
	vcs.Branches["HEAD"] = "moved-oid"
	eng := New(vcs, nil, repoRoot)

	require.NoError(t, Save(repoRoot, &ConflictState{
		Slug: "s5", SourceBranch: "feature", TargetBranch: "main", HeadOID: "expected-oid",
	}))

	_, err := eng.Resume(context.Background(), "s5", "feature", "main")
	require.Error(t, err)
	var invalid *ErrPendingMergeInvalid
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, ReasonNotInMerge, invalid.Reason)
}

func TestResumeStillBlocked(t *testing.T) {
	repoRoot := t.TempDir()
	vcs := vcsport.NewFake()
	vcs.Branches["HEAD"] = "expected-oid"
	vcs.ConflictedPaths = []string{"b.go"}
	eng := New(vcs, nil, repoRoot)

	require.NoError(t, Save(repoRoot, &ConflictState{
		Slug: "s6", SourceBranch: "feature", TargetBranch: "main", HeadOID: "expected-oid",
	}))

	_, err := eng.Resume(context.Background(), "s6", "feature", "main")
	require.Error(t, err)
	var blocked *ErrStillBlocked
	require.ErrorAs(t, err, &blocked)
	require.Equal(t, []string{"b.go"}, blocked.Files)
}

func TestResumeMergeCompletes(t *testing.T) {
	repoRoot := t.TempDir()
	vcs := vcsport.NewFake()
	vcs.Branches["HEAD"] = "expected-oid"

	eng := New(vcs, nil, repoRoot)
	require.NoError(t, Save(repoRoot, &ConflictState{
		Slug: "s7", SourceBranch: "feature", TargetBranch: "main",
		HeadOID: "expected-oid", SourceOID: "src-oid", MergeMessage: "merge feature",
	}))

	res, err := eng.Resume(context.Background(), "s7", "feature", "main")
	require.NoError(t, err)
	require.NotEmpty(t, res.Committed)

	_, loadErr := Load(repoRoot, "s7")
	require.ErrorIs(t, loadErr, ErrNoPendingMerge)
}

func TestRunSquashOctopusRefused(t *testing.T) {
	vcs := vcsport.NewFake()
	vcs.Branches["feature"] = "src-1"
	vcs.Branches["main"] = "tgt-1"
	vcs.SquashPlans["feature"] = vcsport.SquashPlan{
		TargetHead: "tgt-1", SourceTip: "src-1", MergeBase: "base-1",
		CommitsToApply: []string{"c1", "c2"},
		MergeCommits:   []vcsport.MergeCommit{{OID: "c2", Parents: []string{"p1", "p2", "p3"}}},
	}

	eng := New(vcs, nil, t.TempDir())
	_, err := eng.Run(context.Background(), Request{Slug: "s8", SourceBranch: "feature", TargetBranch: "main", Squash: true})
	require.ErrorContains(t, err, "octopus")
}

func TestRunSquashRequiresMainlineWhenMergeCommitsPresent(t *testing.T) {
	vcs := vcsport.NewFake()
	vcs.Branches["feature"] = "src-1"
	vcs.Branches["main"] = "tgt-1"
	vcs.SquashPlans["feature"] = vcsport.SquashPlan{
		TargetHead: "tgt-1", SourceTip: "src-1", MergeBase: "base-1",
		CommitsToApply: []string{"c1", "c2"},
		MergeCommits:   []vcsport.MergeCommit{{OID: "c2", Parents: []string{"p1", "p2"}}},
	}

	eng := New(vcs, nil, t.TempDir())
	_, err := eng.Run(context.Background(), Request{Slug: "s9", SourceBranch: "feature", TargetBranch: "main", Squash: true})
	require.ErrorContains(t, err, "squash_mainline")
}

func TestRunSquashCleanApply(t *testing.T) {
	vcs := vcsport.NewFake()
	vcs.Branches["feature"] = "src-1"
	vcs.Branches["main"] = "tgt-1"
	vcs.SquashPlans["feature"] = vcsport.SquashPlan{
		TargetHead: "tgt-1", SourceTip: "src-1", MergeBase: "base-1",
		CommitsToApply: []string{"c1", "c2"},
	}

	eng := New(vcs, nil, t.TempDir())
	res, err := eng.Run(context.Background(), Request{Slug: "s10", SourceBranch: "feature", TargetBranch: "main", Squash: true, ImplementationMessage: "squash feature"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Committed)
}

func TestAgentAutoResolveFallsBackToManualWhenConflictsRemain(t *testing.T) {
	repoRoot := t.TempDir()
	vcs := vcsport.NewFake()
	vcs.Branches["feature"] = "src-1"
	vcs.Branches["main"] = "tgt-1"
	vcs.MergePreparations["feature"] = vcsport.MergePreparation{Kind: vcsport.MergeConflicted, HeadOID: "tgt-1", SourceOID: "src-1", Files: []string{"a.go"}}
	vcs.ConflictedPaths = []string{"a.go"}

	backend := backendport.NewFake("agent")
	eng := New(vcs, backend, repoRoot)

	res, err := eng.Run(context.Background(), Request{
		Slug: "s11", SourceBranch: "feature", TargetBranch: "main", Strategy: StrategyAgent,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Pending)
	require.Equal(t, 0, backend.CallCount(), "agent never invoked without an eligible GateConflictResolution node")
}
