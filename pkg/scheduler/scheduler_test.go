package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jordan-tan/vizier/pkg/artifact"
	"github.com/jordan-tan/vizier/pkg/jobstore"
	"github.com/jordan-tan/vizier/pkg/vcsport"
)

func newTestScheduler(t *testing.T) (*Scheduler, *jobstore.Store, *vcsport.Fake) {
	t.Helper()
	store := jobstore.New(t.TempDir())
	vcs := vcsport.NewFake()
	sched := New(store, vcs)
	return sched, store, vcs
}

// Scenario 1 (spec §8): approval reject.
func TestRejectApprovalScenario(t *testing.T) {
	sched, store, _ := newTestScheduler(t)
	ctx := context.Background()

	rec := &jobstore.Record{
		ID:     "job-reject-gate",
		Status: jobstore.StatusWaitingOnApproval,
		Schedule: jobstore.Schedule{
			Approval: jobstore.Approval{Required: true, State: jobstore.ApprovalPending},
		},
	}
	require.NoError(t, store.Write(rec.ID, rec))

	require.NoError(t, sched.Reject(ctx, rec.ID, "needs architecture sign-off"))

	got, err := store.Read(rec.ID)
	require.NoError(t, err)
	require.Equal(t, jobstore.StatusBlockedByApproval, got.Status)
	require.Equal(t, jobstore.ApprovalRejected, got.Schedule.Approval.State)
	require.Equal(t, "needs architecture sign-off", got.Schedule.Approval.Reason)
	require.Equal(t, "approval", got.Schedule.WaitReason.Kind)
	require.Contains(t, got.Schedule.WaitedOn, "approval")

	require.FileExists(t, store.JobDir(rec.ID) + "/outcome.json")
}

// Scenario 2 (spec §8): approving a job still blocked on a missing
// dependency advances the approval but leaves the job waiting on that
// dependency. The scenario's prose names the resulting status
// blocked_by_dependency; step 3 of the admission algorithm (spec §4.3)
// assigns waiting_on_deps to any not-yet-satisfied dependency regardless of
// approval state, and this implementation follows step 3 — see DESIGN.md's
// Open Question decisions for the full reasoning. blocked_by_dependency is
// reserved for the after-edge block_downstream case and the runtime's
// Blocked completion outcome.
func TestApproveThenWaitingOnDeps(t *testing.T) {
	sched, store, _ := newTestScheduler(t)
	ctx := context.Background()

	rec := &jobstore.Record{
		ID:        "job-approve-gate",
		Status:    jobstore.StatusWaitingOnApproval,
		CreatedAt: time.Now(),
		Schedule: jobstore.Schedule{
			Approval: jobstore.Approval{Required: true, State: jobstore.ApprovalPending},
			Dependencies: []jobstore.Dependency{
				{Artifact: artifact.TargetBranch("missing-approval-target")},
			},
		},
	}
	require.NoError(t, store.Write(rec.ID, rec))

	require.NoError(t, sched.Approve(ctx, rec.ID))

	got, err := store.Read(rec.ID)
	require.NoError(t, err)
	require.Equal(t, jobstore.ApprovalApproved, got.Schedule.Approval.State)
	require.Equal(t, jobstore.StatusWaitingOnDeps, got.Status)
}

func TestAdmitsQueuedJobWithNoBlockers(t *testing.T) {
	sched, store, _ := newTestScheduler(t)
	ctx := context.Background()

	rec := &jobstore.Record{ID: "job-1", Status: jobstore.StatusQueued, CreatedAt: time.Now()}
	require.NoError(t, store.Write(rec.ID, rec))

	admitted, err := sched.EvaluateAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"job-1"}, admitted)

	got, err := store.Read("job-1")
	require.NoError(t, err)
	require.Equal(t, jobstore.StatusRunning, got.Status)
	require.NotNil(t, got.StartedAt)
}

func TestExclusiveLockBlocksSecondJob(t *testing.T) {
	sched, store, _ := newTestScheduler(t)
	ctx := context.Background()

	now := time.Now()
	holder := &jobstore.Record{
		ID: "job-holder", Status: jobstore.StatusRunning, CreatedAt: now,
		Schedule: jobstore.Schedule{Locks: []artifact.Lock{{Key: "repo_serial", Mode: artifact.LockExclusive}}},
	}
	waiter := &jobstore.Record{
		ID: "job-waiter", Status: jobstore.StatusQueued, CreatedAt: now.Add(time.Second),
		Schedule: jobstore.Schedule{Locks: []artifact.Lock{{Key: "repo_serial", Mode: artifact.LockExclusive}}},
	}
	require.NoError(t, store.Write(holder.ID, holder))
	require.NoError(t, store.Write(waiter.ID, waiter))

	_, err := sched.EvaluateAll(ctx)
	require.NoError(t, err)

	got, err := store.Read("job-waiter")
	require.NoError(t, err)
	require.Equal(t, jobstore.StatusWaitingOnLocks, got.Status)
	require.Equal(t, "locks", got.Schedule.WaitReason.Kind)
}

func TestDependencySatisfiedByPublishedArtifact(t *testing.T) {
	sched, store, _ := newTestScheduler(t)
	ctx := context.Background()

	now := time.Now()
	producer := &jobstore.Record{
		ID: "job-producer", Status: jobstore.StatusSucceeded, CreatedAt: now,
		FinishedAt: &now,
		Schedule:   jobstore.Schedule{Artifacts: []artifact.Artifact{artifact.CommandPatch("job-producer")}},
	}
	consumer := &jobstore.Record{
		ID: "job-consumer", Status: jobstore.StatusQueued, CreatedAt: now.Add(time.Second),
		Schedule: jobstore.Schedule{Dependencies: []jobstore.Dependency{
			{Artifact: artifact.CommandPatch("job-producer")},
		}},
	}
	require.NoError(t, store.Write(producer.ID, producer))
	require.NoError(t, store.Write(consumer.ID, consumer))

	admitted, err := sched.EvaluateAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"job-consumer"}, admitted)
}

func TestDependencyMissingBranchWaits(t *testing.T) {
	sched, store, _ := newTestScheduler(t)
	ctx := context.Background()

	rec := &jobstore.Record{
		ID: "job-consumer", Status: jobstore.StatusQueued, CreatedAt: time.Now(),
		Schedule: jobstore.Schedule{Dependencies: []jobstore.Dependency{
			{Artifact: artifact.TargetBranch("missing-branch")},
		}},
	}
	require.NoError(t, store.Write(rec.ID, rec))

	_, err := sched.EvaluateAll(ctx)
	require.NoError(t, err)

	got, err := store.Read(rec.ID)
	require.NoError(t, err)
	require.Equal(t, jobstore.StatusWaitingOnDeps, got.Status)
	require.Contains(t, got.Schedule.WaitReason.Detail, "target_branch:missing-branch")
}

func TestDependencySatisfiedByVCSBranchExists(t *testing.T) {
	sched, store, vcs := newTestScheduler(t)
	ctx := context.Background()
	vcs.Branches["present-branch"] = "oid-1"

	rec := &jobstore.Record{
		ID: "job-consumer", Status: jobstore.StatusQueued, CreatedAt: time.Now(),
		Schedule: jobstore.Schedule{Dependencies: []jobstore.Dependency{
			{Artifact: artifact.TargetBranch("present-branch")},
		}},
	}
	require.NoError(t, store.Write(rec.ID, rec))

	admitted, err := sched.EvaluateAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"job-consumer"}, admitted)
}

func TestCancelRefusesTerminalJob(t *testing.T) {
	sched, store, _ := newTestScheduler(t)
	ctx := context.Background()
	require.NoError(t, store.Write("job-1", &jobstore.Record{ID: "job-1", Status: jobstore.StatusSucceeded}))

	err := sched.Cancel(ctx, "job-1", CancelOptions{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "not active")
}

func TestCancelMissingWorktreeCountsAsDone(t *testing.T) {
	sched, store, _ := newTestScheduler(t)
	ctx := context.Background()
	require.NoError(t, store.Write("job-1", &jobstore.Record{
		ID: "job-1", Status: jobstore.StatusRunning,
		Metadata: jobstore.Metadata{WorktreeOwned: true, WorktreePath: "/does/not/exist"},
	}))

	require.NoError(t, sched.Cancel(ctx, "job-1", CancelOptions{CleanupWorktree: true}))

	got, err := store.Read("job-1")
	require.NoError(t, err)
	require.Equal(t, jobstore.StatusCancelled, got.Status)
	require.Equal(t, "done", got.Metadata.CancelCleanupStatus)
}

func TestRetryPreservesScopeAndClearsAttemptFields(t *testing.T) {
	sched, store, _ := newTestScheduler(t)
	ctx := context.Background()

	started := time.Now()
	exitCode := 1
	require.NoError(t, store.Write("job-1", &jobstore.Record{
		ID: "job-1", Status: jobstore.StatusFailed,
		StdoutPath: "stdout.log", StderrPath: "stderr.log",
		StartedAt: &started, FinishedAt: &started, ExitCode: &exitCode,
		Metadata: jobstore.Metadata{Scope: "legacy", CommandAlias: "save", WorkflowTemplateSelector: "save-v1"},
	}))

	require.NoError(t, sched.Retry(ctx, "job-1"))

	got, err := store.Read("job-1")
	require.NoError(t, err)
	require.Nil(t, got.StartedAt)
	require.Nil(t, got.FinishedAt)
	require.Nil(t, got.ExitCode)
	require.Equal(t, "legacy", got.Metadata.Scope)
	require.Equal(t, "save", got.Metadata.CommandAlias)
	require.Equal(t, "save-v1", got.Metadata.WorkflowTemplateSelector)
}

func TestGCRemovesOnlyOldUnreferencedTerminalJobs(t *testing.T) {
	sched, store, _ := newTestScheduler(t)

	old := time.Now().Add(-30 * 24 * time.Hour)
	recent := time.Now().Add(-1 * time.Hour)

	require.NoError(t, store.Write("old-done", &jobstore.Record{ID: "old-done", Status: jobstore.StatusSucceeded, FinishedAt: &old}))
	require.NoError(t, store.Write("recent-done", &jobstore.Record{ID: "recent-done", Status: jobstore.StatusSucceeded, FinishedAt: &recent}))
	require.NoError(t, store.Write("old-but-referenced", &jobstore.Record{ID: "old-but-referenced", Status: jobstore.StatusSucceeded, FinishedAt: &old}))
	require.NoError(t, store.Write("downstream", &jobstore.Record{
		ID: "downstream", Status: jobstore.StatusQueued,
		Schedule: jobstore.Schedule{After: []artifact.AfterDependency{{JobID: "old-but-referenced", Policy: artifact.AfterSuccess}}},
	}))

	removed, err := sched.GC(14 * 24 * time.Hour)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"old-done"}, removed)

	require.True(t, store.Exists("recent-done"))
	require.True(t, store.Exists("old-but-referenced"))
	require.False(t, store.Exists("old-done"))
}
