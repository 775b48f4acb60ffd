package jobstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jordan-tan/vizier/pkg/artifact"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir())
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	rec := &Record{
		ID:         "job-1",
		Status:     StatusQueued,
		Argv:       []string{"vizier", "save"},
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		StdoutPath: "stdout.log",
		StderrPath: "stderr.log",
		Schedule: Schedule{
			Artifacts: []artifact.Artifact{artifact.TargetBranch("main")},
		},
	}
	require.NoError(t, s.Write(rec.ID, rec))

	got, err := s.Read(rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.ID, got.ID)
	require.Equal(t, rec.Status, got.Status)
	require.Equal(t, rec.Argv, got.Argv)
	require.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	require.Equal(t, rec.Schedule.Artifacts[0].Canonical(), got.Schedule.Artifacts[0].Canonical())
}

func TestReadNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Read("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReadMalformedDoesNotDeleteOrCrash(t *testing.T) {
	s := newTestStore(t)
	dir := filepath.Join(s.Root, "job-bad")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "job.json"), []byte("{not json"), 0o644))

	_, err := s.Read("job-bad")
	var malformed *ErrMalformed
	require.ErrorAs(t, err, &malformed)

	// File must still exist, untouched.
	raw, err := os.ReadFile(filepath.Join(dir, "job.json"))
	require.NoError(t, err)
	require.Equal(t, "{not json", string(raw))
}

func TestUpdateMalformedRefusesToOverwrite(t *testing.T) {
	s := newTestStore(t)
	dir := filepath.Join(s.Root, "job-bad")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "job.json"), []byte("not json at all"), 0o644))

	_, err := s.Update("job-bad", func(r *Record) error {
		r.Status = StatusRunning
		return nil
	})
	var malformed *ErrMalformed
	require.ErrorAs(t, err, &malformed)

	raw, _ := os.ReadFile(filepath.Join(dir, "job.json"))
	require.Equal(t, "not json at all", string(raw))
}

func TestListReportsMalformedAsWarningNeverDrops(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Write("good-job", &Record{ID: "good-job", Status: StatusQueued}))

	badDir := filepath.Join(s.Root, "bad-job")
	require.NoError(t, os.MkdirAll(badDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(badDir, "job.json"), []byte("{"), 0o644))

	results, err := s.List()
	require.NoError(t, err)
	require.Len(t, results, 2)

	var sawGood, sawBadWarning bool
	for _, r := range results {
		switch r.JobID {
		case "good-job":
			require.NotNil(t, r.Record)
			sawGood = true
		case "bad-job":
			require.Nil(t, r.Record)
			require.Error(t, r.Warning)
			sawBadWarning = true
		}
	}
	require.True(t, sawGood)
	require.True(t, sawBadWarning)
}

func TestListEmptyStoreReturnsEmpty(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "does-not-exist-yet"))
	results, err := s.List()
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestRemoveDeletesDirectory(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Write("job-1", &Record{ID: "job-1", Status: StatusSucceeded}))
	require.True(t, s.Exists("job-1"))
	require.NoError(t, s.Remove("job-1"))
	require.False(t, s.Exists("job-1"))
}

func TestResetForRetryClearsAttemptFieldsPreservesScope(t *testing.T) {
	started := time.Now()
	exitCode := 1
	agentExit := 2
	rec := &Record{
		ID:          "job-1",
		Status:      StatusFailed,
		StartedAt:   &started,
		FinishedAt:  &started,
		PID:         123,
		ExitCode:    &exitCode,
		SessionPath: "sessions/x/session.json",
		OutcomePath: "outcome.json",
		Metadata: Metadata{
			Scope:                    "legacy-scope",
			CommandAlias:             "save",
			WorkflowTemplateSelector: "save-v1",
			WorktreePath:             ".vizier/tmp-worktrees/x",
			WorktreeOwned:            true,
			WorktreeName:             "x",
			AgentExitCode:            &agentExit,
			CancelCleanupStatus:      "done",
			CancelCleanupError:       "",
		},
	}

	rec.ResetForRetry()

	require.Nil(t, rec.StartedAt)
	require.Nil(t, rec.FinishedAt)
	require.Equal(t, 0, rec.PID)
	require.Nil(t, rec.ExitCode)
	require.Empty(t, rec.SessionPath)
	require.Empty(t, rec.OutcomePath)
	require.Empty(t, rec.Metadata.WorktreePath)
	require.False(t, rec.Metadata.WorktreeOwned)
	require.Empty(t, rec.Metadata.WorktreeName)
	require.Nil(t, rec.Metadata.AgentExitCode)

	require.Equal(t, "legacy-scope", rec.Metadata.Scope)
	require.Equal(t, "save", rec.Metadata.CommandAlias)
	require.Equal(t, "save-v1", rec.Metadata.WorkflowTemplateSelector)
}
