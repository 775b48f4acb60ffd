package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jordan-tan/vizier/internal/vizerr"
	"github.com/jordan-tan/vizier/pkg/jobstore"
)

// Retry re-queues a terminal job (spec §4.3 "Retry", concrete scenario 6).
// It clears attempt-specific fields, attempts to clean up a previously owned
// worktree with a filesystem fallback, empties the stdout/stderr logs, and
// finally runs the admission checks for this job alone so it lands in the
// correct waiting_on_* / blocked_by_* state, or stays queued when nothing
// blocks it. The job is not admitted here.
func (s *Scheduler) Retry(ctx context.Context, jobID string) error {
	rec, err := s.Store.Read(jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			return vizerr.New(vizerr.KindMissingJob, err).WithJob(jobID)
		}
		return err
	}
	if !rec.Status.Terminal() {
		return vizerr.New(vizerr.KindNotActive, fmt.Errorf("job %s is not terminal", jobID)).WithJob(jobID)
	}

	s.cleanupWorktreeForRetry(ctx, rec)

	rec.ResetForRetry()
	rec.Status = jobstore.StatusQueued
	rec.Schedule.WaitReason = jobstore.WaitReason{}

	dir := s.Store.JobDir(jobID)
	for _, name := range []string{"outcome.json", "ask-save.patch", "save-input.patch"} {
		_ = os.Remove(filepath.Join(dir, name))
	}
	if rec.StdoutPath != "" {
		_ = os.WriteFile(filepath.Join(dir, filepath.Base(rec.StdoutPath)), nil, 0o644)
	}
	if rec.StderrPath != "" {
		_ = os.WriteFile(filepath.Join(dir, filepath.Base(rec.StderrPath)), nil, 0o644)
	}

	all, _, err := s.loadAll()
	if err != nil {
		return err
	}
	all[jobID] = rec
	if d := s.evaluate(ctx, rec, all, publishedArtifacts(all), newLockTable(all)); !d.admit {
		applyWait(rec, d)
	}
	return s.Store.Write(jobID, rec)
}

// cleanupWorktreeForRetry implements spec §4.3 Retry step 4: best-effort
// removal of a previously owned worktree, falling back to a plain
// filesystem delete, and recording degraded status if both fail.
func (s *Scheduler) cleanupWorktreeForRetry(ctx context.Context, rec *jobstore.Record) {
	if !rec.Metadata.WorktreeOwned || rec.Metadata.WorktreePath == "" {
		return
	}
	path := rec.Metadata.WorktreePath

	if _, err := os.Stat(path); os.IsNotExist(err) {
		rec.Metadata.RetryCleanupStatus = "done"
		return
	}

	if err := s.VCS.WorktreeRemove(ctx, path); err == nil {
		rec.Metadata.RetryCleanupStatus = "done"
		return
	}

	// Fallback: the worktree may be registered under a different name than
	// expected; prune stale registrations before falling back to a raw
	// filesystem delete.
	_ = s.VCS.WorktreePrune(ctx)

	if err := os.RemoveAll(path); err != nil {
		rec.Metadata.RetryCleanupStatus = "degraded"
		rec.Metadata.RetryCleanupError = fmt.Sprintf("fallback cleanup failed: %v", err)
		fmt.Fprintf(os.Stderr, "vizier: retry cleanup for plan %q degraded: %s (worktree left at %s)\n",
			rec.Metadata.WorkflowTemplateSelector, rec.Metadata.RetryCleanupError, path)
		return
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		rec.Metadata.RetryCleanupStatus = "done"
		return
	}
	rec.Metadata.RetryCleanupStatus = "degraded"
	rec.Metadata.RetryCleanupError = "fallback cleanup failed: worktree directory still present after removal attempt"
}
