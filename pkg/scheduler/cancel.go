package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/jordan-tan/vizier/internal/vizerr"
	"github.com/jordan-tan/vizier/pkg/jobstore"
)

// CancelOptions controls Cancel's optional worktree cleanup.
type CancelOptions struct {
	CleanupWorktree bool
}

// Cancel terminates an active job (spec §4.3 "Cancel"). It refuses
// non-active statuses with an actionable message, best-effort signals the
// recorded pid, and optionally cleans up an owned worktree.
func (s *Scheduler) Cancel(ctx context.Context, jobID string, opts CancelOptions) error {
	rec, err := s.Store.Read(jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			return vizerr.New(vizerr.KindMissingJob, err).WithJob(jobID)
		}
		return err
	}
	if !rec.Status.Active() {
		return vizerr.New(vizerr.KindNotActive, fmt.Errorf("job %s is not active (status=%s)", jobID, rec.Status)).
			WithJob(jobID).
			WithRemediation(fmt.Sprintf("job %s has already reached a terminal state; nothing to cancel", jobID))
	}

	if rec.PID > 0 {
		if proc, err := os.FindProcess(rec.PID); err == nil {
			_ = proc.Signal(syscall.SIGTERM)
		}
	}

	if opts.CleanupWorktree {
		s.cleanupWorktreeForCancel(ctx, rec)
	}

	now := s.Now()
	rec.Status = jobstore.StatusCancelled
	rec.FinishedAt = &now
	rec.Schedule.WaitReason = jobstore.WaitReason{}

	return s.Store.Write(jobID, rec)
}

// cleanupWorktreeForCancel implements spec §4.3 Cancel's --cleanup-worktree
// semantics: owned + present -> removed ("done"); missing path counts as
// "done"; unowned -> "skipped"; failure -> "failed" but the job still
// cancels.
func (s *Scheduler) cleanupWorktreeForCancel(ctx context.Context, rec *jobstore.Record) {
	if !rec.Metadata.WorktreeOwned {
		rec.Metadata.CancelCleanupStatus = "skipped"
		return
	}
	path := rec.Metadata.WorktreePath
	if path == "" {
		rec.Metadata.CancelCleanupStatus = "done"
		return
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		rec.Metadata.CancelCleanupStatus = "done"
		return
	}
	if err := s.VCS.WorktreeRemove(ctx, path); err != nil {
		rec.Metadata.CancelCleanupStatus = "failed"
		rec.Metadata.CancelCleanupError = err.Error()
		return
	}
	rec.Metadata.CancelCleanupStatus = "done"
}
