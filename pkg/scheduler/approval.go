package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jordan-tan/vizier/internal/vizerr"
	"github.com/jordan-tan/vizier/pkg/constants"
	"github.com/jordan-tan/vizier/pkg/jobstore"
)

// outcomeRecord is the shape written to <job dir>/outcome.json on
// approve/reject/terminal transitions (spec §4.1, §6.3).
type outcomeRecord struct {
	Action string `json:"action"`
	State  string `json:"state,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (s *Scheduler) writeOutcome(jobID string, rec outcomeRecord) (string, error) {
	dir := s.Store.JobDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, constants.OutcomeFileName)
	payload, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", err
	}
	return constants.OutcomeFileName, nil
}

// Approve sets a pending approval to approved and reruns admission (spec
// §4.3 "Approval operations"). It returns vizerr(KindMissingJob) if no such
// job exists, or vizerr(KindNotActive) if the job has no pending approval.
func (s *Scheduler) Approve(ctx context.Context, jobID string) error {
	_, err := s.Store.Update(jobID, func(rec *jobstore.Record) error {
		if rec.Schedule.Approval.State != jobstore.ApprovalPending {
			return vizerr.New(vizerr.KindNotActive, fmt.Errorf("job %s has no pending approval", jobID)).WithJob(jobID)
		}
		rec.Schedule.Approval.State = jobstore.ApprovalApproved
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return vizerr.New(vizerr.KindMissingJob, err).WithJob(jobID)
		}
		return err
	}

	if _, err := s.writeOutcome(jobID, outcomeRecord{Action: "approve", State: "approved"}); err != nil {
		return fmt.Errorf("scheduler: failed to write approval outcome for %s: %w", jobID, err)
	}

	_, err = s.EvaluateAll(ctx)
	return err
}

// Reject sets the approval to rejected, moves the job to
// blocked_by_approval, and writes outcome.json (spec §4.3 "Approval
// operations", concrete scenario 1).
func (s *Scheduler) Reject(ctx context.Context, jobID, reason string) error {
	_, err := s.Store.Update(jobID, func(rec *jobstore.Record) error {
		if rec.Schedule.Approval.State != jobstore.ApprovalPending {
			return vizerr.New(vizerr.KindNotActive, fmt.Errorf("job %s has no pending approval", jobID)).WithJob(jobID)
		}
		rec.Schedule.Approval.State = jobstore.ApprovalRejected
		rec.Schedule.Approval.Reason = reason
		rec.Status = jobstore.StatusBlockedByApproval
		rec.Schedule.WaitReason = jobstore.WaitReason{Kind: "approval", Detail: reason}
		rec.Schedule.AddWaitedOn("approval")
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return vizerr.New(vizerr.KindMissingJob, err).WithJob(jobID)
		}
		return err
	}

	if _, err := s.writeOutcome(jobID, outcomeRecord{Action: "reject", State: "rejected", Reason: reason}); err != nil {
		return fmt.Errorf("scheduler: failed to write rejection outcome for %s: %w", jobID, err)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, jobstore.ErrNotFound)
}
