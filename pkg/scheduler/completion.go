package scheduler

import (
	"context"

	"github.com/jordan-tan/vizier/pkg/artifact"
	"github.com/jordan-tan/vizier/pkg/backendport"
	"github.com/jordan-tan/vizier/pkg/jobstore"
)

// Outcome is the terminal (or blocked) result of running a job, used by
// pkg/runtime to report back to the scheduler (spec §4.3 "Completion").
type Outcome struct {
	Status      jobstore.Status
	ExitCode    *int
	Artifacts   []artifact.Artifact
	AgentExit   *int
	StderrNote  string
	Usage       backendport.Usage
	SessionPath string
}

// Complete records a job's terminal outcome: writes finished_at/exit_code,
// publishes the produced artifacts onto the record, and reruns admission so
// waiting jobs pick up newly satisfied dependencies and freed locks (spec
// §4.3 "Completion"). Locks are released implicitly: newLockTable only
// considers jobs still in StatusRunning, so a terminal status drops a job
// out of the lock table on the very next EvaluateAll pass.
func (s *Scheduler) Complete(ctx context.Context, jobID string, outcome Outcome) error {
	_, err := s.Store.Update(jobID, func(rec *jobstore.Record) error {
		now := s.Now()
		rec.Status = outcome.Status
		rec.FinishedAt = &now
		rec.ExitCode = outcome.ExitCode
		rec.Schedule.Artifacts = artifact.Dedup(append(rec.Schedule.Artifacts, outcome.Artifacts...))
		if outcome.AgentExit != nil {
			rec.Metadata.AgentExitCode = outcome.AgentExit
		}
		rec.Usage = rec.Usage.Add(outcome.Usage)
		if outcome.SessionPath != "" {
			rec.SessionPath = outcome.SessionPath
		}
		if outcome.Status != jobstore.StatusSucceeded {
			rec.Schedule.WaitReason = jobstore.WaitReason{Kind: "completed", Detail: string(outcome.Status)}
		} else {
			rec.Schedule.WaitReason = jobstore.WaitReason{}
		}
		return nil
	})
	if err != nil {
		return err
	}

	_, err = s.EvaluateAll(ctx)
	return err
}
