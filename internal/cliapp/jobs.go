package cliapp

import (
	"context"
	"fmt"
	"time"

	"github.com/jordan-tan/vizier/internal/vizerr"
	"github.com/jordan-tan/vizier/pkg/jobstore"
	"github.com/jordan-tan/vizier/pkg/scheduleview"
	"github.com/jordan-tan/vizier/pkg/scheduler"
)

// records reads every job in the store, surfacing malformed-record
// warnings to the caller rather than dropping them (spec §4.1).
func (d *Deps) records() ([]*jobstore.Record, []error, error) {
	results, err := d.Orchestrator.Store.List()
	if err != nil {
		return nil, nil, fmt.Errorf("cliapp: listing jobs: %w", err)
	}
	var recs []*jobstore.Record
	var warnings []error
	for _, r := range results {
		if r.Record != nil {
			recs = append(recs, r.Record)
			continue
		}
		warnings = append(warnings, fmt.Errorf("job %s: %w", r.JobID, r.Warning))
	}
	return recs, warnings, nil
}

// Schedule runs `vizier jobs schedule` (spec §4.5): the full filtered,
// ordered view of every job in the store, ready for summary/dag/json
// rendering by the caller.
func (d *Deps) Schedule(opts scheduleview.Options) ([]scheduleview.Entry, map[string]bool, []error, error) {
	recs, warnings, err := d.records()
	if err != nil {
		return nil, nil, nil, err
	}
	entries := scheduleview.Entries(recs)
	entries = scheduleview.Filter(entries, opts)
	return entries, scheduleview.Published(recs), warnings, nil
}

// List runs `vizier jobs list`, a thin alias over Schedule that defaults
// --job focus off (spec §4.5: list is schedule without DAG rendering).
func (d *Deps) List(opts scheduleview.Options) ([]scheduleview.Entry, []error, error) {
	entries, _, warnings, err := d.Schedule(opts)
	return entries, warnings, err
}

// Show runs `vizier jobs show <job-id>`/`jobs status <job-id>`: the single
// job's detail projection.
func (d *Deps) Show(jobID string) (scheduleview.Detail, error) {
	rec, err := d.Orchestrator.Store.Read(jobID)
	if err != nil {
		return scheduleview.Detail{}, vizerr.New(vizerr.KindMissingJob, err).WithJob(jobID)
	}
	entries := scheduleview.Entries([]*jobstore.Record{rec})
	slug := ""
	if len(entries) == 1 {
		slug = entries[0].Slug
	}
	return scheduleview.BuildDetail(rec, slug), nil
}

// Tail runs `vizier jobs tail <job-id>` / `jobs attach <job-id>`: streams
// the job's interleaved stdout/stderr, following until the job reaches a
// terminal status when follow is true (spec §4.5).
func (d *Deps) Tail(ctx context.Context, jobID string, follow bool, emit func(scheduleview.Line)) error {
	rec, err := d.Orchestrator.Store.Read(jobID)
	if err != nil {
		return vizerr.New(vizerr.KindMissingJob, err).WithJob(jobID)
	}
	statusOf := func() (jobstore.Status, error) {
		cur, err := d.Orchestrator.Store.Read(jobID)
		if err != nil {
			return "", err
		}
		return cur.Status, nil
	}
	return scheduleview.Tail(ctx, rec.StdoutPath, rec.StderrPath, follow, statusOf, emit)
}

// ApproveJob runs `vizier jobs approve <job-id>`: approves a job's pending
// gate-approval (spec §4.3 "Approval operations"), distinct from the
// `vizier approve` plan-level apply-and-retry loop in commands.go.
func (d *Deps) ApproveJob(ctx context.Context, jobID string) error {
	return d.Scheduler.Approve(ctx, jobID)
}

// RejectJob runs `vizier jobs reject <job-id> [reason]`.
func (d *Deps) RejectJob(ctx context.Context, jobID, reason string) error {
	return d.Scheduler.Reject(ctx, jobID, reason)
}

// CancelJob runs `vizier jobs cancel <job-id> [--cleanup-worktree]`.
func (d *Deps) CancelJob(ctx context.Context, jobID string, cleanupWorktree bool) error {
	return d.Scheduler.Cancel(ctx, jobID, scheduler.CancelOptions{CleanupWorktree: cleanupWorktree})
}

// RetryJob runs `vizier jobs retry <job-id>`.
func (d *Deps) RetryJob(ctx context.Context, jobID string) error {
	return d.Scheduler.Retry(ctx, jobID)
}

// GCJobs runs `vizier jobs gc [--older-than <duration>]`, defaulting to the
// 7-day threshold spec §4.3 "GC" names.
func (d *Deps) GCJobs(olderThan time.Duration) ([]string, error) {
	if olderThan <= 0 {
		olderThan = 7 * 24 * time.Hour
	}
	return d.Scheduler.GC(olderThan)
}
