// Package scheduler implements the Scheduler Core from spec §4.3: admission
// control, wait-reason computation, approval gating, dependency/lock
// resolution, ordering, retry/rewind, and GC. It is logically
// single-threaded per repository (spec §5): EvaluateAll serializes the
// admission decision while record I/O fans out across a bounded pool.
package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jordan-tan/vizier/pkg/jobstore"
	"github.com/jordan-tan/vizier/pkg/logger"
	"github.com/jordan-tan/vizier/pkg/vcsport"
)

var log = logger.New("scheduler:core")

// Scheduler ties a job record store to a VCS port and runs the admission
// algorithm from spec §4.3 over it.
type Scheduler struct {
	Store *jobstore.Store
	VCS   vcsport.Port

	// Now is overridable for deterministic tests.
	Now func() time.Time
}

// New returns a Scheduler over store and vcs.
func New(store *jobstore.Store, vcs vcsport.Port) *Scheduler {
	return &Scheduler{Store: store, VCS: vcs, Now: time.Now}
}

// NewJobID mints an opaque job id (spec §3.1), the way google/uuid is used
// elsewhere in the pack for externally-visible ids.
func NewJobID() string {
	return "job-" + uuid.NewString()
}

// loadAll reads every record into one map keyed by job id; callers tell
// terminal from non-terminal records themselves. Malformed records are
// returned as warnings but otherwise skipped, never block the pass (spec
// §4.1, §4.3).
func (s *Scheduler) loadAll() (all map[string]*jobstore.Record, warnings []jobstore.ListResult, err error) {
	results, err := s.Store.List()
	if err != nil {
		return nil, nil, err
	}
	all = make(map[string]*jobstore.Record, len(results))
	for _, r := range results {
		if r.Record != nil {
			all[r.JobID] = r.Record
		} else {
			warnings = append(warnings, r)
		}
	}
	return all, warnings, nil
}

// sortedIDs returns job ids from records ordered by (created_at, job_id),
// the scheduler's single deterministic ordering (spec §4.3 step 5).
func sortedIDs(records map[string]*jobstore.Record) []string {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ri, rj := records[ids[i]], records[ids[j]]
		if ri.CreatedAt.Equal(rj.CreatedAt) {
			return ids[i] < ids[j]
		}
		return ri.CreatedAt.Before(rj.CreatedAt)
	})
	return ids
}

// EvaluateAll runs one admission pass: for every non-terminal job it
// computes a wait reason or admits it. Returns the ids admitted this pass.
func (s *Scheduler) EvaluateAll(ctx context.Context) ([]string, error) {
	all, _, err := s.loadAll()
	if err != nil {
		return nil, err
	}

	published := publishedArtifacts(all)
	locks := newLockTable(all)

	var admitted []string
	for _, id := range sortedIDs(all) {
		rec := all[id]
		if rec.Status.Terminal() {
			continue
		}

		decision := s.evaluate(ctx, rec, all, published, locks)
		if decision.admit {
			s.admit(rec, decision, locks)
			admitted = append(admitted, id)
			// Newly admitted jobs immediately hold their locks, visible to
			// later jobs in the same pass (spec §4.3 step 4: queued jobs
			// acquire in created_at,job_id order within one pass).
			locks.acquire(rec.Schedule.Locks, id)
		} else {
			applyWait(rec, decision)
		}

		if err := s.Store.Write(id, rec); err != nil {
			return admitted, err
		}
	}
	return admitted, nil
}

// admit transitions rec into the running state (spec §4.3 "Admission").
func (s *Scheduler) admit(rec *jobstore.Record, d decision, locks *lockTable) {
	now := s.Now()
	rec.Status = jobstore.StatusRunning
	rec.StartedAt = &now
	rec.Schedule.WaitReason = jobstore.WaitReason{}
	if d.pinnedHead != nil {
		rec.Schedule.PinnedHead = d.pinnedHead
	}
	log.Printf("admitted job %s", rec.ID)
}

// applyWait records rec's non-admitted wait state for this pass.
func applyWait(rec *jobstore.Record, d decision) {
	rec.Status = d.status
	rec.Schedule.WaitReason = d.waitReason
	for _, cat := range d.waitedOnAdds {
		rec.Schedule.AddWaitedOn(cat)
	}
	if d.approval != nil {
		rec.Schedule.Approval = *d.approval
	}
}

// decision is the per-job outcome of one evaluation pass.
type decision struct {
	admit        bool
	status       jobstore.Status
	waitReason   jobstore.WaitReason
	waitedOnAdds []string
	approval     *jobstore.Approval
	pinnedHead   *jobstore.PinnedHead
}
