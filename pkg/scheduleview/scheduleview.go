// Package scheduleview builds the observability surface spec §4.5 requires
// of `jobs schedule`, `jobs list`, `jobs status`/`show`: summary/DAG/JSON
// renderings over the durable job records, with --job/--max-depth/--all
// focus filtering. It reads jobstore.Record directly and never mutates the
// store, the way gh-aw's workflow-status views read compiled run state
// without touching it.
package scheduleview

import (
	"sort"

	"github.com/jordan-tan/vizier/pkg/artifact"
	"github.com/jordan-tan/vizier/pkg/constants"
	"github.com/jordan-tan/vizier/pkg/jobstore"
	"github.com/jordan-tan/vizier/pkg/logger"
)

var log = logger.New("scheduleview:schedule")

// Entry pairs a job record with the canonical plan slug scheduleview derives
// for it (the slug of the first plan-shaped artifact it publishes, if any).
type Entry struct {
	Record *jobstore.Record
	Slug   string
}

// slugFor scans a record's published artifacts for the first plan-shaped or
// merge-sentinel slug. Jobs that publish no such artifact (e.g. a bare
// command job) have an empty slug.
func slugFor(rec *jobstore.Record) string {
	for _, a := range rec.Schedule.Artifacts {
		switch a.Kind {
		case artifact.KindPlanBranch, artifact.KindPlanDoc, artifact.KindPlanCommits, artifact.KindMergeSentinel:
			return a.Slug
		}
	}
	return ""
}

// Entries converts job records into Entry values ordered by
// created_at_then_job_id, the deterministic ordering spec §4.5 and §6.5 name
// for every schedule view.
func Entries(records []*jobstore.Record) []Entry {
	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, Entry{Record: rec, Slug: slugFor(rec)})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Record, entries[j].Record
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return entries
}

// Options controls which jobs a schedule/list view includes (spec §4.5:
// "--all includes terminal jobs; default hides succeeded, and
// --dismiss-failures additionally hides failed").
type Options struct {
	Job             string // --job: focus on this job id and its one-hop neighborhood
	MaxDepth        int    // --max-depth: 0 means unbounded
	All             bool   // --all: include succeeded
	DismissFailures bool   // --dismiss-failures: also hide failed (ignored when Job is set)
}

// visible reports whether a job's status passes the --all/--dismiss-failures
// filter, independent of any --job focus.
func visible(status jobstore.Status, opts Options) bool {
	if status == jobstore.StatusSucceeded && !opts.All {
		return false
	}
	if status == jobstore.StatusFailed && opts.DismissFailures {
		return false
	}
	return true
}

// Filter applies --all/--dismiss-failures and, when opts.Job is set, the
// --job/--max-depth one-hop neighborhood expansion (spec §4.5: "--job
// focuses on a job and its one-hop neighborhood (ancestors + descendants)
// pinning the focus to the first summary row"). Entries must already be in
// Entries() order.
func Filter(entries []Entry, opts Options) []Entry {
	base := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if visible(e.Record.Status, opts) {
			base = append(base, e)
		}
	}
	if opts.Job == "" {
		return base
	}
	return focus(entries, opts)
}

// focus builds the --job neighborhood: the focused job first, then its
// ancestors (jobs it waits `after`) and descendants (jobs that wait `after`
// it), expanded up to opts.MaxDepth hops (0 = unbounded), regardless of the
// visibility filter — a focused job's neighborhood is shown even if
// terminal, since the operator explicitly asked to see it.
func focus(entries []Entry, opts Options) []Entry {
	byID := make(map[string]Entry, len(entries))
	for _, e := range entries {
		byID[e.Record.ID] = e
	}
	center, ok := byID[opts.Job]
	if !ok {
		return nil
	}

	successors := make(map[string][]string) // predecessor -> successors
	for _, e := range entries {
		for _, a := range e.Record.Schedule.After {
			successors[a.JobID] = append(successors[a.JobID], e.Record.ID)
		}
	}

	depth := opts.MaxDepth
	included := map[string]bool{center.Record.ID: true}

	frontier := []string{center.Record.ID}
	for hop := 0; depth <= 0 || hop < depth; hop++ {
		var next []string
		for _, id := range frontier {
			e, ok := byID[id]
			if !ok {
				continue
			}
			for _, a := range e.Record.Schedule.After {
				if !included[a.JobID] {
					included[a.JobID] = true
					next = append(next, a.JobID)
				}
			}
			for _, succ := range successors[id] {
				if !included[succ] {
					included[succ] = true
					next = append(next, succ)
				}
			}
		}
		if len(next) == 0 {
			break
		}
		frontier = next
	}

	out := make([]Entry, 0, len(included))
	out = append(out, center)
	for _, e := range entries {
		if e.Record.ID == center.Record.ID {
			continue
		}
		if included[e.Record.ID] {
			out = append(out, e)
		}
	}
	return out
}

// ScheduleJSON is the v1 schema from spec §6.5.
type ScheduleJSON struct {
	Version  int           `json:"version"`
	Ordering string        `json:"ordering"`
	Jobs     []ScheduleJob `json:"jobs"`
	Edges    []Edge        `json:"edges"`
}

// ScheduleJob is one `jobs` entry in the v1 schema.
type ScheduleJob struct {
	Order        int                     `json:"order"`
	JobID        string                  `json:"job_id"`
	Name         string                  `json:"name"`
	Status       jobstore.Status         `json:"status"`
	CreatedAt    string                  `json:"created_at"`
	Slug         string                  `json:"slug,omitempty"`
	Wait         jobstore.WaitReason     `json:"wait"`
	PinnedHead   *jobstore.PinnedHead    `json:"pinned_head,omitempty"`
	Dependencies []jobstore.Dependency   `json:"dependencies"`
	Locks        []artifact.Lock         `json:"locks"`
	Artifacts    []artifact.Artifact     `json:"artifacts"`
	After        []artifact.AfterDependency `json:"after"`
}

// Edge is one `edges` entry: either `artifact -> job` (dependency
// resolution) or `job -> predecessor` (after-edge), per spec §4.5/§6.5.
type Edge struct {
	From     string             `json:"from"`
	To       string             `json:"to"`
	Artifact string             `json:"artifact,omitempty"`
	State    string             `json:"state,omitempty"` // "present" | "missing"
	After    *AfterEdgeLabel    `json:"after,omitempty"`
}

// AfterEdgeLabel carries the after-policy label for a job->predecessor edge.
type AfterEdgeLabel struct {
	Policy artifact.AfterPolicy `json:"policy"`
}

// Build constructs the v1 schedule JSON document for entries, which must
// already have Filter applied.
func Build(entries []Entry, published map[string]bool) ScheduleJSON {
	doc := ScheduleJSON{Version: constants.ScheduleJSONVersion, Ordering: constants.ScheduleOrdering}

	for i, e := range entries {
		rec := e.Record
		doc.Jobs = append(doc.Jobs, ScheduleJob{
			Order:        i,
			JobID:        rec.ID,
			Name:         rec.Metadata.CommandAlias,
			Status:       rec.Status,
			CreatedAt:    rec.CreatedAt.Format(timeLayout),
			Slug:         e.Slug,
			Wait:         rec.Schedule.WaitReason,
			PinnedHead:   rec.Schedule.PinnedHead,
			Dependencies: rec.Schedule.Dependencies,
			Locks:        rec.Schedule.Locks,
			Artifacts:    rec.Schedule.Artifacts,
			After:        rec.Schedule.After,
		})

		for _, dep := range rec.Schedule.Dependencies {
			state := "missing"
			if published[dep.Artifact.Canonical()] {
				state = "present"
			}
			doc.Edges = append(doc.Edges, Edge{
				From: dep.Artifact.Canonical(), To: rec.ID,
				Artifact: dep.Artifact.Canonical(), State: state,
			})
		}
		for _, a := range rec.Schedule.After {
			doc.Edges = append(doc.Edges, Edge{
				From: rec.ID, To: a.JobID,
				After: &AfterEdgeLabel{Policy: a.Policy},
			})
		}
	}

	log.Printf("built schedule json: %d jobs, %d edges", len(doc.Jobs), len(doc.Edges))
	return doc
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

// Published derives the set of canonical artifact labels every terminal
// successful job in records has published, the same computation
// pkg/scheduler uses for admission (spec §4.3 step 3, §3.3), exposed here so
// views can render dependency edge state without importing scheduler.
func Published(records []*jobstore.Record) map[string]bool {
	out := map[string]bool{}
	for _, rec := range records {
		if rec.Status != jobstore.StatusSucceeded {
			continue
		}
		for _, a := range rec.Schedule.Artifacts {
			out[a.Canonical()] = true
		}
	}
	return out
}
