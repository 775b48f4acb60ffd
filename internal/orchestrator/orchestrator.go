// Package orchestrator is the thin driver cmd/vizier runs against: it turns
// one operator intent (save, draft, review) into a compiled workflow
// template, submits its nodes as job records, and drives them to completion
// by alternating scheduler admission passes with runtime execution (spec
// §2 "Data flow": operator command -> job record -> scheduler admission ->
// workflow runtime -> outcome-edge dispatch). It is the "caller driving the
// scheduler" pkg/runtime's Execute doc comment defers outcome-edge dispatch
// to.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jordan-tan/vizier/pkg/artifact"
	"github.com/jordan-tan/vizier/pkg/backendport"
	"github.com/jordan-tan/vizier/pkg/constants"
	"github.com/jordan-tan/vizier/pkg/jobstore"
	"github.com/jordan-tan/vizier/pkg/logger"
	"github.com/jordan-tan/vizier/pkg/runtime"
	"github.com/jordan-tan/vizier/pkg/scheduler"
	"github.com/jordan-tan/vizier/pkg/template"
	"github.com/jordan-tan/vizier/pkg/vcsport"
)

var log = logger.New("orchestrator:run")

// Orchestrator wires a job store, scheduler, and runtime over one
// repository (spec §2 component table).
type Orchestrator struct {
	Store     *jobstore.Store
	Scheduler *scheduler.Scheduler
	Runtime   *runtime.Runtime
	VCS       vcsport.Port
}

// New returns an Orchestrator rooted at repoRoot's .vizier/jobs directory.
func New(repoRoot string, vcs vcsport.Port, backend backendport.Runner) *Orchestrator {
	store := jobstore.New(filepath.Join(repoRoot, constants.VizierDir, constants.JobsDirName))
	sched := scheduler.New(store, vcs)
	rt := runtime.New(sched, backend, vcs)
	return &Orchestrator{Store: store, Scheduler: sched, Runtime: rt, VCS: vcs}
}

// Submission is one operator command's request to run a template.
type Submission struct {
	Template *template.Template
	Alias    string
	Argv     []string
	WorkDir  string
}

// Run validates tmpl, creates a queued job record for every node (wiring
// needs/locks/after from the compiled form), and drives admission+execution
// passes until no job of this submission makes further progress. It returns
// the job ids in template order so the caller can report the terminal
// status of the node it cares about (usually the last one).
func (o *Orchestrator) Run(ctx context.Context, sub Submission) ([]string, error) {
	if err := sub.Template.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	order, err := template.TopologicalNodeOrder(sub.Template)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	resolved := make(map[string]string, len(order))
	nodes := make(map[string]*template.CompiledWorkflowNode, len(order))
	jobIDs := make([]string, 0, len(order))
	now := time.Now()

	for _, nodeID := range order {
		compiled, err := template.CompileNode(sub.Template, nodeID, resolved)
		if err != nil {
			return jobIDs, fmt.Errorf("orchestrator: %w", err)
		}

		jobID := scheduler.NewJobID()
		resolved[nodeID] = jobID
		nodes[jobID] = compiled

		rec := &jobstore.Record{
			ID:         jobID,
			Status:     jobstore.StatusQueued,
			Argv:       sub.Argv,
			CreatedAt:  now,
			StdoutPath: filepath.Join(o.Store.JobDir(jobID), constants.StdoutLogName),
			StderrPath: filepath.Join(o.Store.JobDir(jobID), constants.StderrLogName),
			Metadata: jobstore.Metadata{
				CommandAlias:             sub.Alias,
				Scope:                    sub.Alias,
				WorkflowTemplateSelector: sub.Template.ID,
			},
		}
		for _, need := range compiled.Needs {
			rec.Schedule.Dependencies = append(rec.Schedule.Dependencies, jobstore.Dependency{Artifact: need})
		}
		rec.Schedule.Locks = compiled.Locks
		for _, a := range compiled.After {
			rec.Schedule.After = append(rec.Schedule.After, artifact.AfterDependency{JobID: a.JobID, Policy: a.Policy})
		}

		if err := o.Store.Write(jobID, rec); err != nil {
			return jobIDs, fmt.Errorf("orchestrator: writing job %s: %w", jobID, err)
		}
		jobIDs = append(jobIDs, jobID)
	}

	if err := o.drive(ctx, nodes, sub.WorkDir); err != nil {
		return jobIDs, err
	}
	return jobIDs, nil
}

// drive alternates EvaluateAll passes with executing every job that becomes
// running, until a pass executes nothing new. Each node's handler
// eventually calls Scheduler.Complete, which itself reruns admission (spec
// §4.3 "Completion"), so a chain of after-edges fully unwinds within one
// drive call without the caller re-invoking Run.
func (o *Orchestrator) drive(ctx context.Context, nodes map[string]*template.CompiledWorkflowNode, workDir string) error {
	executed := make(map[string]bool, len(nodes))
	// Bound the number of rounds by one per node plus slack: every round
	// executes at least one new job or the loop exits, so this can never
	// spin indefinitely on a well-formed (acyclic) template.
	for round := 0; round <= len(nodes)+1; round++ {
		if _, err := o.Scheduler.EvaluateAll(ctx); err != nil {
			return fmt.Errorf("orchestrator: admission pass: %w", err)
		}

		progressed := false
		for jobID, node := range nodes {
			if executed[jobID] {
				continue
			}
			rec, err := o.Store.Read(jobID)
			if err != nil {
				return fmt.Errorf("orchestrator: reading job %s: %w", jobID, err)
			}
			if rec.Status != jobstore.StatusRunning {
				continue
			}

			executed[jobID] = true
			progressed = true

			var pinned jobstore.PinnedHead
			if rec.Schedule.PinnedHead != nil {
				pinned = *rec.Schedule.PinnedHead
			}
			log.Printf("executing job %s (node %s)", jobID, node.NodeID)
			o.Runtime.Execute(ctx, jobID, node, runtime.NodeArgs{
				Params:     node.Args,
				WorkDir:    workDir,
				PinnedHead: pinned,
				StdoutPath: rec.StdoutPath,
				JobDir:     o.Store.JobDir(jobID),
			})
		}

		if !progressed {
			return nil
		}
	}
	return nil
}
