package cliapp

import (
	"context"
	"fmt"
	"time"

	"github.com/jordan-tan/vizier/internal/orchestrator"
	"github.com/jordan-tan/vizier/internal/vizerr"
	"github.com/jordan-tan/vizier/pkg/jobstore"
	"github.com/jordan-tan/vizier/pkg/runtime"
	"github.com/jordan-tan/vizier/pkg/scheduler"
	"github.com/jordan-tan/vizier/pkg/template"
)

// CommandResult is the outcome cmd/vizier's thin RunE shells report to the
// operator: the job ids created and the terminal status of the one they
// should care about.
type CommandResult struct {
	JobIDs     []string
	LastStatus jobstore.Status
}

func (d *Deps) runSubmission(ctx context.Context, sub orchestrator.Submission) (CommandResult, error) {
	jobIDs, err := d.Orchestrator.Run(ctx, sub)
	if err != nil {
		return CommandResult{JobIDs: jobIDs}, vizerr.New(vizerr.KindTemplateValidation, err)
	}
	res := CommandResult{JobIDs: jobIDs}
	if len(jobIDs) > 0 {
		rec, err := d.Orchestrator.Store.Read(jobIDs[len(jobIDs)-1])
		if err == nil {
			res.LastStatus = rec.Status
		}
	}
	return res, nil
}

// Save runs `vizier save <message>` (spec §1): a single job capturing the
// current worktree as a patch artifact.
func (d *Deps) Save(ctx context.Context, message string) (CommandResult, error) {
	tmpl := SaveTemplate(message)
	return d.runSubmission(ctx, orchestrator.Submission{
		Template: tmpl,
		Alias:    "save",
		Argv:     []string{"vizier", "save", message},
		WorkDir:  d.RepoRoot,
	})
}

// Draft runs `vizier draft <slug> <prompt>`: generates a plan branch/doc/commit
// range for slug.
func (d *Deps) Draft(ctx context.Context, slug, prompt string) (CommandResult, error) {
	planBranch := "plan/" + slug
	tmpl := DraftTemplate(slug, planBranch, prompt)
	return d.runSubmission(ctx, orchestrator.Submission{
		Template: tmpl,
		Alias:    "draft",
		Argv:     []string{"vizier", "draft", slug, prompt},
		WorkDir:  d.RepoRoot,
	})
}

// Review runs `vizier review <slug> [--apply]`: critiques (and optionally
// applies fixes to) an already-drafted plan branch.
func (d *Deps) Review(ctx context.Context, slug string, applyFixes bool) (CommandResult, error) {
	planBranch := "plan/" + slug
	tmpl := ReviewTemplate(slug, planBranch, applyFixes)
	return d.runSubmission(ctx, orchestrator.Submission{
		Template: tmpl,
		Alias:    "review",
		Argv:     []string{"vizier", "review", slug},
		WorkDir:  d.RepoRoot,
	})
}

// Approve runs `vizier approve <slug> --stop-condition <script> [--retry-budget n]`
// (spec §4.4.1): applies the drafted plan once, then retries against the
// stop-condition script until it passes or the retry budget is exhausted.
// Unlike Save/Draft/Review this does not go through the orchestrator's
// generic node dispatch, which only single-shots a gate script — the retry
// loop itself lives in runtime.RunApproveLoop. Each retry attempt gets its
// own job record so `jobs list` shows every attempt.
func (d *Deps) Approve(ctx context.Context, slug, stopConditionScript string, retryBudget uint32) (runtime.ApproveStopConditionReport, error) {
	planBranch := "plan/" + slug
	tmpl := ApproveTemplate(slug, planBranch, stopConditionScript, retryBudget)
	if err := tmpl.Validate(); err != nil {
		return runtime.ApproveStopConditionReport{}, vizerr.New(vizerr.KindTemplateValidation, err)
	}

	applyNode, _, err := template.FindApproveLoopNodes(tmpl)
	if err != nil {
		return runtime.ApproveStopConditionReport{}, vizerr.New(vizerr.KindTemplateValidation, err)
	}

	applyOnce := func(ctx context.Context) error {
		jobID := scheduler.NewJobID()
		compiled, err := template.CompileNode(tmpl, applyNode.ID, map[string]string{})
		if err != nil {
			return err
		}

		rec := &jobstore.Record{
			ID:        jobID,
			Status:    jobstore.StatusQueued,
			Argv:      []string{"vizier", "approve", slug},
			CreatedAt: time.Now(),
			Metadata: jobstore.Metadata{
				CommandAlias:             "approve",
				Scope:                    "approve",
				WorkflowTemplateSelector: tmpl.ID,
			},
		}
		for _, need := range compiled.Needs {
			rec.Schedule.Dependencies = append(rec.Schedule.Dependencies, jobstore.Dependency{Artifact: need})
		}
		rec.Schedule.Locks = compiled.Locks
		if err := d.Orchestrator.Store.Write(jobID, rec); err != nil {
			return fmt.Errorf("cliapp: writing approve attempt job %s: %w", jobID, err)
		}

		if _, err := d.Scheduler.EvaluateAll(ctx); err != nil {
			return fmt.Errorf("cliapp: admitting approve attempt job %s: %w", jobID, err)
		}
		res := d.Orchestrator.Runtime.Execute(ctx, jobID, compiled, runtime.NodeArgs{
			Params:  compiled.Args,
			WorkDir: d.RepoRoot,
		})
		if res.Outcome != runtime.OutcomeSucceeded {
			if res.Err != nil {
				return res.Err
			}
			return fmt.Errorf("approve attempt job %s finished with outcome %s", jobID, res.Outcome)
		}
		return nil
	}

	report, err := runtime.RunApproveLoop(ctx, tmpl, d.RepoRoot, applyOnce)
	if err != nil {
		return report, vizerr.New(vizerr.KindGateFailure, err).WithPlan(slug)
	}
	return report, nil
}
