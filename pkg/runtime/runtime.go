// Package runtime implements the Workflow Runtime from spec §4.4: it
// executes one compiled node end-to-end — preconditions, gates, capability
// dispatch, artifact publication, and outcome-edge dispatch — against the
// VCS and backend ports.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jordan-tan/vizier/pkg/artifact"
	"github.com/jordan-tan/vizier/pkg/backendport"
	"github.com/jordan-tan/vizier/pkg/constants"
	"github.com/jordan-tan/vizier/pkg/jobstore"
	"github.com/jordan-tan/vizier/pkg/logger"
	"github.com/jordan-tan/vizier/pkg/scheduler"
	"github.com/jordan-tan/vizier/pkg/template"
	"github.com/jordan-tan/vizier/pkg/vcsport"
)

var log = logger.New("runtime:exec")

// Outcome is the closed set of node execution results (spec §3.4 outcome
// buckets).
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeBlocked   Outcome = "blocked"
	OutcomeCancelled Outcome = "cancelled"
)

func (o Outcome) jobStatus() jobstore.Status {
	switch o {
	case OutcomeSucceeded:
		return jobstore.StatusSucceeded
	case OutcomeBlocked:
		return jobstore.StatusBlockedByDependency
	case OutcomeCancelled:
		return jobstore.StatusCancelled
	default:
		return jobstore.StatusFailed
	}
}

// Runtime executes compiled workflow nodes against a backend runner and VCS
// port, reporting completion back to the scheduler (spec §4.4).
type Runtime struct {
	Scheduler *scheduler.Scheduler
	Backend   backendport.Runner
	VCS       vcsport.Port

	// PinnedHead, when set, is recorded on jobs as they run; resolved by the
	// caller (normally the current branch + HEAD oid) before invocation.
	PinnedHead func(ctx context.Context) (jobstore.PinnedHead, error)
}

// New returns a Runtime wired to the given collaborators.
func New(sched *scheduler.Scheduler, backend backendport.Runner, vcs vcsport.Port) *Runtime {
	return &Runtime{Scheduler: sched, Backend: backend, VCS: vcs}
}

// ExecutionResult is what Execute reports after running one node, used by
// the caller to drive outcome-edge dispatch (spec §4.4 step 5).
type ExecutionResult struct {
	Outcome     Outcome
	Artifacts   []artifact.Artifact
	Err         error
	Usage       backendport.Usage
	SessionPath string
}

// Execute runs one compiled node end-to-end (spec §4.4 steps 1-4): checks
// preconditions, invokes the capability handler, and reports the outcome to
// the scheduler via Complete. Step 5 (outcome-edge dispatch) and step 6
// (retry policy) are the caller's responsibility — they require the full
// template and job-creation capability that belongs to the orchestrator
// driving the scheduler, not to a single node's execution.
func (rt *Runtime) Execute(ctx context.Context, jobID string, node *template.CompiledWorkflowNode, args NodeArgs) ExecutionResult {
	if err := checkPreconditions(ctx, rt.VCS, node.Preconditions); err != nil {
		log.Printf("job %s: precondition failed: %v", jobID, err)
		return rt.finish(ctx, jobID, node, ExecutionResult{Outcome: OutcomeBlocked, Err: err})
	}

	handler, ok := handlers[node.Capability]
	if !ok {
		err := fmt.Errorf("no capability handler registered for %q", node.Capability)
		return rt.finish(ctx, jobID, node, ExecutionResult{Outcome: OutcomeFailed, Err: err})
	}

	result := handler(ctx, rt, jobID, node, args)
	return rt.finish(ctx, jobID, node, result)
}

func (rt *Runtime) finish(ctx context.Context, jobID string, node *template.CompiledWorkflowNode, result ExecutionResult) ExecutionResult {
	outcome, artifacts, err := result.Outcome, result.Artifacts, result.Err
	var exitCode *int
	if outcome == OutcomeSucceeded {
		zero := 0
		exitCode = &zero
	} else if outcome == OutcomeFailed {
		one := 1
		exitCode = &one
	}

	bucketArtifacts := bucketFor(node.Produces, outcome)
	published := artifact.Dedup(append(append([]artifact.Artifact(nil), bucketArtifacts...), artifacts...))

	completeErr := rt.Scheduler.Complete(ctx, jobID, scheduler.Outcome{
		Status:      outcome.jobStatus(),
		ExitCode:    exitCode,
		Artifacts:   published,
		Usage:       result.Usage,
		SessionPath: result.SessionPath,
	})
	if completeErr != nil {
		log.Printf("job %s: failed to record completion: %v", jobID, completeErr)
	}

	return ExecutionResult{Outcome: outcome, Artifacts: published, Err: err, Usage: result.Usage, SessionPath: result.SessionPath}
}

func bucketFor(p template.OutcomeArtifacts, outcome Outcome) []artifact.Artifact {
	switch outcome {
	case OutcomeSucceeded:
		return p.Succeeded
	case OutcomeFailed:
		return p.Failed
	case OutcomeBlocked:
		return p.Blocked
	case OutcomeCancelled:
		return p.Cancelled
	default:
		return nil
	}
}

// NodeArgs bundles the per-invocation values a capability handler needs
// beyond the compiled node itself: resolved template params, the job's
// worktree, and the pinned head recorded at admission.
type NodeArgs struct {
	Params     map[string]string
	WorkDir    string
	PinnedHead jobstore.PinnedHead

	// StdoutPath and JobDir, when set, let capability handlers persist a
	// backend response's content to the job's captured stdout stream and
	// session record (spec §4.5 "token-usage aggregation").
	StdoutPath string
	JobDir     string
}

// HandlerFunc executes one capability against the runtime's ports.
type HandlerFunc func(ctx context.Context, rt *Runtime, jobID string, node *template.CompiledWorkflowNode, args NodeArgs) ExecutionResult

// handlers is the closed dispatch table keyed by capability tag (spec §9:
// "the runtime dispatches on the tag, not on string labels").
var handlers = map[template.Capability]HandlerFunc{
	template.CapGitSaveWorktreePatch:    backendCapability("vizier.git.save_worktree_patch"),
	template.CapPlanGenerateDraftPlan:   backendCapability("vizier.plan.generate_draft_plan"),
	template.CapPlanApplyOnce:           backendCapability("vizier.plan.apply_once"),
	template.CapReviewCritiqueOrFix:     backendCapability("vizier.review.critique_or_fix"),
	template.CapGitIntegratePlanBranch:  backendCapability("vizier.git.integrate_plan_branch"),
	template.CapPatchExecutePipeline:    backendCapability("vizier.patch.execute_pipeline"),
	template.CapBuildMaterializeStep:    backendCapability("vizier.build.materialize_step"),
	template.CapReviewApplyFixesOnly:    backendCapability("vizier.review.apply_fixes_only"),
	template.CapExecCustomCommand:       execCustomCommand,
	template.CapInternalTerminalSink:    internalTerminalSink,
	template.CapGateStopCondition:       gateStopConditionHandler,
	template.CapGateConflictResolution:  gateConflictResolutionHandler,
	template.CapGateCicd:                gateCicdHandler,
	template.CapRemediationCicdAutoFix:  remediationCicdAutoFixHandler,
}

// sessionRecord is the per-job backend session persisted under
// constants.SessionFileName: the capability invoked, its returned content,
// and the usage it reported (spec §4.5 "token-usage aggregation").
type sessionRecord struct {
	Capability string            `json:"capability"`
	Content    string            `json:"content"`
	Usage      backendport.Usage `json:"usage"`
}

// backendCapability builds a HandlerFunc that dispatches straight to the
// backend runner with a request built from args/params/pinned head (spec
// §4.4 step 3, first bullet): GitSaveWorktreePatch, PlanApplyOnce,
// ReviewCritiqueOrFix, GitIntegratePlanBranch, PatchExecutePipeline,
// BuildMaterializeStep, ReviewApplyFixesOnly all share this shape. The
// response's content is written to the job's stdout log and a session
// record; its usage is returned for the scheduler to accumulate onto the
// job record.
func backendCapability(capabilityLabel string) HandlerFunc {
	return func(ctx context.Context, rt *Runtime, jobID string, node *template.CompiledWorkflowNode, args NodeArgs) ExecutionResult {
		req := backendport.Request{
			Capability: capabilityLabel,
			WorkDir:    args.WorkDir,
			Metadata:   node.Args,
		}
		resp, err := rt.Backend.Run(ctx, req)
		if err != nil {
			return ExecutionResult{Outcome: OutcomeFailed, Err: fmt.Errorf("backend capability %s: %w", capabilityLabel, err)}
		}

		if args.StdoutPath != "" && resp.Content != "" {
			if writeErr := os.WriteFile(args.StdoutPath, []byte(resp.Content), 0o644); writeErr != nil {
				log.Printf("job %s: writing backend content to %s: %v", jobID, args.StdoutPath, writeErr)
			}
		}

		var sessionPath string
		if args.JobDir != "" {
			payload, marshalErr := json.MarshalIndent(sessionRecord{Capability: capabilityLabel, Content: resp.Content, Usage: resp.Usage}, "", "  ")
			if marshalErr != nil {
				log.Printf("job %s: encoding session record: %v", jobID, marshalErr)
			} else {
				path := filepath.Join(args.JobDir, constants.SessionFileName)
				if writeErr := os.WriteFile(path, payload, 0o644); writeErr != nil {
					log.Printf("job %s: writing session record to %s: %v", jobID, path, writeErr)
				} else {
					sessionPath = path
				}
			}
		}

		return ExecutionResult{Outcome: OutcomeSucceeded, Usage: resp.Usage, SessionPath: sessionPath}
	}
}

func internalTerminalSink(ctx context.Context, rt *Runtime, jobID string, node *template.CompiledWorkflowNode, args NodeArgs) ExecutionResult {
	return ExecutionResult{Outcome: OutcomeSucceeded}
}
