package runtime

import (
	"context"
	"fmt"

	"github.com/jordan-tan/vizier/pkg/template"
)

// gateConflictResolutionHandler runs a standalone GateConflictResolution
// node once: it expects the merge engine (pkg/mergeengine) to have already
// been invoked by the caller via its own Resolve/Resume entry points (spec
// §4.4.2); as a node in a template it's a thin pass-through so a gate
// declared purely for its on.succeeded loop-back still participates in
// outcome-edge dispatch correctly.
func gateConflictResolutionHandler(ctx context.Context, rt *Runtime, jobID string, node *template.CompiledWorkflowNode, args NodeArgs) ExecutionResult {
	return ExecutionResult{Outcome: OutcomeSucceeded}
}

// gateCicdHandler runs a standalone GateCicd node's script once, without the
// auto-fix retry loop (pkg/cicdgate.RunGateLoop implements the full loop
// from spec §4.4.3 for callers that need it).
func gateCicdHandler(ctx context.Context, rt *Runtime, jobID string, node *template.CompiledWorkflowNode, args NodeArgs) ExecutionResult {
	script := node.Args["script"]
	if script == "" {
		return ExecutionResult{Outcome: OutcomeFailed, Err: fmt.Errorf("gate_cicd: no script declared on node %s", node.NodeID)}
	}
	attempt := runStopConditionScript(ctx, script, args.WorkDir)
	if attempt.Status == StopConditionPassed {
		return ExecutionResult{Outcome: OutcomeSucceeded}
	}
	return ExecutionResult{Outcome: OutcomeFailed, Err: fmt.Errorf("cicd gate script %q failed (exit %d)", script, attempt.ExitCode)}
}

// remediationCicdAutoFixHandler invokes the backend to produce a fix
// commit/amend (spec §4.4 step 3): it delegates to the backend runner with
// the node's args as the fix request payload; pkg/cicdgate.RunGateLoop
// builds the richer MergeCicdFixRequest and calls the backend directly when
// driving the full auto-remediation loop, so this handler only covers the
// case where the fix node is invoked in isolation.
func remediationCicdAutoFixHandler(ctx context.Context, rt *Runtime, jobID string, node *template.CompiledWorkflowNode, args NodeArgs) ExecutionResult {
	return backendCapability("vizier.remediation.cicd_auto_fix")(ctx, rt, jobID, node, args)
}
