package runtime

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/jordan-tan/vizier/pkg/template"
)

// StopConditionAttemptStatus is the outcome tag of a single stop-condition
// script invocation (SPEC_FULL.md, Supplemented Features).
type StopConditionAttemptStatus string

const (
	StopConditionNone   StopConditionAttemptStatus = "none"
	StopConditionPassed StopConditionAttemptStatus = "passed"
	StopConditionFailed StopConditionAttemptStatus = "failed"
)

// StopConditionAttempt records one run of the approve loop's stop-condition
// script: stdout, stderr, exit status (spec §4.4.1 "Capture every attempt's
// StopConditionScriptResult").
type StopConditionAttempt struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Status   StopConditionAttemptStatus
}

// ApproveStopConditionReport accumulates every attempt of the approve
// stop-condition loop (SPEC_FULL.md, Supplemented Features), surfaced on
// `jobs show --json` for approve-template jobs.
type ApproveStopConditionReport struct {
	Attempts []StopConditionAttempt
}

func (r *ApproveStopConditionReport) Count() int { return len(r.Attempts) }

// gateStopConditionHandler runs a standalone GateStopCondition node once
// (used when a template invokes the gate capability directly, outside the
// orchestrated RunApproveLoop below).
func gateStopConditionHandler(ctx context.Context, rt *Runtime, jobID string, node *template.CompiledWorkflowNode, args NodeArgs) ExecutionResult {
	script := node.Args["script"]
	if script == "" {
		return ExecutionResult{Outcome: OutcomeFailed, Err: fmt.Errorf("gate_stop_condition: no script declared on node %s", node.NodeID)}
	}
	attempt := runStopConditionScript(ctx, script, args.WorkDir)
	if attempt.Status == StopConditionPassed {
		return ExecutionResult{Outcome: OutcomeSucceeded}
	}
	return ExecutionResult{Outcome: OutcomeFailed, Err: fmt.Errorf("stop condition script %q failed (exit %d)", script, attempt.ExitCode)}
}

func runStopConditionScript(ctx context.Context, script, workDir string) StopConditionAttempt {
	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	cmd.Dir = workDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	status := StopConditionPassed
	if err != nil {
		status = StopConditionFailed
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	return StopConditionAttempt{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode, Status: status}
}

// RunApproveLoop executes spec §4.4.1's full approve stop-condition loop: it
// runs applyOnce (the vizier.plan.apply_once capability handler) once, then
// the gate's stop script; on failure, retries applyOnce up to the gate's
// until_gate budget as long as the retry edge is enabled (gate.on.failed
// contains the apply node's id).
//
// applyOnce is injected by the caller (normally a thin closure invoking
// Runtime.Execute for the compiled apply node) so this function stays
// decoupled from how the apply node's own compiled form is resolved.
func RunApproveLoop(ctx context.Context, tmpl *template.Template, workDir string, applyOnce func(ctx context.Context) error) (ApproveStopConditionReport, error) {
	applyNode, gateNode, err := template.FindApproveLoopNodes(tmpl)
	if err != nil {
		return ApproveStopConditionReport{}, err
	}
	script, ok := template.ExtractScriptGate(gateNode, applyNode)
	if !ok {
		return ApproveStopConditionReport{}, fmt.Errorf("approve loop: no stop-condition script declared on gate or apply node")
	}

	budget := template.RetryBudget(gateNode)
	retryEnabled := applyNode != nil && template.RetryEdgeEnabled(gateNode, applyNode.ID)

	var report ApproveStopConditionReport

	if err := applyOnce(ctx); err != nil {
		return report, fmt.Errorf("approve loop: apply_once failed: %w", err)
	}

	remaining := budget
	for {
		attempt := runStopConditionScript(ctx, script, workDir)
		report.Attempts = append(report.Attempts, attempt)
		if attempt.Status == StopConditionPassed {
			return report, nil
		}

		if !retryEnabled {
			return report, fmt.Errorf("stop condition script %q did not succeed; rerun `vizier approve --retry-budget <n>` after fixing the plan, or inspect %s", script, workDir)
		}
		if remaining == 0 {
			return report, fmt.Errorf("script did not succeed after %d attempt(s); inspect %s for partial changes", len(report.Attempts), workDir)
		}

		remaining--
		log.Printf("approve loop: stop condition failed, retrying (%d attempt(s) remaining)", remaining)
		if err := applyOnce(ctx); err != nil {
			return report, fmt.Errorf("approve loop: apply_once retry failed: %w", err)
		}
	}
}
