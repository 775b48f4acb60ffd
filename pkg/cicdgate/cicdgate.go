// Package cicdgate implements the CI/CD Gate auto-remediation loop from
// spec §4.4.3: run a script, and on failure, optionally hand the backend a
// bounded excerpt of the failure and retry up to a budget.
package cicdgate

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/jordan-tan/vizier/pkg/backendport"
	"github.com/jordan-tan/vizier/pkg/logger"
	"github.com/jordan-tan/vizier/pkg/template"
)

var log = logger.New("cicdgate:loop")

// clipBytes bounds how much of a script's stdout/stderr is handed to the
// backend in a fix request, keeping prompts tractable (spec §4.4.3 "clip(...)
// truncates each stream to a bounded size").
const clipBytes = 4000

// clip truncates s to clipBytes, marking the cut with a suffix so the
// backend knows the excerpt isn't complete.
func clip(s string) string {
	if len(s) <= clipBytes {
		return s
	}
	return s[:clipBytes] + "\n... (truncated)"
}

// Policy is the CI/CD gate's extracted configuration (spec §4.4.3 "Gate
// policy extraction").
type Policy struct {
	Script           string
	AutoResolve      bool
	Retries          uint32
	RetryPathEnabled bool
}

// ResolvePolicy locates the CI/CD gate node by canonical id first,
// capability tag second (SPEC_FULL.md "CI/CD gate sentinel id and auto-fix
// node shape"), and extracts its script/auto_resolve/retries/retry path.
func ResolvePolicy(t *template.Template) (Policy, error) {
	node, err := template.FindCicdGateNode(t)
	if err != nil {
		return Policy{}, err
	}

	var script string
	var autoResolve bool
	for _, g := range node.Gates {
		if g.Kind == template.GateKindCicd {
			script = g.Script
			autoResolve = g.AutoResolve
			break
		}
	}
	if script == "" {
		return Policy{}, fmt.Errorf("cicdgate: node %s has no WorkflowGate::Cicd declared", node.ID)
	}

	return Policy{
		Script:           script,
		AutoResolve:      autoResolve,
		Retries:          template.RetryBudget(node),
		RetryPathEnabled: template.CicdRetryPathEnabled(t, node),
	}, nil
}

// ScriptResult is a single run of the CI/CD script.
type ScriptResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Success  bool
}

func runScript(ctx context.Context, script, workDir string) (ScriptResult, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	cmd.Dir = workDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return ScriptResult{Stdout: stdout.String(), Stderr: stderr.String(), Success: true}, nil
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return ScriptResult{}, fmt.Errorf("cicdgate: running script %q: %w", script, err)
	}
	return ScriptResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitErr.ExitCode()}, nil
}

// FixRecord is one successful auto-fix attempt's outcome, either a new
// commit (legacy merges) or an amended HEAD (squash path) (spec §4.4.3
// "Fixes either commit... or amend HEAD").
type FixRecord struct {
	CommitOID string
	Amended   bool
}

// Outcome is the terminal result of RunGateLoop.
type Outcome struct {
	Skipped  bool
	Passed   bool
	Attempts uint32
	Fixes    []FixRecord
	Last     ScriptResult
}

// AttemptAutoFix invokes the backend with a MergeCicdFixRequest-shaped
// request and applies the result: commits the fix (legacy merges) or amends
// HEAD (squash path). It returns nil, nil if the backend reports no file
// changes (spec §4.4.3 "Backend remediation reported no file changes").
type AttemptAutoFix func(ctx context.Context, req FixRequest) (*FixRecord, error)

// FixRequest mirrors the original's MergeCicdFixRequest (SPEC_FULL.md
// Supplemented Features).
type FixRequest struct {
	Script      string
	Attempt     uint32
	MaxAttempts uint32
	ExitCode    int
	Stdout      string
	Stderr      string
}

// RunGateLoop drives spec §4.4.3's attempts/fix_attempts loop: run the
// script; on failure, if auto-remediation is configured and the backend is
// agent-capable, request a fix and retry up to policy.Retries times.
func RunGateLoop(ctx context.Context, policy Policy, workDir string, backendReady bool, attemptAutoFix AttemptAutoFix) (Outcome, error) {
	if policy.Script == "" {
		return Outcome{Skipped: true}, nil
	}

	var attempts uint32
	var fixAttempts uint32
	var fixes []FixRecord

	for {
		attempts++
		result, err := runScript(ctx, policy.Script, workDir)
		if err != nil {
			return Outcome{}, err
		}
		log.Printf("cicd gate attempt %d: success=%v exit=%d", attempts, result.Success, result.ExitCode)

		if result.Success {
			return Outcome{Passed: true, Attempts: attempts, Fixes: fixes, Last: result}, nil
		}

		if !policy.AutoResolve || !policy.RetryPathEnabled {
			if policy.AutoResolve && !policy.RetryPathEnabled {
				log.Printf("cicd gate auto-remediation is configured but on.failed does not route through a node that returns to the gate")
			}
			return Outcome{Attempts: attempts, Fixes: fixes, Last: result}, nil
		}

		if !backendReady {
			log.Printf("cicd gate auto-remediation requested but no agent-capable backend is configured")
			return Outcome{Attempts: attempts, Fixes: fixes, Last: result}, nil
		}

		if fixAttempts >= policy.Retries {
			log.Printf("cicd gate auto-fix budget (%d) exhausted", policy.Retries)
			return Outcome{Attempts: attempts, Fixes: fixes, Last: result}, nil
		}

		fixAttempts++
		req := FixRequest{
			Script:      policy.Script,
			Attempt:     fixAttempts,
			MaxAttempts: policy.Retries,
			ExitCode:    result.ExitCode,
			Stdout:      clip(result.Stdout),
			Stderr:      clip(result.Stderr),
		}
		record, err := attemptAutoFix(ctx, req)
		if err != nil {
			return Outcome{}, fmt.Errorf("cicdgate: auto-fix attempt %d: %w", fixAttempts, err)
		}
		if record == nil {
			log.Printf("backend remediation reported no file changes")
			continue
		}
		fixes = append(fixes, *record)
	}
}

// FixVCS is the narrow VCS surface BackendAutoFix needs: read HEAD (to
// report a legacy-merge fix commit the backend already made) or amend it
// (to fold a squash-path fix into the single pending implementation
// commit).
type FixVCS interface {
	PeelBranchToCommit(ctx context.Context, name string) (string, error)
	AmendHeadCommit(ctx context.Context, msg string) (string, error)
}

// BackendAutoFix builds an AttemptAutoFix that asks the backend to make a
// fix and, on success, either records the commit the backend already made
// (legacy merges) or amends HEAD to fold the fix into the pending
// implementation commit (squash path) (spec §4.4.3 "Fixes either commit...
// or amend HEAD").
func BackendAutoFix(backend backendport.Runner, vcs FixVCS, squash bool, workDir string) AttemptAutoFix {
	return func(ctx context.Context, req FixRequest) (*FixRecord, error) {
		resp, err := backend.Run(ctx, backendport.Request{
			Capability: "vizier.remediation.cicd_auto_fix",
			WorkDir:    workDir,
			Metadata: map[string]string{
				"script":       req.Script,
				"attempt":      fmt.Sprintf("%d", req.Attempt),
				"max_attempts": fmt.Sprintf("%d", req.MaxAttempts),
				"exit_code":    fmt.Sprintf("%d", req.ExitCode),
				"stdout":       req.Stdout,
				"stderr":       req.Stderr,
			},
		})
		if err != nil {
			return nil, err
		}
		if resp.Content == "" {
			return nil, nil
		}

		if squash {
			oid, err := vcs.AmendHeadCommit(ctx, "")
			if err != nil {
				return nil, err
			}
			return &FixRecord{CommitOID: oid, Amended: true}, nil
		}

		oid, err := vcs.PeelBranchToCommit(ctx, "HEAD")
		if err != nil {
			return nil, err
		}
		return &FixRecord{CommitOID: oid}, nil
	}
}
