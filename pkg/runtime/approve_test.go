package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jordan-tan/vizier/pkg/template"
)

func approveLoopTemplate(budget uint32, retryEnabled bool) *template.Template {
	onFailed := []string{}
	if retryEnabled {
		onFailed = []string{"approve_apply_once"}
	}
	return &template.Template{
		ID: "approve",
		Nodes: []template.Node{
			{ID: "approve_apply_once", Uses: "vizier.plan.apply_once"},
			{
				ID:   "approve_gate_stop_condition",
				Uses: "vizier.gate.stop_condition",
				Gates: []template.Gate{
					{Kind: template.GateKindScript, Script: "exit 0", Policy: template.GateRetry},
				},
				Retry: template.RetryPolicy{Mode: template.RetryUntilGate, Budget: budget},
				On:    template.OutcomeEdges{Failed: onFailed},
			},
		},
	}
}

func TestRunApproveLoopSucceedsFirstTry(t *testing.T) {
	tmpl := approveLoopTemplate(2, true)
	calls := 0
	report, err := RunApproveLoop(context.Background(), tmpl, t.TempDir(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Len(t, report.Attempts, 1)
	require.Equal(t, StopConditionPassed, report.Attempts[0].Status)
}

func TestRunApproveLoopFailsWithoutRetryEdge(t *testing.T) {
	tmpl := approveLoopTemplate(2, false)
	tmpl.Nodes[1].Gates[0].Script = "exit 1"

	_, err := RunApproveLoop(context.Background(), tmpl, t.TempDir(), func(ctx context.Context) error {
		return nil
	})
	require.Error(t, err)
}

func TestRunApproveLoopExhaustsBudget(t *testing.T) {
	tmpl := approveLoopTemplate(1, true)
	tmpl.Nodes[1].Gates[0].Script = "exit 1"

	calls := 0
	report, err := RunApproveLoop(context.Background(), tmpl, t.TempDir(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "did not succeed after")
	require.Equal(t, 2, calls) // initial + 1 retry
	require.Len(t, report.Attempts, 2)
}

func TestRunApproveLoopPropagatesApplyOnceError(t *testing.T) {
	tmpl := approveLoopTemplate(1, true)
	_, err := RunApproveLoop(context.Background(), tmpl, t.TempDir(), func(ctx context.Context) error {
		return errors.New("boom")
	})
	require.ErrorContains(t, err, "boom")
}
