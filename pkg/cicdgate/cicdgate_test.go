package cicdgate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jordan-tan/vizier/pkg/template"
)

func writeMarker(dir string) error {
	return os.WriteFile(filepath.Join(dir, "fixed.marker"), []byte("ok"), 0o644)
}

func gateTemplate(script string, autoResolve bool, budget uint32, retryEdge bool) *template.Template {
	on := template.OutcomeEdges{}
	if retryEdge {
		on.Failed = []string{"merge_gate_cicd"}
	}
	return &template.Template{
		ID: "merge",
		Nodes: []template.Node{
			{
				ID:   "merge_gate_cicd",
				Uses: "vizier.gate.cicd",
				Gates: []template.Gate{
					{Kind: template.GateKindCicd, Script: script, AutoResolve: autoResolve, Policy: template.GateRetry},
				},
				Retry: template.RetryPolicy{Mode: template.RetryUntilGate, Budget: budget},
				On:    on,
			},
		},
	}
}

func TestResolvePolicy(t *testing.T) {
	tmpl := gateTemplate("./ci.sh", true, 2, true)
	policy, err := ResolvePolicy(tmpl)
	require.NoError(t, err)
	require.Equal(t, "./ci.sh", policy.Script)
	require.True(t, policy.AutoResolve)
	require.EqualValues(t, 2, policy.Retries)
	require.True(t, policy.RetryPathEnabled)
}

func TestRunGateLoopPassesFirstTry(t *testing.T) {
	policy := Policy{Script: "exit 0"}
	out, err := RunGateLoop(context.Background(), policy, t.TempDir(), true, nil)
	require.NoError(t, err)
	require.True(t, out.Passed)
	require.EqualValues(t, 1, out.Attempts)
}

func TestRunGateLoopFailsWithoutAutoResolve(t *testing.T) {
	policy := Policy{Script: "exit 1", AutoResolve: false}
	out, err := RunGateLoop(context.Background(), policy, t.TempDir(), true, nil)
	require.NoError(t, err)
	require.False(t, out.Passed)
	require.EqualValues(t, 1, out.Attempts)
	require.Empty(t, out.Fixes)
}

func TestRunGateLoopFailsWithoutBackend(t *testing.T) {
	policy := Policy{Script: "exit 1", AutoResolve: true, RetryPathEnabled: true, Retries: 3}
	out, err := RunGateLoop(context.Background(), policy, t.TempDir(), false, nil)
	require.NoError(t, err)
	require.False(t, out.Passed)
}

func TestRunGateLoopAppliesFixesUntilBudgetExhausted(t *testing.T) {
	policy := Policy{Script: "exit 1", AutoResolve: true, RetryPathEnabled: true, Retries: 2}
	calls := 0
	fix := func(ctx context.Context, req FixRequest) (*FixRecord, error) {
		calls++
		return &FixRecord{CommitOID: "fix-oid"}, nil
	}
	out, err := RunGateLoop(context.Background(), policy, t.TempDir(), true, fix)
	require.NoError(t, err)
	require.False(t, out.Passed)
	require.Equal(t, 2, calls)
	require.Len(t, out.Fixes, 2)
	require.EqualValues(t, 3, out.Attempts) // initial + 2 retries
}

func TestRunGateLoopRecoversAfterFix(t *testing.T) {
	workDir := t.TempDir()
	policy := Policy{Script: "test -f fixed.marker", AutoResolve: true, RetryPathEnabled: true, Retries: 3}
	fixCalls := 0
	fix := func(ctx context.Context, req FixRequest) (*FixRecord, error) {
		fixCalls++
		require.NoError(t, writeMarker(workDir))
		return &FixRecord{CommitOID: "fix-oid"}, nil
	}
	out, err := RunGateLoop(context.Background(), policy, workDir, true, fix)
	require.NoError(t, err)
	require.True(t, out.Passed)
	require.EqualValues(t, 2, out.Attempts)
	require.Equal(t, 1, fixCalls)
	require.Len(t, out.Fixes, 1)
}

func TestClipTruncatesLongOutput(t *testing.T) {
	long := make([]byte, clipBytes+500)
	for i := range long {
		long[i] = 'x'
	}
	clipped := clip(string(long))
	require.Less(t, len(clipped), len(long))
	require.Contains(t, clipped, "truncated")
}

func TestClipLeavesShortOutputUntouched(t *testing.T) {
	require.Equal(t, "short", clip("short"))
}
