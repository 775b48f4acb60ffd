package template

import "strings"

// Capability is the closed tagged-sum of dispatchable node behaviors (spec
// §3.1). Every node's Uses label resolves to exactly one Capability; an
// unrecognized vizier.* label is a compile error, while any other label
// falls back to ExecCustomCommand so that third-party or ad hoc steps still
// dispatch (mirrors the original's `WorkflowCapability::from_uses_label`).
type Capability string

const (
	CapGitSaveWorktreePatch   Capability = "git_save_worktree_patch"
	CapPlanGenerateDraftPlan  Capability = "plan_generate_draft_plan"
	CapPlanApplyOnce          Capability = "plan_apply_once"
	CapReviewCritiqueOrFix    Capability = "review_critique_or_fix"
	CapGitIntegratePlanBranch Capability = "git_integrate_plan_branch"
	CapPatchExecutePipeline  Capability = "patch_execute_pipeline"
	CapBuildMaterializeStep  Capability = "build_materialize_step"
	CapGateStopCondition     Capability = "gate_stop_condition"
	CapGateConflictResolution Capability = "gate_conflict_resolution"
	CapGateCicd              Capability = "gate_cicd"
	CapRemediationCicdAutoFix Capability = "remediation_cicd_auto_fix"
	CapExecCustomCommand     Capability = "exec_custom_command"
	CapReviewApplyFixesOnly Capability = "review_apply_fixes_only"
	CapInternalTerminalSink Capability = "internal_terminal_sink"
)

// allCapabilities enumerates every tag; CapabilityFromID searches it to
// parse a "cap.*" id back into its tag.
var allCapabilities = []Capability{
	CapGitSaveWorktreePatch,
	CapPlanGenerateDraftPlan,
	CapPlanApplyOnce,
	CapReviewCritiqueOrFix,
	CapGitIntegratePlanBranch,
	CapPatchExecutePipeline,
	CapBuildMaterializeStep,
	CapGateStopCondition,
	CapGateConflictResolution,
	CapGateCicd,
	CapRemediationCicdAutoFix,
	CapExecCustomCommand,
	CapReviewApplyFixesOnly,
	CapInternalTerminalSink,
}

// capabilityUsesLabels maps each capability's canonical "vizier.*" uses
// label to its tag. These are the only labels the compiler accepts under the
// vizier namespace; every other vizier.* label is a compile error distinct
// from the exec_custom_command fallback.
var capabilityUsesLabels = map[string]Capability{
	"vizier.git.save_worktree_patch":    CapGitSaveWorktreePatch,
	"vizier.plan.generate_draft_plan":   CapPlanGenerateDraftPlan,
	"vizier.plan.apply_once":            CapPlanApplyOnce,
	"vizier.review.critique_or_fix":     CapReviewCritiqueOrFix,
	"vizier.git.integrate_plan_branch":  CapGitIntegratePlanBranch,
	"vizier.patch.execute_pipeline":     CapPatchExecutePipeline,
	"vizier.build.materialize_step":     CapBuildMaterializeStep,
	"vizier.gate.stop_condition":        CapGateStopCondition,
	"vizier.gate.conflict_resolution":   CapGateConflictResolution,
	"vizier.gate.cicd":                  CapGateCicd,
	"vizier.remediation.cicd_auto_fix":  CapRemediationCicdAutoFix,
	"vizier.review.apply_fixes_only":    CapReviewApplyFixesOnly,
	"vizier.internal.terminal_sink":     CapInternalTerminalSink,
}

// ID returns the capability's stable wire id, used in job records and
// policy snapshots (spec §3.1).
func (c Capability) ID() string {
	return "cap." + string(c)
}

// CapabilityFromID parses a "cap.*" id back into its Capability, the inverse
// of ID.
func CapabilityFromID(id string) (Capability, bool) {
	tag, ok := strings.CutPrefix(id, "cap.")
	if !ok {
		return "", false
	}
	for _, c := range allCapabilities {
		if string(c) == tag {
			return c, true
		}
	}
	return "", false
}

// CapabilityFromUsesLabel resolves a node's `uses` label to a Capability.
// Labels under the vizier. namespace must match one of the closed sum's
// canonical labels exactly; anything else is reported as unresolved so the
// compiler can distinguish a typo from an intentional custom command. Any
// non-vizier.-prefixed label resolves to ExecCustomCommand (spec §3.1).
func CapabilityFromUsesLabel(label string) (Capability, bool) {
	if !strings.HasPrefix(label, "vizier.") {
		return CapExecCustomCommand, true
	}
	cap, ok := capabilityUsesLabels[label]
	return cap, ok
}
