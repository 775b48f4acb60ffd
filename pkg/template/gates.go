package template

// ExtractScriptGate resolves the stop-condition script for an approve-loop
// gate node, falling back to a script declared directly on the apply node
// for pre-gate-node templates (SPEC_FULL.md, Supplemented Features: "Legacy
// script-on-apply-node fallback"). It returns false if neither carries one.
func ExtractScriptGate(gateNode, applyNode *Node) (string, bool) {
	if gateNode != nil {
		for _, g := range gateNode.Gates {
			if g.Kind == GateKindScript && g.Script != "" {
				return g.Script, true
			}
		}
	}
	if applyNode != nil {
		if script, ok := applyNode.Args["script"]; ok && script != "" {
			return script, true
		}
	}
	return "", false
}

// FindApproveLoopNodes locates the canonical approve_apply_once node and its
// downstream stop-condition gate by id first, capability tag second (spec
// §4.4.1, SPEC_FULL.md "CI/CD gate sentinel id and auto-fix node shape": the
// original resolves canonical ids first, capability second). Ambiguity (more
// than one unique GateStopCondition node when no canonical id is present) is
// a hard error.
func FindApproveLoopNodes(t *Template) (apply *Node, gate *Node, err error) {
	if n, ok := t.FindNode("approve_apply_once"); ok {
		apply = n
	} else {
		for i := range t.Nodes {
			if cap, ok := CapabilityFromUsesLabel(t.Nodes[i].Uses); ok && cap == CapPlanApplyOnce {
				if apply != nil {
					return nil, nil, validationErr("", "multiple plan_apply_once-capable nodes found and none named approve_apply_once")
				}
				apply = &t.Nodes[i]
			}
		}
	}

	if n, ok := t.FindNode("approve_gate_stop_condition"); ok {
		gate = n
	} else {
		for i := range t.Nodes {
			if cap, ok := CapabilityFromUsesLabel(t.Nodes[i].Uses); ok && cap == CapGateStopCondition {
				if gate != nil {
					return nil, nil, validationErr("", "multiple GateStopCondition nodes found and none named approve_gate_stop_condition")
				}
				gate = &t.Nodes[i]
			}
		}
	}

	return apply, gate, nil
}

// RetryBudget returns a gate node's until_gate retry budget, or 0 if the
// node is nil or its retry mode isn't until_gate (spec §4.4.1 "Retry
// budget").
func RetryBudget(gate *Node) uint32 {
	if gate == nil || gate.Retry.Mode != RetryUntilGate {
		return 0
	}
	return gate.Retry.Budget
}

// RetryEdgeEnabled reports whether a gate node's on.failed edges loop back
// to target (spec §4.4.1 "Retry edge is enabled iff..."; SPEC_FULL.md
// "Retry-path detection via outcome-edge introspection": derived by
// scanning on.failed rather than a declared flag).
func RetryEdgeEnabled(gate *Node, target string) bool {
	if gate == nil {
		return false
	}
	return gate.On.ContainsTarget("failed", target)
}

// FindCicdGateNode locates the CI/CD gate node by canonical id first,
// capability tag second (spec §4.4.3). More than one such node is a hard
// error.
func FindCicdGateNode(t *Template) (*Node, error) {
	if n, ok := t.FindNode("merge_gate_cicd"); ok {
		return n, nil
	}
	var found *Node
	for i := range t.Nodes {
		if cap, ok := CapabilityFromUsesLabel(t.Nodes[i].Uses); ok && cap == CapGateCicd {
			if found != nil {
				return nil, validationErr("", "multiple GateCicd nodes found and none named merge_gate_cicd")
			}
			found = &t.Nodes[i]
		}
	}
	if found == nil {
		return nil, validationErr("", "no GateCicd node found")
	}
	return found, nil
}

// CicdRetryPathEnabled implements spec §4.4.3's retry_path_enabled: either
// the gate's on.failed loops back to itself, or targets a node whose
// on.succeeded loops back to the gate (the auto-fix node shape).
func CicdRetryPathEnabled(t *Template, gate *Node) bool {
	if gate.On.ContainsTarget("failed", gate.ID) {
		return true
	}
	for _, target := range gate.On.Failed {
		if n, ok := t.FindNode(target); ok && n.On.ContainsTarget("succeeded", gate.ID) {
			return true
		}
	}
	return false
}
