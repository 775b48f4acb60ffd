package cliapp

import (
	"fmt"

	"github.com/jordan-tan/vizier/pkg/artifact"
	"github.com/jordan-tan/vizier/pkg/template"
)

// contractsFor builds the artifact_contracts every template must declare
// one entry for per distinct contract id its nodes reference (spec §4.2
// rule 1-2). Vizier doesn't constrain artifact payloads with a JSON-schema
// subset, so every contract carries a nil Schema.
func contractsFor(artifacts ...artifact.Artifact) []template.ArtifactContract {
	seen := make(map[string]bool, len(artifacts))
	var contracts []template.ArtifactContract
	for _, a := range artifacts {
		id := a.ContractID()
		if seen[id] {
			continue
		}
		seen[id] = true
		contracts = append(contracts, template.ArtifactContract{ID: id, Version: "v1"})
	}
	return contracts
}

// SaveTemplate builds the one-node template for `vizier save`: a worktree
// patch captured under an exclusive lock so concurrent saves serialize
// rather than race on the same working tree (spec §3.3 CommandPatch, §5
// lock model).
func SaveTemplate(message string) *template.Template {
	node := template.Node{
		ID:   "save_worktree_patch",
		Kind: template.NodeBuiltin,
		Uses: "vizier.git.save_worktree_patch",
		Args: map[string]string{"message": message},
		Locks: []artifact.Lock{
			{Key: "worktree", Mode: artifact.LockExclusive},
		},
	}
	return &template.Template{
		ID:      "save",
		Version: "v1",
		Policy:  template.DefaultPolicy(),
		Nodes:   []template.Node{node},
	}
}

// DraftTemplate builds the one-node template for `vizier draft <slug>`: a
// generated plan branch, doc, and commit-range artifact, held under an
// exclusive per-slug lock so two drafts for the same slug never interleave.
func DraftTemplate(slug, planBranch, prompt string) *template.Template {
	produced := []artifact.Artifact{
		artifact.PlanBranch(slug, planBranch),
		artifact.PlanDoc(slug, planBranch),
		artifact.PlanCommits(slug, planBranch),
	}
	node := template.Node{
		ID:   "generate_draft_plan",
		Kind: template.NodeAgent,
		Uses: "vizier.plan.generate_draft_plan",
		Args: map[string]string{"slug": slug, "branch": planBranch, "prompt": prompt},
		Locks: []artifact.Lock{
			{Key: "plan:" + slug, Mode: artifact.LockExclusive},
		},
		Produces: template.OutcomeArtifacts{Succeeded: produced},
	}
	return &template.Template{
		ID:                "draft",
		Version:           "v1",
		Policy:            template.DefaultPolicy(),
		ArtifactContracts: contractsFor(produced...),
		Nodes:             []template.Node{node},
	}
}

// ReviewTemplate builds the template for `vizier review <slug>`: a critique
// node that needs the slug's plan branch to already be published, optionally
// followed by an apply-fixes node gated behind the critique's success when
// applyFixes is requested.
func ReviewTemplate(slug, planBranch string, applyFixes bool) *template.Template {
	needs := []artifact.Artifact{artifact.PlanBranch(slug, planBranch)}

	critique := template.Node{
		ID:    "critique_or_fix",
		Kind:  template.NodeAgent,
		Uses:  "vizier.review.critique_or_fix",
		Args:  map[string]string{"slug": slug, "branch": planBranch},
		Needs: needs,
		Locks: []artifact.Lock{{Key: "plan:" + slug, Mode: artifact.LockShared}},
	}

	if applyFixes {
		critique.On = template.OutcomeEdges{Succeeded: []string{"apply_fixes_only"}}
	}

	nodes := []template.Node{critique}
	if applyFixes {
		nodes = append(nodes, template.Node{
			ID:    "apply_fixes_only",
			Kind:  template.NodeAgent,
			Uses:  "vizier.review.apply_fixes_only",
			Args:  map[string]string{"slug": slug, "branch": planBranch},
			After: []template.AfterDependency{{NodeID: "critique_or_fix", Policy: artifact.AfterSuccess}},
			Locks: []artifact.Lock{{Key: "plan:" + slug, Mode: artifact.LockExclusive}},
		})
	}

	return &template.Template{
		ID:                "review",
		Version:           "v1",
		Policy:            template.DefaultPolicy(),
		ArtifactContracts: contractsFor(needs...),
		Nodes:             nodes,
	}
}

// ApproveTemplate builds the two-node template `vizier approve` drives via
// runtime.RunApproveLoop (spec §4.4.1): a canonical apply-once node and its
// downstream stop-condition gate, wired so the gate's on.failed edge loops
// back to the apply node up to budget times.
func ApproveTemplate(slug, planBranch, stopConditionScript string, retryBudget uint32) *template.Template {
	apply := template.Node{
		ID:    "approve_apply_once",
		Kind:  template.NodeAgent,
		Uses:  "vizier.plan.apply_once",
		Args:  map[string]string{"slug": slug, "branch": planBranch},
		Needs: []artifact.Artifact{artifact.PlanBranch(slug, planBranch)},
		Locks: []artifact.Lock{{Key: "plan:" + slug, Mode: artifact.LockExclusive}},
	}

	retryMode := template.RetryNever
	if retryBudget > 0 {
		retryMode = template.RetryUntilGate
	}

	gate := template.Node{
		ID:   "approve_gate_stop_condition",
		Kind: template.NodeGate,
		Uses: "vizier.gate.stop_condition",
		Gates: []template.Gate{
			{Kind: template.GateKindScript, Script: stopConditionScript, Policy: template.GateRetry},
		},
		After: []template.AfterDependency{{NodeID: "approve_apply_once", Policy: artifact.AfterSuccess}},
		Retry: template.RetryPolicy{Mode: retryMode, Budget: retryBudget},
		On:    template.OutcomeEdges{Failed: []string{"approve_apply_once"}},
	}

	return &template.Template{
		ID:                fmt.Sprintf("approve-%s", slug),
		Version:           "v1",
		Policy:            template.DefaultPolicy(),
		ArtifactContracts: contractsFor(apply.Needs...),
		Nodes:             []template.Node{apply, gate},
	}
}
