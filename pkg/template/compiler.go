package template

import (
	"fmt"
	"sort"

	"github.com/jordan-tan/vizier/pkg/artifact"
)

// CompiledWorkflowNode is the validated, resolved form of a template node
// bound to concrete predecessor job ids (spec §4.2). The compiler guarantees
// every field is deduped and, where order matters for policy hashing,
// sorted.
type CompiledWorkflowNode struct {
	TemplateID  string
	NodeID      string
	Kind        NodeKind
	Uses        string
	Args        map[string]string
	Capability  Capability
	After       []ResolvedAfter
	Needs       []artifact.Artifact
	Produces    OutcomeArtifacts
	Artifacts   []artifact.Artifact
	Locks       []artifact.Lock
	Preconditions []Precondition
	Gates       []Gate
	Retry       RetryPolicy
	On          OutcomeEdges

	PolicySnapshot     PolicySnapshot
	PolicySnapshotHash string
}

// ResolvedAfter binds a node's declared `after` entry to the concrete job id
// its predecessor node was resolved to (spec §4.2 rule 5).
type ResolvedAfter struct {
	NodeID string
	JobID  string
	Policy artifact.AfterPolicy
}

// ValidationError reports a single template validation failure, naming the
// offending node or artifact (spec §4.2).
type ValidationError struct {
	Node    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Node == "" {
		return "template validation: " + e.Message
	}
	return fmt.Sprintf("template validation: node %q: %s", e.Node, e.Message)
}

func validationErr(node, format string, args ...any) error {
	return &ValidationError{Node: node, Message: fmt.Sprintf(format, args...)}
}

// Validate runs every structural check in spec §4.2 against the whole
// template (rules 1-4; rule 5 is per-node and checked by CompileNode since it
// depends on the resolution map). It returns the first violation found, the
// way the original reports one TemplateValidation error per compile attempt.
func (t *Template) Validate() error {
	nodeIDs := t.NodeIDs()

	contracts := make(map[string]ArtifactContract, len(t.ArtifactContracts))
	for _, c := range t.ArtifactContracts {
		contracts[c.ID] = c
	}

	schemas := newSchemaCache()

	for _, n := range t.Nodes {
		referenced := append([]artifact.Artifact(nil), n.Needs...)
		referenced = append(referenced, n.Produces.All()...)

		for _, a := range referenced {
			contract, ok := contracts[a.ContractID()]
			if !ok {
				return validationErr(n.ID, "artifact %s has no declared artifact_contract for contract id %q", a.Canonical(), a.ContractID())
			}
			if contract.Schema != nil {
				if err := schemas.ValidateArtifact(contract, a); err != nil {
					return validationErr(n.ID, "%s", err)
				}
			}
		}

		for _, a := range n.After {
			if !nodeIDs[a.NodeID] {
				return validationErr(n.ID, "after references unknown node %q", a.NodeID)
			}
		}

		for _, outcome := range []string{"succeeded", "failed", "blocked", "cancelled"} {
			for _, target := range n.On.Targets(outcome) {
				if !nodeIDs[target] {
					return validationErr(n.ID, "on.%s references unknown node %q", outcome, target)
				}
			}
		}
	}

	if err := checkAfterAcyclic(t); err != nil {
		return err
	}

	return nil
}

// checkAfterAcyclic rejects templates whose `after` edges form a cycle
// (spec §9: "the template compiler rejects after-cycles (topological check
// during compile)").
func checkAfterAcyclic(t *Template) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(t.Nodes))
	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			return validationErr(id, "after-edge cycle detected: %v", append(path, id))
		}
		color[id] = gray
		if n, ok := t.FindNode(id); ok {
			for _, a := range n.After {
				if err := visit(a.NodeID, append(path, id)); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}
	for _, n := range t.Nodes {
		if err := visit(n.ID, nil); err != nil {
			return err
		}
	}
	return nil
}

// CompileNode validates and compiles a single node into a
// CompiledWorkflowNode, resolving its `after` edges against resolved, the
// map of already-scheduled node id -> job id (spec §4.2). The template-wide
// validation in Validate must have already passed; CompileNode re-checks
// only the per-node rule 5, which depends on resolved.
func CompileNode(t *Template, nodeID string, resolved map[string]string) (*CompiledWorkflowNode, error) {
	n, ok := t.FindNode(nodeID)
	if !ok {
		return nil, validationErr(nodeID, "no such node in template %q", t.ID)
	}

	cap, ok := CapabilityFromUsesLabel(n.Uses)
	if !ok {
		return nil, validationErr(n.ID, "uses label %q does not resolve to a known vizier capability", n.Uses)
	}

	after := make([]ResolvedAfter, 0, len(n.After))
	seenAfter := make(map[string]bool, len(n.After))
	for _, a := range n.After {
		key := a.NodeID + ":" + string(a.Policy)
		if seenAfter[key] {
			continue
		}
		seenAfter[key] = true
		jobID, ok := resolved[a.NodeID]
		if !ok {
			return nil, validationErr(n.ID, "unresolved after node %q: predecessor has not been scheduled", a.NodeID)
		}
		after = append(after, ResolvedAfter{NodeID: a.NodeID, JobID: jobID, Policy: a.Policy})
	}

	needs := artifact.Dedup(n.Needs)

	locks := artifact.DedupLocks(n.Locks)

	preconditions := dedupPreconditions(n.Preconditions)

	gates := dedupGates(n.Gates)

	produces := OutcomeArtifacts{
		Succeeded: artifact.Dedup(n.Produces.Succeeded),
		Failed:    artifact.Dedup(n.Produces.Failed),
		Blocked:   artifact.Dedup(n.Produces.Blocked),
		Cancelled: artifact.Dedup(n.Produces.Cancelled),
	}

	on := normalizeOutcomeEdges(n.On)

	snap := BuildPolicySnapshot(t)
	hash, err := snap.StableHashHex()
	if err != nil {
		return nil, fmt.Errorf("node %q: failed to hash policy snapshot: %w", n.ID, err)
	}

	return &CompiledWorkflowNode{
		TemplateID:         t.ID,
		NodeID:             n.ID,
		Kind:               n.Kind,
		Uses:               n.Uses,
		Args:               n.Args,
		Capability:         cap,
		After:              after,
		Needs:              needs,
		Produces:           produces,
		Artifacts:          produces.All(),
		Locks:              locks,
		Preconditions:      preconditions,
		Gates:              gates,
		Retry:              n.Retry,
		On:                 on,
		PolicySnapshot:     snap,
		PolicySnapshotHash: hash,
	}, nil
}

func dedupPreconditions(in []Precondition) []Precondition {
	seen := make(map[string]bool, len(in))
	out := make([]Precondition, 0, len(in))
	for _, p := range in {
		label := p.Label()
		if seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, p)
	}
	return out
}

func dedupGates(in []Gate) []Gate {
	seen := make(map[string]bool, len(in))
	out := make([]Gate, 0, len(in))
	for _, g := range in {
		label := g.Label()
		if seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, g)
	}
	return out
}

// TopologicalNodeOrder returns the template's node ids in an order that
// respects `after` edges (predecessors first), used by callers resolving
// nodes one at a time into CompileNode's resolved map.
func TopologicalNodeOrder(t *Template) ([]string, error) {
	if err := checkAfterAcyclic(t); err != nil {
		return nil, err
	}

	indegree := make(map[string]int, len(t.Nodes))
	dependents := make(map[string][]string, len(t.Nodes))
	for _, n := range t.Nodes {
		if _, ok := indegree[n.ID]; !ok {
			indegree[n.ID] = 0
		}
		for _, a := range n.After {
			indegree[n.ID]++
			dependents[a.NodeID] = append(dependents[a.NodeID], n.ID)
		}
	}

	var ready []string
	for _, n := range t.Nodes {
		if indegree[n.ID] == 0 {
			ready = append(ready, n.ID)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(t.Nodes))
	for len(ready) > 0 {
		sort.Strings(ready)
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) != len(t.Nodes) {
		return nil, validationErr("", "after-edge graph is not a DAG")
	}
	return order, nil
}
