// Package template implements the workflow-template schema and compiler
// described in spec §3.4, §3.5, and §4.2: the declarative DAG of typed nodes
// that the scheduler and runtime execute. Parsing the template's source
// representation (HCL) is out of scope here (spec §1) — this package accepts
// an already-evaluated WorkflowTemplate tree, the way the teacher's
// workflow.Compiler accepts an already-parsed markdown+frontmatter tree
// rather than raw bytes.
package template

import (
	"sort"

	"github.com/jordan-tan/vizier/pkg/artifact"
	"github.com/jordan-tan/vizier/pkg/logger"
)

var log = logger.New("template:compiler")

// FailureMode controls whether a node whose `after` predecessor failed is
// blocked outright or left waiting (spec §3.4, §4.3 step 1).
type FailureMode string

const (
	FailureModeBlockDownstream   FailureMode = "block_downstream"
	FailureModeContinueIndependent FailureMode = "continue_independent"
)

// ResumeReuseMode controls whether a job store entry matching a resume key
// must carry an identical policy snapshot hash (Strict) or merely a
// compatible one (Compatible).
type ResumeReuseMode string

const (
	ResumeStrict     ResumeReuseMode = "strict"
	ResumeCompatible ResumeReuseMode = "compatible"
)

// ResumePolicy names the key jobs resume against and how strictly the
// policy snapshot must match.
type ResumePolicy struct {
	Key       string          `json:"key"`
	ReuseMode ResumeReuseMode `json:"reuse_mode"`
}

// DefaultResumePolicy mirrors the original implementation's defaults.
func DefaultResumePolicy() ResumePolicy {
	return ResumePolicy{Key: "default", ReuseMode: ResumeStrict}
}

// Policy is the template-wide policy surface (spec §3.4).
type Policy struct {
	FailureMode FailureMode  `json:"failure_mode"`
	Resume      ResumePolicy `json:"resume"`
}

// DefaultPolicy mirrors WorkflowTemplatePolicy::default() in the original.
func DefaultPolicy() Policy {
	return Policy{FailureMode: FailureModeBlockDownstream, Resume: DefaultResumePolicy()}
}

// ArtifactContract binds an artifact contract id to an optional JSON-schema
// subset that every referencing artifact's canonical payload must satisfy
// (spec §4.2 rule 1-2).
type ArtifactContract struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	Schema  any    `json:"schema,omitempty"`
}

// Template is the immutable, already-evaluated workflow template (spec §3.4).
type Template struct {
	ID                string             `json:"id"`
	Version           string             `json:"version"`
	Params            map[string]string  `json:"params"`
	Policy            Policy             `json:"policy"`
	ArtifactContracts []ArtifactContract `json:"artifact_contracts"`
	Nodes             []Node             `json:"nodes"`
}

// NodeKind distinguishes the node's execution mechanism.
type NodeKind string

const (
	NodeBuiltin NodeKind = "builtin"
	NodeAgent   NodeKind = "agent"
	NodeShell   NodeKind = "shell"
	NodeGate    NodeKind = "gate"
	NodeCustom  NodeKind = "custom"
)

// AfterDependency is a declared predecessor-of relationship on a node,
// referring to another node in the same template by id.
type AfterDependency struct {
	NodeID string               `json:"node_id"`
	Policy artifact.AfterPolicy `json:"policy"`
}

// OutcomeArtifacts buckets the artifacts a node produces by the outcome
// under which each is published (spec §3.4).
type OutcomeArtifacts struct {
	Succeeded []artifact.Artifact `json:"succeeded"`
	Failed    []artifact.Artifact `json:"failed"`
	Blocked   []artifact.Artifact `json:"blocked"`
	Cancelled []artifact.Artifact `json:"cancelled"`
}

// All returns the deduped union of every outcome bucket.
func (o OutcomeArtifacts) All() []artifact.Artifact {
	combined := make([]artifact.Artifact, 0, len(o.Succeeded)+len(o.Failed)+len(o.Blocked)+len(o.Cancelled))
	combined = append(combined, o.Succeeded...)
	combined = append(combined, o.Failed...)
	combined = append(combined, o.Blocked...)
	combined = append(combined, o.Cancelled...)
	return artifact.Dedup(combined)
}

// OutcomeEdges lists, per outcome, the node ids a node dispatches to on
// completion (spec §3.4, §4.4 step 5).
type OutcomeEdges struct {
	Succeeded []string `json:"succeeded"`
	Failed    []string `json:"failed"`
	Blocked   []string `json:"blocked"`
	Cancelled []string `json:"cancelled"`
}

// Targets returns the outcome edge list named by outcome ("succeeded",
// "failed", "blocked", "cancelled"); unknown names return nil.
func (e OutcomeEdges) Targets(outcome string) []string {
	switch outcome {
	case "succeeded":
		return e.Succeeded
	case "failed":
		return e.Failed
	case "blocked":
		return e.Blocked
	case "cancelled":
		return e.Cancelled
	default:
		return nil
	}
}

// ContainsTarget reports whether the named outcome's edge list contains id.
// Used by the runtime to discover retry-enabled loops by introspecting
// outcome edges rather than a separate declared flag (SPEC_FULL.md,
// Supplemented Features).
func (e OutcomeEdges) ContainsTarget(outcome, id string) bool {
	for _, t := range e.Targets(outcome) {
		if t == id {
			return true
		}
	}
	return false
}

func normalizeOutcomeEdges(e OutcomeEdges) OutcomeEdges {
	return OutcomeEdges{
		Succeeded: sortDedupStrings(e.Succeeded),
		Failed:    sortDedupStrings(e.Failed),
		Blocked:   sortDedupStrings(e.Blocked),
		Cancelled: sortDedupStrings(e.Cancelled),
	}
}

func sortDedupStrings(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	deduped := out[:0]
	var last string
	for i, v := range out {
		if i == 0 || v != last {
			deduped = append(deduped, v)
			last = v
		}
	}
	return deduped
}

// PreconditionKind tags the closed set of node preconditions.
type PreconditionKind string

const (
	PreconditionPinnedHead     PreconditionKind = "pinned_head"
	PreconditionCleanWorktree  PreconditionKind = "clean_worktree"
	PreconditionBranchExists   PreconditionKind = "branch_exists"
	PreconditionCustom         PreconditionKind = "custom"
)

// Precondition is a single precondition check declared on a node.
type Precondition struct {
	Kind PreconditionKind  `json:"kind"`
	ID   string            `json:"id,omitempty"`
	Args map[string]string `json:"args,omitempty"`
}

// Label returns a canonical string used for dedup and policy snapshot
// hashing: the kind, plus the custom id when Kind is custom.
func (p Precondition) Label() string {
	if p.Kind == PreconditionCustom {
		return string(p.Kind) + ":" + p.ID
	}
	return string(p.Kind)
}

// GatePolicy controls what happens when a gate fails.
type GatePolicy string

const (
	GateBlock GatePolicy = "block"
	GateWarn  GatePolicy = "warn"
	GateRetry GatePolicy = "retry"
)

// GateKind tags the closed set of gate types.
type GateKind string

const (
	GateKindApproval GateKind = "approval"
	GateKindScript   GateKind = "script"
	GateKindCicd     GateKind = "cicd"
	GateKindCustom   GateKind = "custom"
)

// Gate is a single gate declared on a node. Exactly the fields relevant to
// Kind are meaningful; this mirrors the original's tagged-union WorkflowGate.
type Gate struct {
	Kind GateKind `json:"kind"`

	// Approval
	Required bool `json:"required,omitempty"`

	// Script / Cicd
	Script string `json:"script,omitempty"`

	// Cicd
	AutoResolve bool `json:"auto_resolve,omitempty"`

	// Custom
	ID   string            `json:"id,omitempty"`
	Args map[string]string `json:"args,omitempty"`

	Policy GatePolicy `json:"policy"`
}

// Label returns a canonical label used for dedup and policy snapshot
// hashing.
func (g Gate) Label() string {
	switch g.Kind {
	case GateKindCustom:
		return string(g.Kind) + ":" + g.ID
	default:
		return string(g.Kind)
	}
}

// RetryMode controls whether/how a failed node is retried.
type RetryMode string

const (
	RetryNever      RetryMode = "never"
	RetryOnFailure  RetryMode = "on_failure"
	RetryUntilGate  RetryMode = "until_gate"
)

// RetryPolicy is the node's retry configuration.
type RetryPolicy struct {
	Mode   RetryMode `json:"mode"`
	Budget uint32    `json:"budget"`
}

// DefaultRetryPolicy mirrors WorkflowRetryPolicy::default().
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Mode: RetryNever, Budget: 0}
}

// Node is a single node in a workflow template (spec §3.4).
type Node struct {
	ID            string              `json:"id"`
	Kind          NodeKind            `json:"kind"`
	Uses          string              `json:"uses"`
	Args          map[string]string   `json:"args"`
	After         []AfterDependency   `json:"after"`
	Needs         []artifact.Artifact `json:"needs"`
	Produces      OutcomeArtifacts    `json:"produces"`
	Locks         []artifact.Lock     `json:"locks"`
	Preconditions []Precondition      `json:"preconditions"`
	Gates         []Gate              `json:"gates"`
	Retry         RetryPolicy         `json:"retry"`
	On            OutcomeEdges        `json:"on"`
}

// FindNode returns the node with the given id, or false if none exists.
func (t *Template) FindNode(id string) (*Node, bool) {
	for i := range t.Nodes {
		if t.Nodes[i].ID == id {
			return &t.Nodes[i], true
		}
	}
	return nil, false
}

// NodeIDs returns the set of node ids declared by the template.
func (t *Template) NodeIDs() map[string]bool {
	ids := make(map[string]bool, len(t.Nodes))
	for _, n := range t.Nodes {
		ids[n.ID] = true
	}
	return ids
}
