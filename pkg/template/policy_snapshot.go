package template

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/jordan-tan/vizier/pkg/artifact"
)

// PolicySnapshot is the canonical, deterministically-serializable view of a
// template's policy surface (spec §3.5). Two templates that differ only in
// node ordering, map key ordering, or artifact/lock declaration order
// produce identical snapshots. Node args are not recorded, and a node's
// uses label is recorded only as the capability it resolves to.
type PolicySnapshot struct {
	TemplateID      string              `json:"template_id"`
	TemplateVersion string              `json:"template_version"`
	FailureMode     FailureMode         `json:"failure_mode"`
	Resume          ResumePolicy        `json:"resume"`
	Nodes           []NodePolicySnapshot `json:"nodes"`
}

// NodePolicySnapshot is the per-node slice of PolicySnapshot.
type NodePolicySnapshot struct {
	NodeID        string   `json:"node_id"`
	Kind          NodeKind `json:"kind"`
	Capability    string   `json:"capability"`
	After         []string `json:"after"`
	Needs         []string `json:"needs"`
	Produces      []string `json:"produces"`
	Locks         []string `json:"locks"`
	Preconditions []string `json:"preconditions"`
	Gates         []string `json:"gates"`
	RetryMode     RetryMode `json:"retry_mode"`
	RetryBudget   uint32   `json:"retry_budget"`
	OnSucceeded   []string `json:"on_succeeded"`
	OnFailed      []string `json:"on_failed"`
	OnBlocked     []string `json:"on_blocked"`
	OnCancelled   []string `json:"on_cancelled"`
}

// BuildPolicySnapshot derives the canonical policy snapshot of a compiled
// template. Every slice field is sorted before inclusion so the result is
// independent of declaration order (spec §3.5).
func BuildPolicySnapshot(t *Template) PolicySnapshot {
	snap := PolicySnapshot{
		TemplateID:      t.ID,
		TemplateVersion: t.Version,
		FailureMode:     t.Policy.FailureMode,
		Resume:          t.Policy.Resume,
		Nodes:           make([]NodePolicySnapshot, 0, len(t.Nodes)),
	}

	nodes := append([]Node(nil), t.Nodes...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	for _, n := range nodes {
		capLabel, _ := CapabilityFromUsesLabel(n.Uses)

		after := make([]string, 0, len(n.After))
		for _, a := range n.After {
			after = append(after, a.NodeID+":"+string(a.Policy))
		}
		sort.Strings(after)

		needs := artifact.CanonicalLabels(n.Needs)

		produces := artifact.CanonicalLabels(n.Produces.All())

		locks := make([]string, 0, len(n.Locks))
		for _, l := range n.Locks {
			locks = append(locks, l.Canonical())
		}
		sort.Strings(locks)

		preconditions := make([]string, 0, len(n.Preconditions))
		for _, p := range n.Preconditions {
			preconditions = append(preconditions, p.Label())
		}
		sort.Strings(preconditions)

		gates := make([]string, 0, len(n.Gates))
		for _, g := range n.Gates {
			gates = append(gates, g.Label()+":"+string(g.Policy))
		}
		sort.Strings(gates)

		normalized := normalizeOutcomeEdges(n.On)

		snap.Nodes = append(snap.Nodes, NodePolicySnapshot{
			NodeID:        n.ID,
			Kind:          n.Kind,
			Capability:    string(capLabel),
			After:         after,
			Needs:         needs,
			Produces:      produces,
			Locks:         locks,
			Preconditions: preconditions,
			Gates:         gates,
			RetryMode:     n.Retry.Mode,
			RetryBudget:   n.Retry.Budget,
			OnSucceeded:   normalized.Succeeded,
			OnFailed:      normalized.Failed,
			OnBlocked:     normalized.Blocked,
			OnCancelled:   normalized.Cancelled,
		})
	}

	return snap
}

// CanonicalJSON serializes the snapshot deterministically: map-free,
// already-sorted slices, encoding/json's stable struct-field ordering. This
// is the byte sequence hashed by StableHashHex.
func (s PolicySnapshot) CanonicalJSON() ([]byte, error) {
	return json.Marshal(s)
}

// StableHashHex returns the hex-encoded SHA-256 of the snapshot's canonical
// JSON form (spec §3.5). Two templates hash identically iff their policy
// snapshots are equal.
func (s PolicySnapshot) StableHashHex() (string, error) {
	b, err := s.CanonicalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
