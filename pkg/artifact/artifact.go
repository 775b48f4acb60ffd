// Package artifact defines the typed objects jobs produce and consume, and
// the lock keys that serialize access to shared Git state. Artifacts are
// compared and addressed by their canonical string form (see Canonical),
// never by identity, so the scheduler can match a consumer's dependency
// against a producer's publication without holding a pointer to the job that
// made it.
package artifact

import (
	"fmt"
	"sort"
)

// Kind distinguishes the artifact variants. Custom artifacts carry their own
// type id and are never confused with the built-in kinds.
type Kind string

const (
	KindPlanBranch    Kind = "plan_branch"
	KindPlanDoc       Kind = "plan_doc"
	KindPlanCommits   Kind = "plan_commits"
	KindTargetBranch  Kind = "target_branch"
	KindMergeSentinel Kind = "merge_sentinel"
	KindCommandPatch  Kind = "command_patch"
	KindCustom        Kind = "custom"
)

// Artifact is the typed sum described in spec §3.3. Exactly one of the
// field groups is meaningful, selected by Kind; zero value of the unused
// fields is always empty.
type Artifact struct {
	Kind Kind

	// PlanBranch / PlanDoc / PlanCommits
	Slug   string
	Branch string

	// TargetBranch
	Name string

	// MergeSentinel reuses Slug.

	// CommandPatch
	JobID string

	// Custom
	TypeID string
	Key    string
}

// PlanBranch builds a PlanBranch{slug, branch} artifact.
func PlanBranch(slug, branch string) Artifact {
	return Artifact{Kind: KindPlanBranch, Slug: slug, Branch: branch}
}

// PlanDoc builds a PlanDoc{slug, branch} artifact.
func PlanDoc(slug, branch string) Artifact {
	return Artifact{Kind: KindPlanDoc, Slug: slug, Branch: branch}
}

// PlanCommits builds a PlanCommits{slug, branch} artifact.
func PlanCommits(slug, branch string) Artifact {
	return Artifact{Kind: KindPlanCommits, Slug: slug, Branch: branch}
}

// TargetBranch builds a TargetBranch{name} artifact.
func TargetBranch(name string) Artifact {
	return Artifact{Kind: KindTargetBranch, Name: name}
}

// MergeSentinel builds a MergeSentinel{slug} artifact.
func MergeSentinel(slug string) Artifact {
	return Artifact{Kind: KindMergeSentinel, Slug: slug}
}

// CommandPatch builds a CommandPatch{job_id} artifact.
func CommandPatch(jobID string) Artifact {
	return Artifact{Kind: KindCommandPatch, JobID: jobID}
}

// Custom builds a Custom{type_id, key} artifact.
func Custom(typeID, key string) Artifact {
	return Artifact{Kind: KindCustom, TypeID: typeID, Key: key}
}

// Canonical returns the canonical string form used for equality, dependency
// matching, and DAG edge labels (spec §3.3).
func (a Artifact) Canonical() string {
	switch a.Kind {
	case KindPlanBranch:
		return fmt.Sprintf("plan_branch:%s (%s)", a.Slug, a.Branch)
	case KindPlanDoc:
		return fmt.Sprintf("plan_doc:%s (%s)", a.Slug, a.Branch)
	case KindPlanCommits:
		return fmt.Sprintf("plan_commits:%s (%s)", a.Slug, a.Branch)
	case KindTargetBranch:
		return fmt.Sprintf("artifact:target_branch:%s", a.Name)
	case KindMergeSentinel:
		return fmt.Sprintf("merge_sentinel:%s", a.Slug)
	case KindCommandPatch:
		return fmt.Sprintf("command_patch:%s", a.JobID)
	case KindCustom:
		return fmt.Sprintf("custom:%s:%s", a.TypeID, a.Key)
	default:
		return fmt.Sprintf("unknown:%s", a.Kind)
	}
}

// ContractID returns the artifact-contract id this artifact must match
// against (spec §4.2 rule 1): the built-in kind name, or the custom type id.
func (a Artifact) ContractID() string {
	if a.Kind == KindCustom {
		return a.TypeID
	}
	return string(a.Kind)
}

// Payload returns the canonical JSON-shaped payload used for artifact
// contract schema validation (spec §4.2 rule 2).
func (a Artifact) Payload() map[string]any {
	switch a.Kind {
	case KindPlanBranch, KindPlanDoc, KindPlanCommits:
		return map[string]any{"slug": a.Slug, "branch": a.Branch}
	case KindTargetBranch:
		return map[string]any{"name": a.Name}
	case KindMergeSentinel:
		return map[string]any{"slug": a.Slug}
	case KindCommandPatch:
		return map[string]any{"job_id": a.JobID}
	case KindCustom:
		return map[string]any{"type_id": a.TypeID, "key": a.Key}
	default:
		return map[string]any{}
	}
}

// Equal reports whether two artifacts share the same canonical form.
func (a Artifact) Equal(other Artifact) bool {
	return a.Canonical() == other.Canonical()
}

// Dedup removes artifacts with duplicate canonical forms, preserving the
// order of first occurrence.
func Dedup(artifacts []Artifact) []Artifact {
	seen := make(map[string]bool, len(artifacts))
	out := make([]Artifact, 0, len(artifacts))
	for _, a := range artifacts {
		c := a.Canonical()
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, a)
	}
	return out
}

// CanonicalLabels returns the sorted, deduped canonical forms of a set of
// artifacts; used when building a policy snapshot (spec §3.5).
func CanonicalLabels(artifacts []Artifact) []string {
	seen := make(map[string]bool, len(artifacts))
	labels := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		c := a.Canonical()
		if seen[c] {
			continue
		}
		seen[c] = true
		labels = append(labels, c)
	}
	sort.Strings(labels)
	return labels
}

// LockMode distinguishes shared vs exclusive lock acquisition (spec §3.2).
type LockMode string

const (
	LockShared    LockMode = "shared"
	LockExclusive LockMode = "exclusive"
)

// Lock is a named resource guard a job must acquire before admission.
type Lock struct {
	Key  string   `json:"key"`
	Mode LockMode `json:"mode"`
}

// Canonical returns the lock's canonical label, used for dedup and policy
// snapshot hashing.
func (l Lock) Canonical() string {
	return fmt.Sprintf("%s:%s", l.Key, l.Mode)
}

// DedupLocks removes locks with duplicate (key, mode) pairs, preserving
// first-occurrence order.
func DedupLocks(locks []Lock) []Lock {
	seen := make(map[string]bool, len(locks))
	out := make([]Lock, 0, len(locks))
	for _, l := range locks {
		c := l.Canonical()
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, l)
	}
	return out
}

// AfterPolicy is the completion policy a job's `after` edge evaluates its
// predecessor against (spec §3.2, §4.3 step 1).
type AfterPolicy string

const (
	AfterSuccess    AfterPolicy = "success"
	AfterAlways     AfterPolicy = "always"
	AfterAnyOutcome AfterPolicy = "any_outcome"
)

// AfterDependency ties a job to a predecessor job id under a completion
// policy.
type AfterDependency struct {
	JobID  string      `json:"job_id"`
	Policy AfterPolicy `json:"policy"`
}
