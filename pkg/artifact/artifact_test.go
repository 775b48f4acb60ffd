package artifact

import "testing"

func TestCanonicalForms(t *testing.T) {
	tests := []struct {
		name     string
		artifact Artifact
		want     string
	}{
		{"plan branch", PlanBranch("feature-x", "draft/feature-x"), "plan_branch:feature-x (draft/feature-x)"},
		{"plan doc", PlanDoc("feature-x", "draft/feature-x"), "plan_doc:feature-x (draft/feature-x)"},
		{"plan commits", PlanCommits("feature-x", "draft/feature-x"), "plan_commits:feature-x (draft/feature-x)"},
		{"target branch", TargetBranch("main"), "artifact:target_branch:main"},
		{"merge sentinel", MergeSentinel("feature-x"), "merge_sentinel:feature-x"},
		{"command patch", CommandPatch("job-123"), "command_patch:job-123"},
		{"custom", Custom("review_note", "pr-42"), "custom:review_note:pr-42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.artifact.Canonical(); got != tt.want {
				t.Errorf("Canonical() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContractID(t *testing.T) {
	if got := PlanBranch("s", "b").ContractID(); got != "plan_branch" {
		t.Errorf("ContractID() = %q, want plan_branch", got)
	}
	if got := Custom("widget", "k").ContractID(); got != "widget" {
		t.Errorf("ContractID() = %q, want widget", got)
	}
}

func TestEqualIsCanonicalEquality(t *testing.T) {
	a := PlanBranch("slug", "draft/slug")
	b := PlanBranch("slug", "draft/slug")
	c := PlanBranch("other", "draft/other")

	if !a.Equal(b) {
		t.Error("expected equal artifacts with identical canonical form")
	}
	if a.Equal(c) {
		t.Error("expected unequal artifacts with different canonical form")
	}
}

func TestDedupPreservesFirstOccurrenceOrder(t *testing.T) {
	in := []Artifact{
		TargetBranch("main"),
		CommandPatch("job-1"),
		TargetBranch("main"),
		CommandPatch("job-2"),
	}
	out := Dedup(in)
	want := []string{
		"artifact:target_branch:main",
		"command_patch:job-1",
		"command_patch:job-2",
	}
	if len(out) != len(want) {
		t.Fatalf("Dedup() returned %d artifacts, want %d", len(out), len(want))
	}
	for i, w := range want {
		if out[i].Canonical() != w {
			t.Errorf("Dedup()[%d] = %q, want %q", i, out[i].Canonical(), w)
		}
	}
}

func TestDedupLocks(t *testing.T) {
	in := []Lock{
		{Key: "repo_serial", Mode: LockExclusive},
		{Key: "branch:feature-x", Mode: LockShared},
		{Key: "repo_serial", Mode: LockExclusive},
	}
	out := DedupLocks(in)
	if len(out) != 2 {
		t.Fatalf("DedupLocks() returned %d locks, want 2", len(out))
	}
}

func TestPayloadShapes(t *testing.T) {
	p := CommandPatch("job-9").Payload()
	if p["job_id"] != "job-9" {
		t.Errorf("Payload()[job_id] = %v, want job-9", p["job_id"])
	}

	p2 := Custom("note", "k1").Payload()
	if p2["type_id"] != "note" || p2["key"] != "k1" {
		t.Errorf("Payload() = %v, want type_id=note key=k1", p2)
	}
}
