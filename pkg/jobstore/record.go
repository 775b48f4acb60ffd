// Package jobstore implements the durable, filesystem-backed job records
// described in spec §4.1 and §3.1-3.2: one JSON file per job under a root
// directory, written atomically and tolerant of partial/foreign entries.
package jobstore

import (
	"time"

	"github.com/jordan-tan/vizier/pkg/artifact"
	"github.com/jordan-tan/vizier/pkg/backendport"
)

// Status is one of the job lifecycle states from spec §3.1. Any status not
// listed here is treated as synonymous with StatusQueued (spec §9 Open
// Questions).
type Status string

const (
	StatusQueued              Status = "queued"
	StatusRunning             Status = "running"
	StatusSucceeded           Status = "succeeded"
	StatusFailed              Status = "failed"
	StatusCancelled           Status = "cancelled"
	StatusWaitingOnDeps       Status = "waiting_on_deps"
	StatusWaitingOnLocks      Status = "waiting_on_locks"
	StatusWaitingOnApproval   Status = "waiting_on_approval"
	StatusBlockedByDependency Status = "blocked_by_dependency"
	StatusBlockedByApproval   Status = "blocked_by_approval"
)

// Terminal reports whether s is one of the statuses spec §3.1 invariant 2
// requires finished_at/exit_code to be set for.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Active reports whether a job in status s may still be cancelled (spec
// §4.3 Cancel: refuses succeeded/cancelled/failed).
func (s Status) Active() bool {
	switch s {
	case StatusSucceeded, StatusCancelled, StatusFailed:
		return false
	default:
		return true
	}
}

// ApprovalState is schedule.approval.state (spec §3.2).
type ApprovalState string

const (
	ApprovalNone     ApprovalState = "none"
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
)

// Approval is schedule.approval (spec §3.2).
type Approval struct {
	Required    bool          `json:"required"`
	State       ApprovalState `json:"state"`
	RequestedAt *time.Time    `json:"requested_at,omitempty"`
	RequestedBy string        `json:"requested_by,omitempty"`
	Reason      string        `json:"reason,omitempty"`
}

// PinnedHead is the VCS tip a job was admitted against (spec §3.2).
type PinnedHead struct {
	Branch string `json:"branch"`
	OID    string `json:"oid"`
}

// WaitReason explains why a job is not running (spec §3.2, glossary).
type WaitReason struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// Dependency is a single schedule.dependencies entry (spec §3.2).
type Dependency struct {
	Artifact artifact.Artifact `json:"artifact"`
	Optional bool              `json:"optional"`
}

// Schedule is the job's structured substate (spec §3.2).
type Schedule struct {
	Dependencies []Dependency                 `json:"dependencies"`
	Locks        []artifact.Lock              `json:"locks"`
	Artifacts    []artifact.Artifact          `json:"artifacts"`
	After        []artifact.AfterDependency   `json:"after"`
	Approval     Approval                     `json:"approval"`
	PinnedHead   *PinnedHead                  `json:"pinned_head,omitempty"`
	WaitReason   WaitReason                   `json:"wait_reason"`
	WaitedOn     []string                     `json:"waited_on"`
}

// AddWaitedOn appends category to WaitedOn if not already present (spec
// §3.2: "ordered list of categories the job has ever blocked on").
func (s *Schedule) AddWaitedOn(category string) {
	for _, c := range s.WaitedOn {
		if c == category {
			return
		}
	}
	s.WaitedOn = append(s.WaitedOn, category)
}

// Metadata is the job's free-form attribute bag (spec §3.1). Fields are
// named explicitly (rather than a bare map[string]string) because the
// scheduler and runtime both read and clear a fixed, spec-named set of
// keys; unknown keys round-trip through Extra.
type Metadata struct {
	CommandAlias             string `json:"command_alias,omitempty"`
	Scope                    string `json:"scope,omitempty"` // legacy alias, dual-written with CommandAlias (spec §9)
	WorkflowTemplateSelector string `json:"workflow_template_selector,omitempty"`

	WorktreePath  string `json:"worktree_path,omitempty"`
	WorktreeOwned bool   `json:"worktree_owned,omitempty"`
	WorktreeName  string `json:"worktree_name,omitempty"`

	AgentBackend  string `json:"agent_backend,omitempty"`
	AgentLabel    string `json:"agent_label,omitempty"`
	AgentCommand  string `json:"agent_command,omitempty"`
	AgentExitCode *int   `json:"agent_exit_code,omitempty"`

	CancelCleanupStatus string `json:"cancel_cleanup_status,omitempty"`
	CancelCleanupError  string `json:"cancel_cleanup_error,omitempty"`
	RetryCleanupStatus  string `json:"retry_cleanup_status,omitempty"`
	RetryCleanupError   string `json:"retry_cleanup_error,omitempty"`

	BuildPipelineConfig map[string]string `json:"build_pipeline_config,omitempty"`

	Extra map[string]string `json:"extra,omitempty"`
}

// Record is the durable per-job object (spec §3.1).
type Record struct {
	ID     string `json:"id"`
	Status Status `json:"status"`

	Argv []string `json:"argv"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	PID      int  `json:"pid,omitempty"`
	ExitCode *int `json:"exit_code,omitempty"`

	StdoutPath  string `json:"stdout_path"`
	StderrPath  string `json:"stderr_path"`
	SessionPath string `json:"session_path,omitempty"`
	OutcomePath string `json:"outcome_path,omitempty"`

	Metadata Metadata `json:"metadata"`

	// Usage accumulates every backend invocation's token accounting across
	// this job's lifetime (spec §4.5 "token-usage aggregation").
	Usage backendport.Usage `json:"usage"`

	ConfigSnapshot map[string]any `json:"config_snapshot,omitempty"`

	Schedule Schedule `json:"schedule"`
}

// ResetForRetry clears the fields spec §3.1 invariant 4 / §4.3 step 2-3
// require cleared when a terminal job is retried, preserving scope alias and
// template selector.
func (r *Record) ResetForRetry() {
	r.StartedAt = nil
	r.FinishedAt = nil
	r.PID = 0
	r.ExitCode = nil
	r.SessionPath = ""
	r.OutcomePath = ""
	r.Usage = backendport.Usage{}

	r.Metadata.WorktreePath = ""
	r.Metadata.WorktreeOwned = false
	r.Metadata.WorktreeName = ""
	r.Metadata.AgentExitCode = nil
	r.Metadata.CancelCleanupStatus = ""
	r.Metadata.CancelCleanupError = ""
}
