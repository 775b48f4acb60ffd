package scheduleview

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jordan-tan/vizier/pkg/artifact"
	"github.com/jordan-tan/vizier/pkg/backendport"
	"github.com/jordan-tan/vizier/pkg/console"
	"github.com/jordan-tan/vizier/pkg/jobstore"
)

// Detail is the JSON shape `jobs status --json` / `jobs show --json`
// render: every column enumerated in spec §3.1 plus the derived fields spec
// §4.5 names (scope, command_alias, dependencies, locks, wait, waited_on,
// pinned_head, artifacts).
type Detail struct {
	ID       string          `json:"id"`
	Status   jobstore.Status `json:"status"`
	Argv     []string        `json:"argv"`

	CreatedAt  string `json:"created_at"`
	StartedAt  string `json:"started_at,omitempty"`
	FinishedAt string `json:"finished_at,omitempty"`

	PID      int  `json:"pid,omitempty"`
	ExitCode *int `json:"exit_code,omitempty"`

	StdoutPath  string `json:"stdout_path"`
	StderrPath  string `json:"stderr_path"`
	SessionPath string `json:"session_path,omitempty"`

	Usage backendport.Usage `json:"usage"`

	Scope        string `json:"scope,omitempty"`
	CommandAlias string `json:"command_alias,omitempty"`

	Slug string `json:"slug,omitempty"`

	Dependencies []jobstore.Dependency  `json:"dependencies"`
	Locks        []jobstoreLock         `json:"locks"`
	Wait         jobstore.WaitReason    `json:"wait"`
	WaitedOn     []string               `json:"waited_on"`
	PinnedHead   *jobstore.PinnedHead   `json:"pinned_head,omitempty"`
	Artifacts    []jobstoreArtifact     `json:"artifacts"`
}

// jobstoreLock and jobstoreArtifact are the flattened JSON projections
// Detail uses: a lock as its key and mode strings, an artifact as its
// canonical label only.
type jobstoreLock = struct {
	Key  string `json:"key"`
	Mode string `json:"mode"`
}
type jobstoreArtifact = struct {
	Canonical string `json:"canonical"`
}

// BuildDetail converts a record into its Detail projection.
func BuildDetail(rec *jobstore.Record, slug string) Detail {
	d := Detail{
		ID:           rec.ID,
		Status:       rec.Status,
		Argv:         rec.Argv,
		CreatedAt:    rec.CreatedAt.Format(timeLayout),
		PID:          rec.PID,
		ExitCode:     rec.ExitCode,
		StdoutPath:   rec.StdoutPath,
		StderrPath:   rec.StderrPath,
		SessionPath:  rec.SessionPath,
		Usage:        rec.Usage,
		Scope:        rec.Metadata.Scope,
		CommandAlias: rec.Metadata.CommandAlias,
		Slug:         slug,
		Dependencies: rec.Schedule.Dependencies,
		Wait:         rec.Schedule.WaitReason,
		WaitedOn:     rec.Schedule.WaitedOn,
		PinnedHead:   rec.Schedule.PinnedHead,
	}
	if rec.StartedAt != nil {
		d.StartedAt = rec.StartedAt.Format(timeLayout)
	}
	if rec.FinishedAt != nil {
		d.FinishedAt = rec.FinishedAt.Format(timeLayout)
	}
	for _, l := range rec.Schedule.Locks {
		d.Locks = append(d.Locks, jobstoreLock{Key: l.Key, Mode: string(l.Mode)})
	}
	for _, label := range artifact.CanonicalLabels(rec.Schedule.Artifacts) {
		d.Artifacts = append(d.Artifacts, jobstoreArtifact{Canonical: label})
	}
	return d
}

// RenderDetailJSON marshals the detail projection for `--json`.
func RenderDetailJSON(d Detail) (string, error) {
	payload, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("scheduleview: encoding job detail: %w", err)
	}
	return string(payload), nil
}

// RenderDetailText renders the text form of `jobs status`/`jobs show`.
func RenderDetailText(d Detail) string {
	var b strings.Builder
	b.WriteString(console.FormatListHeader(fmt.Sprintf("job %s", d.ID)))
	b.WriteString("\n")
	b.WriteString(console.FormatListItem(fmt.Sprintf("status: %s", d.Status)))
	b.WriteString("\n")
	if d.Slug != "" {
		b.WriteString(console.FormatListItem(fmt.Sprintf("slug: %s", d.Slug)))
		b.WriteString("\n")
	}
	if d.CommandAlias != "" {
		b.WriteString(console.FormatListItem(fmt.Sprintf("command: %s", d.CommandAlias)))
		b.WriteString("\n")
	}
	b.WriteString(console.FormatListItem(fmt.Sprintf("created: %s", d.CreatedAt)))
	b.WriteString("\n")
	if d.StartedAt != "" {
		b.WriteString(console.FormatListItem(fmt.Sprintf("started: %s", d.StartedAt)))
		b.WriteString("\n")
	}
	if d.FinishedAt != "" {
		b.WriteString(console.FormatListItem(fmt.Sprintf("finished: %s", d.FinishedAt)))
		b.WriteString("\n")
	}
	if d.ExitCode != nil {
		b.WriteString(console.FormatListItem(fmt.Sprintf("exit_code: %d", *d.ExitCode)))
		b.WriteString("\n")
	}
	if d.Usage.Known {
		b.WriteString(console.FormatListItem(fmt.Sprintf("usage: input=%d output=%d cached_input=%d reasoning_output=%d total=%d", d.Usage.Input, d.Usage.Output, d.Usage.CachedInput, d.Usage.ReasoningOutput, d.Usage.Total)))
		b.WriteString("\n")
	}
	if d.SessionPath != "" {
		b.WriteString(console.FormatListItem(fmt.Sprintf("session: %s", d.SessionPath)))
		b.WriteString("\n")
	}
	if d.Wait.Kind != "" {
		b.WriteString(console.FormatListItem(fmt.Sprintf("wait: %s (%s)", d.Wait.Kind, d.Wait.Detail)))
		b.WriteString("\n")
	}
	if len(d.WaitedOn) > 0 {
		b.WriteString(console.FormatListItem("waited_on: " + strings.Join(d.WaitedOn, ", ")))
		b.WriteString("\n")
	}
	if d.PinnedHead != nil {
		b.WriteString(console.FormatListItem(fmt.Sprintf("pinned_head: %s@%s", d.PinnedHead.Branch, d.PinnedHead.OID)))
		b.WriteString("\n")
	}
	for _, dep := range d.Dependencies {
		opt := ""
		if dep.Optional {
			opt = " (optional)"
		}
		b.WriteString(console.FormatListItem(fmt.Sprintf("dependency: %s%s", dep.Artifact.Canonical(), opt)))
		b.WriteString("\n")
	}
	for _, l := range d.Locks {
		b.WriteString(console.FormatListItem(fmt.Sprintf("lock: %s (%s)", l.Key, l.Mode)))
		b.WriteString("\n")
	}
	for _, a := range d.Artifacts {
		b.WriteString(console.FormatListItem(fmt.Sprintf("artifact: %s", a.Canonical)))
		b.WriteString("\n")
	}
	return b.String()
}
