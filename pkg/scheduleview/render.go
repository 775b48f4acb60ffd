package scheduleview

import (
	"fmt"
	"strings"

	"github.com/jordan-tan/vizier/pkg/console"
	"github.com/jordan-tan/vizier/pkg/stringutil"
)

// RenderSummary renders the `jobs schedule --format summary` table: one row
// per job, ordered by created_at then job_id (spec §4.5).
func RenderSummary(entries []Entry) string {
	headers := []string{"JOB", "STATUS", "SLUG", "NAME", "WAIT", "CREATED"}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rec := e.Record
		wait := ""
		if rec.Schedule.WaitReason.Kind != "" {
			wait = fmt.Sprintf("%s: %s", rec.Schedule.WaitReason.Kind, rec.Schedule.WaitReason.Detail)
		}
		rows = append(rows, []string{
			rec.ID,
			string(rec.Status),
			e.Slug,
			stringutil.Truncate(rec.Metadata.CommandAlias, 32),
			stringutil.Truncate(wait, 48),
			rec.CreatedAt.Format(timeLayout),
		})
	}
	return console.RenderTable(console.TableConfig{Headers: headers, Rows: rows})
}

// RenderDAG renders the `jobs schedule --format dag` textual graph: edges
// `artifact -> job status` and `job -> predecessor` with after-policy labels
// (spec §4.5), one nested list section per job.
func RenderDAG(entries []Entry, published map[string]bool) string {
	sections := make(map[string][]string, len(entries))
	order := make([]string, 0, len(entries))

	for _, e := range entries {
		rec := e.Record
		header := fmt.Sprintf("%s [%s]", rec.ID, rec.Status)
		if e.Slug != "" {
			header = fmt.Sprintf("%s (%s) [%s]", rec.ID, e.Slug, rec.Status)
		}

		var lines []string
		for _, dep := range rec.Schedule.Dependencies {
			state := "missing"
			if published[dep.Artifact.Canonical()] {
				state = "present"
			}
			lines = append(lines, fmt.Sprintf("%s -> %s (%s)", dep.Artifact.Canonical(), rec.ID, state))
		}
		for _, a := range rec.Schedule.After {
			lines = append(lines, fmt.Sprintf("%s -> %s (after: %s)", rec.ID, a.JobID, a.Policy))
		}
		if len(lines) == 0 {
			lines = []string{"(no edges)"}
		}

		sections[header] = lines
		order = append(order, header)
	}

	// console.RenderNestedList iterates a map directly (unordered), so build
	// the ordered form manually using the same per-section list rendering it
	// uses internally, keeping output order stable across renders.
	var out strings.Builder
	for _, header := range order {
		out.WriteString(console.FormatListHeader(header))
		out.WriteString("\n")
		out.WriteString(console.RenderList(sections[header], "dash"))
		out.WriteString("\n")
	}
	return out.String()
}

// ListField names one column `jobs list` can display; the configurable
// display spec spec §4.5 requires ("format ∈ {summary, table, json},
// displayed fields, show-succeeded toggle, dismiss-failures").
type ListField string

const (
	FieldID      ListField = "id"
	FieldStatus  ListField = "status"
	FieldSlug    ListField = "slug"
	FieldName    ListField = "name"
	FieldWait    ListField = "wait"
	FieldCreated ListField = "created"
)

// DefaultListFields is the field set used when no display spec is
// configured.
var DefaultListFields = []ListField{FieldID, FieldStatus, FieldSlug, FieldName, FieldCreated}

func fieldHeader(f ListField) string {
	switch f {
	case FieldID:
		return "JOB"
	case FieldStatus:
		return "STATUS"
	case FieldSlug:
		return "SLUG"
	case FieldName:
		return "NAME"
	case FieldWait:
		return "WAIT"
	case FieldCreated:
		return "CREATED"
	default:
		return strings.ToUpper(string(f))
	}
}

func fieldValue(e Entry, f ListField) string {
	rec := e.Record
	switch f {
	case FieldID:
		return rec.ID
	case FieldStatus:
		return string(rec.Status)
	case FieldSlug:
		return e.Slug
	case FieldName:
		return rec.Metadata.CommandAlias
	case FieldWait:
		if rec.Schedule.WaitReason.Kind == "" {
			return ""
		}
		return fmt.Sprintf("%s: %s", rec.Schedule.WaitReason.Kind, rec.Schedule.WaitReason.Detail)
	case FieldCreated:
		return rec.CreatedAt.Format(timeLayout)
	default:
		return ""
	}
}

// RenderList renders `jobs list` as a table restricted to the configured
// fields, in declared field order.
func RenderList(entries []Entry, fields []ListField) string {
	if len(fields) == 0 {
		fields = DefaultListFields
	}
	headers := make([]string, len(fields))
	for i, f := range fields {
		headers[i] = fieldHeader(f)
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		row := make([]string, len(fields))
		for i, f := range fields {
			row[i] = fieldValue(e, f)
		}
		rows = append(rows, row)
	}
	return console.RenderTable(console.TableConfig{Headers: headers, Rows: rows})
}
