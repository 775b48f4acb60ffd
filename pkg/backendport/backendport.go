// Package backendport defines the agent backend interface the core consumes
// (spec §6.2). The core never parses agent-specific event payloads beyond
// the fields declared here; prompt construction, token accounting, and LLM
// network I/O live entirely behind Runner, out of the core's scope (spec
// §1).
package backendport

import "context"

// Usage mirrors the token accounting fields the core is allowed to see and
// aggregate (spec §6.2, §4.5 "token-usage aggregation").
type Usage struct {
	Input           int64 `json:"input"`
	Output          int64 `json:"output"`
	CachedInput     int64 `json:"cached_input"`
	ReasoningOutput int64 `json:"reasoning_output"`
	Total           int64 `json:"total"`
	Known           bool  `json:"known"`
}

// Add accumulates another Usage into this one; Known becomes true if either
// side reported known usage.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		Input:           u.Input + o.Input,
		Output:          u.Output + o.Output,
		CachedInput:     u.CachedInput + o.CachedInput,
		ReasoningOutput: u.ReasoningOutput + o.ReasoningOutput,
		Total:           u.Total + o.Total,
		Known:           u.Known || o.Known,
	}
}

// Request is the opaque instruction handed to the backend. Capability
// handlers in pkg/runtime build this from a compiled node's args, the
// template's params, and the job's pinned head; the backend interprets
// Prompt/Files itself.
type Request struct {
	Capability string
	Prompt     string
	WorkDir    string
	Files      []string
	Metadata   map[string]string
}

// Response carries the backend's output content plus usage accounting.
type Response struct {
	Content string
	Usage   Usage
}

// ProgressEventKind is the closed set of progress event kinds a streaming
// backend may emit (spec §6.2).
type ProgressEventKind string

const (
	ProgressPhase  ProgressEventKind = "phase"
	ProgressStatus ProgressEventKind = "status"
	ProgressLog    ProgressEventKind = "log"
)

// ProgressEvent is a single streamed update from a backend invocation.
type ProgressEvent struct {
	Kind      ProgressEventKind `json:"kind"`
	Phase     string            `json:"phase,omitempty"`
	Label     string            `json:"label,omitempty"`
	Message   string            `json:"message,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Path      string            `json:"path,omitempty"`
	Progress  float64           `json:"progress,omitempty"`
	Status    string            `json:"status,omitempty"`
	Timestamp string            `json:"timestamp,omitempty"`
}

// Runner is the Backend Port (spec §6.2): the core only ever calls Run (or
// the streaming variant) and reads back Content/Usage; everything about how
// the agent reasons or what model it uses is opaque.
type Runner interface {
	Name() string
	Run(ctx context.Context, req Request) (Response, error)
}

// StreamingRunner is implemented by backends that can emit ProgressEvents
// while a request is in flight, for `jobs tail`-style interleaving.
type StreamingRunner interface {
	Runner
	RunStreaming(ctx context.Context, req Request, progress chan<- ProgressEvent) (Response, error)
}
