// Package vizerr defines the closed set of structured error kinds the core
// raises (spec §7). They are plain wrapped errors, not an exception
// hierarchy: callers use errors.Is/errors.As against the sentinel Kind
// values the way the teacher's codebase uses fmt.Errorf("%w: ...") chains
// rather than typed panics. cmd/vizier picks an exit code through ExitCode,
// which inspects the kind.
package vizerr

import (
	"errors"
	"fmt"
)

// Kind is one of the nine conceptual error categories from spec §7.
type Kind string

const (
	KindTemplateValidation Kind = "template_validation"
	KindRecordMalformed    Kind = "record_malformed"
	KindPreconditions      Kind = "preconditions"
	KindConflictBlocked    Kind = "conflict_blocked"
	KindBackendFailure     Kind = "backend_failure"
	KindGateFailure        Kind = "gate_failure"
	KindNotActive          Kind = "not_active"
	KindMissingJob         Kind = "missing_job"
	KindInfraIO            Kind = "infra_io"
)

// Error is a single classified failure. Remediation, when set, is the exact
// next command the operator should run (spec §7: "user-visible failure must
// always name... (d) the next command to run").
type Error struct {
	Kind        Kind
	Job         string
	Plan        string
	StatePath   string
	Remediation string
	Err         error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s]", e.Kind)
	if e.Plan != "" {
		msg += " plan " + e.Plan
	}
	if e.Job != "" {
		msg += " job " + e.Job
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.StatePath != "" {
		msg += fmt.Sprintf(" (state: %s)", e.StatePath)
	}
	if e.Remediation != "" {
		msg += fmt.Sprintf(" — next: %s", e.Remediation)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, vizerr.Kind...) work by comparing Kind via a
// sentinel wrapper; see KindError below for the comparable form.
func (e *Error) Is(target error) bool {
	var k *kindSentinel
	if errors.As(target, &k) {
		return e.Kind == k.kind
	}
	return false
}

type kindSentinel struct{ kind Kind }

func (k *kindSentinel) Error() string { return string(k.kind) }

// KindError returns a comparable sentinel for errors.Is(err,
// vizerr.KindError(vizerr.KindNotActive)).
func KindError(k Kind) error { return &kindSentinel{kind: k} }

// New builds an Error of the given kind wrapping err, with optional
// identifying context.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// WithJob sets the job id context.
func (e *Error) WithJob(jobID string) *Error { e.Job = jobID; return e }

// WithPlan sets the plan slug context.
func (e *Error) WithPlan(slug string) *Error { e.Plan = slug; return e }

// WithState sets the on-disk state path context.
func (e *Error) WithState(path string) *Error { e.StatePath = path; return e }

// WithRemediation sets the next-command remediation text.
func (e *Error) WithRemediation(cmd string) *Error { e.Remediation = cmd; return e }

// ExitCode maps an error to the CLI exit code from spec §6.4: 0 is never
// returned here (reserved for success), 1 for user-facing refusals, 2 for
// unknown-argument errors (handled directly by cobra, not via this
// function).
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ve *Error
	if errors.As(err, &ve) {
		switch ve.Kind {
		case KindTemplateValidation, KindRecordMalformed, KindPreconditions,
			KindConflictBlocked, KindBackendFailure, KindGateFailure,
			KindNotActive, KindMissingJob, KindInfraIO:
			return 1
		}
	}
	return 1
}
