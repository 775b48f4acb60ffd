// Package mergeengine implements the Merge Conflict Engine from spec
// §4.4.2: merge and squash-merge share a resumable state machine, persisted
// at <repo>/.vizier/tmp/merge-conflicts/<slug>.json the way the teacher's
// jobstore persists job records — temp-file + rename via renameio, never a
// half-written state file.
package mergeengine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/jordan-tan/vizier/pkg/logger"
)

var log = logger.New("mergeengine:state")

// ReplayState tracks cherry-pick replay progress across a conflict-resolution
// pause/resume cycle (spec §4.4.2 "Conflict resolution state").
type ReplayState struct {
	MergeBaseOID    string   `json:"merge_base_oid"`
	StartOID        string   `json:"start_oid"`
	SourceCommits   []string `json:"source_commits"`
	AppliedCommits  []string `json:"applied_commits"`
	SquashMainline  *int     `json:"squash_mainline,omitempty"`
}

// ConflictState is the on-disk shape persisted while a merge or squash-merge
// is paused on unresolved conflicts (spec §4.4.2).
type ConflictState struct {
	Slug         string       `json:"slug"`
	SourceBranch string       `json:"source_branch"`
	TargetBranch string       `json:"target_branch"`

	HeadOID      string `json:"head_oid"`
	SourceOID    string `json:"source_oid"`
	MergeMessage string `json:"merge_message"`

	Squash                bool   `json:"squash"`
	ImplementationMessage string `json:"implementation_message,omitempty"`

	Replay *ReplayState `json:"replay,omitempty"`

	SquashMainline *int `json:"squash_mainline,omitempty"`
}

// StateDir returns the merge-conflict state directory for a repo root (spec
// §4.4.2: "<repo>/.vizier/tmp/merge-conflicts/<slug>.json").
func StateDir(repoRoot string) string {
	return filepath.Join(repoRoot, ".vizier", "tmp", "merge-conflicts")
}

func statePath(repoRoot, slug string) string {
	return filepath.Join(StateDir(repoRoot), slug+".json")
}

// ErrNoPendingMerge is returned by Load when no state file exists for slug.
var ErrNoPendingMerge = errors.New("mergeengine: no pending merge for this slug")

// Save persists state as <repo>/.vizier/tmp/merge-conflicts/<slug>.json via
// temp-file + rename.
func Save(repoRoot string, state *ConflictState) error {
	dir := StateDir(repoRoot)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mergeengine: failed to create state dir %s: %w", dir, err)
	}
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("mergeengine: failed to encode state for %s: %w", state.Slug, err)
	}
	log.Printf("persisting conflict state for %s (squash=%v)", state.Slug, state.Squash)
	if err := renameio.WriteFile(statePath(repoRoot, state.Slug), payload, 0o644); err != nil {
		return fmt.Errorf("mergeengine: failed to write state for %s: %w", state.Slug, err)
	}
	return nil
}

// Load reads the persisted conflict state for slug, or ErrNoPendingMerge if
// none exists.
func Load(repoRoot, slug string) (*ConflictState, error) {
	raw, err := os.ReadFile(statePath(repoRoot, slug))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoPendingMerge, slug)
		}
		return nil, fmt.Errorf("mergeengine: failed to read state for %s: %w", slug, err)
	}
	var state ConflictState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("mergeengine: state file for %s is malformed: %w", slug, err)
	}
	return &state, nil
}

// Clear removes the persisted conflict state for slug. Missing files are not
// an error (spec §4.4.2 step 5: "Remove the state file").
func Clear(repoRoot, slug string) error {
	if err := os.Remove(statePath(repoRoot, slug)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("mergeengine: failed to remove state for %s: %w", slug, err)
	}
	return nil
}
