package jobstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/sourcegraph/conc/pool"

	"github.com/jordan-tan/vizier/pkg/constants"
	"github.com/jordan-tan/vizier/pkg/logger"
)

var log = logger.New("jobstore:store")

// ErrNotFound is returned by Read/Update when no record exists for the
// requested job id.
var ErrNotFound = errors.New("job record not found")

// ErrMalformed is returned by Read/Update when a record exists but fails to
// parse as JSON (spec §4.1: "tolerate malformed records... readers never
// observe half-written records; writers never destroy a valid record on
// parse failure").
type ErrMalformed struct {
	JobID string
	Err   error
}

func (e *ErrMalformed) Error() string {
	return fmt.Sprintf("job record %s is malformed: %v", e.JobID, e.Err)
}
func (e *ErrMalformed) Unwrap() error { return e.Err }

// Store persists job records as JSON files under Root, one subdirectory per
// job id: <Root>/<job_id>/job.json (spec §6.3).
type Store struct {
	Root string

	mu sync.Mutex
}

// New returns a Store rooted at root. The directory is created lazily on
// first write.
func New(root string) *Store {
	return &Store{Root: root}
}

func (s *Store) jobDir(jobID string) string {
	return filepath.Join(s.Root, jobID)
}

func (s *Store) recordPath(jobID string) string {
	return filepath.Join(s.jobDir(jobID), constants.JobRecordFileName)
}

// Write persists value as the record for jobID via a temp-file + rename, so
// readers never observe a partially written file (spec §4.1).
func (s *Store) Write(jobID string, value *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(jobID, value)
}

func (s *Store) writeLocked(jobID string, value *Record) error {
	dir := s.jobDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("jobstore: failed to create job directory %s: %w", dir, err)
	}

	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("jobstore: failed to encode record %s: %w", jobID, err)
	}

	log.Printf("writing record %s (status=%s)", jobID, value.Status)
	if err := renameio.WriteFile(s.recordPath(jobID), payload, 0o644); err != nil {
		return fmt.Errorf("jobstore: failed to write record %s: %w", jobID, err)
	}
	return nil
}

// Read returns the parsed record for jobID, ErrNotFound if its record file
// does not exist, or *ErrMalformed if the file exists but fails to parse.
func (s *Store) Read(jobID string) (*Record, error) {
	raw, err := os.ReadFile(s.recordPath(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		return nil, fmt.Errorf("jobstore: failed to read record %s: %w", jobID, err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, &ErrMalformed{JobID: jobID, Err: err}
	}
	return &rec, nil
}

// Update performs a read-modify-write of jobID's record. If the existing
// record is malformed, Update returns *ErrMalformed without writing
// anything (spec §4.1: "on malformed, returns Malformed without
// overwriting").
func (s *Store) Update(jobID string, fn func(*Record) error) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Read(jobID)
	if err != nil {
		return nil, err
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	if err := s.writeLocked(jobID, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListResult is one entry from List: either a parsed record or a warning
// describing why its directory's record could not be parsed.
type ListResult struct {
	JobID   string
	Record  *Record
	Warning error
}

// List enumerates every job directory under Root. Records that fail to
// parse are reported via ListResult.Warning, never silently dropped (spec
// §4.1). Reads happen across a bounded worker pool per SPEC_FULL.md's
// sourcegraph/conc wiring (§5: "admission is done in parallel threads only
// for I/O").
func (s *Store) List() ([]ListResult, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("jobstore: failed to list %s: %w", s.Root, err)
	}

	var jobIDs []string
	for _, e := range entries {
		if e.IsDir() {
			jobIDs = append(jobIDs, e.Name())
		}
	}

	results := make([]ListResult, len(jobIDs))
	p := pool.New().WithMaxGoroutines(8)
	for i, id := range jobIDs {
		i, id := i, id
		p.Go(func() {
			rec, err := s.Read(id)
			if err != nil {
				var malformed *ErrMalformed
				if errors.As(err, &malformed) {
					log.Printf("skipping malformed record %s: %v", id, err)
					results[i] = ListResult{JobID: id, Warning: err}
					return
				}
				results[i] = ListResult{JobID: id, Warning: err}
				return
			}
			results[i] = ListResult{JobID: id, Record: rec}
		})
	}
	p.Wait()
	return results, nil
}

// Remove recursively deletes a job's directory. Used by GC and
// cancel-with-cleanup paths (spec §4.1, §4.3).
func (s *Store) Remove(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(s.jobDir(jobID)); err != nil {
		return fmt.Errorf("jobstore: failed to remove job %s: %w", jobID, err)
	}
	return nil
}

// Exists reports whether jobID has a directory, regardless of whether its
// record parses.
func (s *Store) Exists(jobID string) bool {
	_, err := os.Stat(s.jobDir(jobID))
	return err == nil
}

// JobDir exposes the job's on-disk directory for callers that need to
// resolve stdout/stderr/outcome paths (spec §6.3).
func (s *Store) JobDir(jobID string) string {
	return s.jobDir(jobID)
}
