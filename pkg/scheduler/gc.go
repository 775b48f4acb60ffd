package scheduler

import (
	"time"
)

// GC removes terminal job directories older than the threshold, unless they
// are still referenced as an `after` predecessor of a non-terminal job
// (spec §3.6, §4.3 "GC"). Malformed records are never auto-removed.
func (s *Scheduler) GC(threshold time.Duration) ([]string, error) {
	results, err := s.Store.List()
	if err != nil {
		return nil, err
	}

	referenced := map[string]bool{}
	for _, r := range results {
		if r.Record == nil || r.Record.Status.Terminal() {
			continue
		}
		for _, a := range r.Record.Schedule.After {
			referenced[a.JobID] = true
		}
	}

	cutoff := s.Now().Add(-threshold)

	var removed []string
	for _, r := range results {
		if r.Record == nil {
			continue // malformed: never auto-removed
		}
		rec := r.Record
		if !rec.Status.Terminal() {
			continue
		}
		if rec.FinishedAt == nil || rec.FinishedAt.After(cutoff) {
			continue
		}
		if referenced[rec.ID] {
			continue
		}
		if err := s.Store.Remove(rec.ID); err != nil {
			return removed, err
		}
		removed = append(removed, rec.ID)
	}
	return removed, nil
}
