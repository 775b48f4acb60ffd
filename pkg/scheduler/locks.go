package scheduler

import (
	"github.com/jordan-tan/vizier/pkg/artifact"
	"github.com/jordan-tan/vizier/pkg/jobstore"
)

// lockTable tracks which job ids currently hold which locks, distinguishing
// shared from exclusive holders (spec §4.3 step 4, §5). It is rebuilt fresh
// for every evaluation pass from the currently-running jobs' declared locks,
// then mutated as jobs are admitted within the same pass.
type lockTable struct {
	exclusiveHolder map[string]string   // key -> holding job id
	sharedHolders   map[string]map[string]bool // key -> set of holding job ids
}

func newLockTable(records map[string]*jobstore.Record) *lockTable {
	lt := &lockTable{
		exclusiveHolder: map[string]string{},
		sharedHolders:   map[string]map[string]bool{},
	}
	for id, rec := range records {
		if rec.Status != jobstore.StatusRunning {
			continue
		}
		lt.acquire(rec.Schedule.Locks, id)
	}
	return lt
}

// canAcquire reports whether jobID could hold every lock in locks given the
// table's current holders.
func (lt *lockTable) canAcquire(locks []artifact.Lock, jobID string) bool {
	for _, l := range locks {
		if holder, ok := lt.exclusiveHolder[l.Key]; ok && holder != jobID {
			return false
		}
		if l.Mode == artifact.LockExclusive {
			if holders := lt.sharedHolders[l.Key]; len(holders) > 0 {
				if len(holders) > 1 || !holders[jobID] {
					return false
				}
			}
		}
	}
	return true
}

// acquire marks jobID as holding every lock in locks.
func (lt *lockTable) acquire(locks []artifact.Lock, jobID string) {
	for _, l := range locks {
		if l.Mode == artifact.LockExclusive {
			lt.exclusiveHolder[l.Key] = jobID
		} else {
			if lt.sharedHolders[l.Key] == nil {
				lt.sharedHolders[l.Key] = map[string]bool{}
			}
			lt.sharedHolders[l.Key][jobID] = true
		}
	}
}

// release drops jobID's hold on every lock in locks (spec §4.3 Completion:
// "releases locks").
func (lt *lockTable) release(locks []artifact.Lock, jobID string) {
	for _, l := range locks {
		if holder, ok := lt.exclusiveHolder[l.Key]; ok && holder == jobID {
			delete(lt.exclusiveHolder, l.Key)
		}
		if holders := lt.sharedHolders[l.Key]; holders != nil {
			delete(holders, jobID)
		}
	}
}
