package scheduler

import (
	"sync"

	"job-scheduler/internal/model"
)

// lockTable hands out one execution lock per job id.
type lockTable struct {
	mu   sync.Mutex
	held map[model.JobId]struct{}
}

func newLockTable() *lockTable {
	return &lockTable{held: make(map[model.JobId]struct{})}
}

// tryLock returns false without blocking when id is already locked.
func (lt *lockTable) tryLock(id model.JobId) (unlock func(), ok bool) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if _, busy := lt.held[id]; busy {
		return nil, false
	}
	lt.held[id] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			lt.mu.Lock()
			delete(lt.held, id)
			lt.mu.Unlock()
		})
	}, true
}

func (lt *lockTable) size() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return len(lt.held)
}
