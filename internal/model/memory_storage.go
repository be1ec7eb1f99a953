package model

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type memoryJobStorage struct {
	rwLock sync.RWMutex
	jobs   map[JobId]*Job
}

func NewMemoryJobStorage() *memoryJobStorage {
	return &memoryJobStorage{jobs: make(map[JobId]*Job)}
}

func (st *memoryJobStorage) CreateJob(_ context.Context, job Job) error {
	st.rwLock.Lock()
	defer st.rwLock.Unlock()

	if _, ok := st.jobs[job.Id]; ok {
		return fmt.Errorf("failed creating job with id %s: %w", job.Id, ErrorAlreadyExists)
	}
	stored := cloneJob(job)
	st.jobs[job.Id] = &stored
	return nil
}

func (st *memoryJobStorage) GetJob(_ context.Context, id JobId) (Job, error) {
	st.rwLock.RLock()
	defer st.rwLock.RUnlock()

	job, ok := st.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("failed getting job by id %s: %w", id, ErrorNotFound)
	}
	return cloneJob(*job), nil
}

func (st *memoryJobStorage) DeleteJob(_ context.Context, id JobId) error {
	st.rwLock.Lock()
	defer st.rwLock.Unlock()

	delete(st.jobs, id)
	return nil
}

func (st *memoryJobStorage) CancelJob(_ context.Context, id JobId) error {
	st.rwLock.Lock()
	defer st.rwLock.Unlock()

	job, ok := st.jobs[id]
	if !ok {
		return fmt.Errorf("failed cancelling job with id %s: %w", id, ErrorNotFound)
	}
	if !job.State.Terminal() {
		job.State = JobStateCancelled
		job.NextRunAt = nil
	}
	return nil
}

func (st *memoryJobStorage) ListJobs(_ context.Context, page, pageSize int) ([]Job, error) {
	st.rwLock.RLock()
	defer st.rwLock.RUnlock()

	all := make([]*Job, 0, len(st.jobs))
	for _, job := range st.jobs {
		all = append(all, job)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].Id < all[j].Id
	})

	jobs := make([]Job, 0, pageSize)
	for i := pageOffset(page, pageSize); i < len(all) && len(jobs) < pageSize; i++ {
		jobs = append(jobs, cloneJob(*all[i]))
	}
	return jobs, nil
}

func (st *memoryJobStorage) FindDueJobs(_ context.Context, now time.Time) ([]Job, error) {
	st.rwLock.RLock()
	defer st.rwLock.RUnlock()

	dueJobs := make([]Job, 0)
	for _, job := range st.jobs {
		if job.State == JobStatePending && job.NextRunAt != nil && !job.NextRunAt.After(now) {
			dueJobs = append(dueJobs, cloneJob(*job))
		}
	}
	sort.Slice(dueJobs, func(i, j int) bool {
		return dueJobs[i].NextRunAt.Before(*dueJobs[j].NextRunAt)
	})
	return dueJobs, nil
}

func (st *memoryJobStorage) MarkJobRunning(_ context.Context, due Job, startedAt time.Time) (bool, error) {
	st.rwLock.Lock()
	defer st.rwLock.Unlock()

	job, ok := st.jobs[due.Id]
	if !ok || job.State != JobStatePending || job.NextRunAt == nil || due.NextRunAt == nil || !job.NextRunAt.Equal(*due.NextRunAt) {
		return false, nil
	}
	job.State = JobStateRunning
	job.LastRunAt = &startedAt
	return true, nil
}

func (st *memoryJobStorage) MarkJobDone(_ context.Context, job Job) (bool, error) {
	st.rwLock.Lock()
	defer st.rwLock.Unlock()

	stored, ok := st.jobs[job.Id]
	if !ok || stored.State != JobStateRunning {
		return false, nil
	}
	stored.State = job.State
	stored.NextRunAt = cloneTime(job.NextRunAt)
	stored.LastRunAt = cloneTime(job.LastRunAt)
	stored.Attempt = job.Attempt
	return true, nil
}

func (st *memoryJobStorage) ResetRunningJobs(_ context.Context) (int, error) {
	st.rwLock.Lock()
	defer st.rwLock.Unlock()

	reset := 0
	for _, job := range st.jobs {
		if job.State == JobStateRunning {
			job.State = JobStatePending
			reset++
		}
	}
	return reset, nil
}

func cloneJob(job Job) Job {
	job.NextRunAt = cloneTime(job.NextRunAt)
	job.LastRunAt = cloneTime(job.LastRunAt)
	if job.Target.Headers != nil {
		headers := make(map[string]string, len(job.Target.Headers))
		for k, v := range job.Target.Headers {
			headers[k] = v
		}
		job.Target.Headers = headers
	}
	return job
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
