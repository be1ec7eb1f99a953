package model

import (
	"context"
	"time"
)

// JobStorage owns all jobs. Implementations must be safe for concurrent use,
// and write-backs from the scheduler must never resurrect a deleted job.
type JobStorage interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, id JobId) (Job, error)
	// DeleteJob succeeds for unknown ids.
	DeleteJob(ctx context.Context, id JobId) error
	// CancelJob makes a non-terminal job Cancelled.
	CancelJob(ctx context.Context, id JobId) error
	// ListJobs returns page (1-based) ordered by CreatedAt then Id.
	ListJobs(ctx context.Context, page, pageSize int) ([]Job, error)
	FindDueJobs(ctx context.Context, now time.Time) ([]Job, error)
	// MarkJobRunning moves a pending job to Running if its NextRunAt is still
	// the one the caller observed. It reports false when the job is gone, no
	// longer pending or was rescheduled meanwhile.
	MarkJobRunning(ctx context.Context, job Job, startedAt time.Time) (bool, error)
	// MarkJobDone persists the outcome of a dispatch cycle for a running job.
	// It reports false, and writes nothing, when the job was deleted or
	// cancelled meanwhile.
	MarkJobDone(ctx context.Context, job Job) (bool, error)
	// ResetRunningJobs returns jobs left Running by a previous process to Pending.
	ResetRunningJobs(ctx context.Context) (int, error)
}

func pageOffset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}
