// Package service holds the job operations behind the management API.
package service

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"job-scheduler/internal/model"
	"job-scheduler/internal/schedule"
)

// CreateJobRequest is an already validated creation payload. Interval is
// read for recurring jobs and When for one-off jobs.
type CreateJobRequest struct {
	Type     model.JobType
	Interval string
	When     string
	Target   model.Target
}

type JobService struct {
	storage model.JobStorage
	logger  *log.Entry
	now     func() time.Time
}

func NewJobService(storage model.JobStorage, logger *log.Entry) *JobService {
	return &JobService{
		storage: storage,
		logger:  logger.WithField("component", "jobs"),
		now:     time.Now,
	}
}

// Create parses the schedule and persists a pending job. Schedule errors are
// returned as *schedule.InvalidScheduleError and nothing is stored.
func (js *JobService) Create(ctx context.Context, req CreateJobRequest) (model.Job, error) {
	expression := req.Interval
	if req.Type == model.JobTypeOnce {
		expression = req.When
	}
	s, err := model.ParseSchedule(req.Type, expression)
	if err != nil {
		return model.Job{}, err
	}

	createdAt := js.now().UTC()
	nextRunAt, ok := schedule.FirstRun(s, createdAt)
	if !ok {
		return model.Job{}, &schedule.InvalidScheduleError{Expression: expression, Reason: "schedule never fires"}
	}
	job := model.Job{
		Id:        model.NewJobId(createdAt),
		Type:      req.Type,
		Schedule:  s,
		Target:    req.Target,
		State:     model.JobStatePending,
		NextRunAt: &nextRunAt,
		CreatedAt: createdAt,
	}
	if err = js.storage.CreateJob(ctx, job); err != nil {
		return model.Job{}, fmt.Errorf("failed saving new job: %w", err)
	}

	js.logger.WithFields(log.Fields{
		"job":       job.Id,
		"type":      job.Type,
		"schedule":  s.String(),
		"nextRunAt": nextRunAt,
	}).Info("Job created")
	return job, nil
}

func (js *JobService) Get(ctx context.Context, id model.JobId) (model.Job, error) {
	return js.storage.GetJob(ctx, id)
}

// Delete removes the job whatever its state. A dispatch already in flight
// finishes but its result is dropped.
func (js *JobService) Delete(ctx context.Context, id model.JobId) error {
	if err := js.storage.DeleteJob(ctx, id); err != nil {
		return err
	}
	js.logger.WithField("job", id).Info("Job deleted")
	return nil
}

func (js *JobService) Cancel(ctx context.Context, id model.JobId) (model.Job, error) {
	if err := js.storage.CancelJob(ctx, id); err != nil {
		return model.Job{}, err
	}
	js.logger.WithField("job", id).Info("Job cancelled")
	return js.storage.GetJob(ctx, id)
}

func (js *JobService) List(ctx context.Context, page, pageSize int) ([]model.Job, error) {
	return js.storage.ListJobs(ctx, page, pageSize)
}
