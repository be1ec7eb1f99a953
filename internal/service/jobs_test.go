package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"job-scheduler/internal/model"
	"job-scheduler/internal/schedule"
)

var baseTime = time.Date(2024, time.January, 1, 10, 15, 0, 0, time.UTC)

func newTestService() (*JobService, model.JobStorage) {
	logger := log.New()
	logger.SetOutput(io.Discard)
	storage := model.NewMemoryJobStorage()
	js := NewJobService(storage, log.NewEntry(logger))
	js.now = func() time.Time { return baseTime }
	return js, storage
}

var target = model.Target{Url: "http://localhost/ping", Method: "POST"}

func TestCreateRecurringJob(t *testing.T) {
	js, _ := newTestService()

	job, err := js.Create(context.Background(), CreateJobRequest{Type: model.JobTypeRecurring, Interval: "0 * * * *", Target: target})
	require.NoError(t, err)
	assert.True(t, job.Id.Valid())
	assert.Equal(t, model.JobStatePending, job.State)
	assert.Equal(t, time.Date(2024, time.January, 1, 11, 0, 0, 0, time.UTC), *job.NextRunAt)

	stored, err := js.Get(context.Background(), job.Id)
	require.NoError(t, err)
	assert.Equal(t, job, stored)
}

func TestCreateIntervalJob(t *testing.T) {
	js, _ := newTestService()

	job, err := js.Create(context.Background(), CreateJobRequest{Type: model.JobTypeRecurring, Interval: "10 seconds", Target: target})
	require.NoError(t, err)
	assert.Equal(t, baseTime.Add(10*time.Second), *job.NextRunAt)
}

func TestCreateOnceJob(t *testing.T) {
	js, _ := newTestService()

	job, err := js.Create(context.Background(), CreateJobRequest{Type: model.JobTypeOnce, When: "2024-01-02T00:00:00Z", Target: target})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC), *job.NextRunAt)

	past, err := js.Create(context.Background(), CreateJobRequest{Type: model.JobTypeOnce, When: "2020-01-01T00:00:00Z", Target: target})
	require.NoError(t, err, "elapsed times run on the next tick")
	assert.True(t, past.NextRunAt.Before(baseTime))
}

func TestCreateRejectsInvalidSchedule(t *testing.T) {
	js, storage := newTestService()

	for _, req := range []CreateJobRequest{
		{Type: model.JobTypeRecurring, Interval: "0 minutes", Target: target},
		{Type: model.JobTypeRecurring, Interval: "", Target: target},
		{Type: model.JobTypeOnce, When: "soon", Target: target},
		{Type: model.JobTypeRecurring, Interval: "0 0 0 * * * 2020", Target: target},
	} {
		_, err := js.Create(context.Background(), req)
		var invalid *schedule.InvalidScheduleError
		assert.True(t, errors.As(err, &invalid), "expected InvalidScheduleError, got %v", err)
	}

	jobs, err := storage.ListJobs(context.Background(), 1, 100)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestDeleteAndCancel(t *testing.T) {
	js, _ := newTestService()
	ctx := context.Background()

	assert.NoError(t, js.Delete(ctx, model.NewJobId(baseTime)), "deleting an unknown job succeeds")

	job, err := js.Create(ctx, CreateJobRequest{Type: model.JobTypeRecurring, Interval: "1 hour", Target: target})
	require.NoError(t, err)

	cancelled, err := js.Cancel(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateCancelled, cancelled.State)
	assert.Nil(t, cancelled.NextRunAt)

	require.NoError(t, js.Delete(ctx, job.Id))
	_, err = js.Get(ctx, job.Id)
	assert.True(t, errors.Is(err, model.ErrorNotFound))
}

func TestList(t *testing.T) {
	js, _ := newTestService()
	ctx := context.Background()
	ids := make([]model.JobId, 0, 3)
	for i := 0; i < 3; i++ {
		js.now = func() time.Time { return baseTime.Add(time.Duration(i) * time.Minute) }
		job, err := js.Create(ctx, CreateJobRequest{Type: model.JobTypeRecurring, Interval: "1 hour", Target: target})
		require.NoError(t, err)
		ids = append(ids, job.Id)
	}

	page, err := js.List(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[0], page[0].Id)
	assert.Equal(t, ids[1], page[1].Id)

	page, err = js.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[2], page[0].Id)
}
