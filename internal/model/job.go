package model

import (
	"errors"
	"fmt"
	"time"

	"job-scheduler/internal/schedule"
)

var (
	ErrorNotFound      = errors.New("job not found")
	ErrorAlreadyExists = errors.New("job already exists")
)

type JobType string

const (
	JobTypeOnce      JobType = "once"
	JobTypeRecurring JobType = "every"
)

type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed || s == JobStateCancelled
}

// Target is the HTTP callback fired when a job runs.
type Target struct {
	Url     string                 `json:"url"`
	Method  string                 `json:"method"`
	Headers map[string]string      `json:"headers,omitempty"`
	Body    map[string]interface{} `json:"body,omitempty"`
}

// Job is owned by a JobStorage. Id, Type, Schedule, Target and CreatedAt never
// change once the job is created. NextRunAt is nil exactly when State is
// terminal.
type Job struct {
	Id        JobId
	Type      JobType
	Schedule  schedule.Schedule
	Target    Target
	State     JobState
	NextRunAt *time.Time
	LastRunAt *time.Time
	Attempt   int
	CreatedAt time.Time
}

// ParseSchedule parses expression according to the job type.
func ParseSchedule(jobType JobType, expression string) (schedule.Schedule, error) {
	switch jobType {
	case JobTypeOnce:
		return schedule.ParseOnce(expression)
	case JobTypeRecurring:
		return schedule.ParseRecurring(expression)
	}
	return nil, fmt.Errorf("unknown job type %q", jobType)
}
