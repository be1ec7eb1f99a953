package data

import "time"

type TargetData struct {
	Url     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    map[string]any    `json:"body,omitempty"`
}

type JobRequestData struct {
	Type     string     `json:"type"`
	Interval string     `json:"interval,omitempty"`
	When     string     `json:"when,omitempty"`
	Target   TargetData `json:"target"`
}

// PingJob describes a recurring job calling its own ping endpoint.
type PingJob struct {
	Name     string
	Interval string
	Period   time.Duration
}

var PingJobs = []PingJob{
	{"every-second", "1 second", time.Second},
	{"every-two-seconds", "2 seconds", 2 * time.Second},
	{"cron-every-second", "* * * * * *", time.Second},
}

// OnceJobName is the ping endpoint of the one-off job.
const OnceJobName = "once"
