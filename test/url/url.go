package url

import (
	"fmt"

	"job-scheduler/internal/model"
)

func Jobs(base string) string {
	return fmt.Sprintf("%s/jobs", base)
}

func PagedJobs(base string, page, pageSize int) string {
	return fmt.Sprintf("%s/jobs?page=%d&pageSize=%d", base, page, pageSize)
}

func Job(base string, id model.JobId) string {
	return fmt.Sprintf("%s/jobs/%s", base, id)
}

func Ping(base, name string) string {
	return fmt.Sprintf("%s/tests/ping/%s", base, name)
}
