package data

import (
	"fmt"
	"sync"
	"time"
)

// IntervalEps absorbs tick granularity and dispatch latency.
const IntervalEps = time.Millisecond * 600

type ExecutionData struct {
	executions map[string][]time.Time
	lock       *sync.Mutex
}

func NewExecutionData() *ExecutionData {
	return &ExecutionData{make(map[string][]time.Time), &sync.Mutex{}}
}

func (ed *ExecutionData) SignalExecution(name string) {
	ed.lock.Lock()
	defer ed.lock.Unlock()
	ed.executions[name] = append(ed.executions[name], time.Now())
}

func (ed *ExecutionData) Count(name string) int {
	ed.lock.Lock()
	defer ed.lock.Unlock()
	return len(ed.executions[name])
}

func (ed *ExecutionData) Reset() {
	ed.lock.Lock()
	defer ed.lock.Unlock()
	ed.executions = make(map[string][]time.Time)
}

func (ed *ExecutionData) MaxPeriod() time.Duration {
	var result time.Duration
	for _, job := range PingJobs {
		if job.Period > result {
			result = job.Period
		}
	}
	return result
}

// ValidateExecutionData checks every ping job ran at least twice and never
// waited much longer than its period between runs.
func (ed *ExecutionData) ValidateExecutionData() error {
	ed.lock.Lock()
	defer ed.lock.Unlock()

	for _, job := range PingJobs {
		executions := ed.executions[job.Name]
		if len(executions) < 2 {
			return fmt.Errorf("job %s executed %d times, expected at least twice", job.Name, len(executions))
		}
		maxDifference := job.Period + IntervalEps
		for i := 1; i < len(executions); i++ {
			actualDifference := executions[i].Sub(executions[i-1])
			if actualDifference > maxDifference {
				return fmt.Errorf(
					"time difference between executions %s exceeded the maximum of %s for job %s",
					actualDifference,
					maxDifference,
					job.Name,
				)
			}
		}
	}
	return nil
}
