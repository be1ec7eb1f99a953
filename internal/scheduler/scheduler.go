package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"job-scheduler/internal/constants"
	"job-scheduler/internal/dispatch"
	"job-scheduler/internal/model"
	"job-scheduler/internal/schedule"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, jobId model.JobId, target model.Target) dispatch.Result
}

type Config struct {
	TickInterval time.Duration
	// Concurrency caps dispatches in flight across all jobs.
	Concurrency int
}

// Scheduler polls the storage for due jobs every tick and dispatches them.
type Scheduler struct {
	storage    model.JobStorage
	dispatcher Dispatcher
	config     Config
	logger     *log.Entry
	now        func() time.Time

	locks    *lockTable
	slots    chan struct{}
	inFlight sync.WaitGroup

	mu             sync.Mutex
	started        bool
	stopping       bool
	stopTicks      context.CancelFunc
	loopDone       chan struct{}
	dispatchCtx    context.Context
	cancelDispatch context.CancelFunc
}

func New(storage model.JobStorage, dispatcher Dispatcher, config Config, logger *log.Entry) *Scheduler {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}
	return &Scheduler{
		storage:    storage,
		dispatcher: dispatcher,
		config:     config,
		logger:     logger.WithField("component", "scheduler"),
		now:        time.Now,
		locks:      newLockTable(),
		slots:      make(chan struct{}, config.Concurrency),
	}
}

// Start recovers jobs left running by a previous process and begins ticking.
func (skd *Scheduler) Start(ctx context.Context) error {
	skd.mu.Lock()
	defer skd.mu.Unlock()
	if skd.started {
		return errors.New("scheduler already started")
	}
	if skd.stopping {
		return errors.New("scheduler is stopping")
	}

	reset, err := skd.storage.ResetRunningJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed recovering running jobs: %w", err)
	}
	if reset > 0 {
		skd.logger.WithField("jobs", reset).Warn("Recovered jobs left running")
	}

	tickCtx, stopTicks := context.WithCancel(context.Background())
	skd.started = true
	skd.stopTicks = stopTicks
	skd.dispatchCtx, skd.cancelDispatch = context.WithCancel(context.Background())
	skd.loopDone = make(chan struct{})
	go skd.loop(tickCtx, skd.loopDone)
	skd.logger.WithFields(log.Fields{
		"interval":    skd.config.TickInterval,
		"concurrency": skd.config.Concurrency,
	}).Info("Scheduler started")
	return nil
}

// Stop stops ticking and waits for in-flight dispatches. When ctx ends first
// the remaining dispatches are cancelled and their jobs stay due.
func (skd *Scheduler) Stop(ctx context.Context) error {
	skd.mu.Lock()
	if !skd.started {
		skd.mu.Unlock()
		return nil
	}
	skd.started = false
	skd.stopping = true
	skd.stopTicks()
	loopDone := skd.loopDone
	cancelDispatch := skd.cancelDispatch
	skd.mu.Unlock()

	defer func() {
		skd.mu.Lock()
		skd.stopping = false
		skd.mu.Unlock()
	}()

	<-loopDone
	drained := make(chan struct{})
	go func() {
		skd.inFlight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		cancelDispatch()
		skd.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		cancelDispatch()
		<-drained
		skd.logger.Warn("Scheduler stopped before in-flight dispatches finished")
		return ctx.Err()
	}
}

func (skd *Scheduler) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(skd.config.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			skd.Tick(ctx)
		}
	}
}

// Tick dispatches every due job whose execution lock is free and returns how
// many dispatches it started. It blocks while the concurrency cap is reached.
func (skd *Scheduler) Tick(ctx context.Context) int {
	timeoutCtx, cancel := context.WithTimeout(ctx, constants.StorageOperationTimeout)
	jobs, err := skd.storage.FindDueJobs(timeoutCtx, skd.now())
	cancel()
	if err != nil {
		skd.logger.WithField("error", err).Error("Error finding due jobs")
		return 0
	}

	dispatchCtx := skd.currentDispatchCtx()
	started := 0
	for _, job := range jobs {
		unlock, ok := skd.locks.tryLock(job.Id)
		if !ok {
			skd.logger.WithField("job", job.Id).Debug("Job still running, skipping")
			continue
		}
		select {
		case skd.slots <- struct{}{}:
		case <-ctx.Done():
			unlock()
			return started
		}
		skd.inFlight.Add(1)
		started++
		go skd.run(dispatchCtx, job, unlock)
	}
	return started
}

// currentDispatchCtx returns the context of the running Start/Stop cycle, or
// a background context when the scheduler is ticked without being started.
func (skd *Scheduler) currentDispatchCtx() context.Context {
	skd.mu.Lock()
	defer skd.mu.Unlock()
	if skd.dispatchCtx == nil {
		return context.Background()
	}
	return skd.dispatchCtx
}

func (skd *Scheduler) run(ctx context.Context, job model.Job, unlock func()) {
	defer skd.inFlight.Done()
	defer func() { <-skd.slots }()
	defer unlock()

	fields := log.Fields{"job": job.Id, "type": job.Type}
	startedAt := skd.now()
	marked, err := skd.withStorage(func(ctx context.Context) (bool, error) {
		return skd.storage.MarkJobRunning(ctx, job, startedAt)
	})
	if err != nil {
		skd.logger.WithFields(fields).WithField("error", err).Error("Error marking job running")
		return
	}
	if !marked {
		skd.logger.WithFields(fields).Debug("Job no longer due, skipping")
		return
	}

	skd.logger.WithFields(fields).Info("Executing job")
	result := skd.dispatcher.Dispatch(ctx, job.Id, job.Target)
	applyResult(&job, result, startedAt)

	fields["state"] = job.State
	fields["attempts"] = result.Attempts
	if result.Outcome == dispatch.RetryExhausted {
		skd.logger.WithFields(fields).WithField("error", result.Err).Error("Job failed after retries")
	}

	marked, err = skd.withStorage(func(ctx context.Context) (bool, error) {
		return skd.storage.MarkJobDone(ctx, job)
	})
	switch {
	case err != nil:
		skd.logger.WithFields(fields).WithField("error", err).Error("Error marking job done")
	case !marked:
		skd.logger.WithFields(fields).Info("Job removed while running, result dropped")
	default:
		if job.NextRunAt != nil {
			fields["nextRunAt"] = *job.NextRunAt
		}
		skd.logger.WithFields(fields).Debug("Job done")
	}
}

// applyResult moves a running job to the state that follows a dispatch cycle
// started at startedAt.
func applyResult(job *model.Job, result dispatch.Result, startedAt time.Time) {
	job.LastRunAt = &startedAt
	job.Attempt = 0

	if result.Outcome == dispatch.Aborted {
		job.State = model.JobStatePending
		return
	}

	if job.Type == model.JobTypeOnce {
		job.NextRunAt = nil
		job.State = model.JobStateCompleted
		if result.Outcome == dispatch.RetryExhausted {
			job.State = model.JobStateFailed
			job.Attempt = result.Attempts
		}
		return
	}

	next, ok := schedule.NextRun(job.Schedule, startedAt)
	if !ok {
		job.NextRunAt = nil
		job.State = model.JobStateCompleted
		return
	}
	job.NextRunAt = &next
	job.State = model.JobStatePending
}

// withStorage runs op detached from shutdown so results are written back
// even while the scheduler is stopping.
func (skd *Scheduler) withStorage(op func(ctx context.Context) (bool, error)) (bool, error) {
	timeoutCtx, cancel := context.WithTimeout(context.Background(), constants.StorageOperationTimeout)
	defer cancel()
	return op(timeoutCtx)
}
