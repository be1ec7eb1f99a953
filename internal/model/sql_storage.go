package model

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"job-scheduler/internal/model/sqlquery"
)

type sqlJobStorage struct {
	database *sql.DB
	rwLock   *sync.RWMutex
}

func NewSQLJobStorage(ctx context.Context, driverName, dataSourceName string) (*sqlJobStorage, error) {
	database, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed opening database: %w", err)
	}

	if err = database.PingContext(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed checking database availibility: %w", err)
	}

	storage, err := NewSQLJobStorageFromDB(ctx, database)
	if err != nil {
		database.Close()
		return nil, err
	}
	return storage, nil
}

// NewSQLJobStorageFromDB wraps an open database and makes sure the jobs table
// exists.
func NewSQLJobStorageFromDB(ctx context.Context, database *sql.DB) (*sqlJobStorage, error) {
	storage := sqlJobStorage{database, &sync.RWMutex{}}
	if err := storage.init(ctx); err != nil {
		return nil, fmt.Errorf("failed initializing storage: %w", err)
	}
	return &storage, nil
}

func (st *sqlJobStorage) Close() error {
	return st.database.Close()
}

func (st *sqlJobStorage) CreateJob(ctx context.Context, job Job) error {
	target, err := json.Marshal(job.Target)
	if err != nil {
		return fmt.Errorf("failed encoding target of job %s: %w", job.Id, err)
	}

	err = st.updateJobs(
		ctx,
		sqlquery.NewJob,
		job.Id,
		job.Type,
		job.Schedule.String(),
		target,
		job.State,
		nullTime(job.NextRunAt),
		nullTime(job.LastRunAt),
		job.Attempt,
		job.CreatedAt.UTC(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == sqlquery.UniqueViolation {
			err = ErrorAlreadyExists
		}
		return fmt.Errorf("failed creating job with id %s: %w", job.Id, err)
	}
	return nil
}

func (st *sqlJobStorage) GetJob(ctx context.Context, id JobId) (Job, error) {
	st.rwLock.RLock()
	defer st.rwLock.RUnlock()

	job := Job{}
	err := scanJob(st.database.QueryRowContext(ctx, sqlquery.GetJob, id), &job)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrorNotFound
		}
		return Job{}, fmt.Errorf("failed getting job by id %s: %w", id, err)
	}
	return job, nil
}

func (st *sqlJobStorage) DeleteJob(ctx context.Context, id JobId) error {
	err := st.updateJobs(ctx, sqlquery.DeleteJob, id)
	if err != nil {
		err = fmt.Errorf("failed deleting job with id %s: %w", id, err)
	}
	return err
}

func (st *sqlJobStorage) CancelJob(ctx context.Context, id JobId) error {
	transactionFunc := func(ctx context.Context, tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, sqlquery.CancelJob, id)
		if err != nil {
			return err
		}
		if affected, err := result.RowsAffected(); err != nil || affected > 0 {
			return err
		}
		var exists int
		if err = tx.QueryRowContext(ctx, sqlquery.JobExists, id).Scan(&exists); errors.Is(err, sql.ErrNoRows) {
			return ErrorNotFound
		}
		return err
	}

	if err := st.transact(ctx, transactionFunc); err != nil {
		return fmt.Errorf("failed cancelling job with id %s: %w", id, err)
	}
	return nil
}

func (st *sqlJobStorage) ListJobs(ctx context.Context, page, pageSize int) ([]Job, error) {
	jobs, err := st.queryJobs(ctx, sqlquery.ListJobs, pageSize, pageOffset(page, pageSize))
	if err != nil {
		return nil, fmt.Errorf("failed listing jobs page %d of size %d: %w", page, pageSize, err)
	}
	return jobs, nil
}

func (st *sqlJobStorage) FindDueJobs(ctx context.Context, now time.Time) ([]Job, error) {
	jobs, err := st.queryJobs(ctx, sqlquery.FindDueJobs, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed finding due jobs: %w", err)
	}
	return jobs, nil
}

func (st *sqlJobStorage) MarkJobRunning(ctx context.Context, job Job, startedAt time.Time) (bool, error) {
	marked, err := st.updateJob(ctx, sqlquery.MarkRunning, job.Id, startedAt.UTC(), nullTime(job.NextRunAt))
	if err != nil {
		return false, fmt.Errorf("failed marking job %s running: %w", job.Id, err)
	}
	return marked, nil
}

func (st *sqlJobStorage) MarkJobDone(ctx context.Context, job Job) (bool, error) {
	marked, err := st.updateJob(
		ctx,
		sqlquery.MarkDone,
		job.Id,
		job.State,
		nullTime(job.NextRunAt),
		nullTime(job.LastRunAt),
		job.Attempt,
	)
	if err != nil {
		return false, fmt.Errorf("failed marking job %s done: %w", job.Id, err)
	}
	return marked, nil
}

func (st *sqlJobStorage) ResetRunningJobs(ctx context.Context) (int, error) {
	st.rwLock.Lock()
	defer st.rwLock.Unlock()

	result, err := st.database.ExecContext(ctx, sqlquery.ResetState)
	if err != nil {
		return 0, fmt.Errorf("failed resetting running jobs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed resetting running jobs: %w", err)
	}
	return int(affected), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner, job *Job) error {
	var (
		expression string
		target     []byte
		nextRunAt  sql.NullTime
		lastRunAt  sql.NullTime
	)
	err := sc.Scan(
		&job.Id,
		&job.Type,
		&expression,
		&target,
		&job.State,
		&nextRunAt,
		&lastRunAt,
		&job.Attempt,
		&job.CreatedAt,
	)
	if err != nil {
		return err
	}
	if job.Schedule, err = ParseSchedule(job.Type, expression); err != nil {
		return fmt.Errorf("failed parsing stored schedule of job %s: %w", job.Id, err)
	}
	if err = json.Unmarshal(target, &job.Target); err != nil {
		return fmt.Errorf("failed decoding stored target of job %s: %w", job.Id, err)
	}
	job.NextRunAt = timePtr(nextRunAt)
	job.LastRunAt = timePtr(lastRunAt)
	job.CreatedAt = job.CreatedAt.UTC()
	return nil
}

func (st *sqlJobStorage) queryJobs(ctx context.Context, query string, params ...any) ([]Job, error) {
	st.rwLock.RLock()
	defer st.rwLock.RUnlock()

	rows, err := st.database.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]Job, 0)
	for rows.Next() {
		job := Job{}
		if err := scanJob(rows, &job); err != nil {
			return nil, fmt.Errorf("failed scanning job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return jobs, rows.Close()
}

func (st *sqlJobStorage) updateJobs(ctx context.Context, query string, params ...any) error {
	st.rwLock.Lock()
	defer st.rwLock.Unlock()

	_, err := st.database.ExecContext(ctx, query, params...)
	return err
}

func (st *sqlJobStorage) updateJob(ctx context.Context, query string, params ...any) (bool, error) {
	st.rwLock.Lock()
	defer st.rwLock.Unlock()

	result, err := st.database.ExecContext(ctx, query, params...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

func (st *sqlJobStorage) transact(ctx context.Context, transactionFunc func(context.Context, *sql.Tx) error) error {
	st.rwLock.Lock()
	defer st.rwLock.Unlock()

	tx, err := st.database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = transactionFunc(ctx, tx)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (st *sqlJobStorage) init(ctx context.Context) error {
	transactionFunc := func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, sqlquery.CreateTable); err != nil {
			return fmt.Errorf("error creating jobs table: %w", err)
		}
		if _, err := tx.ExecContext(ctx, sqlquery.CreateDueIndex); err != nil {
			return fmt.Errorf("error creating due jobs index: %w", err)
		}
		return nil
	}
	return st.transact(ctx, transactionFunc)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}
