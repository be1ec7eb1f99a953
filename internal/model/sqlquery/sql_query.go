package sqlquery

const (
	jobColumns = "id, type, schedule, target, state, nextRunAt, lastRunAt, attempt, createdAt"

	CreateTable = `CREATE TABLE IF NOT EXISTS jobs (
	id CHAR(24) PRIMARY KEY,
	type TEXT NOT NULL,
	schedule TEXT NOT NULL,
	target JSONB NOT NULL,
	state TEXT NOT NULL,
	nextRunAt TIMESTAMPTZ,
	lastRunAt TIMESTAMPTZ,
	attempt INTEGER NOT NULL DEFAULT 0,
	createdAt TIMESTAMPTZ NOT NULL
)`
	CreateDueIndex = "CREATE INDEX IF NOT EXISTS jobs_due ON jobs (state, nextRunAt)"

	NewJob          = "INSERT INTO jobs (" + jobColumns + ") values ($1, $2, $3, $4, $5, $6, $7, $8, $9)"
	GetJob          = "SELECT " + jobColumns + " FROM jobs WHERE id = $1"
	DeleteJob       = "DELETE FROM jobs WHERE id = $1"
	CancelJob       = "UPDATE jobs SET state = 'cancelled', nextRunAt = NULL WHERE id = $1 AND state IN ('pending', 'running')"
	JobExists       = "SELECT 1 FROM jobs WHERE id = $1"
	ListJobs        = "SELECT " + jobColumns + " FROM jobs ORDER BY createdAt, id LIMIT $1 OFFSET $2"
	FindDueJobs     = "SELECT " + jobColumns + " FROM jobs WHERE state = 'pending' AND nextRunAt <= $1 ORDER BY nextRunAt"
	MarkRunning     = "UPDATE jobs SET state = 'running', lastRunAt = $2 WHERE id = $1 AND state = 'pending' AND nextRunAt = $3"
	MarkDone        = "UPDATE jobs SET state = $2, nextRunAt = $3, lastRunAt = $4, attempt = $5 WHERE id = $1 AND state = 'running'"
	ResetState      = "UPDATE jobs SET state = 'pending' WHERE state = 'running'"
	UniqueViolation = "unique_violation"
)
