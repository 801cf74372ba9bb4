package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"
	sqliteDB "github.com/davicafu/f360jobs/internal/shared/infra/db/sqlite"
)

type JobRepoSQLite struct {
	db *sql.DB
}

func NewJobRepoSQLite(db *sql.DB) *JobRepoSQLite {
	return &JobRepoSQLite{db: db}
}

const jobColumns = `id, cep, priority, status, scheduled_time, created_at, completed_at`

func (r *JobRepoSQLite) InitSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS jobs (
			id             TEXT PRIMARY KEY,
			cep            TEXT NOT NULL,
			priority       TEXT NOT NULL,
			status         TEXT NOT NULL,
			scheduled_time INTEGER NULL,
			created_at     INTEGER NOT NULL,
			completed_at   INTEGER NULL
		);
		CREATE INDEX IF NOT EXISTS ix_jobs_status_created_id ON jobs (status, created_at, id);
	`)
	return err
}

// ------------------ Métodos ------------------

func (r *JobRepoSQLite) Create(ctx context.Context, j *jobDomain.Job) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?,?,?,?,?,?,?)`,
		j.ID.String(), j.Cep, string(j.Priority), string(j.Status),
		sqliteDB.NullableNanos(j.ScheduledTime), sqliteDB.ToNanos(j.CreatedAt), sqliteDB.NullableNanos(j.CompletedAt),
	)
	if sqliteDB.IsUniqueViolation(err) {
		return jobDomain.ErrJobAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*jobDomain.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=?`, id.String())
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobDomain.ErrJobNotFound
	}
	return j, err
}

// Update es un compare-and-set sobre el estado esperado.
func (r *JobRepoSQLite) Update(ctx context.Context, j *jobDomain.Job, expected jobDomain.JobStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET cep=?, priority=?, status=?, scheduled_time=?, completed_at=?
		 WHERE id=? AND status=?`,
		j.Cep, string(j.Priority), string(j.Status),
		sqliteDB.NullableNanos(j.ScheduledTime), sqliteDB.NullableNanos(j.CompletedAt),
		j.ID.String(), string(expected),
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE id=?`, j.ID.String()).Scan(&count); err != nil {
		return fmt.Errorf("count job: %w", err)
	}
	if count == 0 {
		return jobDomain.ErrJobNotFound
	}
	return jobDomain.ErrJobStatusConflict
}

func (r *JobRepoSQLite) ListStalePending(ctx context.Context, after jobDomain.StaleCursor, createdBefore time.Time, limit int) ([]*jobDomain.Job, error) {
	afterNanos := sqliteDB.ToNanos(after.CreatedAt)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE status=? AND created_at < ?
		   AND (created_at > ? OR (created_at = ? AND id > ?))
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		string(jobDomain.JobPending), sqliteDB.ToNanos(createdBefore), afterNanos, afterNanos, after.ID.String(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*jobDomain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(s rowScanner) (*jobDomain.Job, error) {
	var (
		idStr, cep, priority, status string
		scheduled, completed         sql.NullInt64
		created                      int64
	)
	if err := s.Scan(&idStr, &cep, &priority, &status, &scheduled, &created, &completed); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid job id %q: %w", idStr, err)
	}
	return &jobDomain.Job{
		ID:            id,
		Cep:           cep,
		Priority:      jobDomain.JobPriority(priority),
		Status:        jobDomain.JobStatus(status),
		ScheduledTime: sqliteDB.TimePtr(scheduled),
		CreatedAt:     sqliteDB.FromNanos(created),
		CompletedAt:   sqliteDB.TimePtr(completed),
	}, nil
}
