package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // Driver de PostgreSQL
)

// JobRepoPostgres implementa la interfaz JobRepository para PostgreSQL.
type JobRepoPostgres struct {
	db *sql.DB
}

// NewJobRepoPostgres es el constructor del repositorio.
func NewJobRepoPostgres(db *sql.DB) *JobRepoPostgres {
	return &JobRepoPostgres{db: db}
}

const jobColumns = `id, cep, priority, status, scheduled_time, created_at, completed_at`

// InitSchema crea la tabla jobs si no existe.
func (r *JobRepoPostgres) InitSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS jobs (
			id             UUID PRIMARY KEY,
			cep            TEXT NOT NULL,
			priority       TEXT NOT NULL,
			status         TEXT NOT NULL,
			scheduled_time TIMESTAMPTZ NULL,
			created_at     TIMESTAMPTZ NOT NULL,
			completed_at   TIMESTAMPTZ NULL
		);
		CREATE INDEX IF NOT EXISTS ix_jobs_status_created_id ON jobs (status, created_at, id);
	`)
	return err
}

// ------------------ Escritura ------------------

func (r *JobRepoPostgres) Create(ctx context.Context, j *jobDomain.Job) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		j.ID, j.Cep, string(j.Priority), string(j.Status), j.ScheduledTime, j.CreatedAt, j.CompletedAt,
	)
	if isUniqueViolation(err) {
		return jobDomain.ErrJobAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Update solo escribe si el estado persistido sigue siendo expected.
func (r *JobRepoPostgres) Update(ctx context.Context, j *jobDomain.Job, expected jobDomain.JobStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET cep=$1, priority=$2, status=$3, scheduled_time=$4, completed_at=$5
		 WHERE id=$6 AND status=$7`,
		j.Cep, string(j.Priority), string(j.Status), j.ScheduledTime, j.CompletedAt, j.ID, string(expected),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id=$1)`, j.ID).Scan(&exists); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if !exists {
		return jobDomain.ErrJobNotFound
	}
	return jobDomain.ErrJobStatusConflict
}

// ------------------ Lectura ------------------

func (r *JobRepoPostgres) GetByID(ctx context.Context, id uuid.UUID) (*jobDomain.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=$1`, id)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobDomain.ErrJobNotFound
		}
		return nil, fmt.Errorf("db scan error: %w", err)
	}
	return j, nil
}

func (r *JobRepoPostgres) ListStalePending(ctx context.Context, after jobDomain.StaleCursor, createdBefore time.Time, limit int) ([]*jobDomain.Job, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE status=$1 AND (created_at, id) > ($2, $3) AND created_at < $4
		 ORDER BY created_at ASC, id ASC
		 LIMIT $5`,
		string(jobDomain.JobPending), after.CreatedAt, after.ID, createdBefore, limit,
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

// ------------------ Helpers ------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(s rowScanner) (*jobDomain.Job, error) {
	var (
		j                        jobDomain.Job
		priority, status         string
		scheduledAt, completedAt sql.NullTime
	)
	if err := s.Scan(&j.ID, &j.Cep, &priority, &status, &scheduledAt, &j.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	j.Priority = jobDomain.JobPriority(priority)
	j.Status = jobDomain.JobStatus(status)
	j.CreatedAt = j.CreatedAt.UTC()
	j.ScheduledTime = nullTimePtr(scheduledAt)
	j.CompletedAt = nullTimePtr(completedAt)
	return &j, nil
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// isUniqueViolation detecta el código 23505 de PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
