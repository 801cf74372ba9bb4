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

type IdempotencyRepoSQLite struct {
	db  *sql.DB
	now func() time.Time
}

func NewIdempotencyRepoSQLite(db *sql.DB) *IdempotencyRepoSQLite {
	return &IdempotencyRepoSQLite{db: db, now: time.Now}
}

func (r *IdempotencyRepoSQLite) InitSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS idempotency_key (
			id         TEXT PRIMARY KEY,
			key        TEXT NOT NULL UNIQUE,
			job_id     TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
	`)
	return err
}

func (r *IdempotencyRepoSQLite) GetByKey(ctx context.Context, key string) (*jobDomain.IdempotencyKey, error) {
	var (
		idStr, k, jobStr string
		created          int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, key, job_id, created_at FROM idempotency_key WHERE key=? AND created_at > ?`,
		key, r.cutoff(),
	).Scan(&idStr, &k, &jobStr, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid idempotency id %q: %w", idStr, err)
	}
	jobID, err := uuid.Parse(jobStr)
	if err != nil {
		return nil, fmt.Errorf("invalid job id %q: %w", jobStr, err)
	}
	return &jobDomain.IdempotencyKey{ID: id, Key: k, JobID: jobID, CreatedAt: sqliteDB.FromNanos(created)}, nil
}

// Create inserta la clave; si choca con una clave caducada la reemplaza una vez.
func (r *IdempotencyRepoSQLite) Create(ctx context.Context, k *jobDomain.IdempotencyKey) error {
	err := r.insert(ctx, k)
	if !errors.Is(err, jobDomain.ErrDuplicateIdempotencyKey) {
		return err
	}

	res, delErr := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_key WHERE key=? AND created_at <= ?`, k.Key, r.cutoff())
	if delErr != nil {
		return fmt.Errorf("delete expired idempotency key: %w", delErr)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return err
	}
	return r.insert(ctx, k)
}

func (r *IdempotencyRepoSQLite) insert(ctx context.Context, k *jobDomain.IdempotencyKey) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO idempotency_key (id, key, job_id, created_at) VALUES (?,?,?,?)`,
		k.ID.String(), k.Key, k.JobID.String(), sqliteDB.ToNanos(k.CreatedAt),
	)
	if sqliteDB.IsUniqueViolation(err) {
		return jobDomain.ErrDuplicateIdempotencyKey
	}
	if err != nil {
		return fmt.Errorf("insert idempotency key: %w", err)
	}
	return nil
}

func (r *IdempotencyRepoSQLite) DeleteByKey(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_key WHERE key=?`, key)
	return err
}

func (r *IdempotencyRepoSQLite) cutoff() int64 {
	return sqliteDB.ToNanos(r.now().Add(-jobDomain.IdempotencyKeyTTL))
}
