package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"
)

// IdempotencyRepoPostgres implementa IdempotencyRepository sobre la tabla idempotency_key.
type IdempotencyRepoPostgres struct {
	db  *sql.DB
	now func() time.Time
}

func NewIdempotencyRepoPostgres(db *sql.DB) *IdempotencyRepoPostgres {
	return &IdempotencyRepoPostgres{db: db, now: time.Now}
}

func (r *IdempotencyRepoPostgres) InitSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS idempotency_key (
			id         UUID PRIMARY KEY,
			key        TEXT NOT NULL UNIQUE,
			job_id     UUID NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}

func (r *IdempotencyRepoPostgres) GetByKey(ctx context.Context, key string) (*jobDomain.IdempotencyKey, error) {
	var k jobDomain.IdempotencyKey
	err := r.db.QueryRowContext(ctx,
		`SELECT id, key, job_id, created_at FROM idempotency_key WHERE key=$1 AND created_at > $2`,
		key, r.cutoff(),
	).Scan(&k.ID, &k.Key, &k.JobID, &k.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db scan error: %w", err)
	}
	k.CreatedAt = k.CreatedAt.UTC()
	return &k, nil
}

// Create inserta la clave; si choca con una clave caducada la reemplaza una vez.
func (r *IdempotencyRepoPostgres) Create(ctx context.Context, k *jobDomain.IdempotencyKey) error {
	err := r.insert(ctx, k)
	if !errors.Is(err, jobDomain.ErrDuplicateIdempotencyKey) {
		return err
	}

	res, delErr := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_key WHERE key=$1 AND created_at <= $2`, k.Key, r.cutoff())
	if delErr != nil {
		return fmt.Errorf("delete expired idempotency key: %w", delErr)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return err
	}
	return r.insert(ctx, k)
}

func (r *IdempotencyRepoPostgres) insert(ctx context.Context, k *jobDomain.IdempotencyKey) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO idempotency_key (id, key, job_id, created_at) VALUES ($1, $2, $3, $4)`,
		k.ID, k.Key, k.JobID, k.CreatedAt,
	)
	if isUniqueViolation(err) {
		return jobDomain.ErrDuplicateIdempotencyKey
	}
	if err != nil {
		return fmt.Errorf("insert idempotency key: %w", err)
	}
	return nil
}

func (r *IdempotencyRepoPostgres) DeleteByKey(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_key WHERE key=$1`, key)
	return err
}

func (r *IdempotencyRepoPostgres) cutoff() time.Time {
	return r.now().Add(-jobDomain.IdempotencyKeyTTL).UTC()
}
