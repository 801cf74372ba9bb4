package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // Driver de PostgreSQL

	sharedDomain "github.com/davicafu/f360jobs/internal/shared/domain"
)

// OutboxRepoPostgres implementa la interfaz sharedDomain.OutboxRepository.
type OutboxRepoPostgres struct {
	db *sql.DB
}

func NewOutboxRepoPostgres(db *sql.DB) *OutboxRepoPostgres {
	return &OutboxRepoPostgres{db: db}
}

const outboxColumns = `id, job_id, payload, priority, delivery_rank, status, scheduled_time, created_at,
	sent_at, locked_until, retry_count, error_message`

// InitSchema crea la tabla outbox_messages y sus índices.
func (r *OutboxRepoPostgres) InitSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS outbox_messages (
			id             UUID PRIMARY KEY,
			job_id         UUID NOT NULL UNIQUE,
			payload        TEXT NOT NULL,
			priority       TEXT NOT NULL,
			delivery_rank  INT NOT NULL,
			status         TEXT NOT NULL,
			scheduled_time TIMESTAMPTZ NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL,
			sent_at        TIMESTAMPTZ NULL,
			locked_until   TIMESTAMPTZ NULL,
			retry_count    INT NOT NULL DEFAULT 0,
			error_message  TEXT NULL
		);
		CREATE INDEX IF NOT EXISTS ix_outbox_claim
			ON outbox_messages (status, scheduled_time, locked_until);
		CREATE INDEX IF NOT EXISTS ix_outbox_claim_order
			ON outbox_messages (status, delivery_rank, scheduled_time);
	`)
	return err
}

func (r *OutboxRepoPostgres) Create(ctx context.Context, m *sharedDomain.OutboxMessage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO outbox_messages (`+outboxColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		m.ID, m.JobID, m.Payload, m.Priority, m.DeliveryRank, string(m.Status), m.ScheduledTime, m.CreatedAt,
		m.SentAt, m.LockedUntil, m.RetryCount, m.ErrorMessage,
	)
	if isUniqueViolation(err) {
		return sharedDomain.ErrOutboxAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

// ClaimNext bloquea una fila candidata con SKIP LOCKED y fija su lease en la misma sentencia.
func (r *OutboxRepoPostgres) ClaimNext(ctx context.Context, now time.Time, lease time.Duration) (*sharedDomain.OutboxMessage, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE outbox_messages SET locked_until = $2
		WHERE id = (
			SELECT id FROM outbox_messages
			WHERE status = 'Pending'
			  AND scheduled_time <= $1
			  AND (locked_until IS NULL OR locked_until < $1)
			ORDER BY delivery_rank, scheduled_time
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+outboxColumns,
		now, now.Add(lease),
	)

	m, err := scanOutbox(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim outbox message: %w", err)
	}
	return m, nil
}

func (r *OutboxRepoPostgres) Update(ctx context.Context, m *sharedDomain.OutboxMessage, claimedUntil time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox_messages
		 SET status=$2, scheduled_time=$3, sent_at=$4, locked_until=$5, retry_count=$6, error_message=$7
		 WHERE id=$1 AND locked_until=$8`,
		m.ID, string(m.Status), m.ScheduledTime, m.SentAt, m.LockedUntil, m.RetryCount, m.ErrorMessage, claimedUntil,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get RowsAffected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM outbox_messages WHERE id=$1)`, m.ID).Scan(&exists); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if !exists {
		return sharedDomain.ErrOutboxNotFound
	}
	return sharedDomain.ErrOutboxLeaseLost
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutbox(row rowScanner) (*sharedDomain.OutboxMessage, error) {
	var m sharedDomain.OutboxMessage
	var status string
	var sentAt, lockedUntil sql.NullTime
	var errMsg sql.NullString

	if err := row.Scan(&m.ID, &m.JobID, &m.Payload, &m.Priority, &m.DeliveryRank, &status,
		&m.ScheduledTime, &m.CreatedAt, &sentAt, &lockedUntil, &m.RetryCount, &errMsg); err != nil {
		return nil, err
	}

	m.Status = sharedDomain.OutboxStatus(status)
	m.ScheduledTime = m.ScheduledTime.UTC()
	m.CreatedAt = m.CreatedAt.UTC()
	if sentAt.Valid {
		t := sentAt.Time.UTC()
		m.SentAt = &t
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time.UTC()
		m.LockedUntil = &t
	}
	if errMsg.Valid {
		m.ErrorMessage = &errMsg.String
	}
	return &m, nil
}

// isUniqueViolation detecta el código 23505 de PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxRepository = (*OutboxRepoPostgres)(nil)
