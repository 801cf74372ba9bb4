package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/davicafu/f360jobs/internal/shared/domain"
)

// OutboxRepoSQLite implementa la interfaz sharedDomain.OutboxRepository.
type OutboxRepoSQLite struct {
	db *sql.DB
}

func NewOutboxRepoSQLite(db *sql.DB) *OutboxRepoSQLite {
	return &OutboxRepoSQLite{db: db}
}

const outboxColumns = `id, job_id, payload, priority, delivery_rank, status, scheduled_time, created_at,
	sent_at, locked_until, retry_count, error_message`

// InitSchema crea la tabla outbox_messages si no existe.
func (r *OutboxRepoSQLite) InitSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS outbox_messages (
			id             TEXT PRIMARY KEY,
			job_id         TEXT NOT NULL UNIQUE,
			payload        TEXT NOT NULL,
			priority       TEXT NOT NULL,
			delivery_rank  INTEGER NOT NULL,
			status         TEXT NOT NULL,
			scheduled_time INTEGER NOT NULL,
			created_at     INTEGER NOT NULL,
			sent_at        INTEGER NULL,
			locked_until   INTEGER NULL,
			retry_count    INTEGER NOT NULL DEFAULT 0,
			error_message  TEXT NULL
		);
		CREATE INDEX IF NOT EXISTS ix_outbox_claim
			ON outbox_messages (status, scheduled_time, locked_until);
	`)
	return err
}

func (r *OutboxRepoSQLite) Create(ctx context.Context, m *sharedDomain.OutboxMessage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO outbox_messages (`+outboxColumns+`)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID.String(), m.JobID.String(), m.Payload, m.Priority, m.DeliveryRank, string(m.Status),
		ToNanos(m.ScheduledTime), ToNanos(m.CreatedAt), NullableNanos(m.SentAt), NullableNanos(m.LockedUntil),
		m.RetryCount, m.ErrorMessage,
	)
	if IsUniqueViolation(err) {
		return sharedDomain.ErrOutboxAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

// ClaimNext selecciona y bloquea en una sola sentencia UPDATE ... RETURNING.
func (r *OutboxRepoSQLite) ClaimNext(ctx context.Context, now time.Time, lease time.Duration) (*sharedDomain.OutboxMessage, error) {
	nowN := ToNanos(now)
	row := r.db.QueryRowContext(ctx, `
		UPDATE outbox_messages SET locked_until = ?
		WHERE id = (
			SELECT id FROM outbox_messages
			WHERE status = 'Pending'
			  AND scheduled_time <= ?
			  AND (locked_until IS NULL OR locked_until < ?)
			ORDER BY delivery_rank, scheduled_time
			LIMIT 1
		)
		RETURNING `+outboxColumns,
		ToNanos(now.Add(lease)), nowN, nowN,
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

func (r *OutboxRepoSQLite) Update(ctx context.Context, m *sharedDomain.OutboxMessage, claimedUntil time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox_messages
		 SET status = ?, scheduled_time = ?, sent_at = ?, locked_until = ?, retry_count = ?, error_message = ?
		 WHERE id = ? AND locked_until = ?`,
		string(m.Status), ToNanos(m.ScheduledTime), NullableNanos(m.SentAt), NullableNanos(m.LockedUntil),
		m.RetryCount, m.ErrorMessage, m.ID.String(), ToNanos(claimedUntil),
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
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM outbox_messages WHERE id = ?)`, m.ID.String()).Scan(&exists); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if !exists {
		return sharedDomain.ErrOutboxNotFound
	}
	return sharedDomain.ErrOutboxLeaseLost
}

// GetByJobID devuelve el mensaje del job (útil para diagnóstico y tests).
func (r *OutboxRepoSQLite) GetByJobID(ctx context.Context, jobID uuid.UUID) (*sharedDomain.OutboxMessage, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM outbox_messages WHERE job_id = ?`, jobID.String())
	m, err := scanOutbox(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sharedDomain.ErrOutboxNotFound
	}
	return m, err
}

func scanOutbox(row *sql.Row) (*sharedDomain.OutboxMessage, error) {
	var (
		m                   sharedDomain.OutboxMessage
		id, jobID, status   string
		scheduled, created  int64
		sentAt, lockedUntil sql.NullInt64
		errMsg              sql.NullString
	)
	if err := row.Scan(&id, &jobID, &m.Payload, &m.Priority, &m.DeliveryRank, &status,
		&scheduled, &created, &sentAt, &lockedUntil, &m.RetryCount, &errMsg); err != nil {
		return nil, err
	}

	var err error
	if m.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid UUID in outbox row: %w", err)
	}
	if m.JobID, err = uuid.Parse(jobID); err != nil {
		return nil, fmt.Errorf("invalid job UUID in outbox row %s: %w", id, err)
	}
	m.Status = sharedDomain.OutboxStatus(status)
	m.ScheduledTime = FromNanos(scheduled)
	m.CreatedAt = FromNanos(created)
	m.SentAt = TimePtr(sentAt)
	m.LockedUntil = TimePtr(lockedUntil)
	if errMsg.Valid {
		m.ErrorMessage = &errMsg.String
	}
	return &m, nil
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxRepository = (*OutboxRepoSQLite)(nil)
