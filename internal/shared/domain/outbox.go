package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrOutboxNotFound      = errors.New("outbox message not found")
	ErrOutboxAlreadyExists = errors.New("outbox message already exists for job")
	// ErrOutboxLeaseLost: el lease expiró y otro relay reclamó el mensaje.
	ErrOutboxLeaseLost = errors.New("outbox message lease lost")
)

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "Pending"
	OutboxSent    OutboxStatus = "Sent"
	OutboxError   OutboxStatus = "Error"
)

// OutboxMessage representa la intención durable de notificar que un job debe procesarse.
// Solo el relay lo modifica una vez creado; nunca se borra.
type OutboxMessage struct {
	ID            uuid.UUID    `json:"id"`
	JobID         uuid.UUID    `json:"jobId"`
	Payload       string       `json:"payload"`  // JSON serializado del mensaje a publicar
	Priority      string       `json:"priority"` // nombre de la prioridad, usado como routing key
	DeliveryRank  int          `json:"deliveryRank"`
	Status        OutboxStatus `json:"status"`
	ScheduledTime time.Time    `json:"scheduledTime"`
	CreatedAt     time.Time    `json:"createdAt"`
	SentAt        *time.Time   `json:"sentAt"`
	LockedUntil   *time.Time   `json:"lockedUntil"` // fin del lease de quien lo reclamó
	RetryCount    int          `json:"retryCount"`
	ErrorMessage  *string      `json:"errorMessage"`
}

// IsClaimable indica si el mensaje puede reclamarse en el instante now.
func (m *OutboxMessage) IsClaimable(now time.Time) bool {
	return m.Status == OutboxPending &&
		!m.ScheduledTime.After(now) &&
		(m.LockedUntil == nil || m.LockedUntil.Before(now))
}

// MarkSent registra una publicación correcta y libera el lease.
func (m *OutboxMessage) MarkSent(now time.Time) {
	m.Status = OutboxSent
	m.SentAt = &now
	m.LockedUntil = nil
}

// RecordFailure registra un intento fallido. Al alcanzar maxRetries el mensaje pasa a Error;
// si no, sigue Pending, se libera el lease y no vuelve a ser reclamable antes de retryAt.
func (m *OutboxMessage) RecordFailure(errMsg string, maxRetries int, retryAt time.Time) {
	m.RetryCount++
	m.ErrorMessage = &errMsg
	m.LockedUntil = nil

	if m.RetryCount >= maxRetries {
		m.Status = OutboxError
		return
	}
	if retryAt.After(m.ScheduledTime) {
		m.ScheduledTime = retryAt
	}
}

// OutboxRepository define el contrato del almacén de outbox.
// ClaimNext debe ser una única operación atómica (compare-and-set) en el almacén:
// dos relays nunca pueden reclamar el mismo mensaje.
type OutboxRepository interface {
	Create(ctx context.Context, msg *OutboxMessage) error
	// ClaimNext devuelve (nil, nil) si no hay ningún mensaje reclamable.
	ClaimNext(ctx context.Context, now time.Time, lease time.Duration) (*OutboxMessage, error)
	// Update solo escribe si el mensaje sigue bloqueado con claimedUntil (el lockedUntil
	// devuelto por ClaimNext); si no, ErrOutboxLeaseLost.
	Update(ctx context.Context, msg *OutboxMessage, claimedUntil time.Time) error
}
