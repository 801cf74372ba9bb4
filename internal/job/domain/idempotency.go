package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyKeyTTL es la ventana durante la que una clave bloquea reenvíos.
const IdempotencyKeyTTL = 24 * time.Hour

type IdempotencyKey struct {
	ID        uuid.UUID `json:"id"`
	Key       string    `json:"key"`
	JobID     uuid.UUID `json:"jobId"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewIdempotencyKey(key string, jobID uuid.UUID, now time.Time) *IdempotencyKey {
	return &IdempotencyKey{ID: uuid.New(), Key: key, JobID: jobID, CreatedAt: now.UTC()}
}

// IsExpired indica si la clave ya salió de su ventana en now.
func (k *IdempotencyKey) IsExpired(now time.Time) bool {
	return !now.Before(k.CreatedAt.Add(IdempotencyKeyTTL))
}
