package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// --- Repositorio de Jobs ---
type JobRepository interface {
	// Create devuelve ErrJobAlreadyExists si el id ya existe.
	Create(ctx context.Context, j *Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*Job, error)
	// Update reemplaza el job solo si su estado persistido sigue siendo expected.
	// Devuelve ErrJobNotFound o ErrJobStatusConflict.
	Update(ctx context.Context, j *Job, expected JobStatus) error
	// ListStalePending devuelve jobs Pending creados antes de createdBefore y estrictamente
	// posteriores a after, ordenados por (createdAt, id).
	ListStalePending(ctx context.Context, after StaleCursor, createdBefore time.Time, limit int) ([]*Job, error)
}

// StaleCursor es la posición (createdAt, id) del último job revisado.
// El id desempata jobs creados en el mismo instante.
type StaleCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// CursorOf devuelve la posición del job.
func CursorOf(j *Job) StaleCursor {
	return StaleCursor{CreatedAt: j.CreatedAt, ID: j.ID}
}

// Precedes indica si la posición del cursor va estrictamente antes que j.
func (c StaleCursor) Precedes(j *Job) bool {
	if !c.CreatedAt.Equal(j.CreatedAt) {
		return c.CreatedAt.Before(j.CreatedAt)
	}
	return c.ID.String() < j.ID.String()
}

type IdempotencyRepository interface {
	// GetByKey devuelve (nil, nil) si no existe una clave vigente.
	GetByKey(ctx context.Context, key string) (*IdempotencyKey, error)
	// Create es un insert único: una clave vigente repetida devuelve ErrDuplicateIdempotencyKey.
	Create(ctx context.Context, k *IdempotencyKey) error
	DeleteByKey(ctx context.Context, key string) error
}

// AddressLookup consulta una dirección por CEP. (nil, nil) significa "sin resultado".
type AddressLookup interface {
	GetAddress(ctx context.Context, cep string) (*Address, error)
}

// AddressArchive guarda el resultado del enriquecimiento por job.
type AddressArchive interface {
	Save(ctx context.Context, jobID uuid.UUID, addr *Address) error
	// Get devuelve ErrAddressNotFound si no hay dirección guardada.
	Get(ctx context.Context, jobID uuid.UUID) (*Address, error)
}

// DTO para transportar los resultados de la consulta de tendencia.
type DailyJobTrend struct {
	Day            time.Time `json:"day"`
	FinishedCount  int       `json:"finished"`
	ErrorCount     int       `json:"error"`
	CancelledCount int       `json:"cancelled"`
}

type JobAnalyticsRepository interface {
	LogBatch(ctx context.Context, jobs []*Job) error
	GetAverageCompletionTime(ctx context.Context, start, end time.Time) (time.Duration, error)
	GetDailyTrend(ctx context.Context, start, end time.Time) ([]DailyJobTrend, error)
}

// ---------- Helpers comunes (cache keys, etc.) ----------

func JobCacheKeyByID(id uuid.UUID) string {
	return fmt.Sprintf("job:id:%s", id.String())
}
