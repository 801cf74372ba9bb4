package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"
)

// RegisterResult indica si la clave se creó ahora o ya existía (y para qué job).
type RegisterResult struct {
	Created       bool
	ExistingJobID uuid.UUID
}

// IdempotencyGuard reserva claves de idempotencia. La unicidad la garantiza el almacén
// (insert único); la lectura previa solo ahorra el insert en el caso común.
type IdempotencyGuard struct {
	repo jobDomain.IdempotencyRepository
	now  func() time.Time
	log  *zap.Logger
}

func NewIdempotencyGuard(repo jobDomain.IdempotencyRepository, log *zap.Logger) *IdempotencyGuard {
	return &IdempotencyGuard{repo: repo, now: time.Now, log: log}
}

// Register intenta reservar key para jobID.
func (g *IdempotencyGuard) Register(ctx context.Context, key string, jobID uuid.UUID) (RegisterResult, error) {
	existing, err := g.repo.GetByKey(ctx, key)
	if err != nil {
		return RegisterResult{}, err
	}
	if existing != nil {
		return RegisterResult{Created: false, ExistingJobID: existing.JobID}, nil
	}

	err = g.repo.Create(ctx, jobDomain.NewIdempotencyKey(key, jobID, g.now()))
	if errors.Is(err, jobDomain.ErrDuplicateIdempotencyKey) {
		// otra petición con la misma clave ganó la carrera
		res := RegisterResult{Created: false}
		if winner, getErr := g.repo.GetByKey(ctx, key); getErr == nil && winner != nil {
			res.ExistingJobID = winner.JobID
		}
		return res, nil
	}
	if err != nil {
		return RegisterResult{}, err
	}
	return RegisterResult{Created: true}, nil
}

// Release borra la clave tras un fallo posterior a Register. Sobrevive a la cancelación de ctx.
func (g *IdempotencyGuard) Release(ctx context.Context, key string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := g.repo.DeleteByKey(releaseCtx, key); err != nil {
		g.log.Error("❌ No se pudo liberar la clave de idempotencia", zap.String("idempotency_key", key), zap.Error(err))
	}
}
