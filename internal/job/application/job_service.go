package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"
	sharedDomain "github.com/davicafu/f360jobs/internal/shared/domain"
	sharedCache "github.com/davicafu/f360jobs/internal/shared/infra/platform/cache"
	sharedUtils "github.com/davicafu/f360jobs/internal/shared/infra/utils"
)

// CreateJobCommand es la entrada del caso de uso de creación.
type CreateJobCommand struct {
	Cep           string
	Priority      string
	ScheduledTime *time.Time
}

// JobStats resume la analítica de jobs terminados en un rango.
type JobStats struct {
	From                     time.Time                 `json:"from"`
	To                       time.Time                 `json:"to"`
	AverageCompletionSeconds float64                   `json:"averageCompletionSeconds"`
	Daily                    []jobDomain.DailyJobTrend `json:"daily"`
}

// JobService define los casos de uso de la API de jobs.
type JobService struct {
	jobs      jobDomain.JobRepository
	outbox    sharedDomain.OutboxRepository
	guard     *IdempotencyGuard
	cache     sharedCache.Cache
	archive   jobDomain.AddressArchive         // opcional
	analytics jobDomain.JobAnalyticsRepository // opcional
	now       func() time.Time
	log       *zap.Logger
}

func NewJobService(
	jobs jobDomain.JobRepository,
	outbox sharedDomain.OutboxRepository,
	guard *IdempotencyGuard,
	cache sharedCache.Cache,
	archive jobDomain.AddressArchive,
	analytics jobDomain.JobAnalyticsRepository,
	log *zap.Logger,
) *JobService {
	return &JobService{
		jobs:      jobs,
		outbox:    outbox,
		guard:     guard,
		cache:     cache,
		archive:   archive,
		analytics: analytics,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log,
	}
}

// CreateJob valida la petición, reserva la clave de idempotencia, crea el job en Pending
// y encola su notificación en el outbox.
func (s *JobService) CreateJob(ctx context.Context, cmd CreateJobCommand, idempotencyKey string) (*jobDomain.Job, error) {
	if idempotencyKey == "" {
		return nil, jobDomain.ErrMissingIdempotencyKey
	}

	// 1. Validación: sin efectos secundarios
	priority, err := jobDomain.ParsePriority(cmd.Priority)
	if err != nil {
		return nil, err
	}
	now := s.now()
	job, err := jobDomain.NewJob(cmd.Cep, priority, cmd.ScheduledTime, now)
	if err != nil {
		return nil, err
	}
	msg, err := jobDomain.NewOutboxMessage(job, now)
	if err != nil {
		return nil, fmt.Errorf("building outbox message: %w", err)
	}

	// 2. Clave de idempotencia
	res, err := s.guard.Register(ctx, idempotencyKey, job.ID)
	if err != nil {
		s.log.Error("Failed to register idempotency key", zap.Error(err))
		return nil, err
	}
	if !res.Created {
		s.log.Warn("Duplicate request detected",
			zap.String("idempotency_key", idempotencyKey),
			zap.String("existing_job_id", res.ExistingJobID.String()),
		)
		return nil, jobDomain.ErrDuplicateRequest
	}

	// 3. Job
	if err := s.jobs.Create(ctx, job); err != nil {
		s.log.Error("Failed to create job", zap.String("job_id", job.ID.String()), zap.Error(err))
		s.guard.Release(ctx, idempotencyKey)
		return nil, err
	}

	// 4. Outbox. Si falla, el job ya existe: el reconciliador del relay lo encolará.
	if err := s.outbox.Create(ctx, msg); err != nil {
		s.log.Error("❌ Failed to enqueue outbox message, left for reconciliation",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
	}

	s.log.Info("Job created",
		zap.String("job_id", job.ID.String()),
		zap.String("priority", string(job.Priority)),
	)
	return job, nil
}

// GetJob obtiene un job, usando el patrón cache-aside con reintentos.
// En caché solo hay jobs terminados; los que siguen en curso se leen siempre del almacén.
func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*jobDomain.Job, error) {
	// 1. Intentar obtener de la caché
	if s.cache != nil {
		var cached jobDomain.Job
		if hit, _ := s.cache.Get(ctx, jobDomain.JobCacheKeyByID(id), &cached); hit && cached.Status.IsTerminal() {
			return &cached, nil
		}
	}

	// 2. Si es 'miss', ir al repositorio con reintentos (solo ante fallos de infraestructura)
	var job *jobDomain.Job
	var notFound bool
	err := sharedUtils.Retry(ctx, 3, 100*time.Millisecond, func() error {
		var errRetry error
		job, errRetry = s.jobs.GetByID(ctx, id)
		if errors.Is(errRetry, jobDomain.ErrJobNotFound) {
			notFound = true
			return nil
		}
		return errRetry
	})
	if notFound {
		s.log.Warn("Job not found", zap.String("job_id", id.String()))
		return nil, jobDomain.ErrJobNotFound
	}
	if err != nil {
		s.log.Error("Failed to fetch job", zap.String("job_id", id.String()), zap.Error(err))
		return nil, err
	}

	// 3. Actualizar caché en segundo plano para la próxima vez
	cacheTerminal(ctx, s.cache, job, s.log)
	return job, nil
}

// CancelJob pasa un job Pending a Cancelled. Lee siempre del almacén, nunca de la caché.
func (s *JobService) CancelJob(ctx context.Context, id uuid.UUID) error {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, jobDomain.ErrJobNotFound) {
			s.log.Warn("Job not found", zap.String("job_id", id.String()))
		}
		return err
	}

	if err := job.Cancel(s.now()); err != nil {
		s.log.Warn("Job cannot be cancelled",
			zap.String("job_id", id.String()),
			zap.String("status", string(job.Status)),
		)
		return err
	}

	if err := s.jobs.Update(ctx, job, jobDomain.JobPending); err != nil {
		if errors.Is(err, jobDomain.ErrJobStatusConflict) {
			// el consumidor lo tomó entre la lectura y la escritura
			s.log.Warn("Job left Pending before cancellation", zap.String("job_id", id.String()))
			return jobDomain.ErrJobNotCancellable
		}
		s.log.Error("Failed to cancel job", zap.String("job_id", id.String()), zap.Error(err))
		return err
	}

	s.log.Info("Job cancelled", zap.String("job_id", id.String()))
	cacheTerminal(ctx, s.cache, job, s.log)
	recordTerminal(ctx, s.analytics, job, s.log)
	return nil
}

// GetJobAddress devuelve la dirección obtenida para un job ya procesado.
func (s *JobService) GetJobAddress(ctx context.Context, id uuid.UUID) (*jobDomain.Address, error) {
	if _, err := s.GetJob(ctx, id); err != nil {
		return nil, err
	}
	if s.archive == nil {
		return nil, jobDomain.ErrAddressNotFound
	}
	return s.archive.Get(ctx, id)
}

// GetCompletionStats consulta la analítica de jobs terminados en [from, to].
func (s *JobService) GetCompletionStats(ctx context.Context, from, to time.Time) (*JobStats, error) {
	if s.analytics == nil {
		return nil, jobDomain.ErrAnalyticsUnavailable
	}

	avg, err := s.analytics.GetAverageCompletionTime(ctx, from, to)
	if err != nil {
		s.log.Error("Failed to query average completion time", zap.Error(err))
		return nil, err
	}
	daily, err := s.analytics.GetDailyTrend(ctx, from, to)
	if err != nil {
		s.log.Error("Failed to query daily trend", zap.Error(err))
		return nil, err
	}
	if daily == nil {
		daily = []jobDomain.DailyJobTrend{}
	}

	return &JobStats{
		From:                     from,
		To:                       to,
		AverageCompletionSeconds: avg.Seconds(),
		Daily:                    daily,
	}, nil
}

// cacheTerminal cachea el job solo si ya es terminal: una copia en curso podría pisar
// a la terminal escrita por el consumidor. TTL 0 aplica el CACHE_TTL de la caché.
func cacheTerminal(ctx context.Context, cache sharedCache.Cache, job *jobDomain.Job, log *zap.Logger) {
	if !job.Status.IsTerminal() {
		return
	}
	sharedCache.AsyncCacheSet(ctx, cache, jobDomain.JobCacheKeyByID(job.ID), job.Clone(), 0, log)
}

// recordTerminal envía el job terminado a analítica en segundo plano; nunca falla la operación.
func recordTerminal(ctx context.Context, analytics jobDomain.JobAnalyticsRepository, job *jobDomain.Job, log *zap.Logger) {
	if analytics == nil {
		return
	}
	snapshot := job.Clone()
	go func() {
		logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := analytics.LogBatch(logCtx, []*jobDomain.Job{snapshot}); err != nil {
			log.Warn("⚠️ Failed to log job analytics", zap.String("job_id", snapshot.ID.String()), zap.Error(err))
		}
	}()
}
