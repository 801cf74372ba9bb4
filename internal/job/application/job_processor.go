package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"
	sharedCache "github.com/davicafu/f360jobs/internal/shared/infra/platform/cache"
)

const persistTimeout = 5 * time.Second

// JobProcessor convierte una notificación entregada en un job terminado.
// Solo procesa jobs en Pending: cualquier reentrega posterior es un no-op.
type JobProcessor struct {
	jobs      jobDomain.JobRepository
	lookup    jobDomain.AddressLookup
	archive   jobDomain.AddressArchive         // opcional
	analytics jobDomain.JobAnalyticsRepository // opcional
	cache     sharedCache.Cache                // opcional
	now       func() time.Time
	log       *zap.Logger
}

func NewJobProcessor(
	jobs jobDomain.JobRepository,
	lookup jobDomain.AddressLookup,
	archive jobDomain.AddressArchive,
	analytics jobDomain.JobAnalyticsRepository,
	cache sharedCache.Cache,
	log *zap.Logger,
) *JobProcessor {
	return &JobProcessor{
		jobs:      jobs,
		lookup:    lookup,
		archive:   archive,
		analytics: analytics,
		cache:     cache,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log,
	}
}

// Process devuelve error solo cuando la consulta de dirección falla (o el almacén no responde),
// para que el broker aplique su política de reentrega.
func (p *JobProcessor) Process(ctx context.Context, msg jobDomain.JobMessage) error {
	fields := []zap.Field{
		zap.String("job_id", msg.JobID.String()),
		zap.String("priority", string(msg.Priority)),
	}

	// 1. Cargar el job
	job, err := p.jobs.GetByID(ctx, msg.JobID)
	if errors.Is(err, jobDomain.ErrJobNotFound) {
		p.log.Warn("Job not found, discarding message", fields...)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading job %s: %w", msg.JobID, err)
	}

	// 2. Solo Pending
	if job.Status != jobDomain.JobPending {
		p.log.Info("Job is not pending, discarding message", append(fields, zap.String("status", string(job.Status)))...)
		return nil
	}

	// 3. Pending -> Processing, persistido antes de la consulta externa
	if err := job.StartProcessing(); err != nil {
		return err
	}
	if err := p.jobs.Update(ctx, job, jobDomain.JobPending); err != nil {
		if errors.Is(err, jobDomain.ErrJobStatusConflict) {
			p.log.Info("Job was claimed concurrently, discarding message", fields...)
			return nil
		}
		return fmt.Errorf("marking job %s as processing: %w", msg.JobID, err)
	}
	p.log.Info("Processing job", fields...)
	sharedCache.AsyncCacheDelete(ctx, p.cache, jobDomain.JobCacheKeyByID(job.ID), p.log)

	// 4. Consulta externa
	addr, lookupErr := p.lookup.GetAddress(ctx, msg.Cep)
	if lookupErr != nil {
		_ = job.Fail(p.now())
		if err := p.persistTerminal(ctx, job); err != nil {
			p.log.Error("❌ Failed to persist job error state", append(fields, zap.Error(err))...)
		} else {
			p.log.Warn("Job failed", append(fields, zap.Error(lookupErr))...)
		}
		return fmt.Errorf("address lookup for job %s: %w", msg.JobID, lookupErr)
	}

	_ = job.Finish(p.now())
	if err := p.persistTerminal(ctx, job); err != nil {
		return fmt.Errorf("finishing job %s: %w", msg.JobID, err)
	}
	p.log.Info("✅ Job finished", append(fields, zap.Bool("address_found", addr != nil))...)

	if addr != nil && p.archive != nil {
		if err := p.archive.Save(context.WithoutCancel(ctx), job.ID, addr); err != nil {
			p.log.Warn("⚠️ Failed to archive address", append(fields, zap.Error(err))...)
		}
	}
	return nil
}

// persistTerminal escribe el estado final aunque ctx ya esté cancelado.
func (p *JobProcessor) persistTerminal(ctx context.Context, job *jobDomain.Job) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := p.jobs.Update(writeCtx, job, jobDomain.JobProcessing); err != nil {
		return err
	}
	cacheTerminal(ctx, p.cache, job, p.log)
	recordTerminal(ctx, p.analytics, job, p.log)
	return nil
}
