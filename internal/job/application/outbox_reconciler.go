package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"
	sharedDomain "github.com/davicafu/f360jobs/internal/shared/domain"
)

const reconcileBatchSize = 100

// OutboxReconciler encola la notificación de jobs Pending que se quedaron sin mensaje de outbox
// (caída entre la creación del job y la del mensaje). El índice único por jobId lo hace idempotente.
type OutboxReconciler struct {
	jobs     jobDomain.JobRepository
	outbox   sharedDomain.OutboxRepository
	interval time.Duration
	grace    time.Duration
	cursor   jobDomain.StaleCursor // último job revisado
	now      func() time.Time
	log      *zap.Logger
}

func NewOutboxReconciler(jobs jobDomain.JobRepository, outbox sharedDomain.OutboxRepository, interval, grace time.Duration, log *zap.Logger) *OutboxReconciler {
	return &OutboxReconciler{
		jobs:     jobs,
		outbox:   outbox,
		interval: interval,
		grace:    grace,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log,
	}
}

// Start ejecuta Sweep cada interval hasta que ctx se cancele.
func (r *OutboxReconciler) Start(ctx context.Context) {
	if r.interval <= 0 {
		r.log.Info("Reconciliador de outbox deshabilitado")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.log.Info("🚀 Reconciliador de outbox iniciado", zap.Duration("interval", r.interval), zap.Duration("grace", r.grace))

	for {
		select {
		case <-ctx.Done():
			r.log.Info("🛑 Reconciliador de outbox detenido.")
			return
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.log.Warn("⚠️ Error reconciliando outbox", zap.Error(err))
			} else if n > 0 {
				r.log.Warn("Jobs huérfanos reencolados", zap.Int("count", n))
			}
		}
	}
}

// Sweep revisa los jobs Pending más antiguos que grace y crea su mensaje si falta.
// Devuelve cuántos mensajes creó.
func (r *OutboxReconciler) Sweep(ctx context.Context) (int, error) {
	now := r.now()
	cutoff := now.Add(-r.grace)
	created := 0

	for {
		batch, err := r.jobs.ListStalePending(ctx, r.cursor, cutoff, reconcileBatchSize)
		if err != nil {
			return created, err
		}

		for _, job := range batch {
			msg, err := jobDomain.NewOutboxMessage(job, now)
			if err != nil {
				return created, err
			}
			err = r.outbox.Create(ctx, msg)
			switch {
			case err == nil:
				created++
				r.log.Info("Outbox message restored for orphaned job", zap.String("job_id", job.ID.String()))
			case errors.Is(err, sharedDomain.ErrOutboxAlreadyExists):
				// ya encolado
			default:
				return created, err
			}
			r.cursor = jobDomain.CursorOf(job)
		}

		if len(batch) < reconcileBatchSize {
			return created, nil
		}
	}
}
