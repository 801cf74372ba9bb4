package relayer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	sharedDomain "github.com/davicafu/f360jobs/internal/shared/domain"
	"github.com/davicafu/f360jobs/internal/shared/infra/backoff"
)

// Publisher entrega un mensaje del outbox al broker. Cada dominio decide cómo enrutarlo.
type Publisher interface {
	Publish(ctx context.Context, msg *sharedDomain.OutboxMessage) error
}

// Options controla el ritmo y la política de reintentos del relay.
type Options struct {
	IdleDelay  time.Duration // espera cuando no hay nada reclamable
	Lease      time.Duration // tiempo que un mensaje reclamado queda bloqueado para otros relays
	MaxRetries int
	Backoff    backoff.Strategy
}

const persistTimeout = 5 * time.Second

// Worker reclama mensajes del outbox de uno en uno y los publica.
// Varias instancias pueden correr a la vez: el claim atómico del repositorio evita duplicados.
type Worker struct {
	repo      sharedDomain.OutboxRepository
	publisher Publisher
	opts      Options
	now       func() time.Time
	log       *zap.Logger
}

func NewOutboxWorker(repo sharedDomain.OutboxRepository, publisher Publisher, opts Options, log *zap.Logger) *Worker {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.Backoff == nil {
		opts.Backoff = backoff.NewConstant(0)
	}
	return &Worker{
		repo:      repo,
		publisher: publisher,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log,
	}
}

// WithClock sustituye el reloj (tests).
func (w *Worker) WithClock(now func() time.Time) *Worker {
	w.now = now
	return w
}

// Start inicia el bucle del worker. Mientras haya trabajo procesa sin pausa;
// cuando no lo hay (o el almacén falla) espera IdleDelay.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("🚀 Outbox relay iniciado",
		zap.Duration("idleDelay", w.opts.IdleDelay),
		zap.Duration("lease", w.opts.Lease),
		zap.Int("maxRetries", w.opts.MaxRetries),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("🛑 Outbox relay detenido.")
			return
		case <-timer.C:
		}

		processed, err := w.ProcessNext(ctx)
		if err != nil && ctx.Err() == nil {
			w.log.Warn("⚠️ Error al reclamar mensaje del outbox", zap.Error(err))
		}
		if processed {
			timer.Reset(0)
		} else {
			timer.Reset(w.opts.IdleDelay)
		}
	}
}

// ProcessNext reclama y procesa un único mensaje. Devuelve false si no había ninguno reclamable.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	msg, err := w.repo.ClaimNext(ctx, w.now(), w.opts.Lease)
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, nil
	}

	w.publishAndMark(ctx, msg)
	return true, nil
}

// Drain procesa mensajes hasta que no quede ninguno reclamable. Devuelve cuántos procesó.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	n := 0
	for {
		processed, err := w.ProcessNext(ctx)
		if err != nil {
			return n, err
		}
		if !processed {
			return n, nil
		}
		n++
	}
}

func (w *Worker) publishAndMark(ctx context.Context, msg *sharedDomain.OutboxMessage) {
	fields := []zap.Field{
		zap.String("outbox_id", msg.ID.String()),
		zap.String("job_id", msg.JobID.String()),
		zap.String("priority", msg.Priority),
	}

	var claimedUntil time.Time
	if msg.LockedUntil != nil {
		claimedUntil = *msg.LockedUntil
	}

	pubErr := w.publisher.Publish(ctx, msg)
	if pubErr != nil && ctx.Err() != nil {
		// apagado: no cuenta como intento, el lease expirará y otro relay lo recogerá
		w.log.Info("Relay detenido a mitad de publicación, se abandona el lease", fields...)
		return
	}

	now := w.now()
	if pubErr != nil {
		retryAt := now.Add(w.opts.Backoff.Delay(msg.RetryCount + 1))
		msg.RecordFailure(pubErr.Error(), w.opts.MaxRetries, retryAt)
		w.log.Warn("⚠️ No se pudo publicar mensaje del outbox",
			append(fields,
				zap.Int("retry_count", msg.RetryCount),
				zap.String("status", string(msg.Status)),
				zap.Error(pubErr),
			)...,
		)
	} else {
		msg.MarkSent(now)
	}

	// el resultado se persiste aunque ctx se esté cancelando
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := w.repo.Update(persistCtx, msg, claimedUntil); err != nil {
		if errors.Is(err, sharedDomain.ErrOutboxLeaseLost) {
			// otro relay lo reclamó tras expirar el lease; su resultado es el que vale
			w.log.Warn("⚠️ Lease del outbox perdido, no se sobrescribe el mensaje", fields...)
			return
		}
		w.log.Error("❌ No se pudo actualizar mensaje del outbox", append(fields, zap.Error(err))...)
		return
	}

	if msg.Status == sharedDomain.OutboxSent {
		w.log.Info("✅ Mensaje publicado y marcado", fields...)
	} else if msg.Status == sharedDomain.OutboxError {
		w.log.Error("❌ Mensaje del outbox agotó sus reintentos", fields...)
	}
}
