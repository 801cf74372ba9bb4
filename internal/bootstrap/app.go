// Package bootstrap construye el grafo de dependencias compartido por los binarios.
package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/davicafu/f360jobs/internal/config"
	"github.com/davicafu/f360jobs/internal/job/application"
	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"
	jobConsumer "github.com/davicafu/f360jobs/internal/job/infra/inbound/events"
	jobHttp "github.com/davicafu/f360jobs/internal/job/infra/inbound/http"
	jobEvents "github.com/davicafu/f360jobs/internal/job/infra/outbound/events"
	"github.com/davicafu/f360jobs/internal/shared/infra/backoff"
	sharedCache "github.com/davicafu/f360jobs/internal/shared/infra/platform/cache"
	"github.com/davicafu/f360jobs/internal/shared/infra/relayer"
	"github.com/davicafu/f360jobs/pkg/middleware"
)

const shutdownTimeout = 10 * time.Second

// App contiene las piezas ya conectadas. Cada binario arranca solo las que necesita.
type App struct {
	Config    *config.Config
	Stores    *Stores
	Broker    *Broker
	Cache     sharedCache.Cache
	Analytics jobDomain.JobAnalyticsRepository
	Archive   jobDomain.AddressArchive
	Service   *application.JobService

	closeCache func()
	log        *zap.Logger
}

// New conecta almacenes, broker, caché y colaboradores opcionales.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	stores, err := OpenStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	broker, err := NewBroker(ctx, cfg, log)
	if err != nil {
		_ = stores.Close(ctx)
		return nil, err
	}
	cache, closeCache := NewCache(ctx, cfg, log)

	app := &App{
		Config:     cfg,
		Stores:     stores,
		Broker:     broker,
		Cache:      cache,
		Analytics:  NewAnalytics(ctx, cfg, log),
		Archive:    NewArchive(cfg, log),
		closeCache: closeCache,
		log:        log,
	}

	guard := application.NewIdempotencyGuard(stores.Idempotency, log)
	app.Service = application.NewJobService(stores.Jobs, stores.Outbox, guard, cache, app.Archive, app.Analytics, log)
	return app, nil
}

// HTTPServer expone la API de jobs.
func (a *App) HTTPServer() Component {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.APIKeyAuth(a.Config.APIKey))
	jobHttp.RegisterJobRoutes(router, jobHttp.NewJobHandler(a.Service, a.log))

	srv := &http.Server{
		Addr:              ":" + a.Config.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return Component{Name: "http", Run: func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() {
			a.log.Info("🚀 Server running", zap.String("url", "http://localhost:"+a.Config.HTTPPort))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}}
}

// Relay publica el outbox a través del router de prioridades.
func (a *App) Relay() Component {
	cfg := a.Config
	w := relayer.NewOutboxWorker(a.Stores.Outbox, jobEvents.NewPriorityRouter(a.Broker.Exchange, a.log), relayer.Options{
		IdleDelay:  cfg.OutboxIdleDelay,
		Lease:      cfg.OutboxLease,
		MaxRetries: cfg.OutboxMaxRetries,
		Backoff:    backoff.FromConfig(cfg.OutboxBackoffInitial, cfg.OutboxBackoffMax),
	}, a.log)
	return Component{Name: "outbox-relay", Run: blocking(w.Start)}
}

// Reconciler recupera jobs Pending que se quedaron sin mensaje de outbox.
func (a *App) Reconciler() Component {
	r := application.NewOutboxReconciler(a.Stores.Jobs, a.Stores.Outbox, a.Config.ReconcileInterval, a.Config.ReconcileGrace, a.log)
	return Component{Name: "outbox-reconciler", Run: blocking(r.Start)}
}

// Consumers procesa las colas de prioridad con la consulta de ViaCEP.
func (a *App) Consumers() []Component {
	processor := application.NewJobProcessor(a.Stores.Jobs, NewLookup(a.Config, a.log), a.Archive, a.Analytics, a.Cache, a.log)
	return a.Broker.Consumers(jobConsumer.NewJobConsumer(processor, a.log))
}

// Close libera las conexiones en orden inverso a su creación.
func (a *App) Close(ctx context.Context) {
	if a.closeCache != nil {
		a.closeCache()
	}
	if err := a.Broker.Close(); err != nil {
		a.log.Warn("Error closing broker", zap.Error(err))
	}
	if err := a.Stores.Close(ctx); err != nil {
		a.log.Warn("Error closing stores", zap.Error(err))
	}
}
