// f360jobs arranca la API, el relay del outbox, el reconciliador y los consumidores en un solo proceso.
package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/davicafu/f360jobs/internal/bootstrap"
	"github.com/davicafu/f360jobs/internal/config"
	"github.com/davicafu/f360jobs/pkg/logger"
)

// ---------------- Main ----------------
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger.Init(cfg.LogLevel) // inicializa zap
	log := logger.Logger()
	defer log.Sync() //nolint:errcheck // flush buffers al salir

	ctx, cancel := bootstrap.SignalContext(log)
	defer cancel()

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to bootstrap f360jobs", zap.Error(err))
	}
	defer app.Close(context.WithoutCancel(ctx))

	components := []bootstrap.Component{app.HTTPServer(), app.Relay(), app.Reconciler()}
	components = append(components, app.Consumers()...)
	log.Info("🚀 f360jobs arrancado (API + relay + consumidores)")
	if err := bootstrap.Run(ctx, log, components...); err != nil {
		log.Error("f360jobs stopped with error", zap.Error(err))
		return
	}
	log.Info("👋 f360jobs detenido")
}
