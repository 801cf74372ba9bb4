// outbox-relay publica el outbox al broker y reconcilia jobs sin mensaje.
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
		log.Fatal("failed to bootstrap outbox-relay", zap.Error(err))
	}
	defer app.Close(context.WithoutCancel(ctx))

	components := []bootstrap.Component{app.Relay(), app.Reconciler()}
	log.Info("📤 Outbox relay arrancado")
	if err := bootstrap.Run(ctx, log, components...); err != nil {
		log.Error("outbox-relay stopped with error", zap.Error(err))
		return
	}
	log.Info("👋 outbox-relay detenido")
}
