package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Component es una pieza de larga duración que termina al cancelarse ctx.
type Component struct {
	Name string
	Run  func(ctx context.Context) error
}

// SignalContext devuelve un contexto que se cancela con SIGINT o SIGTERM.
func SignalContext(log *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info("🛑 Señal recibida, apagando...", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// Run arranca todos los componentes y espera a que terminen. Si uno falla, se cancela el resto.
func Run(ctx context.Context, log *zap.Logger, components ...Component) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range components {
		g.Go(func() error {
			log.Info("Componente iniciado", zap.String("component", c.Name))
			if err := c.Run(gctx); err != nil {
				return fmt.Errorf("%s: %w", c.Name, err)
			}
			log.Info("Componente detenido", zap.String("component", c.Name))
			return nil
		})
	}
	return g.Wait()
}
