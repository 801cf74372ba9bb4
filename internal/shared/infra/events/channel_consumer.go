package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	sharedBus "github.com/davicafu/f360jobs/internal/shared/infra/platform/bus"
	"github.com/davicafu/f360jobs/internal/shared/infra/utils"
)

// ChannelConsumer consume una cola del InMemoryExchange con N workers.
// Reintenta cada mensaje hasta maxAttempts veces; después lo manda al dead-letter (si hay).
type ChannelConsumer struct {
	queue       <-chan []byte
	name        string
	handler     sharedBus.MessageHandler
	workers     int
	maxAttempts int
	retryDelay  time.Duration
	deadLetter  sharedBus.Exchange
	dlqKey      string
	log         *zap.Logger
}

type ChannelConsumerOptions struct {
	Workers     int
	MaxAttempts int
	RetryDelay  time.Duration
	// DeadLetter y DeadLetterKey son opcionales.
	DeadLetter    sharedBus.Exchange
	DeadLetterKey string
}

func NewChannelConsumer(name string, queue <-chan []byte, handler sharedBus.MessageHandler, opts ChannelConsumerOptions, log *zap.Logger) *ChannelConsumer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &ChannelConsumer{
		queue:       queue,
		name:        name,
		handler:     handler,
		workers:     opts.Workers,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		deadLetter:  opts.DeadLetter,
		dlqKey:      opts.DeadLetterKey,
		log:         log,
	}
}

// Start lanza los workers y bloquea hasta que ctx se cancele y todos terminen.
func (c *ChannelConsumer) Start(ctx context.Context) {
	c.log.Info("🎧 Iniciando consumidor en memoria...",
		zap.String("queue", c.name),
		zap.Int("workers", c.workers),
	)

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.loop(ctx)
		}()
	}
	wg.Wait()
	c.log.Info("Consumidor en memoria detenido.", zap.String("queue", c.name))
}

func (c *ChannelConsumer) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-c.queue:
			if !ok {
				return
			}
			c.deliver(ctx, payload)
		}
	}
}

func (c *ChannelConsumer) deliver(ctx context.Context, payload []byte) {
	err := utils.Retry(ctx, c.maxAttempts, c.retryDelay, func() error {
		return c.handler.HandleMessage(ctx, c.name, payload)
	})
	if err == nil || ctx.Err() != nil {
		return
	}

	c.log.Error("❌ Mensaje agotó sus reintentos",
		zap.String("queue", c.name),
		zap.Int("attempts", c.maxAttempts),
		zap.Error(err),
	)
	if c.deadLetter == nil {
		return
	}
	if dlqErr := c.deadLetter.Publish(ctx, c.dlqKey, nil, payload); dlqErr != nil {
		c.log.Error("Error enviando mensaje al dead-letter", zap.String("queue", c.name), zap.Error(dlqErr))
	}
}
