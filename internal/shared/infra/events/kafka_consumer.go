package events

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	sharedBus "github.com/davicafu/f360jobs/internal/shared/infra/platform/bus"
	"github.com/davicafu/f360jobs/internal/shared/infra/utils"
)

// MessageReader es la parte de *kafka.Reader que usamos.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerAdapter es el "oído" que escucha una cola (topic) en Kafka.
// Cada reader del mismo group es un consumidor concurrente; el offset solo se confirma
// cuando el handler termina bien o el mensaje se ha movido al dead-letter.
type ConsumerAdapter struct {
	topic       string
	readers     []MessageReader
	handler     sharedBus.MessageHandler
	maxAttempts int
	retryDelay  time.Duration
	deadLetter  sharedBus.Exchange
	dlqKey      string
	log         *zap.Logger
}

type ConsumerOptions struct {
	MaxAttempts   int
	RetryDelay    time.Duration
	DeadLetter    sharedBus.Exchange
	DeadLetterKey string
}

func NewConsumerAdapter(topic string, readers []MessageReader, handler sharedBus.MessageHandler, opts ConsumerOptions, log *zap.Logger) *ConsumerAdapter {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &ConsumerAdapter{
		topic:       topic,
		readers:     readers,
		handler:     handler,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		deadLetter:  opts.DeadLetter,
		dlqKey:      opts.DeadLetterKey,
		log:         log,
	}
}

// NewKafkaReaders crea n readers del mismo consumer group sobre topic.
func NewKafkaReaders(brokers []string, groupID, topic string, n int) []MessageReader {
	if n < 1 {
		n = 1
	}
	readers := make([]MessageReader, 0, n)
	for i := 0; i < n; i++ {
		readers = append(readers, kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			GroupID:        groupID,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 0, // commits síncronos
		}))
	}
	return readers
}

// Start bloquea hasta que ctx se cancele y todos los readers terminen; después los cierra.
func (c *ConsumerAdapter) Start(ctx context.Context) {
	c.log.Info("🎧 Iniciando consumidor de Kafka...",
		zap.String("topic", c.topic),
		zap.Int("readers", len(c.readers)),
	)

	var wg sync.WaitGroup
	for _, r := range c.readers {
		wg.Add(1)
		go func(r MessageReader) {
			defer wg.Done()
			c.loop(ctx, r)
		}(r)
	}
	wg.Wait()

	for _, r := range c.readers {
		if err := r.Close(); err != nil {
			c.log.Warn("Error cerrando reader de Kafka", zap.String("topic", c.topic), zap.Error(err))
		}
	}
	c.log.Info("Consumidor de Kafka detenido.", zap.String("topic", c.topic))
}

func (c *ConsumerAdapter) loop(ctx context.Context, r MessageReader) {
	for {
		// FetchMessage es una llamada bloqueante.
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			// Si el contexto se cancela, el error es normal y salimos limpiamente.
			if ctx.Err() != nil {
				return
			}
			c.log.Error("Error al leer mensaje de Kafka", zap.String("topic", c.topic), zap.Error(err))
			continue
		}

		if !c.handle(ctx, msg) {
			// apagado a mitad de mensaje: sin commit, se reentregará
			return
		}
		if err := r.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("Error confirmando offset en Kafka", zap.String("topic", c.topic), zap.Error(err))
		}
	}
}

// handle devuelve false solo si el contexto se canceló antes de resolver el mensaje.
func (c *ConsumerAdapter) handle(ctx context.Context, msg kafka.Message) bool {
	err := utils.Retry(ctx, c.maxAttempts, c.retryDelay, func() error {
		return c.handler.HandleMessage(ctx, string(msg.Key), msg.Value)
	})
	if err == nil {
		return true
	}
	if ctx.Err() != nil {
		return false
	}

	c.log.Error("❌ Mensaje agotó sus reintentos",
		zap.String("topic", c.topic),
		zap.Int64("offset", msg.Offset),
		zap.Error(err),
	)
	if c.deadLetter == nil {
		return true
	}
	dlqErr := utils.Retry(ctx, c.maxAttempts, c.retryDelay, func() error {
		return c.deadLetter.Publish(ctx, c.dlqKey, msg.Key, msg.Value)
	})
	if dlqErr != nil {
		if ctx.Err() != nil {
			return false
		}
		// Kafka confirma offsets en orden: no confirmar este no lo salvaría del siguiente commit.
		c.log.Error("Error enviando mensaje al dead-letter",
			zap.String("topic", c.topic),
			zap.ByteString("payload", msg.Value),
			zap.Error(dlqErr),
		)
	}
	return true
}
