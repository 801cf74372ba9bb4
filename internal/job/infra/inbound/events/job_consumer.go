package events

import (
	"context"

	"go.uber.org/zap"

	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"
	sharedBus "github.com/davicafu/f360jobs/internal/shared/infra/platform/bus"
	sharedUtils "github.com/davicafu/f360jobs/internal/shared/infra/utils"
)

// JobProcessor es lo que el consumidor necesita de la capa de aplicación.
type JobProcessor interface {
	Process(ctx context.Context, msg jobDomain.JobMessage) error
}

// JobConsumer adapta los mensajes del broker al procesador de jobs.
type JobConsumer struct {
	processor JobProcessor
	log       *zap.Logger
}

var _ sharedBus.MessageHandler = (*JobConsumer)(nil)

func NewJobConsumer(processor JobProcessor, logger *zap.Logger) *JobConsumer {
	return &JobConsumer{processor: processor, log: logger}
}

// HandleMessage es el punto de entrada para un nuevo mensaje.
// Un cuerpo malformado se descarta; un error del procesador se devuelve para que el adapter reintente.
func (c *JobConsumer) HandleMessage(ctx context.Context, key string, payload []byte) error {
	return sharedUtils.UnmarshalAndHandle(c.log, payload, func(msg jobDomain.JobMessage) error {
		if err := c.processor.Process(ctx, msg); err != nil {
			c.log.Warn("Failed to process job message",
				zap.String("job_id", msg.JobID.String()),
				zap.String("routing_key", key),
				zap.Error(err),
			)
			return err
		}
		return nil
	})
}
