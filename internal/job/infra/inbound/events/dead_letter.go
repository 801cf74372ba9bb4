package events

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"
	sharedBus "github.com/davicafu/f360jobs/internal/shared/infra/platform/bus"
)

// DeadLetterLogger vacía la cola muerta dejando constancia de cada mensaje.
// El job queda en el estado en que lo dejó el último intento.
type DeadLetterLogger struct {
	log *zap.Logger
}

var _ sharedBus.MessageHandler = (*DeadLetterLogger)(nil)

func NewDeadLetterLogger(log *zap.Logger) *DeadLetterLogger {
	return &DeadLetterLogger{log: log}
}

func (d *DeadLetterLogger) HandleMessage(ctx context.Context, key string, payload []byte) error {
	var msg jobDomain.JobMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		d.log.Error("💀 Dead-lettered message (unparseable)", zap.ByteString("payload", payload))
		return nil
	}
	d.log.Error("💀 Dead-lettered job message",
		zap.String("job_id", msg.JobID.String()),
		zap.String("priority", string(msg.Priority)),
		zap.String("cep", msg.Cep),
	)
	return nil
}
