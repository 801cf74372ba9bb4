package events

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"
	sharedDomain "github.com/davicafu/f360jobs/internal/shared/domain"
	sharedBus "github.com/davicafu/f360jobs/internal/shared/infra/platform/bus"
	"github.com/davicafu/f360jobs/internal/shared/infra/relayer"
)

// PriorityRouter publica los mensajes del outbox con routing key = nombre de la prioridad.
// No tiene lógica de negocio: mapeo total más una publicación.
type PriorityRouter struct {
	exchange sharedBus.Exchange
	log      *zap.Logger
}

var _ relayer.Publisher = (*PriorityRouter)(nil)

func NewPriorityRouter(exchange sharedBus.Exchange, log *zap.Logger) *PriorityRouter {
	return &PriorityRouter{exchange: exchange, log: log}
}

func (r *PriorityRouter) Publish(ctx context.Context, msg *sharedDomain.OutboxMessage) error {
	priority := jobDomain.JobPriority(msg.Priority)
	if _, ok := jobDomain.QueueFor(priority); !ok {
		return fmt.Errorf("%w: unknown priority %q", sharedBus.ErrUnroutable, msg.Priority)
	}

	routingKey := jobDomain.RoutingKey(priority)
	if err := r.exchange.Publish(ctx, routingKey, []byte(msg.JobID.String()), []byte(msg.Payload)); err != nil {
		return err
	}

	r.log.Debug("Job message routed",
		zap.String("job_id", msg.JobID.String()),
		zap.String("routing_key", routingKey),
	)
	return nil
}
