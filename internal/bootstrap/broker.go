package bootstrap

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/davicafu/f360jobs/internal/config"
	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"
	jobConsumer "github.com/davicafu/f360jobs/internal/job/infra/inbound/events"
	sharedEvents "github.com/davicafu/f360jobs/internal/shared/infra/events"
	sharedBus "github.com/davicafu/f360jobs/internal/shared/infra/platform/bus"
)

const memoryQueueBuffer = 256

// Broker es la topología del direct exchange: una cola por prioridad más el dead-letter.
type Broker struct {
	Exchange sharedBus.Exchange

	cfg    *config.Config
	memory *sharedEvents.InMemoryExchange
	writer *kafka.Writer
	log    *zap.Logger
}

// NewBroker crea el exchange configurado (Kafka o en memoria).
func NewBroker(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Broker, error) {
	b := &Broker{cfg: cfg, log: log}

	switch cfg.Broker {
	case config.BrokerKafka:
		log.Info("🚀 Usando Kafka como broker", zap.Strings("brokers", cfg.KafkaBrokers))
		if err := sharedEvents.EnsureTopics(ctx, cfg.KafkaBrokers, topicPartitions(cfg), cfg.KafkaReplicationFactor, log); err != nil {
			log.Warn("⚠️ No se pudieron preparar los topics, se crearán automáticamente", zap.Error(err))
		}
		b.writer = sharedEvents.NewKafkaWriter(cfg.KafkaBrokers)
		b.Exchange = sharedEvents.NewKafkaExchange(b.writer, jobDomain.Bindings(), log)
	case config.BrokerMemory:
		log.Info("⚡️ Usando exchange en memoria (canales de Go)")
		b.memory = sharedEvents.NewInMemoryExchange()
		for _, binding := range jobDomain.Bindings() {
			b.memory.Bind(binding.RoutingKey, memoryQueueBuffer)
		}
		b.Exchange = b.memory
	default:
		return nil, fmt.Errorf("unknown BROKER %q", cfg.Broker)
	}
	return b, nil
}

// topicPartitions da a cada cola tantas particiones como readers la consumen.
func topicPartitions(cfg *config.Config) map[string]int {
	return map[string]int{
		jobDomain.HighQueue:       cfg.ConsumerHighConcurrency,
		jobDomain.LowQueue:        cfg.ConsumerLowConcurrency,
		jobDomain.DeadLetterQueue: 1,
	}
}

// Consumers devuelve un consumidor por cola. High recibe más workers que Low,
// y los mensajes que agotan los reintentos acaban en f360.job.dlq.
func (b *Broker) Consumers(handler sharedBus.MessageHandler) []Component {
	queues := []struct {
		priority jobDomain.JobPriority
		workers  int
	}{
		{jobDomain.PriorityHigh, b.cfg.ConsumerHighConcurrency},
		{jobDomain.PriorityLow, b.cfg.ConsumerLowConcurrency},
	}

	var comps []Component
	for _, q := range queues {
		queue, _ := jobDomain.QueueFor(q.priority)
		comps = append(comps, b.consumer(queue, jobDomain.RoutingKey(q.priority), q.workers, handler))
	}

	if b.memory != nil {
		// en memoria nadie más leería la cola muerta: se vacía registrándola
		dlq := jobConsumer.NewDeadLetterLogger(b.log)
		comps = append(comps, b.consumer(jobDomain.DeadLetterQueue, jobDomain.DeadLetterQueue, 1, dlq))
	}
	return comps
}

func (b *Broker) consumer(queue, routingKey string, workers int, handler sharedBus.MessageHandler) Component {
	if b.memory != nil {
		cc := sharedEvents.NewChannelConsumer(queue, b.memory.Bind(routingKey, memoryQueueBuffer), handler,
			sharedEvents.ChannelConsumerOptions{
				Workers:       workers,
				MaxAttempts:   b.cfg.ConsumerMaxAttempts,
				RetryDelay:    b.cfg.ConsumerRetryDelay,
				DeadLetter:    b.deadLetterFor(queue),
				DeadLetterKey: jobDomain.DeadLetterQueue,
			}, b.log)
		return Component{Name: "consumer:" + queue, Run: blocking(cc.Start)}
	}

	readers := sharedEvents.NewKafkaReaders(b.cfg.KafkaBrokers, b.cfg.KafkaGroupID, queue, workers)
	adapter := sharedEvents.NewConsumerAdapter(queue, readers, handler, sharedEvents.ConsumerOptions{
		MaxAttempts:   b.cfg.ConsumerMaxAttempts,
		RetryDelay:    b.cfg.ConsumerRetryDelay,
		DeadLetter:    b.deadLetterFor(queue),
		DeadLetterKey: jobDomain.DeadLetterQueue,
	}, b.log)
	return Component{Name: "consumer:" + queue, Run: blocking(adapter.Start)}
}

// deadLetterFor evita que la propia cola muerta se reenvíe a sí misma.
func (b *Broker) deadLetterFor(queue string) sharedBus.Exchange {
	if queue == jobDomain.DeadLetterQueue {
		return nil
	}
	return b.Exchange
}

// Close cierra el writer de Kafka. En memoria avisa de los mensajes que quedan en las colas:
// el outbox ya los marcó como Sent y no se reenviarán.
func (b *Broker) Close() error {
	if b.memory != nil {
		for key, n := range b.memory.Buffered() {
			b.log.Warn("⚠️ Mensajes en memoria sin consumir al cerrar, se pierden",
				zap.String("routing_key", key), zap.Int("count", n))
		}
	}
	if b.writer != nil {
		return b.writer.Close()
	}
	return nil
}

// blocking adapta los Start(ctx) que no devuelven error.
func blocking(start func(context.Context)) func(context.Context) error {
	return func(ctx context.Context) error {
		start(ctx)
		return nil
	}
}
