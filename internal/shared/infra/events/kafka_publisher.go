package events

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	sharedBus "github.com/davicafu/f360jobs/internal/shared/infra/platform/bus"
)

// RoutingKeyHeader viaja en cada mensaje para que los consumidores sepan con qué key se publicó.
const RoutingKeyHeader = "routing-key"

// MessageWriter es la parte de *kafka.Writer que usamos (facilita los tests).
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaExchange emula un direct exchange sobre Kafka: cada cola es un topic y
// la routing key elige el topic según los bindings.
type KafkaExchange struct {
	writer   MessageWriter
	bindings map[string]string // routing key -> topic
	log      *zap.Logger
}

// Verificación estática
var _ sharedBus.Exchange = (*KafkaExchange)(nil)

// NewKafkaExchange espera un writer sin Topic fijo: el topic va en cada mensaje.
func NewKafkaExchange(writer MessageWriter, bindings []sharedBus.Binding, log *zap.Logger) *KafkaExchange {
	m := make(map[string]string, len(bindings))
	for _, b := range bindings {
		m[b.RoutingKey] = b.Queue
	}
	return &KafkaExchange{writer: writer, bindings: m, log: log}
}

// NewKafkaWriter crea el writer compartido. RequireAll: solo se confirma cuando todas las réplicas tienen el mensaje.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Publish usa key como clave del mensaje: con el balancer Hash los mensajes de una misma
// cola se reparten entre sus particiones. Sin key, Hash cae a round-robin.
// EnsureTopics crea los topics que falten con las particiones pedidas (topic -> particiones).
// Un topic ya existente con menos particiones solo se avisa: ampliarlo cambia el reparto por clave.
func EnsureTopics(ctx context.Context, brokers []string, partitions map[string]int, replication int, log *zap.Logger) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("dial kafka: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka controller: %w", err)
	}
	ctrl, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial kafka controller: %w", err)
	}
	defer ctrl.Close()

	for _, cfg := range topicConfigs(partitions, replication) {
		if err := ctrl.CreateTopics(cfg); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", cfg.Topic, err)
		}

		existing, err := conn.ReadPartitions(cfg.Topic)
		if err != nil {
			return fmt.Errorf("read partitions of %s: %w", cfg.Topic, err)
		}
		if len(existing) < cfg.NumPartitions {
			log.Warn("⚠️ Topic con menos particiones que readers: algunos quedarán ociosos",
				zap.String("topic", cfg.Topic),
				zap.Int("partitions", len(existing)),
				zap.Int("readers", cfg.NumPartitions),
			)
		}
	}
	return nil
}

func topicConfigs(partitions map[string]int, replication int) []kafka.TopicConfig {
	configs := make([]kafka.TopicConfig, 0, len(partitions))
	for topic, n := range partitions {
		configs = append(configs, kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     max(n, 1),
			ReplicationFactor: max(replication, 1),
		})
	}
	return configs
}

func (p *KafkaExchange) Publish(ctx context.Context, routingKey string, key, payload []byte) error {
	topic, ok := p.bindings[routingKey]
	if !ok {
		return fmt.Errorf("%w: %q", sharedBus.ErrUnroutable, routingKey)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   key,
		Value: payload,
		Headers: []kafka.Header{
			{Key: RoutingKeyHeader, Value: []byte(routingKey)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("Error publishing to Kafka", zap.String("topic", topic), zap.Error(err))
		return err
	}

	p.log.Debug("Message published successfully", zap.String("topic", topic), zap.String("routingKey", routingKey))
	return nil
}
