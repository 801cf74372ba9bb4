package domain

import (
	sharedBus "github.com/davicafu/f360jobs/internal/shared/infra/platform/bus"
)

// Colas del direct exchange, una por prioridad.
const (
	HighQueue       = "f360.job.high"
	LowQueue        = "f360.job.low"
	DeadLetterQueue = "f360.job.dlq"
)

// RoutingKey es el nombre de la prioridad tal cual.
func RoutingKey(p JobPriority) string {
	return string(p)
}

// QueueFor devuelve la cola enlazada a la prioridad.
func QueueFor(p JobPriority) (string, bool) {
	switch p {
	case PriorityHigh:
		return HighQueue, true
	case PriorityLow:
		return LowQueue, true
	}
	return "", false
}

// Bindings describe la topología completa: una cola por prioridad más el dead-letter.
func Bindings() []sharedBus.Binding {
	return []sharedBus.Binding{
		{RoutingKey: RoutingKey(PriorityHigh), Queue: HighQueue},
		{RoutingKey: RoutingKey(PriorityLow), Queue: LowQueue},
		{RoutingKey: DeadLetterQueue, Queue: DeadLetterQueue},
	}
}
