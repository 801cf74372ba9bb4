package events

import (
	"context"
	"fmt"
	"sync"

	sharedBus "github.com/davicafu/f360jobs/internal/shared/infra/platform/bus"
)

// InMemoryExchange implementa un direct exchange en memoria: cada routing key
// se enlaza con una cola (un canal con buffer).
type InMemoryExchange struct {
	queues map[string]chan []byte // routing key -> cola
	mu     sync.RWMutex
}

// Verifica en tiempo de compilación que cumple la interfaz
var _ sharedBus.Exchange = (*InMemoryExchange)(nil)

func NewInMemoryExchange() *InMemoryExchange {
	return &InMemoryExchange{queues: make(map[string]chan []byte)}
}

// Bind enlaza routingKey con una cola de bufferSize mensajes y devuelve su extremo de lectura.
// Enlazar dos veces la misma key devuelve la cola existente.
func (b *InMemoryExchange) Bind(routingKey string, bufferSize int) <-chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q, ok := b.queues[routingKey]; ok {
		return q
	}
	q := make(chan []byte, bufferSize)
	b.queues[routingKey] = q
	return q
}

// Publish entrega el payload a la cola enlazada. Si la cola está llena espera hasta
// que haya hueco o se cancele el contexto; nunca descarta mensajes en silencio.
func (b *InMemoryExchange) Publish(ctx context.Context, routingKey string, _, payload []byte) error {
	b.mu.RLock()
	q, ok := b.queues[routingKey]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", sharedBus.ErrUnroutable, routingKey)
	}

	// copia defensiva: el llamador puede reutilizar su buffer
	msg := make([]byte, len(payload))
	copy(msg, payload)

	select {
	case q <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Buffered devuelve cuántos mensajes esperan en cada cola sin consumir.
// Viven solo en memoria: al cerrar el proceso se pierden.
func (b *InMemoryExchange) Buffered() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]int, len(b.queues))
	for key, q := range b.queues {
		if n := len(q); n > 0 {
			out[key] = n
		}
	}
	return out
}
