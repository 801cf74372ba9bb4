package bus

import (
	"context"
	"errors"
)

// ErrUnroutable se devuelve cuando ninguna cola está enlazada a la routing key.
var ErrUnroutable = errors.New("no queue bound to routing key")

// Binding enlaza una routing key exacta con una cola (semántica de direct exchange).
type Binding struct {
	RoutingKey string
	Queue      string
}

// Exchange publica un payload ya serializado con una routing key.
// La resolución routing key -> cola la hace cada adapter a partir de sus bindings.
// key identifica el mensaje (p. ej. el id del job) y reparte la carga entre particiones;
// puede ser nil.
type Exchange interface {
	Publish(ctx context.Context, routingKey string, key, payload []byte) error
}

// MessageHandler es lo que debe cumplir cualquier consumidor de mensajes.
// Devolver error pide la reentrega del sobre según la política del adapter.
type MessageHandler interface {
	HandleMessage(ctx context.Context, key string, payload []byte) error
}
