package events

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"
	sharedEvents "github.com/davicafu/f360jobs/internal/shared/infra/events"
	sharedBus "github.com/davicafu/f360jobs/internal/shared/infra/platform/bus"
)

func TestPriorityRouter_RoutesByPriority(t *testing.T) {
	// Arrange
	exchange := sharedEvents.NewInMemoryExchange()
	high := exchange.Bind("High", 1)
	low := exchange.Bind("Low", 1)
	router := NewPriorityRouter(exchange, zap.NewNop())

	for _, p := range []jobDomain.JobPriority{jobDomain.PriorityHigh, jobDomain.PriorityLow} {
		job, _ := jobDomain.NewJob("01001-000", p, nil, time.Now())
		msg, err := jobDomain.NewOutboxMessage(job, time.Now())
		require.NoError(t, err)

		// Act
		require.NoError(t, router.Publish(context.Background(), msg))
	}

	// Assert
	assert.Contains(t, string(<-high), `"priority":"High"`)
	assert.Contains(t, string(<-low), `"priority":"Low"`)
}

func TestPriorityRouter_UnknownPriority(t *testing.T) {
	exchange := sharedEvents.NewInMemoryExchange()
	exchange.Bind("High", 1)
	router := NewPriorityRouter(exchange, zap.NewNop())

	job, _ := jobDomain.NewJob("01001-000", jobDomain.PriorityHigh, nil, time.Now())
	msg, _ := jobDomain.NewOutboxMessage(job, time.Now())
	msg.Priority = "Medium"
	msg.JobID = uuid.New()

	err := router.Publish(context.Background(), msg)

	assert.ErrorIs(t, err, sharedBus.ErrUnroutable)
}

type keyRecorder struct {
	routingKey string
	key        []byte
}

func (r *keyRecorder) Publish(_ context.Context, routingKey string, key, _ []byte) error {
	r.routingKey, r.key = routingKey, key
	return nil
}

func TestPriorityRouter_KeysByJobID(t *testing.T) {
	rec := &keyRecorder{}
	router := NewPriorityRouter(rec, zap.NewNop())
	job, _ := jobDomain.NewJob("01001-000", jobDomain.PriorityHigh, nil, time.Now())
	msg, _ := jobDomain.NewOutboxMessage(job, time.Now())

	require.NoError(t, router.Publish(context.Background(), msg))

	assert.Equal(t, "High", rec.routingKey)
	assert.Equal(t, []byte(job.ID.String()), rec.key)
}
