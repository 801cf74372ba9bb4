package contracts

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davicafu/f360jobs/internal/job/application"
	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"
	jobConsumer "github.com/davicafu/f360jobs/internal/job/infra/inbound/events"
	jobEvents "github.com/davicafu/f360jobs/internal/job/infra/outbound/events"
	sharedDomain "github.com/davicafu/f360jobs/internal/shared/domain"
	"github.com/davicafu/f360jobs/internal/shared/infra/backoff"
	sharedEvents "github.com/davicafu/f360jobs/internal/shared/infra/events"
	"github.com/davicafu/f360jobs/internal/shared/infra/relayer"
	"github.com/davicafu/f360jobs/tests/mocks"
)

// El cuerpo publicado es exactamente {jobId, cep, priority}: es el contrato con el consumidor.
func TestJobMessage_WireFormat(t *testing.T) {
	job, err := jobDomain.NewJob("01001-000", jobDomain.PriorityLow, nil, time.Now())
	require.NoError(t, err)

	msg, err := jobDomain.NewOutboxMessage(job, time.Now())
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &body))
	assert.Len(t, body, 3)
	assert.Equal(t, job.ID.String(), body["jobId"])
	assert.Equal(t, "01001-000", body["cep"])
	assert.Equal(t, "Low", body["priority"])
	assert.Equal(t, "Low", msg.Priority, "la routing key es el nombre de la prioridad")
}

// pipeline agrupa todas las piezas del flujo, conectadas por el exchange en memoria.
type pipeline struct {
	service  *application.JobService
	relay    *relayer.Worker
	jobs     *mocks.InMemoryJobRepo
	outbox   *mocks.InMemoryOutboxRepo
	archive  *mocks.InMemoryAddressArchive
	lookup   *mocks.MockAddressLookup
	exchange *sharedEvents.InMemoryExchange
	consumer *jobConsumer.JobConsumer
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	log := zap.NewNop()
	p := &pipeline{
		jobs:     mocks.NewInMemoryJobRepo(),
		outbox:   mocks.NewInMemoryOutboxRepo(),
		archive:  mocks.NewInMemoryAddressArchive(),
		lookup:   new(mocks.MockAddressLookup),
		exchange: sharedEvents.NewInMemoryExchange(),
	}
	guard := application.NewIdempotencyGuard(mocks.NewInMemoryIdempotencyRepo(), log)
	cache := mocks.NewDummyCache()
	p.service = application.NewJobService(p.jobs, p.outbox, guard, cache, p.archive, nil, log)

	p.relay = relayer.NewOutboxWorker(p.outbox, jobEvents.NewPriorityRouter(p.exchange, log), relayer.Options{
		IdleDelay:  10 * time.Millisecond,
		Lease:      time.Minute,
		MaxRetries: 3,
		Backoff:    backoff.NewConstant(0),
	}, log)

	processor := application.NewJobProcessor(p.jobs, p.lookup, p.archive, nil, cache, log)
	p.consumer = jobConsumer.NewJobConsumer(processor, log)
	return p
}

// run arranca un consumidor por cola hasta que termina el test.
func (p *pipeline) run(t *testing.T, queues map[string]string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for routingKey, name := range queues {
		q := p.exchange.Bind(routingKey, 16)
		cc := sharedEvents.NewChannelConsumer(name, q, p.consumer, sharedEvents.ChannelConsumerOptions{
			Workers:     2,
			MaxAttempts: 2,
			RetryDelay:  time.Millisecond,
		}, zap.NewNop())
		wg.Add(1)
		go func() {
			defer wg.Done()
			cc.Start(ctx)
		}()
	}
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
}

func allQueues() map[string]string {
	return map[string]string{
		jobDomain.RoutingKey(jobDomain.PriorityHigh): jobDomain.HighQueue,
		jobDomain.RoutingKey(jobDomain.PriorityLow):  jobDomain.LowQueue,
	}
}

func TestPipeline_CreateRelayConsume(t *testing.T) {
	p := newPipeline(t)
	p.lookup.On("GetAddress", mock.Anything, "01001-000").
		Return(&jobDomain.Address{Cep: "01001-000", Localidade: "São Paulo"}, nil)
	p.lookup.On("GetAddress", mock.Anything, "99999999").Return(nil, nil)
	p.run(t, allQueues())
	ctx := context.Background()

	found, err := p.service.CreateJob(ctx, application.CreateJobCommand{Cep: "01001-000", Priority: "High"}, "k-1")
	require.NoError(t, err)
	empty, err := p.service.CreateJob(ctx, application.CreateJobCommand{Cep: "99999999", Priority: "Low"}, "k-2")
	require.NoError(t, err)

	sent, err := p.relay.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	require.Eventually(t, func() bool {
		a, _ := p.jobs.GetByID(ctx, found.ID)
		b, _ := p.jobs.GetByID(ctx, empty.ID)
		return a.Status.IsTerminal() && b.Status.IsTerminal()
	}, 2*time.Second, 10*time.Millisecond)

	a, _ := p.jobs.GetByID(ctx, found.ID)
	assert.Equal(t, jobDomain.JobFinished, a.Status)
	assert.NotNil(t, a.CompletedAt)
	addr, err := p.service.GetJobAddress(ctx, found.ID)
	require.NoError(t, err)
	assert.Equal(t, "São Paulo", addr.Localidade)

	// sin resultado de la consulta también termina como Finished, sin dirección
	b, _ := p.jobs.GetByID(ctx, empty.ID)
	assert.Equal(t, jobDomain.JobFinished, b.Status)
	assert.False(t, p.archive.Has(empty.ID))

	for _, m := range p.outbox.Snapshot() {
		assert.Equal(t, sharedDomain.OutboxSent, m.Status)
	}
}

func TestPipeline_CancelledBeforeDispatchIsNotProcessed(t *testing.T) {
	p := newPipeline(t)
	p.run(t, allQueues())
	ctx := context.Background()

	job, err := p.service.CreateJob(ctx, application.CreateJobCommand{Cep: "01001-000", Priority: "Low"}, "k-1")
	require.NoError(t, err)
	require.NoError(t, p.service.CancelJob(ctx, job.ID))

	_, err = p.relay.Drain(ctx)
	require.NoError(t, err)

	// el mensaje se entrega, pero el consumidor lo reconoce sin consultar nada
	require.Eventually(t, func() bool {
		return len(p.outbox.Snapshot()) == 1 && p.outbox.Snapshot()[0].Status == sharedDomain.OutboxSent
	}, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	stored, _ := p.jobs.GetByID(ctx, job.ID)
	assert.Equal(t, jobDomain.JobCancelled, stored.Status)
	p.lookup.AssertNotCalled(t, "GetAddress", mock.Anything, mock.Anything)
}

// Sin cola enlazada para la prioridad, el relay agota los reintentos y marca Error.
func TestPipeline_UnroutableEndsInError(t *testing.T) {
	p := newPipeline(t)
	p.run(t, map[string]string{jobDomain.RoutingKey(jobDomain.PriorityHigh): jobDomain.HighQueue})
	ctx := context.Background()

	_, err := p.service.CreateJob(ctx, application.CreateJobCommand{Cep: "01001-000", Priority: "Low"}, "k-1")
	require.NoError(t, err)

	_, err = p.relay.Drain(ctx)
	require.NoError(t, err)

	msgs := p.outbox.Snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, sharedDomain.OutboxError, msgs[0].Status)
	assert.Equal(t, 3, msgs[0].RetryCount)
	require.NotNil(t, msgs[0].ErrorMessage)
	assert.Contains(t, *msgs[0].ErrorMessage, "no queue bound")
}
