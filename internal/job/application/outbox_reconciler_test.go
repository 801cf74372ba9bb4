package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"
	"github.com/davicafu/f360jobs/tests/mocks"
)

func TestOutboxReconciler_RestoresOrphans(t *testing.T) {
	// Arrange
	jobs := mocks.NewInMemoryJobRepo()
	outbox := mocks.NewInMemoryOutboxRepo()
	now := time.Now().UTC()

	orphan, _ := jobDomain.NewJob("01001-000", jobDomain.PriorityLow, nil, now.Add(-10*time.Minute))
	jobs.Seed(orphan)

	enqueued, _ := jobDomain.NewJob("01001-000", jobDomain.PriorityHigh, nil, now.Add(-9*time.Minute))
	jobs.Seed(enqueued)
	msg, _ := jobDomain.NewOutboxMessage(enqueued, enqueued.CreatedAt)
	require.NoError(t, outbox.Create(context.Background(), msg))

	recent, _ := jobDomain.NewJob("01001-000", jobDomain.PriorityHigh, nil, now.Add(-time.Second))
	jobs.Seed(recent)

	cancelled, _ := jobDomain.NewJob("01001-000", jobDomain.PriorityHigh, nil, now.Add(-8*time.Minute))
	require.NoError(t, cancelled.Cancel(now))
	jobs.Seed(cancelled)

	r := NewOutboxReconciler(jobs, outbox, time.Minute, 5*time.Minute, zap.NewNop())
	r.now = func() time.Time { return now }

	// Act
	n, err := r.Sweep(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	msgs := outbox.Snapshot()
	require.Len(t, msgs, 2)
	assert.Equal(t, orphan.ID, msgs[1].JobID)
	assert.Equal(t, "Low", msgs[1].Priority)

	// segunda pasada: nada nuevo
	n, err = r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, outbox.Snapshot(), 2)
}

func TestOutboxReconciler_DisabledWithZeroInterval(t *testing.T) {
	r := NewOutboxReconciler(mocks.NewInMemoryJobRepo(), mocks.NewInMemoryOutboxRepo(), 0, time.Minute, zap.NewNop())
	done := make(chan struct{})
	go func() { r.Start(context.Background()); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start debería volver inmediatamente")
	}
}

// Más de un lote de jobs con el mismo createdAt: el cursor avanza por id y no se atasca.
func TestOutboxReconciler_SameCreatedAtBeyondOneBatch(t *testing.T) {
	jobs := mocks.NewInMemoryJobRepo()
	outbox := mocks.NewInMemoryOutboxRepo()
	now := time.Now().UTC()
	created := now.Add(-10 * time.Minute)

	orphans := 2*reconcileBatchSize + 30
	for i := 0; i < orphans; i++ {
		j, err := jobDomain.NewJob("01001-000", jobDomain.PriorityLow, nil, created)
		require.NoError(t, err)
		jobs.Seed(j)
	}
	later, err := jobDomain.NewJob("01001-000", jobDomain.PriorityHigh, nil, created.Add(time.Minute))
	require.NoError(t, err)
	jobs.Seed(later)

	r := NewOutboxReconciler(jobs, outbox, time.Minute, 5*time.Minute, zap.NewNop())
	r.now = func() time.Time { return now }

	n, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, orphans+1, n)

	enqueued := map[string]bool{}
	for _, m := range outbox.Snapshot() {
		enqueued[m.JobID.String()] = true
	}
	assert.Len(t, enqueued, orphans+1)
	assert.True(t, enqueued[later.ID.String()])
	assert.Equal(t, jobDomain.CursorOf(later), r.cursor)
}
