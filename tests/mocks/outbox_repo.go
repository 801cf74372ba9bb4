package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	sharedDomain "github.com/davicafu/f360jobs/internal/shared/domain"
)

// InMemoryOutboxRepo implementa el claim atómico con un mutex.
type InMemoryOutboxRepo struct {
	Messages  []*sharedDomain.OutboxMessage
	CreateErr error
	mu        sync.Mutex
}

var _ sharedDomain.OutboxRepository = (*InMemoryOutboxRepo)(nil)

func NewInMemoryOutboxRepo() *InMemoryOutboxRepo {
	return &InMemoryOutboxRepo{}
}

func (r *InMemoryOutboxRepo) Create(ctx context.Context, msg *sharedDomain.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CreateErr != nil {
		return r.CreateErr
	}
	for _, m := range r.Messages {
		if m.JobID == msg.JobID {
			return sharedDomain.ErrOutboxAlreadyExists
		}
	}
	c := *msg
	r.Messages = append(r.Messages, &c)
	return nil
}

func (r *InMemoryOutboxRepo) ClaimNext(ctx context.Context, now time.Time, lease time.Duration) (*sharedDomain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var candidates []*sharedDomain.OutboxMessage
	for _, m := range r.Messages {
		if m.IsClaimable(now) {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].DeliveryRank != candidates[b].DeliveryRank {
			return candidates[a].DeliveryRank < candidates[b].DeliveryRank
		}
		return candidates[a].ScheduledTime.Before(candidates[b].ScheduledTime)
	})

	claimed := candidates[0]
	until := now.Add(lease)
	claimed.LockedUntil = &until
	c := *claimed
	return &c, nil
}

func (r *InMemoryOutboxRepo) Update(ctx context.Context, msg *sharedDomain.OutboxMessage, claimedUntil time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.Messages {
		if m.ID == msg.ID {
			if m.LockedUntil == nil || !m.LockedUntil.Equal(claimedUntil) {
				return sharedDomain.ErrOutboxLeaseLost
			}
			c := *msg
			r.Messages[i] = &c
			return nil
		}
	}
	return sharedDomain.ErrOutboxNotFound
}

// Snapshot devuelve copias de todos los mensajes.
func (r *InMemoryOutboxRepo) Snapshot() []sharedDomain.OutboxMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sharedDomain.OutboxMessage, 0, len(r.Messages))
	for _, m := range r.Messages {
		out = append(out, *m)
	}
	return out
}

// MockOutboxRepository es la versión testify para verificar llamadas exactas.
type MockOutboxRepository struct {
	mock.Mock
}

var _ sharedDomain.OutboxRepository = (*MockOutboxRepository)(nil)

func (m *MockOutboxRepository) Create(ctx context.Context, msg *sharedDomain.OutboxMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockOutboxRepository) ClaimNext(ctx context.Context, now time.Time, lease time.Duration) (*sharedDomain.OutboxMessage, error) {
	args := m.Called(ctx, now, lease)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sharedDomain.OutboxMessage), args.Error(1)
}

func (m *MockOutboxRepository) Update(ctx context.Context, msg *sharedDomain.OutboxMessage, claimedUntil time.Time) error {
	args := m.Called(ctx, msg, claimedUntil)
	return args.Error(0)
}

// MockPublisher simula el publicador del relay.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, msg *sharedDomain.OutboxMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
