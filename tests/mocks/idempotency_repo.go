package mocks

import (
	"context"
	"sync"
	"time"

	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"
)

// InMemoryIdempotencyRepo aplica unicidad de clave y expiración a 24h.
type InMemoryIdempotencyRepo struct {
	Keys      map[string]*jobDomain.IdempotencyKey
	CreateErr error
	Now       func() time.Time
	mu        sync.Mutex
}

var _ jobDomain.IdempotencyRepository = (*InMemoryIdempotencyRepo)(nil)

func NewInMemoryIdempotencyRepo() *InMemoryIdempotencyRepo {
	return &InMemoryIdempotencyRepo{
		Keys: make(map[string]*jobDomain.IdempotencyKey),
		Now:  time.Now,
	}
}

func (r *InMemoryIdempotencyRepo) GetByKey(ctx context.Context, key string) (*jobDomain.IdempotencyKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.Keys[key]
	if !ok || k.IsExpired(r.Now()) {
		return nil, nil
	}
	c := *k
	return &c, nil
}

func (r *InMemoryIdempotencyRepo) Create(ctx context.Context, k *jobDomain.IdempotencyKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CreateErr != nil {
		return r.CreateErr
	}
	if existing, ok := r.Keys[k.Key]; ok && !existing.IsExpired(r.Now()) {
		return jobDomain.ErrDuplicateIdempotencyKey
	}
	c := *k
	r.Keys[k.Key] = &c
	return nil
}

func (r *InMemoryIdempotencyRepo) DeleteByKey(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.Keys, key)
	return nil
}

// Len devuelve el número de claves guardadas (vigentes o no).
func (r *InMemoryIdempotencyRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Keys)
}
