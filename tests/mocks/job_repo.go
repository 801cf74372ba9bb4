package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"
)

// InMemoryJobRepo simula JobRepository guardando copias, como haría un almacén real.
type InMemoryJobRepo struct {
	Jobs map[uuid.UUID]*jobDomain.Job
	// Updates registra cada escritura aceptada por Update, en orden.
	Updates []jobDomain.Job
	// Errores inyectables
	CreateErr error
	GetErr    error
	UpdateErr error
	// AfterGet se ejecuta tras cada lectura, fuera del lock, con la copia devuelta.
	AfterGet func(j *jobDomain.Job)
	mu       sync.Mutex
}

var _ jobDomain.JobRepository = (*InMemoryJobRepo)(nil)

func NewInMemoryJobRepo() *InMemoryJobRepo {
	return &InMemoryJobRepo{Jobs: make(map[uuid.UUID]*jobDomain.Job)}
}

func (r *InMemoryJobRepo) Create(ctx context.Context, j *jobDomain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CreateErr != nil {
		return r.CreateErr
	}
	if _, ok := r.Jobs[j.ID]; ok {
		return jobDomain.ErrJobAlreadyExists
	}
	r.Jobs[j.ID] = j.Clone()
	return nil
}

func (r *InMemoryJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*jobDomain.Job, error) {
	j, err := r.get(id)
	if err == nil && r.AfterGet != nil {
		r.AfterGet(j)
	}
	return j, err
}

func (r *InMemoryJobRepo) get(id uuid.UUID) (*jobDomain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.GetErr != nil {
		return nil, r.GetErr
	}
	j, ok := r.Jobs[id]
	if !ok {
		return nil, jobDomain.ErrJobNotFound
	}
	return j.Clone(), nil
}

func (r *InMemoryJobRepo) Update(ctx context.Context, j *jobDomain.Job, expected jobDomain.JobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.UpdateErr != nil {
		return r.UpdateErr
	}
	current, ok := r.Jobs[j.ID]
	if !ok {
		return jobDomain.ErrJobNotFound
	}
	if current.Status != expected {
		return jobDomain.ErrJobStatusConflict
	}
	r.Jobs[j.ID] = j.Clone()
	r.Updates = append(r.Updates, *j.Clone())
	return nil
}

func (r *InMemoryJobRepo) ListStalePending(ctx context.Context, after jobDomain.StaleCursor, createdBefore time.Time, limit int) ([]*jobDomain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*jobDomain.Job
	for _, j := range r.Jobs {
		if j.Status == jobDomain.JobPending && after.Precedes(j) && j.CreatedAt.Before(createdBefore) {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool { return jobDomain.CursorOf(out[a]).Precedes(out[b]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateCount devuelve cuántas veces se persistió el job id.
func (r *InMemoryJobRepo) UpdateCount(id uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, u := range r.Updates {
		if u.ID == id {
			n++
		}
	}
	return n
}

// Seed inserta un job tal cual, sin validaciones.
func (r *InMemoryJobRepo) Seed(j *jobDomain.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Jobs[j.ID] = j.Clone()
}
