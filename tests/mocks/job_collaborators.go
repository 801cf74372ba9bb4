package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"
)

// MockAddressLookup simula el cliente de consulta de CEP.
type MockAddressLookup struct {
	mock.Mock
}

var _ jobDomain.AddressLookup = (*MockAddressLookup)(nil)

func (m *MockAddressLookup) GetAddress(ctx context.Context, cep string) (*jobDomain.Address, error) {
	args := m.Called(ctx, cep)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobDomain.Address), args.Error(1)
}

// InMemoryAddressArchive guarda direcciones por job.
type InMemoryAddressArchive struct {
	Addresses map[uuid.UUID]jobDomain.Address
	mu        sync.Mutex
}

var _ jobDomain.AddressArchive = (*InMemoryAddressArchive)(nil)

func NewInMemoryAddressArchive() *InMemoryAddressArchive {
	return &InMemoryAddressArchive{Addresses: make(map[uuid.UUID]jobDomain.Address)}
}

func (a *InMemoryAddressArchive) Save(ctx context.Context, jobID uuid.UUID, addr *jobDomain.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Addresses[jobID] = *addr
	return nil
}

func (a *InMemoryAddressArchive) Get(ctx context.Context, jobID uuid.UUID) (*jobDomain.Address, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	addr, ok := a.Addresses[jobID]
	if !ok {
		return nil, jobDomain.ErrAddressNotFound
	}
	return &addr, nil
}

// Has indica si hay dirección archivada para el job.
func (a *InMemoryAddressArchive) Has(jobID uuid.UUID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.Addresses[jobID]
	return ok
}

// MockJobAnalytics simula el repositorio analítico.
type MockJobAnalytics struct {
	mock.Mock
}

var _ jobDomain.JobAnalyticsRepository = (*MockJobAnalytics)(nil)

func (m *MockJobAnalytics) LogBatch(ctx context.Context, jobs []*jobDomain.Job) error {
	args := m.Called(ctx, jobs)
	return args.Error(0)
}

func (m *MockJobAnalytics) GetAverageCompletionTime(ctx context.Context, start, end time.Time) (time.Duration, error) {
	args := m.Called(ctx, start, end)
	return args.Get(0).(time.Duration), args.Error(1)
}

func (m *MockJobAnalytics) GetDailyTrend(ctx context.Context, start, end time.Time) ([]jobDomain.DailyJobTrend, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]jobDomain.DailyJobTrend), args.Error(1)
}
