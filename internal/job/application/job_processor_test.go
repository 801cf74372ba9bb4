package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"
	"github.com/davicafu/f360jobs/tests/mocks"
)

type processorFixture struct {
	jobs      *mocks.InMemoryJobRepo
	lookup    *mocks.MockAddressLookup
	archive   *mocks.InMemoryAddressArchive
	processor *JobProcessor
}

func newProcessorFixture() *processorFixture {
	f := &processorFixture{
		jobs:    mocks.NewInMemoryJobRepo(),
		lookup:  new(mocks.MockAddressLookup),
		archive: mocks.NewInMemoryAddressArchive(),
	}
	f.processor = NewJobProcessor(f.jobs, f.lookup, f.archive, nil, nil, zap.NewNop())
	return f
}

func (f *processorFixture) seed(status jobDomain.JobStatus) *jobDomain.Job {
	job, _ := jobDomain.NewJob("01001-000", jobDomain.PriorityHigh, nil, time.Now())
	job.Status = status
	if status.IsTerminal() {
		done := time.Now().UTC()
		job.CompletedAt = &done
	}
	f.jobs.Seed(job)
	return job
}

func TestProcess_LookupSucceeds_Finished(t *testing.T) {
	// Arrange
	f := newProcessorFixture()
	job := f.seed(jobDomain.JobPending)
	addr := &jobDomain.Address{Cep: "01001-000", Logradouro: "Praça da Sé", Localidade: "São Paulo", Uf: "SP"}
	f.lookup.On("GetAddress", mock.Anything, "01001-000").Return(addr, nil).Once()

	// Act
	err := f.processor.Process(context.Background(), jobDomain.NewJobMessage(job))

	// Assert
	require.NoError(t, err)
	stored, _ := f.jobs.GetByID(context.Background(), job.ID)
	assert.Equal(t, jobDomain.JobFinished, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
	assert.Equal(t, 2, f.jobs.UpdateCount(job.ID), "Processing y Finished")
	assert.Equal(t, jobDomain.JobProcessing, f.jobs.Updates[0].Status)
	assert.Equal(t, jobDomain.JobFinished, f.jobs.Updates[1].Status)
	assert.True(t, f.archive.Has(job.ID))
	f.lookup.AssertExpectations(t)
}

func TestProcess_EmptyLookupResult_StillFinished(t *testing.T) {
	f := newProcessorFixture()
	job := f.seed(jobDomain.JobPending)
	f.lookup.On("GetAddress", mock.Anything, "01001-000").Return(nil, nil).Once()

	err := f.processor.Process(context.Background(), jobDomain.NewJobMessage(job))

	require.NoError(t, err)
	stored, _ := f.jobs.GetByID(context.Background(), job.ID)
	assert.Equal(t, jobDomain.JobFinished, stored.Status)
	assert.Equal(t, 2, f.jobs.UpdateCount(job.ID))
	assert.False(t, f.archive.Has(job.ID))
}

func TestProcess_LookupFails_ErrorAndRethrow(t *testing.T) {
	// Arrange
	f := newProcessorFixture()
	job := f.seed(jobDomain.JobPending)
	lookupErr := errors.New("viacep timeout")
	f.lookup.On("GetAddress", mock.Anything, "01001-000").Return(nil, lookupErr).Once()

	// Act
	err := f.processor.Process(context.Background(), jobDomain.NewJobMessage(job))

	// Assert
	assert.ErrorIs(t, err, lookupErr)
	stored, _ := f.jobs.GetByID(context.Background(), job.ID)
	assert.Equal(t, jobDomain.JobError, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
	assert.Equal(t, 2, f.jobs.UpdateCount(job.ID))
}

func TestProcess_CancelledContext_StillRecordsError(t *testing.T) {
	f := newProcessorFixture()
	job := f.seed(jobDomain.JobPending)
	ctx, cancel := context.WithCancel(context.Background())
	f.lookup.On("GetAddress", mock.Anything, "01001-000").
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, context.Canceled).Once()

	err := f.processor.Process(ctx, jobDomain.NewJobMessage(job))

	assert.ErrorIs(t, err, context.Canceled)
	stored, _ := f.jobs.GetByID(context.Background(), job.ID)
	assert.Equal(t, jobDomain.JobError, stored.Status)
}

func TestProcess_NonPendingIsNoop(t *testing.T) {
	for _, status := range []jobDomain.JobStatus{jobDomain.JobCancelled, jobDomain.JobProcessing, jobDomain.JobFinished, jobDomain.JobError} {
		t.Run(string(status), func(t *testing.T) {
			// Arrange
			f := newProcessorFixture()
			job := f.seed(status)

			// Act
			err := f.processor.Process(context.Background(), jobDomain.NewJobMessage(job))

			// Assert
			assert.NoError(t, err)
			stored, _ := f.jobs.GetByID(context.Background(), job.ID)
			assert.Equal(t, job, stored)
			assert.Zero(t, f.jobs.UpdateCount(job.ID))
			f.lookup.AssertNotCalled(t, "GetAddress", mock.Anything, mock.Anything)
		})
	}
}

func TestProcess_MissingJobIsDiscarded(t *testing.T) {
	f := newProcessorFixture()

	err := f.processor.Process(context.Background(), jobDomain.JobMessage{JobID: uuid.New(), Cep: "01001-000", Priority: jobDomain.PriorityLow})

	assert.NoError(t, err)
	f.lookup.AssertNotCalled(t, "GetAddress", mock.Anything, mock.Anything)
}

func TestProcess_StoreFailureIsRetried(t *testing.T) {
	f := newProcessorFixture()
	job := f.seed(jobDomain.JobPending)
	f.jobs.GetErr = errors.New("mongo down")

	err := f.processor.Process(context.Background(), jobDomain.NewJobMessage(job))

	assert.Error(t, err)
	f.lookup.AssertNotCalled(t, "GetAddress", mock.Anything, mock.Anything)
}

// Dos entregas del mismo job: solo la primera consulta la dirección.
func TestProcess_RedeliveryIsAbsorbed(t *testing.T) {
	f := newProcessorFixture()
	job := f.seed(jobDomain.JobPending)
	f.lookup.On("GetAddress", mock.Anything, "01001-000").Return(&jobDomain.Address{Cep: "01001-000"}, nil).Once()
	msg := jobDomain.NewJobMessage(job)

	require.NoError(t, f.processor.Process(context.Background(), msg))
	require.NoError(t, f.processor.Process(context.Background(), msg))

	f.lookup.AssertNumberOfCalls(t, "GetAddress", 1)
	assert.Equal(t, 2, f.jobs.UpdateCount(job.ID))
}

// Si otro consumidor gana el paso a Processing, esta entrega se descarta sin consultar.
func TestProcess_LostClaimIsNoop(t *testing.T) {
	f := newProcessorFixture()
	job := f.seed(jobDomain.JobPending)
	racing := &racingJobRepo{InMemoryJobRepo: f.jobs}
	f.processor.jobs = racing

	err := f.processor.Process(context.Background(), jobDomain.NewJobMessage(job))

	assert.NoError(t, err)
	f.lookup.AssertNotCalled(t, "GetAddress", mock.Anything, mock.Anything)
}

// racingJobRepo simula que otro consumidor marca el job entre la lectura y la escritura.
type racingJobRepo struct {
	*mocks.InMemoryJobRepo
}

func (r *racingJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*jobDomain.Job, error) {
	j, err := r.InMemoryJobRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	winner := j.Clone()
	winner.Status = jobDomain.JobProcessing
	r.InMemoryJobRepo.Seed(winner)
	return j, nil
}
