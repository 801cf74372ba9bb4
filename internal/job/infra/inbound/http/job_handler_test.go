package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davicafu/f360jobs/internal/job/application"
	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"
	"github.com/davicafu/f360jobs/pkg/middleware"
	"github.com/davicafu/f360jobs/tests/mocks"
)

type testEnv struct {
	router    *gin.Engine
	jobs      *mocks.InMemoryJobRepo
	outbox    *mocks.InMemoryOutboxRepo
	archive   *mocks.InMemoryAddressArchive
	analytics *mocks.MockJobAnalytics
}

func setupRouter(t *testing.T, apiKey string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		jobs:      mocks.NewInMemoryJobRepo(),
		outbox:    mocks.NewInMemoryOutboxRepo(),
		archive:   mocks.NewInMemoryAddressArchive(),
		analytics: &mocks.MockJobAnalytics{},
	}
	env.analytics.On("LogBatch", mock.Anything, mock.Anything).Return(nil).Maybe()

	log := zap.NewNop()
	guard := application.NewIdempotencyGuard(mocks.NewInMemoryIdempotencyRepo(), log)
	svc := application.NewJobService(env.jobs, env.outbox, guard, mocks.NewDummyCache(), env.archive, env.analytics, log)

	r := gin.New()
	r.Use(middleware.APIKeyAuth(apiKey))
	RegisterJobRoutes(r, NewJobHandler(svc, log))
	env.router = r
	return env
}

func (e *testEnv) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func (e *testEnv) createJob(t *testing.T, key string) jobDomain.Job {
	t.Helper()
	rec := e.do(http.MethodPost, "/jobs", gin.H{"cep": "01001-000", "priority": "High"},
		map[string]string{IdempotencyKeyHeader: key})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var job jobDomain.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	return job
}

func TestCreateJob(t *testing.T) {
	env := setupRouter(t, "")

	job := env.createJob(t, "req-1")

	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, "01001-000", job.Cep)
	assert.Equal(t, jobDomain.PriorityHigh, job.Priority)
	assert.Equal(t, jobDomain.JobPending, job.Status)
	assert.Nil(t, job.ScheduledTime)
	assert.Nil(t, job.CompletedAt)
	assert.Len(t, env.outbox.Snapshot(), 1)
}

func TestCreateJob_ValidationAndConflicts(t *testing.T) {
	env := setupRouter(t, "")
	env.createJob(t, "req-dup")

	cases := []struct {
		name    string
		body    any
		key     string
		status  int
		message string
	}{
		{"sin idempotency key", gin.H{"cep": "01001-000", "priority": "High"}, "", http.StatusBadRequest, "Idempotency-Key header is required"},
		{"cep inválido", gin.H{"cep": "123", "priority": "High"}, "req-2", http.StatusBadRequest, "Invalid CEP format"},
		{"prioridad inválida", gin.H{"cep": "01001-000", "priority": "Urgent"}, "req-3", http.StatusBadRequest, jobDomain.ErrInvalidPriority.Error()},
		{"cuerpo sin campos", gin.H{}, "req-4", http.StatusBadRequest, "invalid request body"},
		{"clave repetida", gin.H{"cep": "01001-000", "priority": "Low"}, "req-dup", http.StatusConflict, "Duplicate request detected"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			headers := map[string]string{}
			if tc.key != "" {
				headers[IdempotencyKeyHeader] = tc.key
			}
			rec := env.do(http.MethodPost, "/jobs", tc.body, headers)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.message, errorBody(t, rec))
		})
	}
	assert.Len(t, env.outbox.Snapshot(), 1, "solo la primera petición encola")
}

func TestCreateJob_ScheduledTimeIsEchoed(t *testing.T) {
	env := setupRouter(t, "")
	at := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

	rec := env.do(http.MethodPost, "/jobs",
		gin.H{"cep": "01001000", "priority": "low", "scheduledTime": at.Format(time.RFC3339)},
		map[string]string{IdempotencyKeyHeader: "req-sched"})

	require.Equal(t, http.StatusCreated, rec.Code)
	var job jobDomain.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	require.NotNil(t, job.ScheduledTime)
	assert.True(t, job.ScheduledTime.Equal(at))
	assert.Equal(t, jobDomain.PriorityLow, job.Priority)
}

func TestGetJob(t *testing.T) {
	env := setupRouter(t, "")
	created := env.createJob(t, "req-get")

	rec := env.do(http.MethodGet, "/jobs/"+created.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got jobDomain.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, created.ID, got.ID)

	rec = env.do(http.MethodGet, "/jobs/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Job not found", errorBody(t, rec))

	rec = env.do(http.MethodGet, "/jobs/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelJob(t *testing.T) {
	env := setupRouter(t, "")
	created := env.createJob(t, "req-cancel")

	rec := env.do(http.MethodPost, "/jobs/"+created.ID.String()+":cancel", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	stored, err := env.jobs.GetByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, jobDomain.JobCancelled, stored.Status)

	// ya no está Pending
	rec = env.do(http.MethodPost, "/jobs/"+created.ID.String()+":cancel", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Only pending jobs can be cancelled", errorBody(t, rec))

	rec = env.do(http.MethodPost, "/jobs/"+uuid.NewString()+":cancel", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPost, "/jobs/"+created.ID.String()+":retry", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJobAddress(t *testing.T) {
	env := setupRouter(t, "")
	created := env.createJob(t, "req-addr")

	rec := env.do(http.MethodGet, "/jobs/"+created.ID.String()+"/address", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, env.archive.Save(t.Context(), created.ID, &jobDomain.Address{Cep: "01001-000", Uf: "SP"}))
	rec = env.do(http.MethodGet, "/jobs/"+created.ID.String()+"/address", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var addr jobDomain.Address
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &addr))
	assert.Equal(t, "SP", addr.Uf)
}

func TestGetStats(t *testing.T) {
	env := setupRouter(t, "")
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	env.analytics.On("GetAverageCompletionTime", mock.Anything, mock.Anything, mock.Anything).Return(1500*time.Millisecond, nil)
	env.analytics.On("GetDailyTrend", mock.Anything, mock.Anything, mock.Anything).
		Return([]jobDomain.DailyJobTrend{{Day: day, FinishedCount: 3, ErrorCount: 1}}, nil)

	rec := env.do(http.MethodGet, "/jobs/stats?from=2025-03-01T00:00:00Z&to=2025-03-02T00:00:00Z", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats application.JobStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.InDelta(t, 1.5, stats.AverageCompletionSeconds, 0.001)
	require.Len(t, stats.Daily, 1)
	assert.Equal(t, 3, stats.Daily[0].FinishedCount)

	rec = env.do(http.MethodGet, "/jobs/stats?from=ayer", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/jobs/stats?from=2025-03-02T00:00:00Z&to=2025-03-01T00:00:00Z", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInfrastructureErrorsAreOpaque(t *testing.T) {
	env := setupRouter(t, "")
	env.jobs.GetErr = errors.New("connection reset by peer")

	rec := env.do(http.MethodPost, "/jobs/"+uuid.NewString()+":cancel", nil, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "could not complete your request", errorBody(t, rec))
}

func TestAPIKey(t *testing.T) {
	env := setupRouter(t, "secret")

	rec := env.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "/health es público")

	rec = env.do(http.MethodGet, "/jobs/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodGet, "/jobs/"+uuid.NewString(), nil, map[string]string{middleware.APIKeyHeader: "secret"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
