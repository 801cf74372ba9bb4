package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davicafu/f360jobs/internal/job/application"
	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"
	"github.com/davicafu/f360jobs/pkg/utils"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	cancelSuffix         = ":cancel"
	defaultStatsWindow   = 7 * 24 * time.Hour
)

// JobHandler encapsula los endpoints HTTP relacionados con Job.
type JobHandler struct {
	service *application.JobService
	log     *zap.Logger
}

// NewJobHandler crea un nuevo JobHandler.
func NewJobHandler(service *application.JobService, log *zap.Logger) *JobHandler {
	return &JobHandler{service: service, log: log}
}

type createJobRequest struct {
	Cep           string     `json:"cep" binding:"required"`
	Priority      string     `json:"priority" binding:"required"`
	ScheduledTime *time.Time `json:"scheduledTime"`
}

// CreateJob endpoint POST /jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	if key == "" {
		utils.SendBadRequest(c, jobDomain.ErrMissingIdempotencyKey.Error())
		return
	}

	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, "invalid request body")
		return
	}

	job, err := h.service.CreateJob(c.Request.Context(), application.CreateJobCommand{
		Cep:           req.Cep,
		Priority:      req.Priority,
		ScheduledTime: req.ScheduledTime,
	}, key)
	if err != nil {
		h.writeError(c, err)
		return
	}

	utils.SendSuccess(c, http.StatusCreated, job)
}

// GetJob endpoint GET /jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	id, ok := parseJobID(c, c.Param("id"))
	if !ok {
		return
	}

	job, err := h.service.GetJob(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	utils.SendSuccess(c, http.StatusOK, job)
}

// JobAction endpoint POST /jobs/:id con el verbo como sufijo ("{id}:cancel").
func (h *JobHandler) JobAction(c *gin.Context) {
	raw := c.Param("id")
	if !strings.HasSuffix(raw, cancelSuffix) {
		utils.SendNotFound(c, "unknown job action")
		return
	}

	id, ok := parseJobID(c, strings.TrimSuffix(raw, cancelSuffix))
	if !ok {
		return
	}

	if err := h.service.CancelJob(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetJobAddress endpoint GET /jobs/:id/address
func (h *JobHandler) GetJobAddress(c *gin.Context) {
	id, ok := parseJobID(c, c.Param("id"))
	if !ok {
		return
	}

	addr, err := h.service.GetJobAddress(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	utils.SendSuccess(c, http.StatusOK, addr)
}

// GetStats endpoint GET /jobs/stats?from=&to= (RFC 3339). Por defecto, los últimos 7 días.
func (h *JobHandler) GetStats(c *gin.Context) {
	to := time.Now().UTC()
	from := to.Add(-defaultStatsWindow)

	var err error
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			utils.SendBadRequest(c, "invalid 'to' parameter, expected RFC 3339")
			return
		}
	}
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			utils.SendBadRequest(c, "invalid 'from' parameter, expected RFC 3339")
			return
		}
	}
	if from.After(to) {
		utils.SendBadRequest(c, "'from' must not be after 'to'")
		return
	}

	stats, err := h.service.GetCompletionStats(c.Request.Context(), from, to)
	if err != nil {
		h.writeError(c, err)
		return
	}

	utils.SendSuccess(c, http.StatusOK, stats)
}

// --- Helpers ---

func parseJobID(c *gin.Context, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		utils.SendBadRequest(c, "invalid job id")
		return uuid.Nil, false
	}
	return id, true
}

// writeError traduce los errores de dominio a códigos HTTP.
// Cualquier otro error es de infraestructura: se registra y se devuelve un mensaje opaco.
func (h *JobHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, jobDomain.ErrInvalidCEP),
		errors.Is(err, jobDomain.ErrInvalidPriority),
		errors.Is(err, jobDomain.ErrMissingIdempotencyKey),
		errors.Is(err, jobDomain.ErrJobNotCancellable):
		utils.SendBadRequest(c, err.Error())
	case errors.Is(err, jobDomain.ErrDuplicateRequest):
		utils.SendConflict(c, err.Error())
	case errors.Is(err, jobDomain.ErrJobNotFound):
		utils.SendNotFound(c, err.Error())
	case errors.Is(err, jobDomain.ErrAddressNotFound):
		utils.SendNotFound(c, "Address not found")
	case errors.Is(err, jobDomain.ErrAnalyticsUnavailable):
		utils.SendServiceUnavailable(c, err.Error())
	default:
		h.log.Error("Unhandled error in request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		utils.SendInternalServerError(c)
	}
}
