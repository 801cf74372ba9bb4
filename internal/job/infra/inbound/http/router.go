package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterJobRoutes registra las rutas HTTP para el dominio de Jobs.
func RegisterJobRoutes(r *gin.Engine, handler *JobHandler) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	jobs := r.Group("/jobs")
	{
		jobs.POST("", handler.CreateJob)                // Crear un job (requiere Idempotency-Key)
		jobs.GET("/stats", handler.GetStats)            // Analítica de jobs terminados
		jobs.GET("/:id", handler.GetJob)                // Obtener un job por su ID
		jobs.GET("/:id/address", handler.GetJobAddress) // Dirección obtenida por el consumidor
		jobs.POST("/:id", handler.JobAction)            // Acciones "{id}:cancel"
	}
}
