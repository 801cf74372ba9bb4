package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/davicafu/f360jobs/pkg/utils"
)

const APIKeyHeader = "X-Api-Key"

// publicPaths no requieren API key.
var publicPaths = []string{"/health"}

// APIKeyAuth exige la cabecera X-Api-Key con el valor configurado.
// Con una key vacía el middleware deja pasar todas las peticiones.
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" || isPublic(c.Request.URL.Path) {
			c.Next()
			return
		}

		if c.GetHeader(APIKeyHeader) != apiKey {
			utils.SendUnauthorized(c, "Invalid or missing API key")
			return
		}

		c.Next()
	}
}

func isPublic(path string) bool {
	for _, p := range publicPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
