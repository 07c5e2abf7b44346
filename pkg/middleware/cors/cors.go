package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// New returns a CORS middleware restricted to the given origins. An empty
// list allows every origin, which is intended for local development only.
func New(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.TrimRight(origin, "/")] = struct{}{}
	}

	return func(c *gin.Context) {
		headers := c.Writer.Header()
		origin := c.GetHeader("Origin")
		if origin != "" {
			if _, ok := allowed[strings.TrimRight(origin, "/")]; ok || allowAll {
				headers.Set("Access-Control-Allow-Origin", origin)
			}
		} else if allowAll {
			headers.Set("Access-Control-Allow-Origin", "*")
		}

		headers.Set("Vary", "Origin")
		headers.Set("Access-Control-Allow-Credentials", "true")
		headers.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Requested-With, X-Request-ID")
		headers.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		headers.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
