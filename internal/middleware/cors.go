package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORS applies cross-origin headers for the configured origin and
// short-circuits preflight requests. An empty origin allows any caller.
// Credentials are bearer tokens, never cookies.
func CORS(origin string) gin.HandlerFunc {
	if origin == "" {
		origin = "*"
	}

	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", origin)
		if origin != "*" {
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, Accept")
		c.Header("Access-Control-Max-Age", "43200")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
