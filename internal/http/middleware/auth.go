package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/wa-intercom-relay/internal/signature"
)

// AdminAuth guards the dashboard API with a shared bearer token. An empty
// token disables the check, which suits local development only.
func AdminAuth(token string) gin.HandlerFunc {
	token = strings.TrimSpace(token)
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found || !signature.ConstantTimeEqual(strings.TrimSpace(got), token) {
			c.Header("WWW-Authenticate", `Bearer realm="relay-admin"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "unauthorized",
				"message":    "missing or invalid admin token",
			})
			return
		}
		c.Next()
	}
}

// BodyLimit caps request bodies at maxBytes with http.MaxBytesReader; reads
// past the cap fail and handlers answer 413.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
