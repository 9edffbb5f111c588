package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// Jawaban di path ini berisi session, token atau data customer
var noStorePrefixes = []string{"/sessions", "/admin", "/login", "/customers", "/notifications"}

// SecurityHeaders sets the browser hardening headers and marks session,
// staff and customer answers no-store.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		path := c.Request.URL.Path
		for _, prefix := range noStorePrefixes {
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				h.Set("Cache-Control", "no-store")
				h.Set("Pragma", "no-cache")
				break
			}
		}

		c.Next()
	}
}
