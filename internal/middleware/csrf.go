package middleware

import (
	"crypto/subtle"
	"net/http"

	"sigecof/internal/cookie"
	"sigecof/internal/service"

	"github.com/gin-gonic/gin"
)

const CSRFHeader = "X-CSRF-Token"

// CSRF enforces the double-submit check on mutating requests that were
// authenticated by cookie. It must run after RequireAuth. Safe methods and
// bearer-authenticated requests pass, since a cross-site page can neither
// read the CSRF cookie nor attach an Authorization header.
func CSRF(jar *cookie.Jar) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		if c.GetString(KeyAuthMethod) != service.MethodSession {
			c.Next()
			return
		}

		expected := jar.CSRFToken(c.Request)
		if expected == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "Missing CSRF token"})
			return
		}
		got := c.GetHeader(CSRFHeader)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "Invalid CSRF token"})
			return
		}
		c.Next()
	}
}
