package middleware

import (
	"errors"
	"net/http"
	"strings"

	"sigecof/internal/cookie"
	"sigecof/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Context keys set by RequireAuth.
const (
	KeyUserID     = "user_id"
	KeyUsername   = "username"
	KeyRole       = "role"
	KeyAuthMethod = "auth_method"
)

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequireAuth accepts a session cookie or a bearer token, in that order.
// It does not renew the session; that happens on whoami.
func RequireAuth(auth service.AuthService, jar *cookie.Jar, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := auth.Authenticate(c.Request.Context(), jar.SessionID(c.Request), BearerToken(c.Request))
		if err != nil {
			if !errors.Is(err, service.ErrNotAuthenticated) {
				log.Errorf("Authentication check failed: %v", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Not authenticated"})
			return
		}

		c.Set(KeyUserID, id.User.UserID)
		c.Set(KeyUsername, id.User.Username)
		c.Set(KeyRole, id.User.Role)
		c.Set(KeyAuthMethod, id.Method)
		c.Next()
	}
}

// RequireRole must run after RequireAuth.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[strings.ToLower(r)] = struct{}{}
	}
	return func(c *gin.Context) {
		role := strings.ToLower(c.GetString(KeyRole))
		if _, ok := allowed[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "Forbidden"})
			return
		}
		c.Next()
	}
}
