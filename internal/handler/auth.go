package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"sigecof/internal/cookie"
	"sigecof/internal/middleware"
	"sigecof/internal/models"
	"sigecof/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type AuthHandler interface {
	Login(c *gin.Context)
	WhoAmI(c *gin.Context)
	Logout(c *gin.Context)
	ChangePassword(c *gin.Context)
	Me(c *gin.Context)
}

type authHandler struct {
	authService service.AuthService
	jar         *cookie.Jar
	now         func() time.Time
	log         *logrus.Logger
}

type Option func(*authHandler)

// WithClock sets the clock used to turn session expiry into cookie Max-Age.
func WithClock(now func() time.Time) Option {
	return func(h *authHandler) { h.now = now }
}

func NewAuthHandler(authService service.AuthService, jar *cookie.Jar, log *logrus.Logger, opts ...Option) AuthHandler {
	h := &authHandler{authService: authService, jar: jar, now: time.Now, log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Remember bool   `json:"remember"`
}

type ChangePasswordRequest struct {
	UserID          int64  `json:"user_id" binding:"required"`
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

type authResponse struct {
	Success   bool              `json:"success"`
	User      models.PublicUser `json:"user"`
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
}

func (h *authHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("Failed to bind JSON for login: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body"})
		return
	}

	res, err := h.authService.Login(c.Request.Context(), req.Username, req.Password, req.Remember)
	if err != nil {
		h.writeError(c, err, "login")
		return
	}

	if res.MustChangePassword {
		c.JSON(http.StatusOK, gin.H{
			"success":              true,
			"must_change_password": true,
			"user_id":              res.User.ID,
		})
		return
	}

	h.setAuthCookies(c, res.Session, "")
	c.JSON(http.StatusOK, authResponse{
		Success:   true,
		User:      res.User.Public(),
		Token:     res.Token,
		ExpiresAt: res.TokenExpiresAt,
	})
}

func (h *authHandler) WhoAmI(c *gin.Context) {
	id, err := h.authService.WhoAmI(c.Request.Context(), h.jar.SessionID(c.Request), middleware.BearerToken(c.Request))
	if err != nil {
		h.writeError(c, err, "whoami")
		return
	}

	if id.Session != nil {
		h.setAuthCookies(c, id.Session, h.jar.CSRFToken(c.Request))
	}
	c.JSON(http.StatusOK, authResponse{
		Success:   true,
		User:      id.User,
		Token:     id.Token,
		ExpiresAt: id.TokenExpiresAt,
	})
}

func (h *authHandler) Logout(c *gin.Context) {
	_ = h.authService.Logout(c.Request.Context(), h.jar.SessionID(c.Request))
	h.jar.ClearAll(c.Writer)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *authHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("Failed to bind JSON for password change: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body"})
		return
	}

	err := h.authService.ChangePassword(c.Request.Context(), req.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		h.writeError(c, err, "change password")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Me echoes the identity RequireAuth put in the context.
func (h *authHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"user_id":     c.GetInt64(middleware.KeyUserID),
		"username":    c.GetString(middleware.KeyUsername),
		"role":        c.GetString(middleware.KeyRole),
		"auth_method": c.GetString(middleware.KeyAuthMethod),
	})
}

// setAuthCookies writes the session aliases and the CSRF cookie with a
// Max-Age matching the session. An existing CSRF token is kept.
func (h *authHandler) setAuthCookies(c *gin.Context, sess *models.Session, csrfToken string) {
	maxAge := sess.ExpiresAt.Sub(h.now())
	if csrfToken == "" {
		csrfToken = uuid.NewString()
	}
	h.jar.SetSession(c.Writer, sess.ID, maxAge)
	h.jar.SetCSRF(c.Writer, csrfToken, maxAge)
}

func (h *authHandler) writeError(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid credentials"})
	case errors.Is(err, service.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Not authenticated"})
	case errors.Is(err, service.ErrAccountInactive):
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "Account inactive"})
	case errors.Is(err, service.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": fmt.Sprintf("Password must be at least %d characters", service.MinPasswordLength)})
	default:
		h.log.Errorf("Failed to %s: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
	}
}
