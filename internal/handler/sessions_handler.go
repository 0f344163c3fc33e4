package handler

import (
	"net/http"

	"sigecof/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type SessionsHandler interface {
	Prune(c *gin.Context)
}

type sessionsHandler struct {
	sessions *service.SessionManager
	log      *logrus.Logger
}

func NewSessionsHandler(sessions *service.SessionManager, log *logrus.Logger) SessionsHandler {
	return &sessionsHandler{sessions: sessions, log: log}
}

// Prune handles POST /api/admin/sessions/prune
func (h *sessionsHandler) Prune(c *gin.Context) {
	n, err := h.sessions.Prune(c.Request.Context())
	if err != nil {
		h.log.Errorf("Failed to prune sessions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}
	h.log.WithField("removed", n).Info("Expired sessions pruned")
	c.JSON(http.StatusOK, gin.H{"success": true, "removed": n})
}
