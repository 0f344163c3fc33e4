package handler

import (
	"net/http"

	"sigecof/internal/config"
	"sigecof/internal/cookie"
	"sigecof/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SettingsHandler interface {
	GetSettings(c *gin.Context)
}

type settingsHandler struct {
	cfg    *config.Config
	policy cookie.Policy
	logger *zap.Logger
}

func NewSettingsHandler(cfg *config.Config, policy cookie.Policy, logger *zap.Logger) SettingsHandler {
	return &settingsHandler{
		cfg:    cfg,
		policy: policy,
		logger: logger,
	}
}

// SettingsResponse is the effective authentication configuration. Secrets
// and connection strings are never included.
type SettingsResponse struct {
	Environment string `json:"environment"`
	Session     struct {
		Store              string `json:"store"`
		TTLSeconds         int64  `json:"ttl_seconds"`
		RememberTTLSeconds int64  `json:"remember_ttl_seconds"`
		RenewWindowSeconds int64  `json:"renew_window_seconds"`
	} `json:"session"`
	Token struct {
		Issuer           string `json:"issuer"`
		ExpiresInSeconds int64  `json:"expires_in_seconds"`
	} `json:"token"`
	Cookie struct {
		Names    []string `json:"names"`
		CSRFName string   `json:"csrf_name"`
		Secure   bool     `json:"secure"`
		SameSite string   `json:"same_site"`
		Domain   string   `json:"domain"`
		Path     string   `json:"path"`
	} `json:"cookie"`
}

// GetSettings handles GET /api/admin/settings
func (h *settingsHandler) GetSettings(c *gin.Context) {
	response := SettingsResponse{}
	response.Environment = h.cfg.Environment

	response.Session.Store = h.cfg.Session.Store
	response.Session.TTLSeconds = int64(h.cfg.Session.TTL.Std().Seconds())
	response.Session.RememberTTLSeconds = int64(h.cfg.Session.RememberTTL.Std().Seconds())
	response.Session.RenewWindowSeconds = int64(h.cfg.Session.RenewWindow.Std().Seconds())

	response.Token.Issuer = h.cfg.JWT.Issuer
	response.Token.ExpiresInSeconds = int64(h.cfg.JWT.ExpiresIn.Std().Seconds())

	response.Cookie.Names = h.cfg.Cookie.SessionNames
	response.Cookie.CSRFName = h.cfg.Cookie.CSRFName
	response.Cookie.Secure = h.policy.Secure
	response.Cookie.SameSite = sameSiteName(h.policy.SameSite)
	response.Cookie.Domain = h.policy.Domain
	response.Cookie.Path = h.policy.Path

	h.logger.Debug("Settings requested", zap.String("by", c.GetString(middleware.KeyUsername)))
	c.JSON(http.StatusOK, response)
}

func sameSiteName(s http.SameSite) string {
	switch s {
	case http.SameSiteLaxMode:
		return "Lax"
	case http.SameSiteStrictMode:
		return "Strict"
	case http.SameSiteNoneMode:
		return "None"
	default:
		return ""
	}
}
