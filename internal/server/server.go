package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"sigecof/internal/config"
	"sigecof/internal/cookie"
	"sigecof/internal/handler"
	"sigecof/internal/middleware"
	"sigecof/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Config   *config.Config
	Auth     service.AuthService
	Sessions *service.SessionManager
	Jar      *cookie.Jar
	Logger   *zap.Logger
	Log      *logrus.Logger
	// Now overrides the clock used for cookie lifetimes. Defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	router *gin.Engine
	deps   Deps
	log    *logrus.Logger
}

func NewServer(deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(deps.Log))

	s := &Server{
		router: router,
		deps:   deps,
		log:    deps.Log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	authHandler := handler.NewAuthHandler(s.deps.Auth, s.deps.Jar, s.log, handler.WithClock(s.deps.Now))
	settingsHandler := handler.NewSettingsHandler(s.deps.Config, s.deps.Jar.Policy(), s.deps.Logger)
	sessionsHandler := handler.NewSessionsHandler(s.deps.Sessions, s.log)

	// Ping route for health check
	s.router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	// Authentication routes; these manage the cookies themselves and are
	// not CSRF-gated.
	authGroup := s.router.Group("/api/auth")
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/whoami", authHandler.WhoAmI)
	authGroup.POST("/logout", authHandler.Logout)
	authGroup.POST("/change-password", authHandler.ChangePassword)

	// Authenticated routes
	authRequired := s.router.Group("/api")
	authRequired.Use(middleware.RequireAuth(s.deps.Auth, s.deps.Jar, s.log), middleware.CSRF(s.deps.Jar))
	{
		authRequired.GET("/me", authHandler.Me)

		admin := authRequired.Group("/admin")
		admin.Use(middleware.RequireRole("admin"))
		admin.GET("/settings", settingsHandler.GetSettings)
		admin.POST("/sessions/prune", sessionsHandler.Prune)
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("Server starting on %s...", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return <-errCh
}
