package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sigecof/internal/config"
	"sigecof/internal/cookie"
	"sigecof/internal/repository"
	"sigecof/internal/server"
	"sigecof/internal/service"
	"sigecof/internal/token"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var skipMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()
		cfg, logger := a.cfg, a.logger

		if !skipMigrate {
			if err := repository.MigrateDB(a.db, logger); err != nil {
				return err
			}
		}

		store, err := a.sessionStore()
		if err != nil {
			return err
		}
		sessions := service.NewSessionManager(store, service.SessionPolicy{
			TTL:         cfg.Session.TTL.Std(),
			RememberTTL: cfg.Session.RememberTTL.Std(),
			RenewWindow: cfg.Session.RenewWindow.Std(),
		}, logger)

		tokens, err := token.NewIssuer(cfg.JWT.Secret, cfg.JWT.ExpiresIn.Std(), cfg.JWT.Issuer)
		if err != nil {
			return err
		}
		if cfg.JWT.Secret == config.DevJWTSecret {
			logger.Warn("Using the development JWT secret; set JWT_SECRET before deploying")
		}

		hasher := a.hasher()
		auth := service.NewAuthService(a.users(), sessions, tokens, hasher, logger,
			service.WithAccountGate(service.RequireActive))

		policy := cookie.Resolve(cfg.IsProduction(), cookie.Overrides{
			Domain:   cfg.Cookie.Domain,
			SameSite: cfg.Cookie.SameSite,
			Secure:   cfg.Cookie.Secure,
		})
		jar := cookie.NewJar(policy, cfg.Cookie.SessionNames, cfg.Cookie.CSRFName)

		if cfg.IsProduction() {
			gin.SetMode(gin.ReleaseMode)
		}
		srv := server.NewServer(server.Deps{
			Config:   cfg,
			Auth:     auth,
			Sessions: sessions,
			Jar:      jar,
			Logger:   logger,
			Log:      newHTTPLogger(cfg),
		})

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		logger.Info("SIGECOF auth service is running",
			zap.String("port", cfg.Server.Port),
			zap.String("environment", cfg.Environment),
			zap.String("session_store", cfg.Session.Store),
			zap.Bool("cookie_secure", policy.Secure),
		)
		if err := srv.Run(ctx, fmt.Sprintf(":%s", cfg.Server.Port)); err != nil {
			return err
		}
		logger.Info("Server exited")
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply the schema on startup")
	rootCmd.AddCommand(serveCmd)
}
