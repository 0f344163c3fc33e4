package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"sigecof/internal/config"
	"sigecof/internal/crypto"
	"sigecof/internal/repository"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// app bundles what every subcommand needs. close releases it in reverse
// order of acquisition.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *sqlx.DB
	closers []func() error
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// newHTTPLogger builds the logrus logger used by the HTTP layer.
func newHTTPLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if cfg.IsProduction() {
		log.SetFormatter(&logrus.JSONFormatter{})
		log.SetLevel(logrus.InfoLevel)
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

func loadApp() (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() error {
		_ = logger.Sync()
		return nil
	})

	if cfg.Database.Driver == repository.DriverSQLite {
		if err := ensureDir(cfg.Database.URL); err != nil {
			a.close()
			return nil, err
		}
	}
	db, err := repository.OpenDB(cfg.Database.Driver, cfg.Database.URL, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.Warn("Failed to release resource", zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *app) hasher() crypto.Hasher {
	return crypto.NewPasswordHasher(crypto.DefaultArgon2Params())
}

func (a *app) users() repository.UserRepository {
	return repository.NewUserRepository(a.db, a.hasher(), a.logger)
}

// sessionStore opens the backend named by session.store.
func (a *app) sessionStore() (repository.SessionStore, error) {
	cfg := a.cfg.Session
	switch cfg.Store {
	case "sql":
		if a.db.DriverName() == repository.DriverSQLite {
			return repository.NewSQLiteSessionStore(a.db, a.logger), nil
		}
		return repository.NewPostgresSessionStore(a.db, a.logger), nil

	case "redis":
		client, err := repository.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.logger.Info("Using Redis session store", zap.String("addr", cfg.Redis.Addr))
		return repository.NewRedisSessionStore(client, cfg.Redis.Prefix, a.logger), nil

	case "bolt":
		if err := ensureDir(cfg.Bolt.Path); err != nil {
			return nil, err
		}
		store, err := repository.NewBoltSessionStoreFromFile(cfg.Bolt.Path, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		a.logger.Info("Using bbolt session store", zap.String("path", cfg.Bolt.Path))
		return store, nil

	case "memory":
		if a.cfg.IsProduction() {
			a.logger.Warn("In-memory session store in production: sessions are lost on restart and not shared between replicas")
		}
		return repository.NewMemorySessionStore(), nil

	default:
		return nil, fmt.Errorf("unsupported session store %q", cfg.Store)
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}
