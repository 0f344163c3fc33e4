package repository

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

//go:embed migrations/sqlite_schema.sql
var sqliteSchema string

// NewPostgresDB establishes a new connection to the PostgreSQL database.
func NewPostgresDB(dataSourceName string, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect(DriverPostgres, dataSourceName)
	if err != nil {
		return nil, err
	}

	logger.Info("Successfully connected to the database!", zap.String("driver", DriverPostgres))
	return db, nil
}

// NewSQLiteDB opens (creating if needed) a SQLite database file. SQLite
// serialises writers, so a busy timeout keeps concurrent requests from
// failing with SQLITE_BUSY.
func NewSQLiteDB(path string, logger *zap.Logger) (*sqlx.DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sqlx.Connect(DriverSQLite, dsn)
	if err != nil {
		return nil, err
	}

	logger.Info("Successfully connected to the database!", zap.String("driver", DriverSQLite), zap.String("path", path))
	return db, nil
}

// OpenDB dispatches on the configured driver name.
func OpenDB(driver, url string, logger *zap.Logger) (*sqlx.DB, error) {
	switch driver {
	case DriverPostgres:
		return NewPostgresDB(url, logger)
	case DriverSQLite:
		return NewSQLiteDB(url, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// MigrateDB brings the schema up to date. PostgreSQL goes through
// golang-migrate with the embedded migration files; SQLite applies the
// idempotent schema script directly.
func MigrateDB(db *sqlx.DB, logger *zap.Logger) error {
	switch db.DriverName() {
	case DriverPostgres:
		return migratePostgres(db, logger)
	case DriverSQLite:
		if _, err := db.Exec(sqliteSchema); err != nil {
			return fmt.Errorf("failed to apply sqlite schema: %w", err)
		}
		logger.Info("Database migration was run successfully", zap.String("driver", DriverSQLite))
		return nil
	default:
		return fmt.Errorf("unsupported database driver %q", db.DriverName())
	}
}

func migratePostgres(db *sqlx.DB, logger *zap.Logger) error {
	source, err := iofs.New(postgresMigrations, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("couldn't open embedded migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("couldn't get database instance for running migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sigecof", driver)
	if err != nil {
		return fmt.Errorf("couldn't create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("couldn't run database migration: %w", err)
	}

	logger.Info("Database migration was run successfully", zap.String("driver", DriverPostgres))
	return nil
}
