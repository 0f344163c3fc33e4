package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sigecof/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// SQLiteSessionStore keeps sessions in SQLite with timestamps stored as unix
// milliseconds, so expiry comparisons are plain integer comparisons.
type SQLiteSessionStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

var _ SessionStore = (*SQLiteSessionStore)(nil)

func NewSQLiteSessionStore(db *sqlx.DB, logger *zap.Logger) *SQLiteSessionStore {
	return &SQLiteSessionStore{db: db, logger: logger}
}

type sqliteSessionRow struct {
	ID        string `db:"id"`
	UserID    int64  `db:"user_id"`
	Role      string `db:"role"`
	ExpiresAt int64  `db:"expires_at"`
	CreatedAt int64  `db:"created_at"`
}

func (r sqliteSessionRow) session() *models.Session {
	return &models.Session{
		ID:        r.ID,
		UserID:    r.UserID,
		Role:      r.Role,
		ExpiresAt: time.UnixMilli(r.ExpiresAt),
		CreatedAt: time.UnixMilli(r.CreatedAt),
	}
}

func (s *SQLiteSessionStore) Create(ctx context.Context, sess *models.Session) error {
	if err := validateNew(sess); err != nil {
		return err
	}
	query := `INSERT INTO sessions (id, user_id, role, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		sess.ID, sess.UserID, sess.Role, sess.ExpiresAt.UnixMilli(), sess.CreatedAt.UnixMilli())
	return err
}

func (s *SQLiteSessionStore) Get(ctx context.Context, id string, now time.Time) (*models.Session, error) {
	var row sqliteSessionRow
	query := `SELECT id, user_id, role, expires_at, created_at FROM sessions WHERE id = ? AND expires_at > ?`
	err := s.db.GetContext(ctx, &row, query, id, now.UnixMilli())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.session(), nil
}

func (s *SQLiteSessionStore) Extend(ctx context.Context, id string, until, now time.Time) (*models.Session, error) {
	var row sqliteSessionRow
	query := `
		UPDATE sessions SET expires_at = MAX(expires_at, ?)
		WHERE id = ? AND expires_at > ?
		RETURNING id, user_id, role, expires_at, created_at
	`
	err := s.db.GetContext(ctx, &row, query, until.UnixMilli(), id, now.UnixMilli())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.session(), nil
}

func (s *SQLiteSessionStore) SetRole(ctx context.Context, id, role string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET role = ? WHERE id = ?`, role, id)
	return err
}

func (s *SQLiteSessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func (s *SQLiteSessionStore) Prune(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
