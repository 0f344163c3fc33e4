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

// PostgresSessionStore keeps sessions in the sessions table.
type PostgresSessionStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

var _ SessionStore = (*PostgresSessionStore)(nil)

func NewPostgresSessionStore(db *sqlx.DB, logger *zap.Logger) *PostgresSessionStore {
	return &PostgresSessionStore{db: db, logger: logger}
}

func (s *PostgresSessionStore) Create(ctx context.Context, sess *models.Session) error {
	if err := validateNew(sess); err != nil {
		return err
	}
	query := `INSERT INTO sessions (id, user_id, role, expires_at, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := s.db.ExecContext(ctx, query, sess.ID, sess.UserID, sess.Role, sess.ExpiresAt, sess.CreatedAt)
	return err
}

func (s *PostgresSessionStore) Get(ctx context.Context, id string, now time.Time) (*models.Session, error) {
	var sess models.Session
	query := `SELECT id, user_id, role, expires_at, created_at FROM sessions WHERE id = $1 AND expires_at > $2`
	err := s.db.GetContext(ctx, &sess, query, id, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *PostgresSessionStore) Extend(ctx context.Context, id string, until, now time.Time) (*models.Session, error) {
	var sess models.Session
	query := `
		UPDATE sessions SET expires_at = GREATEST(expires_at, $2)
		WHERE id = $1 AND expires_at > $3
		RETURNING id, user_id, role, expires_at, created_at
	`
	err := s.db.GetContext(ctx, &sess, query, id, until, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *PostgresSessionStore) SetRole(ctx context.Context, id, role string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET role = $2 WHERE id = $1`, id, role)
	return err
}

func (s *PostgresSessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

func (s *PostgresSessionStore) Prune(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
