package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sigecof/internal/crypto"
	"sigecof/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
)

// UserRepository is the credential store. Secret comparison lives behind
// VerifySecret so the hashing scheme can change without touching callers.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User, password string) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	VerifySecret(ctx context.Context, userID int64, candidate string) (bool, error)
	SetPassword(ctx context.Context, userID int64, password string, mustChange bool) error
	SetRole(ctx context.Context, userID int64, role string) error
	SetActive(ctx context.Context, userID int64, active bool) error
}

type userRepository struct {
	db     *sqlx.DB
	hasher crypto.Hasher
	logger *zap.Logger
}

func NewUserRepository(db *sqlx.DB, hasher crypto.Hasher, logger *zap.Logger) UserRepository {
	return &userRepository{db: db, hasher: hasher, logger: logger}
}

const userColumns = `id, username, password_hash, display_name, role, must_change_password, active`

func (r *userRepository) CreateUser(ctx context.Context, user *models.User, password string) error {
	hash, err := r.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if user.Role == "" {
		user.Role = models.RolePending
	}

	if _, err := r.GetUserByUsername(ctx, user.Username); err == nil {
		return ErrUserAlreadyExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	query := r.db.Rebind(`INSERT INTO users (username, password_hash, display_name, role, must_change_password, active)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`)
	err = r.db.QueryRowxContext(ctx, query,
		user.Username, hash, user.DisplayName, user.Role, user.MustChangePassword, user.Active,
	).Scan(&user.ID)
	if err != nil {
		r.logger.Error("Failed to create user", zap.String("username", user.Username), zap.Error(err))
		return err
	}
	user.PasswordHash = hash
	return nil
}

func (r *userRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE username = ?`)
	err := r.db.GetContext(ctx, &user, query, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get user by username", zap.Error(err))
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	err := r.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get user by id", zap.Int64("user_id", id), zap.Error(err))
		return nil, err
	}
	return &user, nil
}

// VerifySecret reports whether candidate matches the stored hash. An unknown
// user is (false, nil); so is a hash in a format nobody can verify, which is
// logged since it points at bad data rather than a bad guess.
func (r *userRepository) VerifySecret(ctx context.Context, userID int64, candidate string) (bool, error) {
	var hash string
	query := r.db.Rebind(`SELECT password_hash FROM users WHERE id = ?`)
	err := r.db.GetContext(ctx, &hash, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	ok, err := r.hasher.Verify(hash, candidate)
	if err != nil {
		r.logger.Warn("Stored password hash is unusable", zap.Int64("user_id", userID), zap.Error(err))
		return false, nil
	}
	return ok, nil
}

func (r *userRepository) SetPassword(ctx context.Context, userID int64, password string, mustChange bool) error {
	hash, err := r.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	query := r.db.Rebind(`UPDATE users SET password_hash = ?, must_change_password = ? WHERE id = ?`)
	return r.execOne(ctx, query, hash, mustChange, userID)
}

func (r *userRepository) SetRole(ctx context.Context, userID int64, role string) error {
	query := r.db.Rebind(`UPDATE users SET role = ? WHERE id = ?`)
	return r.execOne(ctx, query, role, userID)
}

func (r *userRepository) SetActive(ctx context.Context, userID int64, active bool) error {
	query := r.db.Rebind(`UPDATE users SET active = ? WHERE id = ?`)
	return r.execOne(ctx, query, active, userID)
}

func (r *userRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}
