package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sigecof/internal/crypto"
	"sigecof/internal/models"
	"sigecof/internal/repository"
	"sigecof/internal/token"

	"go.uber.org/zap"
)

// MinPasswordLength applies to passwords set through ChangePassword.
const MinPasswordLength = 8

const (
	MethodSession = "session"
	MethodBearer  = "bearer"
)

// AccountGate decides whether a user who proved their credentials may be
// granted a session. It runs after the password check.
type AccountGate func(user *models.User) error

// RequireActive rejects users whose account has been deactivated.
func RequireActive(user *models.User) error {
	if !user.Active {
		return ErrAccountInactive
	}
	return nil
}

// LoginResult is either a full login (Session and Token set) or a
// must-change-password outcome, which carries only the user.
type LoginResult struct {
	User               *models.User
	Session            *models.Session
	Token              string
	TokenExpiresAt     time.Time
	MustChangePassword bool
}

// Identity is an authenticated caller. Session is nil for bearer-only
// callers; Token is empty when nothing was re-issued.
type Identity struct {
	User           models.PublicUser
	Method         string
	Session        *models.Session
	Token          string
	TokenExpiresAt time.Time
}

type AuthService interface {
	Login(ctx context.Context, username, password string, remember bool) (*LoginResult, error)
	// WhoAmI refreshes the caller: it renews the session and mints a new token.
	WhoAmI(ctx context.Context, sessionID, bearer string) (*Identity, error)
	// Authenticate identifies the caller without renewing anything.
	Authenticate(ctx context.Context, sessionID, bearer string) (*Identity, error)
	Logout(ctx context.Context, sessionID string) error
	ChangePassword(ctx context.Context, userID int64, current, next string) error
}

type authService struct {
	users     repository.UserRepository
	sessions  *SessionManager
	tokens    *token.Issuer
	hasher    crypto.Hasher
	gate      AccountGate
	dummyHash string
	logger    *zap.Logger
}

type AuthOption func(*authService)

// WithAccountGate installs a check that runs on login, password change and
// every identity refresh.
func WithAccountGate(gate AccountGate) AuthOption {
	return func(s *authService) { s.gate = gate }
}

func NewAuthService(
	users repository.UserRepository,
	sessions *SessionManager,
	tokens *token.Issuer,
	hasher crypto.Hasher,
	logger *zap.Logger,
	opts ...AuthOption,
) AuthService {
	s := &authService{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		hasher:   hasher,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Unknown usernames are checked against this so they cost as much as a
	// wrong password.
	if h, err := hasher.Hash("sigecof-unknown-user"); err == nil {
		s.dummyHash = h
	} else {
		logger.Warn("Failed to prepare dummy password hash", zap.Error(err))
	}
	return s
}

func (s *authService) Login(ctx context.Context, username, password string, remember bool) (*LoginResult, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, repository.ErrUserNotFound) {
		s.burnDummyHash(password)
		s.logger.Info("Login failed", zap.String("reason", "unknown user"))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServerError, err)
	}

	ok, err := s.users.VerifySecret(ctx, user.ID, password)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServerError, err)
	}
	if !ok {
		s.logger.Info("Login failed", zap.Int64("user_id", user.ID), zap.String("reason", "bad password"))
		return nil, ErrInvalidCredentials
	}

	if user.MustChangePassword {
		s.logger.Info("Login requires password change", zap.Int64("user_id", user.ID))
		return &LoginResult{User: user, MustChangePassword: true}, nil
	}

	if s.gate != nil {
		if err := s.gate(user); err != nil {
			s.logger.Info("Login rejected by account gate", zap.Int64("user_id", user.ID), zap.Error(err))
			return nil, err
		}
	}

	sess, err := s.sessions.Create(ctx, user, remember)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServerError, err)
	}
	tok, exp, err := s.tokens.Issue(user)
	if err != nil {
		_ = s.sessions.Delete(ctx, sess.ID)
		return nil, fmt.Errorf("%w: %w", ErrServerError, err)
	}

	s.logger.Info("User logged in", zap.Int64("user_id", user.ID), zap.String("role", user.Role), zap.Bool("remember", remember))
	return &LoginResult{User: user, Session: sess, Token: tok, TokenExpiresAt: exp}, nil
}

func (s *authService) WhoAmI(ctx context.Context, sessionID, bearer string) (*Identity, error) {
	if sess := s.sessions.Validate(ctx, sessionID); sess != nil {
		// The user is checked first so a rejected account never gets its
		// session extended.
		user, err := s.loadUsable(ctx, sess.UserID)
		if err != nil {
			return nil, err
		}

		renewed, err := s.sessions.Renew(ctx, sess.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrServerError, err)
		}
		if renewed == nil {
			// Expired between validate and renew.
			return s.whoAmIBearer(ctx, bearer)
		}

		if user.Role != renewed.Role {
			s.sessions.RefreshRole(ctx, renewed.ID, user.Role)
			renewed.Role = user.Role
		}

		tok, exp, err := s.tokens.Issue(user)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrServerError, err)
		}
		return &Identity{
			User:           user.Public(),
			Method:         MethodSession,
			Session:        renewed,
			Token:          tok,
			TokenExpiresAt: exp,
		}, nil
	}
	return s.whoAmIBearer(ctx, bearer)
}

func (s *authService) whoAmIBearer(ctx context.Context, bearer string) (*Identity, error) {
	if bearer == "" {
		return nil, ErrNotAuthenticated
	}
	claims, err := s.tokens.Verify(bearer)
	if err != nil {
		return nil, ErrNotAuthenticated
	}
	user, err := s.loadUsable(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	tok, exp, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServerError, err)
	}
	return &Identity{
		User:           user.Public(),
		Method:         MethodBearer,
		Token:          tok,
		TokenExpiresAt: exp,
	}, nil
}

// loadUsable re-reads the user behind a session or token. Users that have
// vanished, must change their password or no longer pass the account gate
// are not authenticated.
func (s *authService) loadUsable(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServerError, err)
	}
	if user.MustChangePassword {
		return nil, ErrNotAuthenticated
	}
	if s.gate != nil {
		if err := s.gate(user); err != nil {
			s.logger.Info("Identity rejected by account gate", zap.Int64("user_id", user.ID), zap.Error(err))
			return nil, ErrNotAuthenticated
		}
	}
	return user, nil
}

// Authenticate is the per-request check. The session path reads the role
// snapshot stored with the session; the bearer path trusts the token claims.
func (s *authService) Authenticate(ctx context.Context, sessionID, bearer string) (*Identity, error) {
	if sess := s.sessions.Validate(ctx, sessionID); sess != nil {
		user, err := s.loadUsable(ctx, sess.UserID)
		if err != nil {
			return nil, err
		}
		pub := user.Public()
		pub.Role = sess.Role
		return &Identity{User: pub, Method: MethodSession, Session: sess}, nil
	}

	if bearer == "" {
		return nil, ErrNotAuthenticated
	}
	claims, err := s.tokens.Verify(bearer)
	if err != nil || claims.MustChangePassword {
		return nil, ErrNotAuthenticated
	}
	return &Identity{
		User: models.PublicUser{
			UserID:      claims.UserID,
			Username:    claims.Username,
			DisplayName: claims.DisplayName,
			Role:        claims.Role,
		},
		Method: MethodBearer,
	}, nil
}

func (s *authService) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("Failed to delete session on logout", zap.Error(err))
	}
	return nil
}

func (s *authService) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	if userID == 0 || current == "" {
		return ErrInvalidCredentials
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		s.burnDummyHash(current)
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrServerError, err)
	}

	ok, err := s.users.VerifySecret(ctx, user.ID, current)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrServerError, err)
	}
	if !ok {
		return ErrInvalidCredentials
	}
	if s.gate != nil {
		if err := s.gate(user); err != nil {
			return err
		}
	}
	if len([]rune(next)) < MinPasswordLength {
		return ErrWeakPassword
	}

	if err := s.users.SetPassword(ctx, user.ID, next, false); err != nil {
		return fmt.Errorf("%w: %w", ErrServerError, err)
	}
	s.logger.Info("Password changed", zap.Int64("user_id", user.ID))
	return nil
}

func (s *authService) burnDummyHash(password string) {
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(s.dummyHash, password)
	}
}
