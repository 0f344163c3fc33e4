package service

import (
	"context"
	"fmt"
	"time"

	"sigecof/internal/crypto"
	"sigecof/internal/models"
	"sigecof/internal/repository"

	"go.uber.org/zap"
)

// SessionPolicy holds the lifetimes applied by SessionManager.
type SessionPolicy struct {
	TTL         time.Duration
	RememberTTL time.Duration
	RenewWindow time.Duration
}

func DefaultSessionPolicy() SessionPolicy {
	return SessionPolicy{
		TTL:         time.Hour,
		RememberTTL: 7 * 24 * time.Hour,
		RenewWindow: 30 * time.Minute,
	}
}

// SessionManager applies the TTL policy on top of a SessionStore.
type SessionManager struct {
	store  repository.SessionStore
	policy SessionPolicy
	now    func() time.Time
	logger *zap.Logger
}

type SessionOption func(*SessionManager)

func WithSessionClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) { m.now = now }
}

func NewSessionManager(store repository.SessionStore, policy SessionPolicy, logger *zap.Logger, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		store:  store,
		policy: policy,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *SessionManager) Now() time.Time { return m.now() }

// Create opens a new session for user. remember picks the long TTL.
func (m *SessionManager) Create(ctx context.Context, user *models.User, remember bool) (*models.Session, error) {
	id, err := crypto.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	ttl := m.policy.TTL
	if remember {
		ttl = m.policy.RememberTTL
	}
	now := m.now()
	sess := &models.Session{
		ID:        id,
		UserID:    user.ID,
		Role:      user.Role,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	m.logger.Debug("Session created",
		zap.Int64("user_id", user.ID),
		zap.String("session", shortID(id)),
		zap.Bool("remember", remember),
		zap.Time("expires_at", sess.ExpiresAt),
	)
	return sess, nil
}

// Validate returns the live session for id, or nil. A store failure is
// logged and treated as "no session".
func (m *SessionManager) Validate(ctx context.Context, id string) *models.Session {
	if id == "" {
		return nil
	}
	sess, err := m.store.Get(ctx, id, m.now())
	if err != nil {
		m.logger.Error("Session lookup failed", zap.String("session", shortID(id)), zap.Error(err))
		return nil
	}
	return sess
}

// Renew pushes expiry out to at least now+RenewWindow. It never shortens a
// session and never revives a dead one; nil means the session is gone.
func (m *SessionManager) Renew(ctx context.Context, id string) (*models.Session, error) {
	if id == "" {
		return nil, nil
	}
	now := m.now()
	sess, err := m.store.Extend(ctx, id, now.Add(m.policy.RenewWindow), now)
	if err != nil {
		return nil, fmt.Errorf("failed to renew session: %w", err)
	}
	return sess, nil
}

// RefreshRole updates the role snapshot. Failures only cost staleness, so
// they are logged, not returned.
func (m *SessionManager) RefreshRole(ctx context.Context, id, role string) {
	if err := m.store.SetRole(ctx, id, role); err != nil {
		m.logger.Warn("Failed to refresh session role", zap.String("session", shortID(id)), zap.Error(err))
	}
}

func (m *SessionManager) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return m.store.Delete(ctx, id)
}

// Prune removes dead sessions from the store.
func (m *SessionManager) Prune(ctx context.Context) (int64, error) {
	return m.store.Prune(ctx, m.now())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
