package repository

import (
	"context"
	"errors"
	"time"

	"sigecof/internal/models"
)

var ErrInvalidSession = errors.New("session: missing id or user_id")

// SessionStore persists sessions. Every method is a single atomic operation
// against the backend; "now" is passed in so all backends agree with the
// caller's clock. Lookups of missing or expired sessions return (nil, nil).
type SessionStore interface {
	Create(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, id string, now time.Time) (*models.Session, error)
	// Extend sets expires_at = max(expires_at, until) on a live session and
	// returns the updated row.
	Extend(ctx context.Context, id string, until, now time.Time) (*models.Session, error)
	SetRole(ctx context.Context, id, role string) error
	Delete(ctx context.Context, id string) error
	// Prune deletes sessions that are already dead and reports how many.
	Prune(ctx context.Context, now time.Time) (int64, error)
}

func validateNew(s *models.Session) error {
	if s == nil || s.ID == "" || s.UserID == 0 {
		return ErrInvalidSession
	}
	return nil
}
