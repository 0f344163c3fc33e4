package models

import "time"

// Session binds an opaque identifier to a user. Role is a snapshot taken when
// the session was created or last refreshed.
type Session struct {
	ID        string    `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Role      string    `db:"role" json:"role"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ExpiredAt reports whether the session is dead at the given instant.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
