package repository

import (
	"context"
	"sync"
	"time"

	"sigecof/internal/models"
)

// MemorySessionStore is a thread-safe in-memory SessionStore.
// Sessions are lost on server restart and are not shared between replicas.
type MemorySessionStore struct {
	mu   sync.RWMutex
	data map[string]models.Session
}

var _ SessionStore = (*MemorySessionStore)(nil)

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{data: make(map[string]models.Session)}
}

func (s *MemorySessionStore) Create(_ context.Context, sess *models.Session) error {
	if err := validateNew(sess); err != nil {
		return err
	}
	s.mu.Lock()
	s.data[sess.ID] = *sess
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, id string, now time.Time) (*models.Session, error) {
	s.mu.RLock()
	sess, ok := s.data[id]
	s.mu.RUnlock()
	if !ok || sess.ExpiredAt(now) {
		return nil, nil
	}
	return &sess, nil
}

func (s *MemorySessionStore) Extend(_ context.Context, id string, until, now time.Time) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.data[id]
	if !ok || sess.ExpiredAt(now) {
		return nil, nil
	}
	if until.After(sess.ExpiresAt) {
		sess.ExpiresAt = until
		s.data[id] = sess
	}
	return &sess, nil
}

func (s *MemorySessionStore) SetRole(_ context.Context, id, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.data[id]; ok {
		sess.Role = role
		s.data[id] = sess
	}
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.data, id)
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Prune(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sess := range s.data {
		if sess.ExpiredAt(now) {
			delete(s.data, id)
			n++
		}
	}
	return n, nil
}
