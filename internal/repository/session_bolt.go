package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sigecof/internal/models"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var sessionsBucket = []byte("sessions")

// BoltSessionStore keeps sessions in an embedded bbolt file. It suits
// single-node deployments that have no Redis and want sessions to survive
// restarts independently of the SQL database.
type BoltSessionStore struct {
	db     *bolt.DB
	logger *zap.Logger
}

var _ SessionStore = (*BoltSessionStore)(nil)

// NewBoltSessionStoreFromFile opens (or creates) the bbolt file at path.
func NewBoltSessionStoreFromFile(path string, logger *zap.Logger) (*BoltSessionStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening session file: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sessions bucket: %w", err)
	}
	return &BoltSessionStore{db: db, logger: logger}, nil
}

func (s *BoltSessionStore) Close() error {
	return s.db.Close()
}

func (s *BoltSessionStore) Create(_ context.Context, sess *models.Session) error {
	if err := validateNew(sess); err != nil {
		return err
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Put([]byte(sess.ID), data)
	})
}

func (s *BoltSessionStore) Get(_ context.Context, id string, now time.Time) (*models.Session, error) {
	var sess *models.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		sess, err = loadBoltSession(tx, id)
		return err
	})
	if err != nil || sess == nil || sess.ExpiredAt(now) {
		return nil, err
	}
	return sess, nil
}

func (s *BoltSessionStore) Extend(_ context.Context, id string, until, now time.Time) (*models.Session, error) {
	var out *models.Session
	err := s.db.Update(func(tx *bolt.Tx) error {
		sess, err := loadBoltSession(tx, id)
		if err != nil || sess == nil || sess.ExpiredAt(now) {
			return err
		}
		if until.After(sess.ExpiresAt) {
			sess.ExpiresAt = until
			if err := putBoltSession(tx, sess); err != nil {
				return err
			}
		}
		out = sess
		return nil
	})
	return out, err
}

func (s *BoltSessionStore) SetRole(_ context.Context, id, role string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		sess, err := loadBoltSession(tx, id)
		if err != nil || sess == nil {
			return err
		}
		sess.Role = role
		return putBoltSession(tx, sess)
	})
}

func (s *BoltSessionStore) Delete(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(id))
	})
}

func (s *BoltSessionStore) Prune(_ context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		var dead [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var sess models.Session
			if err := json.Unmarshal(v, &sess); err != nil || sess.ExpiredAt(now) {
				dead = append(dead, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range dead {
			if err := b.Delete(k); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

func loadBoltSession(tx *bolt.Tx, id string) (*models.Session, error) {
	v := tx.Bucket(sessionsBucket).Get([]byte(id))
	if v == nil {
		return nil, nil
	}
	var sess models.Session
	if err := json.Unmarshal(v, &sess); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}
	return &sess, nil
}

func putBoltSession(tx *bolt.Tx, sess *models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}
	return tx.Bucket(sessionsBucket).Put([]byte(sess.ID), data)
}
