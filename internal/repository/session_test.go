package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"sigecof/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// sessionStoreTests runs the common suite against any SessionStore
// implementation. userID must reference an existing user where the backend
// enforces foreign keys.
func sessionStoreTests(t *testing.T, store SessionStore, userID int64, prunes bool) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	newSession := func(id string, ttl time.Duration) *models.Session {
		return &models.Session{
			ID:        id,
			UserID:    userID,
			Role:      "admin",
			ExpiresAt: now.Add(ttl),
			CreatedAt: now,
		}
	}

	t.Run("CreateAndGet", func(t *testing.T) {
		require.NoError(t, store.Create(ctx, newSession("sid-get", time.Hour)))

		got, err := store.Get(ctx, "sid-get", now)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "sid-get", got.ID)
		assert.Equal(t, userID, got.UserID)
		assert.Equal(t, "admin", got.Role)
		assert.WithinDuration(t, now.Add(time.Hour), got.ExpiresAt, time.Millisecond)
	})

	t.Run("CreateInvalid", func(t *testing.T) {
		err := store.Create(ctx, &models.Session{UserID: userID, ExpiresAt: now.Add(time.Hour)})
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("GetMissing", func(t *testing.T) {
		got, err := store.Get(ctx, "no-such-session", now)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("GetExpired", func(t *testing.T) {
		require.NoError(t, store.Create(ctx, newSession("sid-expiring", time.Minute)))

		got, err := store.Get(ctx, "sid-expiring", now.Add(time.Minute))
		require.NoError(t, err)
		assert.Nil(t, got, "a session is dead at its expiry instant")
	})

	t.Run("ExtendNeverShortens", func(t *testing.T) {
		require.NoError(t, store.Create(ctx, newSession("sid-extend", time.Hour)))

		got, err := store.Extend(ctx, "sid-extend", now.Add(2*time.Hour), now)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.WithinDuration(t, now.Add(2*time.Hour), got.ExpiresAt, time.Millisecond)

		got, err = store.Extend(ctx, "sid-extend", now.Add(30*time.Minute), now)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.WithinDuration(t, now.Add(2*time.Hour), got.ExpiresAt, time.Millisecond)
		assert.Equal(t, "admin", got.Role)
		assert.Equal(t, userID, got.UserID)

		stored, err := store.Get(ctx, "sid-extend", now)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.WithinDuration(t, now.Add(2*time.Hour), stored.ExpiresAt, time.Millisecond)
	})

	t.Run("ExtendMissing", func(t *testing.T) {
		got, err := store.Extend(ctx, "no-such-session", now.Add(time.Hour), now)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ExtendDoesNotResurrect", func(t *testing.T) {
		require.NoError(t, store.Create(ctx, newSession("sid-dead", time.Minute)))
		later := now.Add(2 * time.Minute)

		got, err := store.Extend(ctx, "sid-dead", later.Add(time.Hour), later)
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = store.Get(ctx, "sid-dead", later)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ConcurrentExtendKeepsMaximum", func(t *testing.T) {
		require.NoError(t, store.Create(ctx, newSession("sid-race", time.Minute)))

		var wg sync.WaitGroup
		for i := 1; i <= 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := store.Extend(ctx, "sid-race", now.Add(time.Duration(i)*time.Minute), now)
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		got, err := store.Get(ctx, "sid-race", now)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.WithinDuration(t, now.Add(20*time.Minute), got.ExpiresAt, time.Millisecond)
	})

	t.Run("SetRole", func(t *testing.T) {
		require.NoError(t, store.Create(ctx, newSession("sid-role", time.Hour)))
		require.NoError(t, store.SetRole(ctx, "sid-role", "auditor"))

		got, err := store.Get(ctx, "sid-role", now)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "auditor", got.Role)

		assert.NoError(t, store.SetRole(ctx, "no-such-session", "auditor"))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Create(ctx, newSession("sid-del", time.Hour)))
		require.NoError(t, store.Delete(ctx, "sid-del"))

		got, err := store.Get(ctx, "sid-del", now)
		require.NoError(t, err)
		assert.Nil(t, got)

		assert.NoError(t, store.Delete(ctx, "sid-del"), "delete is idempotent")
	})

	t.Run("Prune", func(t *testing.T) {
		require.NoError(t, store.Create(ctx, newSession("sid-prune-live", 48*time.Hour)))
		require.NoError(t, store.Create(ctx, newSession("sid-prune-dead", time.Minute)))

		n, err := store.Prune(ctx, now.Add(24*time.Hour))
		require.NoError(t, err)
		if prunes {
			assert.GreaterOrEqual(t, n, int64(1))
		}

		got, err := store.Get(ctx, "sid-prune-live", now)
		require.NoError(t, err)
		assert.NotNil(t, got)
	})
}

func TestMemorySessionStore(t *testing.T) {
	sessionStoreTests(t, NewMemorySessionStore(), 1, true)
}

func TestSQLiteSessionStore(t *testing.T) {
	db := newSQLiteTestDB(t)
	sessionStoreTests(t, NewSQLiteSessionStore(db, zap.NewNop()), 1, true)
}

func TestBoltSessionStore(t *testing.T) {
	store, err := NewBoltSessionStoreFromFile(filepath.Join(t.TempDir(), "sessions.db"), zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	sessionStoreTests(t, store, 1, true)
}

func TestRedisSessionStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisSessionStore(client, "test:session:", zap.NewNop())
	sessionStoreTests(t, store, 1, false)

	t.Run("KeyTTLFollowsExpiry", func(t *testing.T) {
		ctx := context.Background()
		now := time.Now()
		require.NoError(t, store.Create(ctx, &models.Session{
			ID: "sid-ttl", UserID: 1, Role: "admin", ExpiresAt: now.Add(time.Hour), CreatedAt: now,
		}))
		assert.True(t, mr.Exists("test:session:sid-ttl"))
		assert.InDelta(t, time.Hour.Seconds(), mr.TTL("test:session:sid-ttl").Seconds(), 5)

		_, err := store.Extend(ctx, "sid-ttl", now.Add(3*time.Hour), now)
		require.NoError(t, err)
		assert.InDelta(t, (3 * time.Hour).Seconds(), mr.TTL("test:session:sid-ttl").Seconds(), 5)
	})
}

func TestPostgresSessionStore(t *testing.T) {
	dsn := os.Getenv("SIGECOF_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SIGECOF_TEST_POSTGRES_DSN not set; skipping PostgreSQL tests")
	}

	db, err := NewPostgresDB(dsn, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, MigrateDB(db, zap.NewNop()))

	db.MustExec(`DELETE FROM sessions`)
	db.MustExec(`DELETE FROM users WHERE username = 'session-suite'`)

	users := NewUserRepository(db, fastHasher(), zap.NewNop())
	owner := &models.User{Username: "session-suite", Role: "admin", Active: true}
	require.NoError(t, users.CreateUser(context.Background(), owner, "session-suite-pass"))
	defer db.MustExec(`DELETE FROM users WHERE id = $1`, owner.ID)

	sessionStoreTests(t, NewPostgresSessionStore(db, zap.NewNop()), owner.ID, true)
}

func TestRedisIntParsing(t *testing.T) {
	n, err := redisInt("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	n, err = redisInt(int64(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	_, err = redisInt(nil)
	assert.Error(t, err)

	_, err = redisInt(fmt.Sprint(3.5))
	assert.Error(t, err)
}
