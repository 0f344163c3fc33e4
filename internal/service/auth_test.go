package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"sigecof/internal/crypto"
	"sigecof/internal/models"
	"sigecof/internal/repository"
	"sigecof/internal/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	auth     AuthService
	users    repository.UserRepository
	store    repository.SessionStore
	sessions *SessionManager
	tokens   *token.Issuer
	clock    *fakeClock
}

func newTestEnv(t *testing.T, store repository.SessionStore) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "auth.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repository.MigrateDB(db, logger))

	hasher := crypto.NewPasswordHasher(crypto.Argon2Params{Time: 1, MemoryKiB: 8 * 1024, Parallelism: 1, SaltLen: 16, KeyLen: 32})
	users := repository.NewUserRepository(db, hasher, logger)

	if store == nil {
		store = repository.NewMemorySessionStore()
	}
	clock := &fakeClock{t: time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)}
	sessions := NewSessionManager(store, DefaultSessionPolicy(), logger, WithSessionClock(clock.Now))
	tokens, err := token.NewIssuer("test-secret", 24*time.Hour, "sigecof", token.WithClock(clock.Now))
	require.NoError(t, err)

	return &testEnv{
		auth:     NewAuthService(users, sessions, tokens, hasher, logger, WithAccountGate(RequireActive)),
		users:    users,
		store:    store,
		sessions: sessions,
		tokens:   tokens,
		clock:    clock,
	}
}

func (e *testEnv) addUser(t *testing.T, username, password, role string, mustChange bool) *models.User {
	t.Helper()
	u := &models.User{Username: username, DisplayName: username, Role: role, MustChangePassword: mustChange, Active: true}
	require.NoError(t, e.users.CreateUser(context.Background(), u, password))
	return u
}

func TestLoginThenWhoAmI(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	alice := env.addUser(t, "alice", "secret123", "admin", false)

	res, err := env.auth.Login(ctx, "alice", "secret123", false)
	require.NoError(t, err)
	require.False(t, res.MustChangePassword)
	require.NotNil(t, res.Session)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, alice.ID, res.User.ID)
	assert.Equal(t, env.clock.Now().Add(time.Hour), res.Session.ExpiresAt)

	env.clock.Advance(30 * time.Minute)

	id, err := env.auth.WhoAmI(ctx, res.Session.ID, "")
	require.NoError(t, err)
	assert.Equal(t, MethodSession, id.Method)
	assert.Equal(t, alice.ID, id.User.UserID)
	assert.Equal(t, "admin", id.User.Role)
	assert.NotEmpty(t, id.Token)

	claims, err := env.tokens.Verify(id.Token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, claims.UserID)
	assert.Equal(t, "admin", claims.Role)
}

func TestSessionLifetimes(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.addUser(t, "bob", "password1", "operator", false)
	start := env.clock.Now()

	short, err := env.auth.Login(ctx, "bob", "password1", false)
	require.NoError(t, err)
	assert.False(t, short.Session.ExpiresAt.After(start.Add(time.Hour)))

	long, err := env.auth.Login(ctx, "bob", "password1", true)
	require.NoError(t, err)
	assert.False(t, long.Session.ExpiresAt.After(start.Add(7*24*time.Hour)))
	assert.True(t, long.Session.ExpiresAt.After(start.Add(time.Hour)))
}

func TestRenewIsMonotonic(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.addUser(t, "carol", "password1", "operator", false)

	res, err := env.auth.Login(ctx, "carol", "password1", true)
	require.NoError(t, err)
	original := res.Session.ExpiresAt

	env.clock.Advance(time.Minute)
	renewed, err := env.sessions.Renew(ctx, res.Session.ID)
	require.NoError(t, err)
	require.NotNil(t, renewed)
	assert.Equal(t, original, renewed.ExpiresAt, "a 7 day session is not cut down to 30 minutes")

	short, err := env.auth.Login(ctx, "carol", "password1", false)
	require.NoError(t, err)
	env.clock.Advance(50 * time.Minute)
	renewed, err = env.sessions.Renew(ctx, short.Session.ID)
	require.NoError(t, err)
	require.NotNil(t, renewed)
	assert.Equal(t, env.clock.Now().Add(30*time.Minute), renewed.ExpiresAt)
	assert.True(t, renewed.ExpiresAt.After(short.Session.ExpiresAt))
}

func TestLogoutInvalidatesSession(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.addUser(t, "dave", "password1", "operator", false)

	res, err := env.auth.Login(ctx, "dave", "password1", false)
	require.NoError(t, err)

	require.NoError(t, env.auth.Logout(ctx, res.Session.ID))
	assert.Nil(t, env.sessions.Validate(ctx, res.Session.ID))

	_, err = env.auth.WhoAmI(ctx, res.Session.ID, "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	assert.NoError(t, env.auth.Logout(ctx, res.Session.ID), "logout is idempotent")
	assert.NoError(t, env.auth.Logout(ctx, ""))
}

func TestExpiredSessionIsNotAuthenticated(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.addUser(t, "erin", "password1", "operator", false)

	res, err := env.auth.Login(ctx, "erin", "password1", false)
	require.NoError(t, err)

	env.clock.Advance(time.Hour)
	_, err = env.auth.WhoAmI(ctx, res.Session.ID, "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	got, err := env.store.Get(ctx, res.Session.ID, env.clock.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, res.Session.ExpiresAt, got.ExpiresAt, "a failed whoami does not revive the session")
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.addUser(t, "frank", "password1", "operator", false)

	for name, creds := range map[string][2]string{
		"wrong password": {"frank", "password2"},
		"unknown user":   {"ghost", "password1"},
		"case sensitive": {"Frank", "password1"},
		"empty password": {"frank", ""},
	} {
		t.Run(name, func(t *testing.T) {
			res, err := env.auth.Login(ctx, creds[0], creds[1], false)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
			assert.Nil(t, res)
		})
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	u := env.addUser(t, "gina", "password1", "operator", false)
	require.NoError(t, env.users.SetActive(ctx, u.ID, false))

	_, err := env.auth.Login(ctx, "gina", "password1", false)
	assert.ErrorIs(t, err, ErrAccountInactive)

	_, err = env.auth.Login(ctx, "gina", "wrong-password", false)
	assert.ErrorIs(t, err, ErrInvalidCredentials, "the gate only runs after the password check")
}

func TestMustChangePasswordFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	u := env.addUser(t, "hank", "temporary", "operator", true)

	res, err := env.auth.Login(ctx, "hank", "temporary", false)
	require.NoError(t, err)
	assert.True(t, res.MustChangePassword)
	assert.Nil(t, res.Session)
	assert.Empty(t, res.Token)
	assert.Equal(t, u.ID, res.User.ID)

	assert.ErrorIs(t, env.auth.ChangePassword(ctx, u.ID, "wrong", "brand-new-pass"), ErrInvalidCredentials)
	assert.ErrorIs(t, env.auth.ChangePassword(ctx, u.ID, "temporary", "short"), ErrWeakPassword)
	assert.ErrorIs(t, env.auth.ChangePassword(ctx, 9999, "temporary", "brand-new-pass"), ErrInvalidCredentials)

	require.NoError(t, env.auth.ChangePassword(ctx, u.ID, "temporary", "brand-new-pass"))

	res, err = env.auth.Login(ctx, "hank", "brand-new-pass", false)
	require.NoError(t, err)
	assert.False(t, res.MustChangePassword)
	assert.NotNil(t, res.Session)
	assert.NotEmpty(t, res.Token)

	_, err = env.auth.Login(ctx, "hank", "temporary", false)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestWhoAmIBearerFallback(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	u := env.addUser(t, "ivan", "password1", "auditor", false)

	res, err := env.auth.Login(ctx, "ivan", "password1", false)
	require.NoError(t, err)

	id, err := env.auth.WhoAmI(ctx, "", res.Token)
	require.NoError(t, err)
	assert.Equal(t, MethodBearer, id.Method)
	assert.Nil(t, id.Session)
	assert.Equal(t, u.ID, id.User.UserID)
	assert.NotEmpty(t, id.Token)

	id, err = env.auth.WhoAmI(ctx, "stale-session-id", res.Token)
	require.NoError(t, err)
	assert.Equal(t, MethodBearer, id.Method)

	env.clock.Advance(25 * time.Hour)
	_, err = env.auth.WhoAmI(ctx, "", res.Token)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = env.auth.WhoAmI(ctx, "", "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestWhoAmIRefreshesRoleSnapshot(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	u := env.addUser(t, "judy", "password1", "admin", false)

	res, err := env.auth.Login(ctx, "judy", "password1", false)
	require.NoError(t, err)

	require.NoError(t, env.users.SetRole(ctx, u.ID, "operator"))

	before, err := env.auth.Authenticate(ctx, res.Session.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "admin", before.User.Role, "per-request checks use the session snapshot")

	id, err := env.auth.WhoAmI(ctx, res.Session.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "operator", id.User.Role)

	after, err := env.auth.Authenticate(ctx, res.Session.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "operator", after.User.Role)
}

func TestWhoAmIRejectsUserFlaggedForPasswordChange(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	u := env.addUser(t, "kim", "password1", "admin", false)

	res, err := env.auth.Login(ctx, "kim", "password1", false)
	require.NoError(t, err)

	require.NoError(t, env.users.SetPassword(ctx, u.ID, "temporary-2", true))

	_, err = env.auth.WhoAmI(ctx, res.Session.ID, "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = env.auth.WhoAmI(ctx, "", res.Token)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestAuthenticateBearer(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	u := env.addUser(t, "leo", "password1", "auditor", false)

	res, err := env.auth.Login(ctx, "leo", "password1", false)
	require.NoError(t, err)

	id, err := env.auth.Authenticate(ctx, "", res.Token)
	require.NoError(t, err)
	assert.Equal(t, MethodBearer, id.Method)
	assert.Equal(t, u.ID, id.User.UserID)
	assert.Equal(t, "auditor", id.User.Role)
	assert.Empty(t, id.Token)

	_, err = env.auth.Authenticate(ctx, "", "garbage")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

// failingStore fails every call, standing in for an unreachable backend.
type failingStore struct{ repository.SessionStore }

var errStoreDown = errors.New("store down")

func (failingStore) Create(context.Context, *models.Session) error { return errStoreDown }
func (failingStore) Get(context.Context, string, time.Time) (*models.Session, error) {
	return nil, errStoreDown
}
func (failingStore) Extend(context.Context, string, time.Time, time.Time) (*models.Session, error) {
	return nil, errStoreDown
}
func (failingStore) Delete(context.Context, string) error { return errStoreDown }

func TestStoreFailures(t *testing.T) {
	env := newTestEnv(t, failingStore{})
	ctx := context.Background()
	env.addUser(t, "mia", "password1", "admin", false)

	_, err := env.auth.Login(ctx, "mia", "password1", false)
	assert.ErrorIs(t, err, ErrServerError)
	assert.ErrorIs(t, err, errStoreDown)

	assert.Nil(t, env.sessions.Validate(ctx, "any"), "lookup failures read as no session")

	_, err = env.auth.WhoAmI(ctx, "any", "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	assert.NoError(t, env.auth.Logout(ctx, "any"))
}

// extendFailingStore serves reads but cannot renew.
type extendFailingStore struct{ repository.SessionStore }

func (extendFailingStore) Extend(context.Context, string, time.Time, time.Time) (*models.Session, error) {
	return nil, errStoreDown
}

func TestWhoAmIRenewFailure(t *testing.T) {
	env := newTestEnv(t, extendFailingStore{repository.NewMemorySessionStore()})
	ctx := context.Background()
	env.addUser(t, "nia", "password1", "operator", false)

	res, err := env.auth.Login(ctx, "nia", "password1", false)
	require.NoError(t, err)

	_, err = env.auth.WhoAmI(ctx, res.Session.ID, "")
	assert.ErrorIs(t, err, ErrServerError)
	assert.ErrorIs(t, err, errStoreDown)
}

func TestDeactivatedUserLosesIdentity(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	u := env.addUser(t, "ivan", "password1", "admin", false)

	res, err := env.auth.Login(ctx, "ivan", "password1", false)
	require.NoError(t, err)
	expiresAt := res.Session.ExpiresAt

	require.NoError(t, env.users.SetActive(ctx, u.ID, false))
	env.clock.Advance(25 * time.Minute)

	_, err = env.auth.WhoAmI(ctx, res.Session.ID, "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = env.auth.WhoAmI(ctx, "", res.Token)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = env.auth.Authenticate(ctx, res.Session.ID, "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	sess, err := env.store.Get(ctx, res.Session.ID, env.clock.Now())
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.True(t, sess.ExpiresAt.Equal(expiresAt), "rejected refresh must not extend the session")

	env.clock.Advance(time.Hour)
	sess, err = env.store.Get(ctx, res.Session.ID, env.clock.Now())
	require.NoError(t, err)
	assert.Nil(t, sess)
}
