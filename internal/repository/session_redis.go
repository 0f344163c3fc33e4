package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"sigecof/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// extendScript compares and extends in one step so concurrent renewals can
// never move expires_at backwards.
// KEYS[1] = session key, ARGV[1] = proposed expiry (ms), ARGV[2] = now (ms)
var extendScript = redis.NewScript(`
local exp = redis.call('HGET', KEYS[1], 'expires_at')
if not exp then return nil end
exp = tonumber(exp)
if exp <= tonumber(ARGV[2]) then return nil end
local proposed = tonumber(ARGV[1])
if proposed > exp then
  exp = proposed
  redis.call('HSET', KEYS[1], 'expires_at', ARGV[1])
  redis.call('PEXPIREAT', KEYS[1], ARGV[1])
end
local fields = redis.call('HMGET', KEYS[1], 'user_id', 'role', 'created_at')
return {fields[1], fields[2], fields[3], exp}
`)

// KEYS[1] = session key, ARGV[1] = role
var setRoleScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  redis.call('HSET', KEYS[1], 'role', ARGV[1])
  return 1
end
return 0
`)

// RedisSessionStore keeps each session in a hash whose key TTL tracks the
// session expiry, so Redis reaps dead sessions on its own.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

var _ SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore creates a Redis-backed session store.
func NewRedisSessionStore(client *redis.Client, prefix string, logger *zap.Logger) *RedisSessionStore {
	if prefix == "" {
		prefix = "session:"
	}
	return &RedisSessionStore{client: client, prefix: prefix, logger: logger}
}

func (r *RedisSessionStore) key(id string) string {
	return r.prefix + id
}

func (r *RedisSessionStore) Create(ctx context.Context, s *models.Session) error {
	if err := validateNew(s); err != nil {
		return err
	}
	key := r.key(s.ID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"user_id", s.UserID,
			"role", s.Role,
			"expires_at", s.ExpiresAt.UnixMilli(),
			"created_at", s.CreatedAt.UnixMilli(),
		)
		pipe.PExpireAt(ctx, key, s.ExpiresAt)
		return nil
	})
	return err
}

func (r *RedisSessionStore) Get(ctx context.Context, id string, now time.Time) (*models.Session, error) {
	vals, err := r.client.HMGet(ctx, r.key(id), "user_id", "role", "expires_at", "created_at").Result()
	if err != nil {
		return nil, err
	}
	if vals[0] == nil || vals[2] == nil {
		return nil, nil
	}

	sess, err := parseRedisSession(id, vals[0], vals[1], vals[3], vals[2])
	if err != nil {
		return nil, err
	}
	if sess.ExpiredAt(now) {
		return nil, nil
	}
	return sess, nil
}

func (r *RedisSessionStore) Extend(ctx context.Context, id string, until, now time.Time) (*models.Session, error) {
	res, err := extendScript.Run(ctx, r.client, []string{r.key(id)}, until.UnixMilli(), now.UnixMilli()).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) != 4 {
		return nil, fmt.Errorf("session: unexpected extend reply of length %d", len(res))
	}
	return parseRedisSession(id, res[0], res[1], res[2], res[3])
}

func (r *RedisSessionStore) SetRole(ctx context.Context, id, role string) error {
	return setRoleScript.Run(ctx, r.client, []string{r.key(id)}, role).Err()
}

func (r *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}

// Prune is a no-op: key TTLs already remove dead sessions.
func (r *RedisSessionStore) Prune(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func parseRedisSession(id string, userID, role, createdAt, expiresAt any) (*models.Session, error) {
	uid, err := redisInt(userID)
	if err != nil {
		return nil, fmt.Errorf("session: bad user_id: %w", err)
	}
	exp, err := redisInt(expiresAt)
	if err != nil {
		return nil, fmt.Errorf("session: bad expires_at: %w", err)
	}
	created, _ := redisInt(createdAt)
	roleStr, _ := role.(string)

	return &models.Session{
		ID:        id,
		UserID:    uid,
		Role:      roleStr,
		ExpiresAt: time.UnixMilli(exp),
		CreatedAt: time.UnixMilli(created),
	}, nil
}

func redisInt(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	case nil:
		return 0, errors.New("missing value")
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
