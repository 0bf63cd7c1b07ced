package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/product-catalog/internal/apperror"
	"github.com/sakif/product-catalog/internal/model"
)

const redisKeyPrefix = "catalog:session:"

var _ Store = (*RedisStore)(nil)

// RedisStore keeps sessions as JSON values whose key TTL matches the session
// expiry, so Redis evicts them on its own.
type RedisStore struct {
	client *redis.Client
}

// RedisOptions addresses the Redis server that holds sessions.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore connects and pings. The caller owns Close.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: connecting to %s: %w", opts.Addr, err)
	}
	return &RedisStore{client: client}, nil
}

type redisSession struct {
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

func (s *RedisStore) CreateSession(ctx context.Context, sess *model.Session) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("redis: session %s already expired", sess.ID)
	}

	payload, err := json.Marshal(redisSession{
		UserID:    sess.UserID,
		CreatedAt: sess.CreatedAt.UTC(),
		ExpiresAt: sess.ExpiresAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("redis: encoding session: %w", err)
	}

	ok, err := s.client.SetNX(ctx, redisKey(sess.ID), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis: creating session: %w", err)
	}
	if !ok {
		return fmt.Errorf("redis: session %s already exists", sess.ID)
	}
	return nil
}

func (s *RedisStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	raw, err := s.client.Get(ctx, redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &apperror.AppError{Err: apperror.ErrNotFound, Message: "session not found"}
		}
		return nil, fmt.Errorf("redis: getting session: %w", err)
	}

	var rs redisSession
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("redis: decoding session: %w", err)
	}

	return &model.Session{
		ID:        id,
		UserID:    rs.UserID,
		CreatedAt: rs.CreatedAt,
		ExpiresAt: rs.ExpiresAt,
	}, nil
}

func (s *RedisStore) DeleteSession(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, redisKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: deleting session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions is a no-op: key TTLs already expire records.
func (s *RedisStore) DeleteExpiredSessions(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
