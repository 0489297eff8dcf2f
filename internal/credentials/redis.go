package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore persists the pair in Redis so the session survives console
// restarts and can be shared by replicas pointed at the same namespace.
type RedisStore struct {
	rdb        *redis.Client
	logger     *zap.Logger
	accessKey  string
	refreshKey string
}

// NewRedisStore wraps an existing client. prefix namespaces the fixed keys.
func NewRedisStore(rdb *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		rdb:        rdb,
		logger:     logger,
		accessKey:  namespaced(prefix, KeyAccess),
		refreshKey: namespaced(prefix, KeyRefresh),
	}
}

func (s *RedisStore) Access(ctx context.Context) (string, error) {
	return s.get(ctx, s.accessKey)
}

func (s *RedisStore) Refresh(ctx context.Context) (string, error) {
	return s.get(ctx, s.refreshKey)
}

func (s *RedisStore) get(ctx context.Context, key string) (string, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// SetPair writes the present fields with a single MSET, so readers never see
// a new access token next to a stale refresh token.
func (s *RedisStore) SetPair(ctx context.Context, p Pair) error {
	var kv []any
	if p.AccessToken != "" {
		kv = append(kv, s.accessKey, p.AccessToken)
	}
	if p.RefreshToken != "" {
		kv = append(kv, s.refreshKey, p.RefreshToken)
	}
	if len(kv) == 0 {
		return nil
	}
	if err := s.rdb.MSet(ctx, kv...).Err(); err != nil {
		s.logger.Error("credentials.redis.set_failed", zap.Error(err))
		return fmt.Errorf("redis mset: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.accessKey, s.refreshKey).Err(); err != nil {
		s.logger.Error("credentials.redis.clear_failed", zap.Error(err))
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) HealthCheck(ctx context.Context) error {
	if s.rdb == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
