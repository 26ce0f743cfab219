package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
)

// Store represents a byte-oriented cache backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ErrCacheMiss indicates the key is absent from the cache.
var ErrCacheMiss = errors.New("cache miss")

// Module provides the cache store to the Fx graph.
var Module = fx.Provide(NewStore)

// NewStore returns the configured cache store (redis or noop).
func NewStore(cfg config.Config, client *goredis.Client, logger *zap.Logger) (Store, error) {
	switch cfg.Cache.Driver {
	case "noop":
		logger.Info("order cache disabled")
		return NoopStore{}, nil
	case "redis":
		logger.Info("order cache: redis", zap.Duration("ttl", cfg.Cache.DefaultTTL))
		return NewRedisStore(client, cfg.Cache.DefaultTTL), nil
	default:
		return nil, fmt.Errorf("unsupported cache driver: %s", cfg.Cache.Driver)
	}
}

// NoopStore misses on every read and discards writes.
type NoopStore struct{}

func (NoopStore) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheMiss
}

func (NoopStore) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (NoopStore) Delete(context.Context, string) error {
	return nil
}

// RedisStore caches values as plain redis strings with a TTL.
type RedisStore struct {
	client     *goredis.Client
	defaultTTL time.Duration
}

// NewRedisStore wraps a shared client; ttl applies when Set is called without one.
func NewRedisStore(client *goredis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, defaultTTL: ttl}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrCacheMiss
	}
	res, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("cache key is required")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return s.client.Del(ctx, key).Err()
}
