package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig captures the connection parameters for the Redis-backed store.
type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      bool
	Timeout  time.Duration
}

const (
	defaultRedisTimeout = 5 * time.Second
	redisKeyPrefix      = "runmate:"
)

// RedisStore implements Store on top of go-redis. Keys are namespaced with a
// fixed prefix so the instance can be shared with other services.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and pings it so misconfiguration is
// surfaced during application startup.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, errors.New("redis: address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRedisTimeout
	}

	opts := &redis.Options{
		Addr:         cfg.Address,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)
	if ctx == nil {
		ctx = context.Background()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	if client == nil {
		return nil
	}
	return &RedisStore{client: client}
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return ErrNotInitialised
	}
	return s.client.Ping(ctx).Err()
}

// IncrementWithTTL bumps a counter and starts its window on first use.
func (s *RedisStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if window <= 0 {
		window = defaultWindow
	}
	key = prefixed(key)

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	remaining := ttl.Val()
	if remaining < 0 {
		remaining = window
	}
	return incr.Val(), remaining, nil
}

// Set stores a value; a non-positive ttl keeps it without expiry.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, prefixed(key), value, ttl).Err()
}

// Get retrieves the value associated with a key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, prefixed(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Delete removes one or more keys, ignoring missing keys.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, normalizeKeys(keys, prefixed)...).Err()
}

func prefixed(key string) string {
	normalized := normalizeKey(key)
	if strings.HasPrefix(normalized, redisKeyPrefix) {
		return normalized
	}
	return redisKeyPrefix + normalized
}
