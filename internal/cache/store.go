// Package cache holds the small key-value stores behind persisted client
// flags and the rate limiter: one on the primary SQL database and one on
// redis.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotInitialised is returned by methods called on a nil store.
var ErrNotInitialised = errors.New("cache: store not initialised")

// Store is the key-value contract shared by persisted client flags and the
// API rate limiter. A zero ttl stores the value without expiry.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}

const defaultWindow = time.Minute

func normalizeKey(key string) string {
	return strings.TrimSpace(key)
}

func normalizeKeys(keys []string, transform func(string) string) []string {
	out := make([]string, len(keys))
	for i, key := range keys {
		out[i] = transform(key)
	}
	return out
}
