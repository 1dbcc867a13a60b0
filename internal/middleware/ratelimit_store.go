package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/runmate/internal/cache"
	apperrors "github.com/charlesng35/runmate/pkg/errors"
	"github.com/charlesng35/runmate/pkg/logger"
	"github.com/charlesng35/runmate/pkg/response"
)

// RateStore counts requests for a key within a fixed window.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

type storeRateStore struct {
	store cache.Store
}

// NewRateStore adapts a cache Store (Redis or SQL) into a RateStore so limits
// hold across API replicas.
func NewRateStore(store cache.Store) RateStore {
	if store == nil {
		return nil
	}
	return &storeRateStore{store: store}
}

func (s *storeRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	count, ttl, err := s.store.IncrementWithTTL(ctx, "ratelimit:"+key, window)
	return int(count), ttl, err
}

// RateLimit limits requests per caller and route within a fixed window. The
// caller is the authenticated user when known, else the client IP. Store
// failures let the request through.
func RateLimit(store RateStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		caller := c.GetString(CtxUserIDKey)
		if caller == "" {
			caller = c.ClientIP()
		}
		key := caller + "|" + c.Request.Method + " " + c.FullPath()

		count, resetIn, err := store.Increment(c.Request.Context(), key, window)
		if err != nil {
			logger.WithModule("http").Warn("rate limit store unavailable", zap.Error(err))
			c.Next()
			return
		}

		remaining := maxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(resetIn.Seconds())))

		if count > maxRequests {
			response.Error(c, apperrors.ErrRateLimited)
			c.Abort()
			return
		}

		c.Next()
	}
}
