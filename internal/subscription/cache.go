package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "subscription:status:"

// StatusCache stores computed statuses per company.
type StatusCache interface {
	Get(ctx context.Context, companyID uuid.UUID) (*Status, bool)
	Set(ctx context.Context, companyID uuid.UUID, st Status)
	Invalidate(ctx context.Context, companyID uuid.UUID)
}

// RedisCache is a StatusCache backed by Redis. Errors are logged and treated as misses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache creates a status cache with the given TTL.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func cacheKey(companyID uuid.UUID) string {
	return cacheKeyPrefix + companyID.String()
}

// Get returns the cached status, if any.
func (c *RedisCache) Get(ctx context.Context, companyID uuid.UUID) (*Status, bool) {
	raw, err := c.client.Get(ctx, cacheKey(companyID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("status cache get failed", zap.String("company_id", companyID.String()), zap.Error(err))
		}
		return nil, false
	}
	var st Status
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, false
	}
	return &st, true
}

// Set caches st.
func (c *RedisCache) Set(ctx context.Context, companyID uuid.UUID, st Status) {
	raw, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(companyID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("status cache set failed", zap.String("company_id", companyID.String()), zap.Error(err))
	}
}

// Invalidate drops the cached status.
func (c *RedisCache) Invalidate(ctx context.Context, companyID uuid.UUID) {
	if err := c.client.Del(ctx, cacheKey(companyID)).Err(); err != nil {
		c.logger.Warn("status cache invalidate failed", zap.String("company_id", companyID.String()), zap.Error(err))
	}
}
