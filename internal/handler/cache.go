package handler

import (
	"context"
	"encoding/json"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"

	"vietmarket-api/internal/config"
)

// responseCache keeps hot read responses in redis. A nil cache (no redis
// configured) is a no-op passthrough.
type responseCache struct {
	rds *redis.Redis
	ttl config.CacheTTL
}

func newResponseCache(rds *redis.Redis, ttl config.CacheTTL) *responseCache {
	if rds == nil {
		return nil
	}
	return &responseCache{rds: rds, ttl: ttl}
}

func (c *responseCache) get(ctx context.Context, key string, v any) bool {
	if c == nil {
		return false
	}
	raw, err := c.rds.GetCtx(ctx, key)
	if err != nil || raw == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		logx.WithContext(ctx).Errorf("cache: decode %s: %v", key, err)
		return false
	}
	return true
}

func (c *responseCache) set(ctx context.Context, key string, v any, ttlSeconds int) {
	if c == nil || ttlSeconds <= 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rds.SetexCtx(ctx, key, string(data), ttlSeconds); err != nil {
		logx.WithContext(ctx).Errorf("cache: set %s: %v", key, err)
	}
}

func (c *responseCache) shortTTL() int {
	if c == nil {
		return 0
	}
	return c.ttl.Short
}

func (c *responseCache) mediumTTL() int {
	if c == nil {
		return 0
	}
	return c.ttl.Medium
}
