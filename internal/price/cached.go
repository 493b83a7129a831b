package price

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"bitpredict/internal/cache"
)

const DefaultCacheKey = "bitpredict:quote:btcusdt"

// Cached serves quotes from a shared cache for TTL before asking Source again.
// Cache failures are logged and bypassed; they never fail a lookup.
type Cached struct {
	Source Source
	Store  cache.Store
	TTL    time.Duration
	Key    string
	Logger *zap.Logger
}

func (c *Cached) Current(ctx context.Context) (Quote, error) {
	if c.Store == nil || c.TTL <= 0 {
		return c.Source.Current(ctx)
	}
	key := c.Key
	if key == "" {
		key = DefaultCacheKey
	}
	raw, found, err := c.Store.Get(ctx, key)
	if err != nil && c.Logger != nil {
		c.Logger.Warn("quote cache read failed", zap.Error(err))
	}
	if found {
		var q Quote
		if err := json.Unmarshal(raw, &q); err == nil {
			return q, nil
		}
	}

	q, err := c.Source.Current(ctx)
	if err != nil {
		return Quote{}, err
	}
	if b, err := json.Marshal(q); err == nil {
		if err := c.Store.Set(ctx, key, b, c.TTL); err != nil && c.Logger != nil {
			c.Logger.Warn("quote cache write failed", zap.Error(err))
		}
	}
	return q, nil
}
