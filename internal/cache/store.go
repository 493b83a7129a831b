package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"bitpredict/internal/config"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// New picks a backend from config. Redis without an address falls back to memory.
func New(cfg config.PriceCacheConfig) (Store, string, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return NewMemoryStore(), BackendMemory, nil
	case BackendRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return NewMemoryStore(), BackendMemory, nil
		}
		return NewRedisStore(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}), BackendRedis, nil
	default:
		return nil, "", fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
