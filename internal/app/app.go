// Package app holds the wiring shared by predictd and predictctl.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"bitpredict/internal/cache"
	"bitpredict/internal/config"
	"bitpredict/internal/db"
	"bitpredict/internal/price"
	"bitpredict/internal/repository"
	gormrepository "bitpredict/internal/repository/gorm"
	"bitpredict/internal/repository/memory"
)

const (
	PriceModeREST   = "rest"
	PriceModeStream = "stream"
)

// ConfigFromEnv loads config from BP_CONFIG (default config/config.yaml);
// BP_ENV_ONLY=true skips the file.
func ConfigFromEnv() (config.Config, error) {
	cfgPath := os.Getenv("BP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	envOnly := false
	if raw := os.Getenv("BP_ENV_ONLY"); raw != "" {
		envOnly = strings.EqualFold(raw, "true") || raw == "1"
	}
	return config.Load(cfgPath, envOnly)
}

type Store struct {
	Repo repository.GuessRepository
	// DB is nil for the memory driver.
	DB *db.DB
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.DB == nil || s.DB.SQL == nil {
		return nil
	}
	return s.DB.SQL.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return db.Close(s.DB)
}

// OpenStore opens the configured backend and migrates it when migrate is set.
func OpenStore(cfg config.DBConfig, migrate bool, logger *zap.Logger) (*Store, error) {
	if strings.EqualFold(strings.TrimSpace(cfg.Driver), db.DriverMemory) {
		if logger != nil {
			logger.Warn("using in-memory guess store; state is lost on restart")
		}
		return &Store{Repo: memory.New()}, nil
	}
	conn, err := db.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.SetTimezone(conn, cfg.Timezone); err != nil && logger != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if migrate {
		if err := db.AutoMigrate(conn); err != nil {
			_ = db.Close(conn)
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
	}
	return &Store{Repo: gormrepository.New(conn.Gorm), DB: conn}, nil
}

// Prices is the assembled reference value gateway.
type Prices struct {
	Source price.Source
	Health interface{ Health() price.HealthStatus }

	// Stream is set in stream mode and must be Run by the caller.
	Stream *price.TradeStream

	// CacheBackend is memory or redis.
	CacheBackend string
	closeCache   func() error
}

func (p *Prices) Close() error {
	if p == nil || p.closeCache == nil {
		return nil
	}
	return p.closeCache()
}

func NewPrices(cfg config.PriceConfig, logger *zap.Logger) (*Prices, error) {
	ticker := &price.BinanceTicker{
		HTTP:     &http.Client{Timeout: cfg.Timeout},
		Endpoint: cfg.Endpoint,
	}
	out := &Prices{Source: ticker, Health: ticker}

	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", PriceModeREST:
	case PriceModeStream:
		stream := &price.TradeStream{
			URL:      cfg.StreamURL,
			Fallback: ticker,
			MaxStale: cfg.MaxStale,
			Logger:   logger,
		}
		out.Source = stream
		out.Stream = stream
		out.Health = stream
	default:
		return nil, fmt.Errorf("unknown price mode %q", cfg.Mode)
	}

	store, backend, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, err
	}
	out.CacheBackend = backend
	if closer, ok := store.(interface{ Close() error }); ok {
		out.closeCache = closer.Close
	}
	if cfg.Cache.TTL > 0 {
		out.Source = &price.Cached{
			Source: out.Source,
			Store:  store,
			TTL:    cfg.Cache.TTL,
			Logger: logger,
		}
	}
	return out, nil
}
