package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Cron   CronConfig   `mapstructure:"cron"`
	Guess  GuessConfig  `mapstructure:"guess"`
	Price  PriceConfig  `mapstructure:"price"`
	Auth   AuthConfig   `mapstructure:"auth"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	// Driver is one of postgres, sqlite or memory.
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ReconcileSweep string `mapstructure:"reconcile_sweep"`
}

// GuessConfig holds the settlement engine knobs. SettlementDelay is process wide;
// it is never adjusted per guess.
type GuessConfig struct {
	SettlementDelay    time.Duration `mapstructure:"settlement_delay"`
	ResolveTimeout     time.Duration `mapstructure:"resolve_timeout"`
	ResolveMaxAttempts int           `mapstructure:"resolve_max_attempts"`
	ResolveBackoffMin  time.Duration `mapstructure:"resolve_backoff_min"`
	ResolveBackoffMax  time.Duration `mapstructure:"resolve_backoff_max"`
	SweepGrace         time.Duration `mapstructure:"sweep_grace"`
	SweepLimit         int           `mapstructure:"sweep_limit"`
	RearmOnStart       bool          `mapstructure:"rearm_on_start"`
}

type PriceConfig struct {
	// Mode is rest (poll the ticker on demand) or stream (latest websocket trade, REST fallback).
	Mode      string           `mapstructure:"mode"`
	Endpoint  string           `mapstructure:"endpoint"`
	StreamURL string           `mapstructure:"stream_url"`
	Timeout   time.Duration    `mapstructure:"timeout"`
	MaxStale  time.Duration    `mapstructure:"max_stale"`
	Cache     PriceCacheConfig `mapstructure:"cache"`
}

type PriceCacheConfig struct {
	Backend       string        `mapstructure:"backend"`
	TTL           time.Duration `mapstructure:"ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Issuer    string        `mapstructure:"issuer"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.reconcile_sweep", "@every 30s")

	v.SetDefault("guess.settlement_delay", "60s")
	v.SetDefault("guess.resolve_timeout", "30s")
	v.SetDefault("guess.resolve_max_attempts", 5)
	v.SetDefault("guess.resolve_backoff_min", "250ms")
	v.SetDefault("guess.resolve_backoff_max", "5s")
	v.SetDefault("guess.sweep_grace", "60s")
	v.SetDefault("guess.sweep_limit", 500)
	v.SetDefault("guess.rearm_on_start", true)

	v.SetDefault("price.mode", "rest")
	v.SetDefault("price.endpoint", "https://api.binance.com/api/v3/ticker/price?symbol=BTCUSDT")
	v.SetDefault("price.stream_url", "wss://stream.binance.com:9443/ws/btcusdt@trade")
	v.SetDefault("price.timeout", "5s")
	v.SetDefault("price.max_stale", "5s")
	v.SetDefault("price.cache.backend", "memory")
	v.SetDefault("price.cache.ttl", "1s")
	v.SetDefault("price.cache.redis_addr", "")
	v.SetDefault("price.cache.redis_password", "")
	v.SetDefault("price.cache.redis_db", 0)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "1h")
	v.SetDefault("auth.issuer", "bitpredict")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
