package config

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// Data backends for profiles, posts and change notifications.
const (
	BackendREST     = "rest"
	BackendPostgres = "postgres"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development" validate:"oneof=development staging production test"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	// RefreshWorkers is the number of feed refresh workers.
	RefreshWorkers int `env:"REFRESH_WORKERS, default=4" validate:"gte=1,lte=64"`

	Supabase SupabaseConfig
	Data     DataConfig
	Redis    RedisConfig
	Mongo    MongoConfig
}

type SupabaseConfig struct {
	URL            string        `env:"SUPABASE_URL"             validate:"required,url"`
	AnonKey        string        `env:"SUPABASE_ANON_KEY"        validate:"required"`
	Bucket         string        `env:"STORAGE_BUCKET,           default=posts"       validate:"required"`
	HTTPTimeout    time.Duration `env:"HTTP_TIMEOUT,             default=15s"         validate:"gt=0"`
	ReconnectDelay time.Duration `env:"REALTIME_RECONNECT_DELAY, default=5s"          validate:"gt=0"`
	RefreshEvery   time.Duration `env:"SESSION_REFRESH_INTERVAL, default=1m"          validate:"gt=0"`
	RefreshMargin  time.Duration `env:"SESSION_REFRESH_MARGIN,   default=2m"          validate:"gte=0"`
}

// DataConfig selects where profiles and posts are read from. The postgres
// backend talks to the database directly and needs DATABASE_URL.
type DataConfig struct {
	Backend     string `env:"DATA_BACKEND, default=rest" validate:"oneof=rest postgres"`
	DatabaseURL string `env:"DATABASE_URL"               validate:"required_if=Backend postgres"`
	MaxConns    int32  `env:"PG_MAX_CONNS, default=10"   validate:"gte=1"`
}

// RedisConfig is optional: without an address the session lives in memory.
type RedisConfig struct {
	Addr       string        `env:"REDIS_ADDR"`
	DB         int           `env:"REDIS_DB,    default=0"`
	SessionKey string        `env:"SESSION_KEY, default=framez:session"`
	SessionTTL time.Duration `env:"SESSION_TTL, default=720h" validate:"gte=0"`
}

// MongoConfig is optional: without a URI activity is not recorded.
type MongoConfig struct {
	URI      string `env:"MONGO_URI"`
	Database string `env:"MONGO_DB, default=framez"`
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool { return c.Env == "production" }

// Load reads configuration from the environment and validates it. A nil
// lookuper reads the process environment.
func Load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	if lookuper == nil {
		lookuper = envconfig.OsLookuper()
	}

	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}
