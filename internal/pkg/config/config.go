package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type PostgresConfig struct {
	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     string `env:"POSTGRES_PORT" envDefault:"5432"`
	DB       string `env:"POSTGRES_DB" envDefault:"parlor"`
	Username string `env:"POSTGRES_USER" envDefault:"postgres"`
	Password string `env:"POSTGRES_PASSWORD"`
	SSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
	MaxConns int32  `env:"POSTGRES_MAX_CONNS" envDefault:"30"`
	MinConns int32  `env:"POSTGRES_MIN_CONNS" envDefault:"5"`
}

// ConnectionURL renders the pgx/migrate compatible URL.
func (p PostgresConfig) ConnectionURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		p.Username, p.Password, p.Host, p.Port, p.DB, p.SSLMode)
}

type JWTConfig struct {
	SecretKey      string        `env:"JWT_SECRET_KEY"`
	AccessTokenTTL time.Duration `env:"JWT_ACCESS_TTL" envDefault:"24h"`
	Issuer         string        `env:"JWT_ISSUER" envDefault:"parlor"`
}

type SessionConfig struct {
	Secret string        `env:"SESSION_SECRET"`
	Name   string        `env:"SESSION_NAME" envDefault:"parlor_session"`
	MaxAge time.Duration `env:"SESSION_MAX_AGE" envDefault:"336h"`
}

type LimitsConfig struct {
	// RequestsPerSecond / Burst bound the per-client token bucket.
	RequestsPerSecond float64       `env:"RATE_LIMIT_RPS" envDefault:"25"`
	Burst             int           `env:"RATE_LIMIT_BURST" envDefault:"50"`
	LongPollTimeout   time.Duration `env:"LONG_POLL_TIMEOUT" envDefault:"30s"`
	MessageQuota      int           `env:"MESSAGE_QUOTA" envDefault:"500"`
}

type RepositoriesConfig struct {
	Postgres PostgresConfig
}

type Config struct {
	Repositories RepositoriesConfig
	JWT          JWTConfig
	Session      SessionConfig
	Limits       LimitsConfig
	ServerPort   string `env:"SERVER_PORT" envDefault:"8091"`
	MetricsPort  string `env:"METRICS_PORT" envDefault:"9092"`
	PprofPort    string `env:"PPROF_PORT" envDefault:"6060"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.Repositories.Postgres.Password == "" {
		return nil, fmt.Errorf("POSTGRES_PASSWORD environment variable is required")
	}
	if cfg.JWT.SecretKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is required")
	}
	if cfg.Session.Secret == "" {
		return nil, fmt.Errorf("SESSION_SECRET environment variable is required")
	}

	return cfg, nil
}
