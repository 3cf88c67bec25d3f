package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/vilass86/cardgame/internal/logger"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

type Config struct {
	AppPort       string `env:"APP_PORT" envDefault:"8080"`
	DatabaseURL   string `env:"DATABASE_URL"`
	LedgerBackend string `env:"LEDGER_BACKEND" envDefault:"postgres"`
	JWTSecret     string `env:"JWT_SECRET"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN" envDefault:"*"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON       bool   `env:"LOG_JSON" envDefault:"false"`

	// Randomness. With REDIS_ADDR set requests go to the stream and only the
	// public key is needed; otherwise an in-process oracle signs with VRF_SECRET_KEY.
	VRFPublicKey string        `env:"VRF_PUBLIC_KEY"`
	VRFSecretKey string        `env:"VRF_SECRET_KEY"`
	OracleStream string        `env:"ORACLE_STREAM" envDefault:"cardgame:randomness:requests"`
	OracleDelay  time.Duration `env:"ORACLE_DELAY" envDefault:"0s"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Session limits
	HouseAccount  string        `env:"HOUSE_ACCOUNT" envDefault:"house"`
	RakeBps       int64         `env:"RAKE_BPS" envDefault:"0"`
	DefaultRanker string        `env:"DEFAULT_RANKER" envDefault:"holdem"`
	MinStake      int64         `env:"MIN_STAKE" envDefault:"1"`
	MaxStake      int64         `env:"MAX_STAKE" envDefault:"1000000"`
	MaxCapacity   int           `env:"MAX_CAPACITY" envDefault:"9"`
	DefaultTTL    time.Duration `env:"DEFAULT_TTL" envDefault:"15m"`
	MaxTTL        time.Duration `env:"MAX_TTL" envDefault:"24h"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`
	AutoResolve   bool          `env:"AUTO_RESOLVE" envDefault:"true"`
	AuthDevTokens bool          `env:"AUTH_DEV_TOKENS" envDefault:"false"`

	// Rate limits: requests per window
	APIRateLimit     int           `env:"API_RATE_LIMIT" envDefault:"300"`
	APIRateWindow    time.Duration `env:"API_RATE_WINDOW" envDefault:"1m"`
	ActionRateLimit  int           `env:"ACTION_RATE_LIMIT" envDefault:"60"`
	ActionRateWindow time.Duration `env:"ACTION_RATE_WINDOW" envDefault:"1m"`
}

// Parse reads .env if present, then the process environment.
func Parse() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.LedgerBackend = strings.ToLower(strings.TrimSpace(cfg.LedgerBackend))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.LedgerBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is not set")
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	if c.RedisAddr != "" && c.VRFPublicKey == "" {
		return fmt.Errorf("VRF_PUBLIC_KEY is required with the redis oracle")
	}
	if c.RedisAddr == "" && c.VRFSecretKey == "" {
		return fmt.Errorf("VRF_SECRET_KEY is required with the local oracle")
	}
	if c.RakeBps < 0 || c.RakeBps > 10000 {
		return fmt.Errorf("RAKE_BPS must be within [0, 10000]")
	}
	if c.MinStake <= 0 || c.MaxStake < c.MinStake {
		return fmt.Errorf("stake limits [%d, %d] are invalid", c.MinStake, c.MaxStake)
	}
	if c.MaxCapacity < 2 {
		return fmt.Errorf("MAX_CAPACITY must be at least 2")
	}
	if c.DefaultTTL <= 0 || c.MaxTTL < c.DefaultTTL {
		return fmt.Errorf("DEFAULT_TTL must be positive and not exceed MAX_TTL")
	}
	return nil
}

// Load is Parse that exits on error.
func Load() *Config {
	cfg, err := Parse()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}
	return cfg
}
