package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the process configuration, read from the environment after an
// optional .env file.
type Config struct {
	Port        string   `env:"PORT" envDefault:"8080"`
	Env         string   `env:"ENV" envDefault:"development"`
	AppURL      string   `env:"APP_URL" envDefault:"http://localhost:8080"`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"mongo"`
	MongoURI      string `env:"MONGO_URI"`
	DBName        string `env:"DB_NAME" envDefault:"barrim"`
	PostgresDSN   string `env:"POSTGRES_DSN"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	JWTSecret string `env:"JWT_SECRET"`

	CommissionRates    []string `env:"COMMISSION_RATES" envSeparator:"," envDefault:"0.10,0.05,0.03,0.02,0.01"`
	CommissionMaxDepth int      `env:"COMMISSION_MAX_DEPTH" envDefault:"9"`

	PlacementTxTimeout    time.Duration `env:"PLACEMENT_TX_TIMEOUT" envDefault:"15s"`
	DistributionTxTimeout time.Duration `env:"DISTRIBUTION_TX_TIMEOUT" envDefault:"30s"`

	LeaderboardCacheTTL    time.Duration `env:"LEADERBOARD_CACHE_TTL" envDefault:"5m"`
	DashboardCacheTTL      time.Duration `env:"DASHBOARD_CACHE_TTL" envDefault:"1m"`
	LeaderboardRefreshCron string        `env:"LEADERBOARD_REFRESH_CRON" envDefault:"@every 5m"`

	RateLimitPerSecond float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" envDefault:"40"`
}

// Load reads .env when present and parses the environment into a Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading configuration from the environment")
	}
	return Parse()
}

// Parse reads the environment into a Config without touching .env.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that have no usable default.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case DriverMongo:
		if c.MongoURI == "" && !c.IsDevelopment() {
			return fmt.Errorf("MONGO_URI is required for STORAGE_DRIVER=mongo in %s", c.Env)
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for STORAGE_DRIVER=postgres")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if len(c.CommissionRates) == 0 {
		return fmt.Errorf("COMMISSION_RATES must list at least one rate")
	}
	if c.CommissionMaxDepth < 1 {
		return fmt.Errorf("COMMISSION_MAX_DEPTH must be positive, got %d", c.CommissionMaxDepth)
	}
	if c.PlacementTxTimeout <= 0 || c.DistributionTxTimeout <= 0 {
		return fmt.Errorf("transaction timeouts must be positive")
	}
	return nil
}

func (c Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}
