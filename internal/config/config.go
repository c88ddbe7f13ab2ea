package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken string  `envconfig:"BOT_TOKEN" required:"true"`
	AdminIDs []int64 `envconfig:"ADMIN_IDS"` // comma separated

	DBDriver    string `envconfig:"DB_DRIVER" default:"sqlite"` // sqlite|postgres
	DBPath      string `envconfig:"DB_PATH" default:"./data/bot.db"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	RedisAddr     string `envconfig:"REDIS_ADDR"` // empty keeps states in the database
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"30m"`
	FanoutWorkers int           `envconfig:"FANOUT_WORKERS" default:"8"`
	UpdateWorkers int           `envconfig:"UPDATE_WORKERS" default:"16"`

	DevContact string `envconfig:"DEV_CONTACT" default:"@YourAizen"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`  // debug|info|warn|error
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"` // json|console
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8080"` // healthz
}

// Load reads an optional .env file and then environment variables into Config.
func Load() (Config, error) {
	// Variables already set in the environment win over .env.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks combinations envconfig cannot express.
func (c Config) Validate() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, errors.New("BOT_TOKEN is empty"))
	}
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for sqlite"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver))
	}
	if len(c.AdminIDs) == 0 {
		errs = append(errs, errors.New("ADMIN_IDS must list at least one admin"))
	}
	for _, id := range c.AdminIDs {
		if id <= 0 {
			errs = append(errs, fmt.Errorf("invalid admin id %d", id))
		}
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL must be positive"))
	}
	if c.FanoutWorkers < 1 {
		errs = append(errs, errors.New("FANOUT_WORKERS must be at least 1"))
	}
	if c.UpdateWorkers < 1 {
		errs = append(errs, errors.New("UPDATE_WORKERS must be at least 1"))
	}
	if c.RedisDB < 0 {
		errs = append(errs, errors.New("REDIS_DB must not be negative"))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
