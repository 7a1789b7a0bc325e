// Package config loads process settings from the environment.
package config

import (
	"fmt"
	"strings"

	"coop-arena/server/llm"
	"coop-arena/server/logging"
	"coop-arena/server/rating"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port string `envconfig:"PORT" default:"8080"`

	// DBDriver is postgres, sqlite or csv. DatabaseURL is a postgres URL, a
	// sqlite file (or :memory:) or a csv directory respectively.
	DBDriver    string `envconfig:"DB_DRIVER" default:"sqlite"`
	DatabaseURL string `envconfig:"DATABASE_URL" default:"coop-arena.db"`
	AutoMigrate bool   `envconfig:"AUTO_MIGRATE" default:"true"`

	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding   string `envconfig:"LOG_ENCODING" default:"console"`
	LogOutputPath string `envconfig:"LOG_OUTPUT_PATH"`

	SweepFile        string `envconfig:"SWEEP_FILE"`
	SweepWorkers     int    `envconfig:"SWEEP_WORKERS" default:"1"`
	SweepStrictStore bool   `envconfig:"SWEEP_STRICT_STORE"`
	Seed             int64  `envconfig:"SEED"`

	EloK      float64 `envconfig:"ELO_K" default:"24"`
	G2Tau     float64 `envconfig:"G2_TAU" default:"0.5"`
	ExportDir string  `envconfig:"EXPORT_DIR" default:"data"`

	LLM llm.Settings `envconfig:"LLM"`
}

// Load reads the environment. Call godotenv first if a .env file should count.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.DBDriver) {
	case "postgres", "pg", "sqlite", "csv":
	default:
		return fmt.Errorf("unknown DB_DRIVER %q (want postgres|sqlite|csv)", c.DBDriver)
	}
	if c.SweepWorkers < 1 {
		return fmt.Errorf("SWEEP_WORKERS must be >= 1, got %d", c.SweepWorkers)
	}
	if c.EloK <= 0 {
		return fmt.Errorf("ELO_K must be positive, got %v", c.EloK)
	}
	if c.G2Tau <= 0 {
		return fmt.Errorf("G2_TAU must be positive, got %v", c.G2Tau)
	}
	return c.LLM.Validate()
}

func (c *Config) Logging() logging.Config {
	return logging.Config{Level: c.LogLevel, Encoding: c.LogEncoding, OutputPath: c.LogOutputPath}
}

func (c *Config) Rating() rating.Config {
	return rating.Config{EloK: c.EloK, Tau: c.G2Tau}
}

// RedactedDSN hides a postgres password for logging.
func (c *Config) RedactedDSN() string {
	u := c.DatabaseURL
	at := strings.LastIndex(u, "@")
	scheme := strings.Index(u, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return u
	}
	creds := u[scheme+3 : at]
	if i := strings.Index(creds, ":"); i >= 0 {
		creds = creds[:i] + ":***"
	}
	return u[:scheme+3] + creds + u[at:]
}
