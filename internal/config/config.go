// Package config loads the family-bank configuration.
//
// Configuration comes from a single YAML file named by the --config flag
// or the FAMILY_BANK_CONFIG environment variable. When neither is set the
// built-in defaults apply. Secrets are never read from the file: they come
// from environment variables and override whatever the file contains.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config path.
const EnvConfigPath = "FAMILY_BANK_CONFIG"

// Backend selects the document store implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendBigQuery Backend = "bigquery"
	BackendPostgres Backend = "postgres"
)

// Config is the top-level configuration.
type Config struct {
	LogLevel string  `yaml:"log_level"`
	Backend  Backend `yaml:"backend"`

	Server     ServerConfig     `yaml:"server"`
	BigQuery   BigQueryConfig   `yaml:"bigquery"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Settlement SettlementConfig `yaml:"settlement"`
	Rates      RatesConfig      `yaml:"rates"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Export     ExportConfig     `yaml:"export"`
	Notion     NotionConfig     `yaml:"notion"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port         string        `yaml:"port"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// BigQueryConfig locates the BigQuery dataset.
type BigQueryConfig struct {
	ProjectID string `yaml:"project_id"`
	Dataset   string `yaml:"dataset"`
}

// PostgresConfig configures the Postgres pool. URL is normally supplied
// through DATABASE_URL.
type PostgresConfig struct {
	URL string `yaml:"url"`
}

// SettlementConfig tunes the interest settlement engine.
type SettlementConfig struct {
	// Cooldown keeps a member's guard held after a settlement completes.
	Cooldown time.Duration `yaml:"cooldown"`
	// MaxConflictRetries bounds re-reads after a watermark conflict.
	MaxConflictRetries int `yaml:"max_conflict_retries"`
	// WriteTimeout aborts a single backend write client-side.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RatesConfig seeds a household's rates document.
type RatesConfig struct {
	DefaultBase  string `yaml:"default_base"`
	DefaultBonus string `yaml:"default_bonus"`
	Auto         bool   `yaml:"auto"`
}

// SchedulerConfig controls the background settlement sweep.
type SchedulerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	Households []string      `yaml:"households"`
	Workers    int           `yaml:"workers"`
}

// ExportConfig names the Cloud Storage bucket for household exports.
type ExportConfig struct {
	Bucket string `yaml:"bucket"`
}

// NotionConfig configures the Notion mirror. Token comes from NOTION_TOKEN.
type NotionConfig struct {
	Token      string `yaml:"-"`
	DatabaseID string `yaml:"database_id"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Backend:  BackendMemory,
		Server: ServerConfig{
			Port:         "8080",
			WriteTimeout: 15 * time.Second,
		},
		BigQuery: BigQueryConfig{Dataset: "family_bank"},
		Settlement: SettlementConfig{
			Cooldown:           2 * time.Second,
			MaxConflictRetries: 3,
			WriteTimeout:       10 * time.Second,
		},
		Rates: RatesConfig{
			DefaultBase:  "0.025",
			DefaultBonus: "0",
			Auto:         true,
		},
		Scheduler: SchedulerConfig{
			Interval: time.Hour,
			Workers:  4,
		},
	}
}

// Load reads the config file at path (or $FAMILY_BANK_CONFIG when path is
// empty), applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("Load: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("Load: parsing %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := os.Getenv("GCP_PROJECT"); v != "" {
		c.BigQuery.ProjectID = v
	}
	if v := os.Getenv("GCS_BUCKET"); v != "" {
		c.Export.Bucket = v
	}
	if v := os.Getenv("NOTION_TOKEN"); v != "" {
		c.Notion.Token = v
	}
	if v := os.Getenv("NOTION_DATABASE_ID"); v != "" {
		c.Notion.DatabaseID = v
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendBigQuery:
		if c.BigQuery.ProjectID == "" {
			return errors.New("bigquery backend requires bigquery.project_id")
		}
	case BackendPostgres:
		if c.Postgres.URL == "" {
			return errors.New("postgres backend requires postgres.url or DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	if c.Settlement.Cooldown < 0 {
		return errors.New("settlement.cooldown must not be negative")
	}
	if c.Settlement.MaxConflictRetries < 1 {
		return errors.New("settlement.max_conflict_retries must be at least 1")
	}
	if c.Scheduler.Interval <= 0 {
		return errors.New("scheduler.interval must be positive")
	}
	if _, _, err := c.Rates.Parse(); err != nil {
		return err
	}
	return nil
}

// Parse returns the default base and bonus rates as decimals.
func (r RatesConfig) Parse() (base, bonus decimal.Decimal, err error) {
	base, err = decimal.NewFromString(r.DefaultBase)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("rates.default_base: %w", err)
	}
	bonus, err = decimal.NewFromString(r.DefaultBonus)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("rates.default_bonus: %w", err)
	}
	return base, bonus, nil
}
