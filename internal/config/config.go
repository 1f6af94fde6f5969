// Package config loads the server configuration from an optional YAML file
// overlaid with environment variables. Environment values win.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string   `yaml:"host" env:"SERVER_HOST"`
	Port            int      `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
	AllowedOrigins  []string `yaml:"allowed_origins" env:"SERVER_ALLOWED_ORIGINS"`
	RateLimitPerSec int      `yaml:"rate_limit_per_sec" env:"SERVER_RATE_LIMIT_PER_SEC"`
	RateLimitBurst  int      `yaml:"rate_limit_burst" env:"SERVER_RATE_LIMIT_BURST"`
}

// DatabaseConfig holds the document store settings. An empty DSN runs the
// server on the in-memory store.
type DatabaseConfig struct {
	DSN             string   `yaml:"dsn" env:"DATABASE_DSN"`
	MaxOpenConns    int      `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int      `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
}

// LedgerConfig holds the signing bridge settings. All three of RPCURL,
// ContractAddress and SignerKey are required for ledger writes; leaving any
// empty runs the ledger client in disabled mode.
type LedgerConfig struct {
	RPCURL          string   `yaml:"rpc_url" env:"LEDGER_RPC_URL"`
	ContractAddress string   `yaml:"contract_address" env:"LEDGER_CONTRACT_ADDRESS"`
	SignerKey       string   `yaml:"signer_key" env:"LEDGER_SIGNER_KEY"`
	Timeout         Duration `yaml:"timeout" env:"LEDGER_TIMEOUT"`
	ConfirmTimeout  Duration `yaml:"confirm_timeout" env:"LEDGER_CONFIRM_TIMEOUT"`
}

// InsightsConfig holds the analytics provider settings.
type InsightsConfig struct {
	ProviderURL string   `yaml:"provider_url" env:"INSIGHTS_PROVIDER_URL"`
	APIKey      string   `yaml:"api_key" env:"INSIGHTS_API_KEY"`
	Timeout     Duration `yaml:"timeout" env:"INSIGHTS_TIMEOUT"`
	CacheTTL    Duration `yaml:"cache_ttl" env:"INSIGHTS_CACHE_TTL"`
}

// RedisConfig holds the cache settings. An empty address disables caching.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// AuditConfig holds the integrity sweep settings.
type AuditConfig struct {
	SweepSchedule string `yaml:"sweep_schedule" env:"AUDIT_SWEEP_SCHEDULE"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Insights InsightsConfig `yaml:"insights"`
	Redis    RedisConfig    `yaml:"redis"`
	Audit    AuditConfig    `yaml:"audit"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Default returns the configuration used when neither file nor environment
// overrides a value.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
			AllowedOrigins:  []string{"*"},
			RateLimitPerSec: 50,
			RateLimitBurst:  100,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration(30 * time.Minute),
		},
		Ledger: LedgerConfig{
			Timeout:        Duration(10 * time.Second),
			ConfirmTimeout: Duration(2 * time.Minute),
		},
		Insights: InsightsConfig{
			Timeout:  Duration(8 * time.Second),
			CacheTTL: Duration(5 * time.Minute),
		},
		Audit: AuditConfig{
			SweepSchedule: "@every 1h",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return Config{}, fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	return cfg, nil
}
