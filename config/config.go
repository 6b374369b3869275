package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	yaml "go.yaml.in/yaml/v3"
)

// EnvPrefix prefixes every environment override, e.g. PULSE_SERVER_PORT.
const EnvPrefix = "PULSE"

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	JWT        JWTConfig        `yaml:"jwt"`
	Log        LogConfig        `yaml:"log"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Prices     PricesConfig     `yaml:"prices"`
	Push       PushConfig       `yaml:"push"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
}

type ServerConfig struct {
	Port         string        `yaml:"port" envconfig:"PORT"`
	Env          string        `yaml:"env" envconfig:"ENV"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver" envconfig:"DRIVER"` // mysql | sqlite
	DSN             string        `yaml:"dsn" envconfig:"DSN"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"MAX_IDLE_CONNS"`
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"CONN_MAX_LIFETIME"`
	SeedCoins       bool          `yaml:"seed_coins" envconfig:"SEED_COINS"`
}

type JWTConfig struct {
	AccessSecret string        `yaml:"access_secret" envconfig:"ACCESS_SECRET"`
	AccessExpiry time.Duration `yaml:"access_expiry" envconfig:"ACCESS_EXPIRY"`
	Issuer       string        `yaml:"issuer" envconfig:"ISSUER"`
}

type LogConfig struct {
	Level   string `yaml:"level" envconfig:"LEVEL"`
	Console bool   `yaml:"console" envconfig:"CONSOLE"` // human-readable output instead of JSON
}

// SchedulerConfig drives the due-set scanner.
type SchedulerConfig struct {
	Enabled      bool          `yaml:"enabled" envconfig:"ENABLED"`
	ScanInterval time.Duration `yaml:"scan_interval" envconfig:"SCAN_INTERVAL"`
	BatchSize    int           `yaml:"batch_size" envconfig:"BATCH_SIZE"`
	ClaimLease   time.Duration `yaml:"claim_lease" envconfig:"CLAIM_LEASE"`
}

// DispatcherConfig bounds dispatch concurrency and the retry policy.
type DispatcherConfig struct {
	Workers        int           `yaml:"workers" envconfig:"WORKERS"`
	QueueSize      int           `yaml:"queue_size" envconfig:"QUEUE_SIZE"`
	PriceTimeout   time.Duration `yaml:"price_timeout" envconfig:"PRICE_TIMEOUT"`
	PushTimeout    time.Duration `yaml:"push_timeout" envconfig:"PUSH_TIMEOUT"`
	RetryMax       int           `yaml:"retry_max" envconfig:"RETRY_MAX"`
	RetryBase      time.Duration `yaml:"retry_base" envconfig:"RETRY_BASE"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay" envconfig:"RETRY_MAX_DELAY"`
	MaxFailures    int           `yaml:"max_failures" envconfig:"MAX_FAILURES"`
	FailureBackoff time.Duration `yaml:"failure_backoff" envconfig:"FAILURE_BACKOFF"`
}

type PricesConfig struct {
	RefreshEnabled  bool          `yaml:"refresh_enabled" envconfig:"REFRESH_ENABLED"`
	RefreshInterval time.Duration `yaml:"refresh_interval" envconfig:"REFRESH_INTERVAL"`
	MaxAge          time.Duration `yaml:"max_age" envconfig:"MAX_AGE"`
	CoinGeckoURL    string        `yaml:"coingecko_url" envconfig:"COINGECKO_URL"`
	CoinGeckoAPIKey string        `yaml:"coingecko_api_key" envconfig:"COINGECKO_API_KEY"`
}

type PushConfig struct {
	ExpoURL                    string `yaml:"expo_url" envconfig:"EXPO_URL"`
	ExpoAccessToken            string `yaml:"expo_access_token" envconfig:"EXPO_ACCESS_TOKEN"`
	FirebaseServiceAccountPath string `yaml:"firebase_service_account_path" envconfig:"FIREBASE_SERVICE_ACCOUNT_PATH"`
	RatePerSec                 int    `yaml:"rate_per_sec" envconfig:"RATE_PER_SEC"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" envconfig:"REQUESTS_PER_MINUTE"`
	Burst             int `yaml:"burst" envconfig:"BURST"`
}

// Default returns a config usable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8099",
			Env:          "development",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "file:cryptopulse.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
			SeedCoins:       true,
		},
		JWT: JWTConfig{
			AccessSecret: "change-me-in-production",
			AccessExpiry: 15 * time.Minute,
			Issuer:       "cryptopulse",
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			ScanInterval: time.Minute,
			BatchSize:    200,
			ClaimLease:   5 * time.Minute,
		},
		Dispatcher: DispatcherConfig{
			Workers:        4,
			QueueSize:      256,
			PriceTimeout:   10 * time.Second,
			PushTimeout:    30 * time.Second,
			RetryMax:       2,
			RetryBase:      500 * time.Millisecond,
			RetryMaxDelay:  5 * time.Second,
			MaxFailures:    3,
			FailureBackoff: time.Minute,
		},
		Prices: PricesConfig{
			RefreshEnabled:  true,
			RefreshInterval: 5 * time.Minute,
			MaxAge:          30 * time.Minute,
			CoinGeckoURL:    "https://api.coingecko.com/api/v3",
		},
		Push: PushConfig{
			ExpoURL:    "https://exp.host/--/api/v2/push/send",
			RatePerSec: 50,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 100,
			Burst:             20,
		},
	}
}

// Load builds the config from defaults, then the YAML file at path (if any),
// then a .env file in the working directory (if any), then PULSE_* variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var problems []string
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("database.driver must be mysql or sqlite, got %q", c.Database.Driver))
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		problems = append(problems, "database.dsn is required")
	}
	if c.JWT.AccessSecret == "" {
		problems = append(problems, "jwt.access_secret is required")
	}
	if c.Scheduler.ScanInterval < time.Second {
		problems = append(problems, "scheduler.scan_interval must be at least 1s")
	}
	if c.Scheduler.ClaimLease <= c.Dispatcher.AttemptBudget() {
		problems = append(problems, fmt.Sprintf("scheduler.claim_lease must exceed one dispatch attempt with retries (%s)", c.Dispatcher.AttemptBudget()))
	}
	if c.Dispatcher.Workers <= 0 {
		problems = append(problems, "dispatcher.workers must be > 0")
	}
	if c.Dispatcher.MaxFailures <= 0 {
		problems = append(problems, "dispatcher.max_failures must be > 0")
	}
	if c.Prices.RefreshEnabled && c.Prices.RefreshInterval < time.Second {
		problems = append(problems, "prices.refresh_interval must be at least 1s")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// AttemptBudget is the longest one dispatch can hold its claim: every price
// lookup with its retry waits, then the push.
func (d DispatcherConfig) AttemptBudget() time.Duration {
	retries := time.Duration(max(d.RetryMax, 0))
	return (retries+1)*d.PriceTimeout + retries*d.RetryMaxDelay + d.PushTimeout
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool { return c.Server.Env == "production" }
