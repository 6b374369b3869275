package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8099" || cfg.Database.Driver != "sqlite" || cfg.Scheduler.ScanInterval != time.Minute {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.Dispatcher.RetryMax != 2 || cfg.Dispatcher.MaxFailures != 3 {
		t.Fatalf("retry defaults = %+v", cfg.Dispatcher)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := writeYAML(t, `
server:
  port: "9000"
database:
  driver: mysql
  dsn: "pulse:pulse@tcp(localhost:3306)/pulse?parseTime=true"
scheduler:
  scan_interval: 30s
  claim_lease: 2m
dispatcher:
  workers: 8
  price_timeout: 5s
  push_timeout: 20s
`)
	t.Setenv("PULSE_SERVER_PORT", "9100")
	t.Setenv("PULSE_DISPATCHER_WORKERS", "16")
	t.Setenv("PULSE_JWT_ACCESS_SECRET", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9100" {
		t.Errorf("port = %s, env should win over yaml", cfg.Server.Port)
	}
	if cfg.Database.Driver != "mysql" || cfg.Scheduler.ScanInterval != 30*time.Second || cfg.Scheduler.ClaimLease != 2*time.Minute {
		t.Errorf("yaml not applied: %+v %+v", cfg.Database, cfg.Scheduler)
	}
	if cfg.Dispatcher.Workers != 16 || cfg.Dispatcher.PushTimeout != 20*time.Second {
		t.Errorf("dispatcher = %+v", cfg.Dispatcher)
	}
	if cfg.JWT.AccessSecret != "from-env" || cfg.JWT.Issuer != "cryptopulse" {
		t.Errorf("jwt = %+v", cfg.JWT)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing config file accepted")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"driver", func(c *Config) { c.Database.Driver = "postgres" }, "database.driver"},
		{"dsn", func(c *Config) { c.Database.DSN = " " }, "database.dsn"},
		{"secret", func(c *Config) { c.JWT.AccessSecret = "" }, "jwt.access_secret"},
		{"scan interval", func(c *Config) { c.Scheduler.ScanInterval = 0 }, "scan_interval"},
		{"lease", func(c *Config) { c.Scheduler.ClaimLease = 30 * time.Second }, "claim_lease"},
		{"lease shorter than retries", func(c *Config) {
			c.Scheduler.ClaimLease = 2 * time.Minute
			c.Dispatcher.RetryMax = 10
		}, "claim_lease"},
		{"workers", func(c *Config) { c.Dispatcher.Workers = 0 }, "workers"},
		{"max failures", func(c *Config) { c.Dispatcher.MaxFailures = 0 }, "max_failures"},
		{"refresh", func(c *Config) { c.Prices.RefreshInterval = 0 }, "refresh_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}
