package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HyphaGroup/portcullis/internal/schedule"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Address != "127.0.0.1:7333" {
		t.Errorf("Server.Address = %q, want 127.0.0.1:7333", cfg.Server.Address)
	}
	if cfg.Queue.MaxConcurrent != 4 {
		t.Errorf("Queue.MaxConcurrent = %v, want 4", cfg.Queue.MaxConcurrent)
	}
	if cfg.Queue.MaxQueued != 64 {
		t.Errorf("Queue.MaxQueued = %v, want 64", cfg.Queue.MaxQueued)
	}
	if got := cfg.DefaultTimeout(); got != 2*time.Minute {
		t.Errorf("DefaultTimeout() = %v, want 2m", got)
	}
	if got := cfg.LongOpThreshold(); got != 30*time.Second {
		t.Errorf("LongOpThreshold() = %v, want 30s", got)
	}
	if got := cfg.Retention(); got != 10*time.Minute {
		t.Errorf("Retention() = %v, want 10m", got)
	}
	if got := cfg.SweepInterval(); got != 5*time.Second {
		t.Errorf("SweepInterval() = %v, want 5s", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config Validate() error = %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Address != Default().Server.Address {
		t.Errorf("missing config file did not yield defaults")
	}
}

func TestLoad_ParsesJSONC(t *testing.T) {
	dir := t.TempDir()
	content := `{
	// portcullis dev config
	"server": {
		"address": "0.0.0.0:9000" // expose on the lan
	},
	"queue": {
		"max_concurrent": 2,
		"max_queued": 16,
		"default_timeout_ms": 60000
	},
	/* schedules fire on the queue like any caller */
	"schedules": [
		{"name": "nightly", "cron": "0 2 * * *", "prompt": "run the nightly review", "enabled": true}
	]
}`
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Address != "0.0.0.0:9000" {
		t.Errorf("Server.Address = %q, want 0.0.0.0:9000", cfg.Server.Address)
	}
	if cfg.Queue.MaxConcurrent != 2 {
		t.Errorf("Queue.MaxConcurrent = %v, want 2", cfg.Queue.MaxConcurrent)
	}
	if got := cfg.DefaultTimeout(); got != time.Minute {
		t.Errorf("DefaultTimeout() = %v, want 1m", got)
	}
	// Untouched sections keep their defaults
	if cfg.Rate.RequestsPerSecond != 10 {
		t.Errorf("Rate.RequestsPerSecond = %v, want default 10", cfg.Rate.RequestsPerSecond)
	}
	if len(cfg.Schedules) != 1 || cfg.Schedules[0].Name != "nightly" {
		t.Errorf("Schedules = %+v, want the nightly entry", cfg.Schedules)
	}
}

func TestLoad_RejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("{bad json"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := Load(dir); err == nil {
		t.Error("Load() with malformed file error = nil, want error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero concurrency", func(c *Config) { c.Queue.MaxConcurrent = 0 }, true},
		{"capacity below concurrency", func(c *Config) { c.Queue.MaxQueued = 2; c.Queue.MaxConcurrent = 4 }, true},
		{"invalid enabled schedule", func(c *Config) {
			c.Schedules = []schedule.Entry{{Name: "bad", CronExpr: "nope", Enabled: true}}
		}, true},
		{"invalid disabled schedule ignored", func(c *Config) {
			c.Schedules = []schedule.Entry{{Name: "off", CronExpr: "nope", Enabled: false}}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFindConfigPath_ExplicitDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	got, err := FindConfigPath(dir)
	if err != nil {
		t.Fatalf("FindConfigPath() error = %v", err)
	}
	if got != path {
		t.Errorf("FindConfigPath() = %q, want %q", got, path)
	}
}

func TestFindConfigPath_NotFound(t *testing.T) {
	if _, err := FindConfigPath(t.TempDir()); err == nil {
		t.Error("FindConfigPath() error = nil, want error for missing file")
	}
}
