// Package config loads Portcullis configuration from portcullis.jsonc.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/HyphaGroup/portcullis/internal/schedule"
)

// ConfigFileName is the expected configuration file name
const ConfigFileName = "portcullis.jsonc"

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address string `json:"address"`
	LogDir  string `json:"log_dir"`
	LogJSON bool   `json:"log_json"`
}

// AgentConfig holds agent subprocess settings
type AgentConfig struct {
	Command                 string   `json:"command"` // empty: look up "claude" on PATH
	Model                   string   `json:"model"`
	AttachmentDir           string   `json:"attachment_dir"`
	SkipPermissions         bool     `json:"skip_permissions"`
	AllowedTools            []string `json:"allowed_tools"`
	MaxAttachments          int      `json:"max_attachments"`
	MaxAttachmentBytes      int64    `json:"max_attachment_bytes"`
	MaxTotalAttachmentBytes int64    `json:"max_total_attachment_bytes"`
}

// QueueConfig holds task queue settings. Durations are milliseconds.
type QueueConfig struct {
	MaxConcurrent     int   `json:"max_concurrent"`
	MaxQueued         int   `json:"max_queued"`
	DefaultTimeoutMs  int64 `json:"default_timeout_ms"`
	LongOpThresholdMs int64 `json:"long_op_threshold_ms"`
	RetentionMs       int64 `json:"retention_ms"`
	SweepIntervalMs   int64 `json:"sweep_interval_ms"`
}

// HistoryConfig holds task history settings
type HistoryConfig struct {
	Enabled       bool   `json:"enabled"`
	DataDir       string `json:"data_dir"`
	RetentionDays int    `json:"retention_days"`
}

// RateConfig holds per-caller submission rate limiting
type RateConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
}

// Config is the full loaded configuration
type Config struct {
	Server    ServerConfig     `json:"server"`
	Agent     AgentConfig      `json:"agent"`
	Queue     QueueConfig      `json:"queue"`
	History   HistoryConfig    `json:"history"`
	Rate      RateConfig       `json:"rate"`
	Schedules []schedule.Entry `json:"schedules"`
}

// Default returns the baseline configuration
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address: "127.0.0.1:7333",
			LogDir:  "data/logs",
		},
		Agent: AgentConfig{
			MaxAttachments:          5,
			MaxAttachmentBytes:      4 * 1024 * 1024,
			MaxTotalAttachmentBytes: 16 * 1024 * 1024,
		},
		Queue: QueueConfig{
			MaxConcurrent:     4,
			MaxQueued:         64,
			DefaultTimeoutMs:  120_000,
			LongOpThresholdMs: 30_000,
			RetentionMs:       600_000,
			SweepIntervalMs:   5_000,
		},
		History: HistoryConfig{
			Enabled:       true,
			DataDir:       "data",
			RetentionDays: 7,
		},
		Rate: RateConfig{
			RequestsPerSecond: 10,
			Burst:             20,
		},
	}
}

// FindConfigPath locates the config file: an explicit dir first, then
// the working directory.
func FindConfigPath(configDir string) (string, error) {
	candidates := []string{}
	if configDir != "" {
		candidates = append(candidates, filepath.Join(configDir, ConfigFileName))
	}
	candidates = append(candidates, ConfigFileName)

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("config file %s not found", ConfigFileName)
}

// Load reads and parses the config file over the defaults. A missing
// file is not an error; the defaults apply.
func Load(configDir string) (*Config, error) {
	cfg := Default()

	path, err := FindConfigPath(configDir)
	if err != nil {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(StripJSONComments(data), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if c.Queue.MaxConcurrent <= 0 {
		return fmt.Errorf("queue.max_concurrent must be positive")
	}
	if c.Queue.MaxQueued < c.Queue.MaxConcurrent {
		return fmt.Errorf("queue.max_queued must be at least queue.max_concurrent")
	}
	for _, entry := range c.Schedules {
		if !entry.Enabled {
			continue
		}
		if err := schedule.ValidateCron(entry.CronExpr); err != nil {
			return fmt.Errorf("schedule %q: %w", entry.Name, err)
		}
	}
	return nil
}

// DefaultTimeout returns the queue default timeout as a duration
func (c *Config) DefaultTimeout() time.Duration {
	return time.Duration(c.Queue.DefaultTimeoutMs) * time.Millisecond
}

// LongOpThreshold returns the serialized-executor threshold as a duration
func (c *Config) LongOpThreshold() time.Duration {
	return time.Duration(c.Queue.LongOpThresholdMs) * time.Millisecond
}

// Retention returns the terminal task retention window as a duration
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Queue.RetentionMs) * time.Millisecond
}

// SweepInterval returns the sweep cadence as a duration
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Queue.SweepIntervalMs) * time.Millisecond
}
