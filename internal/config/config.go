// Package config loads the POS core configuration from a YAML file
// with environment variable overrides. Every knob has a working
// default so a bare binary comes up pointed at nothing but still runs
// offline.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ldttech/poscore/internal/errors"
)

// Defaults applied when neither file nor environment say otherwise.
const (
	DefaultListenAddr    = "127.0.0.1:8790"
	DefaultDataDir       = "./data"
	DefaultCompany       = "LDT TECH"
	DefaultSyncInterval  = 5 * time.Minute
	DefaultProbeInterval = 10 * time.Second
	DefaultPageLength    = 20
	DefaultSweepAge      = time.Hour
)

// Config is the full runtime configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DataDir    string `yaml:"data_dir"`
	LogLevel   string `yaml:"log_level"`

	Remote RemoteConfig `yaml:"remote"`
	Sync   SyncConfig   `yaml:"sync"`
}

// RemoteConfig points at the ERP backend. Credentials normally come
// from the login flow and the settings store, but can be pinned here
// for headless terminals.
type RemoteConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Company   string `yaml:"company"`
}

// SyncConfig tunes the background sync and connectivity loops.
type SyncConfig struct {
	Interval      time.Duration `yaml:"interval"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
	PageLength    int           `yaml:"page_length"`
	SweepAge      time.Duration `yaml:"sweep_age"`
}

// Default returns a Config with every field set to its default.
func Default() *Config {
	return &Config{
		ListenAddr: DefaultListenAddr,
		DataDir:    DefaultDataDir,
		LogLevel:   "info",
		Remote: RemoteConfig{
			Company: DefaultCompany,
		},
		Sync: SyncConfig{
			Interval:      DefaultSyncInterval,
			ProbeInterval: DefaultProbeInterval,
			PageLength:    DefaultPageLength,
			SweepAge:      DefaultSweepAge,
		},
	}
}

// Load reads the config file at path, if it exists, then applies
// environment overrides. A missing file is not an error; a malformed
// one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrInvalid, "failed to read config file", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrap(errors.ErrInvalid, "failed to parse config file", err)
			}
		}
	}

	cfg.applyEnv()
	cfg.fillDefaults()
	return cfg, nil
}

// applyEnv overlays POSCORE_* environment variables.
func (c *Config) applyEnv() {
	setString(&c.ListenAddr, "POSCORE_LISTEN_ADDR")
	setString(&c.DataDir, "POSCORE_DATA_DIR")
	setString(&c.LogLevel, "POSCORE_LOG_LEVEL")
	setString(&c.Remote.BaseURL, "POSCORE_REMOTE_URL")
	setString(&c.Remote.APIKey, "POSCORE_API_KEY")
	setString(&c.Remote.APISecret, "POSCORE_API_SECRET")
	setString(&c.Remote.Company, "POSCORE_COMPANY")
	setDuration(&c.Sync.Interval, "POSCORE_SYNC_INTERVAL")
	setDuration(&c.Sync.ProbeInterval, "POSCORE_PROBE_INTERVAL")
	setInt(&c.Sync.PageLength, "POSCORE_PAGE_LENGTH")
	setDuration(&c.Sync.SweepAge, "POSCORE_SWEEP_AGE")
}

// fillDefaults repairs zero values a partial file may have left.
func (c *Config) fillDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Remote.Company == "" {
		c.Remote.Company = DefaultCompany
	}
	if c.Sync.Interval <= 0 {
		c.Sync.Interval = DefaultSyncInterval
	}
	if c.Sync.ProbeInterval <= 0 {
		c.Sync.ProbeInterval = DefaultProbeInterval
	}
	if c.Sync.PageLength <= 0 {
		c.Sync.PageLength = DefaultPageLength
	}
	if c.Sync.SweepAge <= 0 {
		c.Sync.SweepAge = DefaultSweepAge
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
