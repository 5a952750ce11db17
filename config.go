package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration file. Flags that were set explicitly on
// the command line override it.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	Serve  ServeConfig  `yaml:"serve"`
	Mirror MirrorConfig `yaml:"mirror"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type ServeConfig struct {
	Root     string `yaml:"root"`
	Addr     string `yaml:"addr"`
	BasePath string `yaml:"base_path"`
	Home     string `yaml:"home"`
}

type MirrorConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Home        string        `yaml:"home"`
	Route       string        `yaml:"route"`
	Out         string        `yaml:"out"`
	MetricsAddr string        `yaml:"metrics_addr"`
	Timeout     time.Duration `yaml:"timeout"`

	SnapshotRetry RetryConfig `yaml:"snapshot_retry"`
	Reconnect     RetryConfig `yaml:"reconnect"`
}

func DefaultConfig() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Serve: ServeConfig{
			Root:     ".",
			Addr:     "localhost:3456",
			BasePath: "/docnav",
			Home:     DefaultHome,
		},
		Mirror: MirrorConfig{
			BaseURL:       "http://localhost:3456/docnav",
			Home:          DefaultHome,
			Timeout:       10 * time.Second,
			SnapshotRetry: defaultSnapshotRetry(),
			Reconnect:     defaultReconnectRetry(),
		},
	}
}

// loadConfig returns the defaults overlaid with the file at path. An empty
// path returns the defaults.
func loadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read the config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Mirror.Timeout < 0 {
		return fmt.Errorf("mirror.timeout must not be negative")
	}
	for name, r := range map[string]RetryConfig{"mirror.snapshot_retry": c.Mirror.SnapshotRetry, "mirror.reconnect": c.Mirror.Reconnect} {
		if r.InitialInterval <= 0 || r.MaxInterval < r.InitialInterval {
			return fmt.Errorf("%s: intervals must be positive and max_interval >= initial_interval", name)
		}
		if r.Multiplier < 1 {
			return fmt.Errorf("%s: multiplier must be at least 1", name)
		}
	}
	return nil
}
