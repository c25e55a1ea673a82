// Package config loads the host configuration from a YAML or JSON file.
// Every field has a sensible default so the file is optional; command
// line flags override whatever the file provides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the serve command settings. Durations are plain strings
// ("30s", "15m") and get parsed where they are consumed.
type Config struct {
	// SeedDir points at the seed document repository. Empty means the
	// host starts with blank session documents.
	SeedDir string `yaml:"seed_dir" json:"seed_dir"`

	// AdminAddr is the listen address of the admin HTTP server.
	AdminAddr string `yaml:"admin_addr" json:"admin_addr"`

	// Linger is how long a session survives after its last connection
	// closes before a sweep may discard it.
	Linger string `yaml:"linger" json:"linger"`

	// SweepInterval is the period of the background cleanup sweep.
	// "0" disables the sweeper.
	SweepInterval string `yaml:"sweep_interval" json:"sweep_interval"`

	// Store selects the snapshot backend: memory, file or redis.
	Store string `yaml:"store" json:"store"`

	// SnapshotsDir is the base directory of the file store.
	SnapshotsDir string `yaml:"snapshots_dir" json:"snapshots_dir"`

	// RedisAddr is the address of the redis store, host:port.
	RedisAddr string `yaml:"redis_addr" json:"redis_addr"`

	// RedisPassword authenticates against the redis store. Empty means
	// no AUTH.
	RedisPassword string `yaml:"redis_password" json:"redis_password"`

	// RedisDB selects the redis logical database.
	RedisDB int `yaml:"redis_db" json:"redis_db"`

	// EncryptionKey, when set, encrypts snapshots at rest. Accepts a
	// passphrase of any length.
	EncryptionKey string `yaml:"encryption_key" json:"encryption_key"`

	// Develop reloads the seed repository when files under SeedDir
	// change.
	Develop bool `yaml:"develop" json:"develop"`

	// Metrics exposes Prometheus metrics on the admin server.
	Metrics bool `yaml:"metrics" json:"metrics"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// Default returns the configuration used when no file and no flags are
// given.
func Default() Config {
	return Config{
		AdminAddr:     ":8080",
		Linger:        "15s",
		SweepInterval: "30s",
		Store:         "memory",
		SnapshotsDir:  filepath.Join(".bower", "snapshots"),
		RedisAddr:     "localhost:6379",
		LogLevel:      "info",
	}
}

// Load reads a configuration file (YAML or JSON) and returns it merged
// over the defaults. A missing file is not an error; it just means
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))

	if ext == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else {
		// Default to YAML
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	}

	return cfg, nil
}
