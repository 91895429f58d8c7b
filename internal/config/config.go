// Package config loads the fleet configuration from YAML plus a
// secrets.env overlay, so API keys never live in the YAML file.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk YAML shape.
type Config struct {
	DBPath            string `yaml:"db_path"`
	Headless          bool   `yaml:"headless"`
	UseProxy          bool   `yaml:"use_proxy"`
	GroupSize         int    `yaml:"group_size"`
	GroupPauseSeconds int    `yaml:"group_pause_seconds"`
	BatchSize         int    `yaml:"batch_size"`
	IntervalMinutes   int    `yaml:"interval_minutes"`
	ReplyModel        string `yaml:"reply_model"`

	// OpenAIKey comes from secrets.env or the environment, never YAML.
	OpenAIKey string `yaml:"-"`
}

func Default() Config {
	return Config{
		DBPath:            filepath.Join(configDir(), "flock.db"),
		Headless:          true,
		UseProxy:          true,
		GroupSize:         10,
		GroupPauseSeconds: 5,
		BatchSize:         5,
		IntervalMinutes:   30,
	}
}

func (c Config) GroupPause() time.Duration { return time.Duration(c.GroupPauseSeconds) * time.Second }
func (c Config) Interval() time.Duration   { return time.Duration(c.IntervalMinutes) * time.Minute }

// configDir resolves $XDG_CONFIG_HOME/flock or ~/.config/flock.
func configDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "flock")
}

// Load reads YAML configuration from a path. If path is empty, it
// resolves $XDG_CONFIG_HOME/flock/config.yaml or ~/.config/flock/config.yaml,
// and a missing default file just yields defaults. An explicit path that
// cannot be read is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	resolved := path
	if resolved == "" {
		resolved = filepath.Join(configDir(), "config.yaml")
	}
	f, err := os.Open(resolved)
	if err != nil {
		if path == "" && os.IsNotExist(err) {
			mergeSecrets(&cfg)
			return cfg, nil
		}
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = Default().DBPath
	}

	mergeSecrets(&cfg)
	return cfg, nil
}

// mergeSecrets overlays secrets.env, with the process environment taking
// precedence.
func mergeSecrets(cfg *Config) {
	secrets, _ := LoadSecretsEnv("")
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		secrets["OPENAI_API_KEY"] = v
	}
	if k, ok := secrets["OPENAI_API_KEY"]; ok && k != "" {
		cfg.OpenAIKey = k
	}
}
