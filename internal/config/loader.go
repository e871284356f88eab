package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".suzieq"
	// ConfigFile is the default config file name. JSON files are accepted
	// too since the decoder is YAML.
	ConfigFile = "config.yaml"
)

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("SUZIEQ_CONFIG")); explicit != "" {
		return expandHome(explicit)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

// Load loads the configuration from file and environment variables.
// Priority: environment > env files > file > defaults.
func Load() (*Config, error) {
	LoadEnvFiles()
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil // Use defaults if we can't find config path
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	// Each group has its own prefix. Fields whose tag names a historical
	// variable (SUPABASE_URL, BRAIN_URL, ...) also fall back to the bare name.
	groups := []struct {
		prefix string
		spec   any
	}{
		{"SUZIEQ_SERVER", &cfg.Server},
		{"SUZIEQ_STORE", &cfg.Store},
		{"SUZIEQ_BRAIN", &cfg.Brain},
		{"SUZIEQ_EMBEDDING", &cfg.Embedding},
		{"SUZIEQ_RECALL", &cfg.Recall},
		{"SUZIEQ_SLACK", &cfg.Slack},
		{"SUZIEQ_TELEGRAM", &cfg.Telegram},
		{"SUZIEQ_KAFKA", &cfg.Kafka},
		{"SUZIEQ_AUTONOMY", &cfg.Autonomy},
		{"SUZIEQ_SCHEDULER", &cfg.Scheduler},
		{"SUZIEQ_TELEMETRY", &cfg.Telemetry},
		{"SUZIEQ_LOG", &cfg.Log},
	}
	for _, g := range groups {
		if err := envconfig.Process(g.prefix, g.spec); err != nil {
			return nil, fmt.Errorf("env %s: %w", g.prefix, err)
		}
	}

	// An embedding key implies embeddings are wanted.
	if !cfg.Embedding.Enabled && cfg.Embedding.APIKey != "" {
		cfg.Embedding.Enabled = true
	}

	for _, p := range []*string{&cfg.Store.SQLitePath, &cfg.Scheduler.LockPath} {
		if expanded, err := expandHome(*p); err == nil {
			*p = expanded
		}
	}
	return cfg, nil
}

// StoreDriver resolves the effective store driver.
func (c *Config) StoreDriver() string {
	switch d := strings.ToLower(strings.TrimSpace(c.Store.Driver)); d {
	case "":
		if c.Store.URL != "" {
			return "postgrest"
		}
		return "sqlite"
	default:
		return d
	}
}

// Save writes the config to the config path, creating the directory.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func expandHome(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, p[1:]), nil
}
