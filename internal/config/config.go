// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config is the full service configuration. It is loaded from a JSON
// file (defaults are written on first run) and then overridden from
// the environment.
type Config struct {
	DataDir       string `json:"data_dir" env:"TELERPG_DATA_DIR"`
	LogLevel      string `json:"log_level" env:"TELERPG_LOG_LEVEL"`
	MaxConcurrent int    `json:"max_concurrent" env:"TELERPG_MAX_CONCURRENT"`
	Database      struct {
		URL string `json:"url" env:"DATABASE_URL"`
	} `json:"database"`
	Telegram struct {
		Token string `json:"token" env:"TELEGRAM_BOT_TOKEN"`
	} `json:"telegram"`
	HTTP struct {
		Addr string `json:"addr" env:"TELERPG_HTTP_ADDR"`
	} `json:"http"`
	Scheduler struct {
		SweepInterval string `json:"sweep_interval" env:"TELERPG_SWEEP_INTERVAL"`
	} `json:"scheduler"`
	Metrics struct {
		Namespace string `json:"namespace" env:"TELERPG_METRICS_NAMESPACE"`
	} `json:"metrics"`
}

// Load reads the config file at path, writing defaults first if it
// does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:       filepath.Join(os.Getenv("HOME"), ".telerpg"),
		LogLevel:      "info",
		MaxConcurrent: 4,
	}
	cfg.HTTP.Addr = ":8080"
	cfg.Scheduler.SweepInterval = "@every 1m"
	cfg.Metrics.Namespace = "telerpg"

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Env overrides take highest precedence.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}

	return cfg, nil
}

// Save writes the config to path atomically, creating the parent
// directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap round-trips the config through JSON into a nested map.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues returns all config values as a flat dot-separated map,
// with secrets masked when mask is true.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue loads the config file and returns one value by
// dot-separated key.
func GetValue(path, key string) (any, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	raw, err := loadRawMap(path)
	if err != nil {
		return nil, err
	}
	// Prefer the raw file map so ad-hoc keys survive; fall back to the
	// struct for defaults on a fresh file.
	flat := Flatten(raw)
	if v, ok := flat[key]; ok {
		return v, nil
	}
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	if v, ok := Flatten(m)[key]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("unknown config key: %s", key)
}

// SetValue updates one value in the config file by dot-separated key.
// The value string is parsed as JSON when possible, so numbers and
// booleans keep their type.
func SetValue(path, key, value string) (err error) {
	if _, statErr := os.Stat(path); statErr != nil {
		return fmt.Errorf("read config: %w", statErr)
	}
	raw, err := loadRawMap(path)
	if err != nil {
		return err
	}

	var typed any
	if jsonErr := json.Unmarshal([]byte(value), &typed); jsonErr != nil {
		typed = value
	}

	flat := Flatten(raw)
	flat[key] = typed
	nested := Unflatten(flat)

	data, err := json.MarshalIndent(nested, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

func loadRawMap(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return m, nil
}
