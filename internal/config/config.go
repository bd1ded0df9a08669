package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

type PrefetchConfig struct {
	WarmSize    int `toml:"warm_size"`
	Concurrency int `toml:"concurrency"`
	PageSize    int `toml:"page_size"`
}

type HistoryConfig struct {
	PageSize int `toml:"page_size"`
}

type StreamConfig struct {
	ReconnectSeconds int `toml:"reconnect_seconds"`
}

type Config struct {
	Endpoint string         `toml:"endpoint"`
	DataDir  string         `toml:"data_dir"`
	Prefetch PrefetchConfig `toml:"prefetch"`
	History  HistoryConfig  `toml:"history"`
	Stream   StreamConfig   `toml:"stream"`
}

func Default() Config {
	return Config{
		Endpoint: "http://127.0.0.1:4096",
		DataDir:  defaultDataDir(),
		Prefetch: PrefetchConfig{
			WarmSize:    10,
			Concurrency: 1,
			PageSize:    50,
		},
		History: HistoryConfig{
			PageSize: 50,
		},
		Stream: StreamConfig{
			ReconnectSeconds: 2,
		},
	}
}

// LoadOrCreate reads the config at path, writing the defaults there first
// when the file does not exist yet.
func LoadOrCreate(path string) (Config, error) {
	config := Default()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return config, err
			}

			configData, err := toml.Marshal(config)
			if err != nil {
				return config, err
			}

			if err := os.WriteFile(path, configData, 0o644); err != nil {
				return config, err
			}

			return config, nil
		}

		return config, err
	}

	configData, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	if err := toml.Unmarshal(configData, &config); err != nil {
		return config, err
	}

	config.DataDir = expandPath(config.DataDir)
	config.Endpoint = strings.TrimSpace(config.Endpoint)

	if config.Endpoint == "" {
		return config, errors.New("endpoint is required")
	}
	if config.Prefetch.WarmSize <= 0 {
		config.Prefetch.WarmSize = 10
	}
	if config.Prefetch.Concurrency <= 0 {
		config.Prefetch.Concurrency = 1
	}
	if config.History.PageSize <= 0 {
		config.History.PageSize = 50
	}

	return config, nil
}

func defaultDataDir() string {
	homeDir, _ := os.UserHomeDir()

	if homeDir == "" {
		return ".strand"
	}

	return filepath.Join(homeDir, ".strand")
}

func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
		}
	}

	return path
}
