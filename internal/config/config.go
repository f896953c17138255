// Package config loads pepedot configuration from a JSON file backend with
// PEPEDOT_* environment variable overrides.
package config

import (
	"os"
	"path/filepath"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
	Export  ExportConfig
	Render  RenderConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type ExportConfig struct {
	// Detailed switches the point-list export from the base column set to
	// the variant with comment, coordinates, page and document columns.
	Detailed bool
}

type RenderConfig struct {
	// Scale is the render scale passed to the page rasterizer.
	Scale float64
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 4600},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Log:     LogConfig{Level: "info"},
		Export:  ExportConfig{Detailed: false},
		Render:  RenderConfig{Scale: 1.5},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "pepedot-data"
		}
	}
	return filepath.Join(dir, "pepedot")
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/pepedot/config.json; environment variables (PEPEDOT_*)
// override backend values.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}
