package config

import (
	"os"
	"path/filepath"
)

type Config struct {
	Server  ServerConfig
	API     APIConfig
	Auth    AuthConfig
	Report  ReportConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

// APIConfig describes the remote retailer endpoints. The search index is a
// separate service with its own app/key header pair; the key is the public
// client-side search key shipped with the retailer's web frontend, not a
// secret.
type APIConfig struct {
	BaseURL          string
	SearchAppID      string
	SearchAPIKey     string
	SearchBaseURL    string // derived from SearchAppID when empty
	DefaultWarehouse string
}

type AuthConfig struct {
	File string
}

type ReportConfig struct {
	File string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		Server: ServerConfig{
			Port: 4020,
		},
		API: APIConfig{
			BaseURL:          "https://tienda.mercadona.es/api",
			SearchAppID:      "7UZJKL1DJ0",
			SearchAPIKey:     "9d8f2e39e90df472b4f2e559a116fe17",
			DefaultWarehouse: "4115",
		},
		Auth: AuthConfig{
			File: filepath.Join(home, ".mercadona_auth.json"),
		},
		Report: ReportConfig{
			File: filepath.Join(home, "smart_cart_calculation.json"),
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/mercadona-mcp/config.json, then applies MERCADONA_*
// environment variable overrides on top.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}
