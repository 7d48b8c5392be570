package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "MERCADONA_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "api.base_url", typ: kString, env: "MERCADONA_API_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.API.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.API.BaseURL },
	},
	{
		key: "api.search_app_id", typ: kString, env: "MERCADONA_SEARCH_APP_ID",
		apply:   func(cfg *Config, v any) { cfg.API.SearchAppID = v.(string) },
		extract: func(cfg Config) any { return cfg.API.SearchAppID },
	},
	{
		key: "api.search_api_key", typ: kString, env: "MERCADONA_SEARCH_API_KEY",
		apply:   func(cfg *Config, v any) { cfg.API.SearchAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.API.SearchAPIKey },
	},
	{
		key: "api.search_base_url", typ: kString, env: "MERCADONA_SEARCH_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.API.SearchBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.API.SearchBaseURL },
	},
	{
		key: "api.default_warehouse", typ: kString, env: "MERCADONA_DEFAULT_WAREHOUSE",
		apply:   func(cfg *Config, v any) { cfg.API.DefaultWarehouse = v.(string) },
		extract: func(cfg Config) any { return cfg.API.DefaultWarehouse },
	},
	{
		key: "auth.file", typ: kString, env: "MERCADONA_AUTH_FILE",
		apply:   func(cfg *Config, v any) { cfg.Auth.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.File },
	},
	{
		key: "report.file", typ: kString, env: "MERCADONA_REPORT_FILE",
		apply:   func(cfg *Config, v any) { cfg.Report.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Report.File },
	},
	{
		key: "storage.data_dir", typ: kString, env: "MERCADONA_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "MERCADONA_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
