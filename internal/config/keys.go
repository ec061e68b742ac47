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
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "CINEREC_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "tmdb.base_url", typ: kString, env: "CINEREC_TMDB_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.TMDB.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.TMDB.BaseURL },
	},
	{
		key: "tmdb.image_base_url", typ: kString, env: "CINEREC_TMDB_IMAGE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.TMDB.ImageBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.TMDB.ImageBaseURL },
	},
	{
		key: "tmdb.api_key", typ: kString, env: "CINEREC_TMDB_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.TMDB.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.TMDB.APIKey },
	},
	{
		key: "tmdb.language", typ: kString, env: "CINEREC_TMDB_LANGUAGE",
		apply:   func(cfg *Config, v any) { cfg.TMDB.Language = v.(string) },
		extract: func(cfg Config) any { return cfg.TMDB.Language },
	},
	{
		key: "poster.timeout", typ: kString, env: "CINEREC_POSTER_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Poster.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Poster.Timeout },
	},
	{
		key: "poster.max_attempts", typ: kInt, env: "CINEREC_POSTER_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Poster.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Poster.MaxAttempts },
	},
	{
		key: "poster.workers", typ: kInt, env: "CINEREC_POSTER_WORKERS",
		apply:   func(cfg *Config, v any) { cfg.Poster.Workers = v.(int) },
		extract: func(cfg Config) any { return cfg.Poster.Workers },
	},
	{
		key: "poster.cache_ttl", typ: kString, env: "CINEREC_POSTER_CACHE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Poster.CacheTTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Poster.CacheTTL },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CINEREC_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "CINEREC_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
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
