package config

import (
	"fmt"

	"github.com/google/uuid"
)

type Config struct {
	Server  ServerConfig
	TMDB    TMDBConfig
	Poster  PosterConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type TMDBConfig struct {
	BaseURL      string
	ImageBaseURL string
	APIKey       string
	Language     string
}

// PosterConfig controls the poster enrichment layer. Durations are stored as
// strings ("10s", "6h") and parsed at wire-up time.
type PosterConfig struct {
	Timeout     string
	MaxAttempts int
	Workers     int
	CacheTTL    string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		TMDB: TMDBConfig{
			BaseURL:      "https://api.themoviedb.org/3",
			ImageBaseURL: "https://image.tmdb.org/t/p/w500",
			Language:     "en-US",
		},
		Poster: PosterConfig{
			Timeout:     "10s",
			MaxAttempts: 3,
			Workers:     5,
			CacheTTL:    "6h",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/cinerec/config.json, then applies CINEREC_* environment
// variable overrides. The TMDb API key is a secret: it is never read from the
// file backend and must come from the environment.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.TMDB.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: TMDb API key. " +
			"Set it via environment variable CINEREC_TMDB_API_KEY")
	}

	return cfg, nil
}

const apiTokenKey = "server.api_token"

// GetAPIToken returns the bearer token for the management API, generating and
// persisting one on first use.
func GetAPIToken() (string, error) {
	return ensureAPIToken(newFileBackend())
}

func ensureAPIToken(b ConfigBackend) (string, error) {
	tok, ok, err := b.GetString(apiTokenKey)
	if err != nil {
		return "", fmt.Errorf("reading API token: %w", err)
	}
	if ok && tok != "" {
		return tok, nil
	}
	tok = uuid.New().String()
	if err := b.SetString(apiTokenKey, tok); err != nil {
		return "", fmt.Errorf("persisting API token: %w", err)
	}
	return tok, nil
}
