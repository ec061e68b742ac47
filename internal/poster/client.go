package poster

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Placeholder URLs returned when no real poster can be resolved. A lookup
// always yields one of these or a real image URL, never an error.
const (
	NoPosterPlaceholder = "https://via.placeholder.com/500x750.png?text=No+Poster+Available"
	ErrorPlaceholder    = "https://via.placeholder.com/500x750.png?text=Error+Loading+Poster"
)

// ClientConfig holds the knobs for the TMDb metadata client.
// Zero values fall back to the defaults: 10s per-attempt timeout,
// 3 total attempts with 1s/2s/4s backoff, 6h cache TTL.
type ClientConfig struct {
	BaseURL      string
	ImageBaseURL string
	APIKey       string
	Language     string
	Timeout      time.Duration // per-attempt request timeout
	MaxAttempts  int           // total attempts including the first
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	CacheTTL     time.Duration
}

// Client resolves TMDb movie ids to poster image URLs. Failures of any kind
// degrade to a placeholder URL; transient failures are retried internally
// before degrading. Safe for concurrent use.
type Client struct {
	baseURL   string
	imageBase string
	apiKey    string
	language  string
	http      *http.Client
	cache     *Cache
	logger    *slog.Logger
}

// NewClient creates a Client for the given TMDb endpoint.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = 1 * time.Second
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = 4 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 6 * time.Hour
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxAttempts - 1
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = nil
	rc.CheckRetry = checkRetry

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		imageBase: strings.TrimRight(cfg.ImageBaseURL, "/"),
		apiKey:    cfg.APIKey,
		language:  cfg.Language,
		http:      rc.StandardClient(),
		cache:     NewCache(cfg.CacheTTL),
		logger:    slog.Default(),
	}
}

// checkRetry retries transport errors and the transient TMDb status set.
// Anything else (including 4xx client errors) fails the attempt immediately.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true, nil
	}
	return false, nil
}

// movieResponse mirrors the fields of GET /movie/{id} we care about.
// poster_path may be JSON null, which decodes to the empty string.
type movieResponse struct {
	PosterPath string `json:"poster_path"`
	Title      string `json:"title"`
}

// Resolve returns the poster image URL for the given TMDb id. Cached results
// are served without a network call until they expire. On any failure a
// placeholder URL is returned; Resolve never fails.
func (c *Client) Resolve(ctx context.Context, id string) string {
	if cached, ok := c.cache.Get(id); ok {
		return cached
	}

	endpoint := fmt.Sprintf("%s/movie/%s?api_key=%s&language=%s",
		c.baseURL, url.PathEscape(id), url.QueryEscape(c.apiKey), url.QueryEscape(c.language))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.logger.Warn("building poster request failed", "movie_id", id, "error", err)
		return ErrorPlaceholder
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Retries are already exhausted at this point.
		c.logger.Warn("poster fetch failed", "movie_id", id, "error", err)
		return ErrorPlaceholder
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("poster fetch returned unexpected status", "movie_id", id, "status", resp.StatusCode)
		return ErrorPlaceholder
	}

	var movie movieResponse
	if err := json.NewDecoder(resp.Body).Decode(&movie); err != nil {
		c.logger.Warn("decoding poster response failed", "movie_id", id, "error", err)
		return ErrorPlaceholder
	}

	if movie.PosterPath == "" {
		// Absence may be metadata lag on TMDb's side; skip the cache so a
		// later lookup gets another chance.
		c.logger.Debug("no poster path for movie", "movie_id", id, "title", movie.Title)
		return NoPosterPlaceholder
	}

	full := c.imageBase + ensureLeadingSlash(movie.PosterPath)
	c.cache.Set(id, full)
	return full
}

func ensureLeadingSlash(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}
