package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/cinerec/internal/recommend"
	"github.com/kalambet/cinerec/internal/storage"
)

const defaultTopN = 5

// Recommender answers similarity lookups for the API layer.
type Recommender interface {
	Recommend(title string, topN int) ([]recommend.Recommendation, error)
	Titles() []string
}

// PosterFetcher resolves poster URLs for a batch of TMDb movie IDs.
type PosterFetcher interface {
	FetchPosters(ctx context.Context, ids []string) []string
}

type AppDeps struct {
	Store   *storage.Store
	Engine  Recommender
	Posters PosterFetcher
	Token   string
}

// RecommendationItem is one entry in a recommendation response, in rank order.
type RecommendationItem struct {
	Title     string  `json:"title"`
	TMDBID    string  `json:"tmdb_id"`
	Score     float32 `json:"score"`
	PosterURL string  `json:"poster_url"`
}

type recommendationResponse struct {
	QueryID string               `json:"query_id"`
	Title   string               `json:"title"`
	Results []RecommendationItem `json:"results"`
}

type movieItem struct {
	Index  int    `json:"index"`
	TMDBID string `json:"tmdb_id"`
	Title  string `json:"title"`
}

type queryItem struct {
	ID        string               `json:"id"`
	CreatedAt time.Time            `json:"created_at"`
	Title     string               `json:"title"`
	TopN      int                  `json:"top_n"`
	Results   []RecommendationItem `json:"results"`
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/movies", handleListMovies(deps))
		r.Get("/recommendations", handleRecommendations(deps))
		r.Get("/queries", handleListQueries(deps))
		r.Get("/queries/{id}", handleGetQuery(deps))
		r.Delete("/queries/{id}", handleDeleteQuery(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleListMovies(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 500)
		offset := parseIntParam(r, "offset", 0, 0)

		movies, err := deps.Store.ListMovies()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list movies: %v", err)
			return
		}

		if offset > len(movies) {
			offset = len(movies)
		}
		end := offset + limit
		if end > len(movies) {
			end = len(movies)
		}

		items := make([]movieItem, 0, end-offset)
		for _, m := range movies[offset:end] {
			items = append(items, movieItem{Index: m.Index, TMDBID: m.TMDBID, Title: m.Title})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"total":  len(movies),
			"movies": items,
		})
	}
}

func handleRecommendations(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		title := r.URL.Query().Get("title")
		if title == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title is required")
			return
		}
		limit := parseIntParam(r, "limit", defaultTopN, 100)

		recs, err := deps.Engine.Recommend(title, limit)
		if errors.Is(err, recommend.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "movie %q not found in catalog", title)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "recommendation failed: %v", err)
			return
		}

		items := enrichWithPosters(r.Context(), deps.Posters, recs)

		queryID := uuid.New().String()
		if err := recordQuery(deps.Store, queryID, title, limit, items); err != nil {
			// Query history is best-effort; the recommendation itself succeeded.
			slog.Warn("failed to record query", "error", err)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(recommendationResponse{
			QueryID: queryID,
			Title:   title,
			Results: items,
		})
	}
}

func handleListQueries(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		queries, err := deps.Store.ListQueries(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list queries: %v", err)
			return
		}

		items := make([]queryItem, 0, len(queries))
		for _, q := range queries {
			items = append(items, toQueryItem(q))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(items)
	}
}

func handleGetQuery(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		q, err := deps.Store.GetQuery(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "query not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get query: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(toQueryItem(q))
	}
}

func handleDeleteQuery(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteQuery(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "query not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete query: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

// enrichWithPosters attaches poster URLs to recommendations. Poster order
// matches recommendation order.
func enrichWithPosters(ctx context.Context, posters PosterFetcher, recs []recommend.Recommendation) []RecommendationItem {
	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.Movie.TMDBID
	}
	urls := posters.FetchPosters(ctx, ids)

	items := make([]RecommendationItem, len(recs))
	for i, rec := range recs {
		items[i] = RecommendationItem{
			Title:     rec.Movie.Title,
			TMDBID:    rec.Movie.TMDBID,
			Score:     rec.Score,
			PosterURL: urls[i],
		}
	}
	return items
}

func recordQuery(store *storage.Store, id, title string, topN int, items []RecommendationItem) error {
	resultsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshaling results: %w", err)
	}
	return store.SaveQuery(storage.Query{
		ID:          id,
		CreatedAt:   time.Now().UTC(),
		Title:       title,
		TopN:        topN,
		ResultsJSON: string(resultsJSON),
	})
}

func toQueryItem(q storage.Query) queryItem {
	var results []RecommendationItem
	if err := json.Unmarshal([]byte(q.ResultsJSON), &results); err != nil {
		slog.Warn("corrupt results JSON in query record", "id", q.ID, "error", err)
	}
	if results == nil {
		results = []RecommendationItem{}
	}
	return queryItem{
		ID:        q.ID,
		CreatedAt: q.CreatedAt,
		Title:     q.Title,
		TopN:      q.TopN,
		Results:   results,
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
