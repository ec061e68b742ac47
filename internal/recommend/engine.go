package recommend

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kalambet/cinerec/internal/storage"
)

// ErrNotFound is returned when the query title is not in the catalog.
var ErrNotFound = errors.New("movie not found")

// Movie is one catalog entry as seen by the recommender.
type Movie struct {
	Index  int
	TMDBID string
	Title  string
}

// Recommendation pairs a catalog movie with its similarity to the query movie.
type Recommendation struct {
	Movie Movie
	Score float32
}

// CatalogStore abstracts the artifact reads needed to build an Engine.
type CatalogStore interface {
	ListMovies() ([]storage.Movie, error)
	GetSimilarityRow(idx int) ([]float32, error)
}

// Engine answers similarity lookups over an immutable in-memory catalog and
// matrix. All state is loaded once at startup and never mutated, so Recommend
// is safe to call from any number of goroutines.
type Engine struct {
	movies  []Movie
	byTitle map[string]int
	matrix  [][]float32
}

// Load reads the full catalog and similarity matrix from the store and
// validates their shape. Any error here means the artifact is missing or
// corrupt and the process should not serve requests.
func Load(store CatalogStore) (*Engine, error) {
	records, err := store.ListMovies()
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("catalog is empty: import an artifact first")
	}

	movies := make([]Movie, len(records))
	byTitle := make(map[string]int, len(records))
	for i, r := range records {
		if r.Index != i {
			return nil, fmt.Errorf("catalog has a gap: entry %d has index %d", i, r.Index)
		}
		movies[i] = Movie{Index: r.Index, TMDBID: r.TMDBID, Title: r.Title}
		// Duplicate titles keep the first matching index.
		if _, ok := byTitle[r.Title]; !ok {
			byTitle[r.Title] = i
		} else {
			slog.Warn("duplicate title in catalog, keeping first", "title", r.Title, "index", i)
		}
	}

	matrix := make([][]float32, len(movies))
	for i := range movies {
		row, err := store.GetSimilarityRow(i)
		if err != nil {
			return nil, fmt.Errorf("loading similarity row %d: %w", i, err)
		}
		if len(row) != len(movies) {
			return nil, fmt.Errorf("similarity row %d has %d scores, want %d", i, len(row), len(movies))
		}
		matrix[i] = row
	}

	return &Engine{movies: movies, byTitle: byTitle, matrix: matrix}, nil
}

// Len returns the catalog size.
func (e *Engine) Len() int {
	return len(e.movies)
}

// Titles returns all catalog titles in matrix order.
func (e *Engine) Titles() []string {
	titles := make([]string, len(e.movies))
	for i, m := range e.movies {
		titles[i] = m.Title
	}
	return titles
}

// Recommend returns the topN movies most similar to the given title,
// descending by score. The query movie itself is never included. Ties keep
// the matrix's natural index order (lower index first). Returns ErrNotFound
// if the title is not in the catalog; the matrix is never indexed before
// that check.
func (e *Engine) Recommend(title string, topN int) ([]Recommendation, error) {
	if topN < 0 {
		return nil, fmt.Errorf("topN must be >= 0, got %d", topN)
	}

	q, ok := e.byTitle[title]
	if !ok {
		return nil, fmt.Errorf("%q: %w", title, ErrNotFound)
	}

	scores := e.matrix[q]
	candidates := make([]int, 0, len(e.movies)-1)
	for i := range e.movies {
		if i != q {
			candidates = append(candidates, i)
		}
	}

	// Stable sort: equal scores preserve ascending index order.
	sort.SliceStable(candidates, func(a, b int) bool {
		return scores[candidates[a]] > scores[candidates[b]]
	})

	if topN > len(candidates) {
		topN = len(candidates)
	}

	recs := make([]Recommendation, topN)
	for i := 0; i < topN; i++ {
		idx := candidates[i]
		recs[i] = Recommendation{Movie: e.movies[idx], Score: scores[idx]}
	}
	return recs, nil
}
