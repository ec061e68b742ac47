package storage

import (
	"database/sql"
	"embed"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the recommendation artifact
// (catalog + similarity matrix) and the recorded query history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "cinerec.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying database handle for callers that need raw SQL access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Catalog ---

// SaveMovie inserts or replaces a catalog entry.
func (s *Store) SaveMovie(m Movie) error {
	_, err := s.db.Exec(`
		INSERT INTO movies (idx, tmdb_id, title) VALUES (?, ?, ?)
		ON CONFLICT(idx) DO UPDATE SET tmdb_id = excluded.tmdb_id, title = excluded.title`,
		m.Index, m.TMDBID, m.Title,
	)
	return err
}

// ListMovies returns the full catalog ordered by matrix index.
func (s *Store) ListMovies() ([]Movie, error) {
	rows, err := s.db.Query("SELECT idx, tmdb_id, title FROM movies ORDER BY idx ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movies []Movie
	for rows.Next() {
		var m Movie
		if err := rows.Scan(&m.Index, &m.TMDBID, &m.Title); err != nil {
			return nil, err
		}
		movies = append(movies, m)
	}
	return movies, rows.Err()
}

// CountMovies returns the number of catalog entries.
func (s *Store) CountMovies() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM movies").Scan(&count)
	return count, err
}

// --- Similarity matrix ---

// SaveSimilarityRow stores one matrix row as a little-endian float32 blob.
func (s *Store) SaveSimilarityRow(idx int, scores []float32) error {
	_, err := s.db.Exec(`
		INSERT INTO similarity (idx, scores) VALUES (?, ?)
		ON CONFLICT(idx) DO UPDATE SET scores = excluded.scores`,
		idx, encodeFloat32s(scores),
	)
	return err
}

// GetSimilarityRow returns the matrix row for the given index.
func (s *Store) GetSimilarityRow(idx int) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRow("SELECT scores FROM similarity WHERE idx = ?", idx).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	scores, err := decodeFloat32s(blob)
	if err != nil {
		return nil, fmt.Errorf("decoding similarity row %d: %w", idx, err)
	}
	return scores, nil
}

// ImportCatalog replaces the catalog and similarity matrix in one transaction.
// movies must be ordered by matrix index and matrix must be square with
// dimension len(movies).
func (s *Store) ImportCatalog(movies []Movie, matrix [][]float32) error {
	if len(matrix) != len(movies) {
		return fmt.Errorf("matrix has %d rows, catalog has %d entries", len(matrix), len(movies))
	}
	for i, row := range matrix {
		if len(row) != len(movies) {
			return fmt.Errorf("matrix row %d has %d columns, want %d", i, len(row), len(movies))
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning import transaction: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM movies"); err != nil {
		tx.Rollback()
		return fmt.Errorf("clearing movies: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM similarity"); err != nil {
		tx.Rollback()
		return fmt.Errorf("clearing similarity: %w", err)
	}

	movieStmt, err := tx.Prepare("INSERT INTO movies (idx, tmdb_id, title) VALUES (?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing movie insert: %w", err)
	}
	defer movieStmt.Close()

	rowStmt, err := tx.Prepare("INSERT INTO similarity (idx, scores) VALUES (?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing similarity insert: %w", err)
	}
	defer rowStmt.Close()

	for i, m := range movies {
		if _, err := movieStmt.Exec(i, m.TMDBID, m.Title); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting movie %d (%q): %w", i, m.Title, err)
		}
		if _, err := rowStmt.Exec(i, encodeFloat32s(matrix[i])); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting similarity row %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// --- Query history ---

// SaveQuery records a served recommendation request.
func (s *Store) SaveQuery(q Query) error {
	resultsJSON := q.ResultsJSON
	if resultsJSON == "" {
		resultsJSON = "[]"
	}
	_, err := s.db.Exec(`
		INSERT INTO queries (id, created_at, title, top_n, results_json)
		VALUES (?, ?, ?, ?, ?)`,
		q.ID, q.CreatedAt.UTC().Format(time.RFC3339), q.Title, q.TopN, resultsJSON,
	)
	return err
}

// GetQuery returns a recorded query by ID.
func (s *Store) GetQuery(id string) (Query, error) {
	var q Query
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, created_at, title, top_n, results_json
		FROM queries WHERE id = ?`, id,
	).Scan(&q.ID, &createdAt, &q.Title, &q.TopN, &q.ResultsJSON)
	if err == sql.ErrNoRows {
		return Query{}, ErrNotFound
	}
	if err != nil {
		return Query{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Query{}, fmt.Errorf("parsing created_at: %w", err)
	}
	q.CreatedAt = t
	return q, nil
}

// ListQueries returns recorded queries, newest first.
func (s *Store) ListQueries(limit, offset int) ([]Query, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, title, top_n, results_json
		FROM queries ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Query
	for rows.Next() {
		var q Query
		var createdAt string
		if err := rows.Scan(&q.ID, &createdAt, &q.Title, &q.TopN, &q.ResultsJSON); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		q.CreatedAt = t
		results = append(results, q)
	}
	return results, rows.Err()
}

// DeleteQuery removes a recorded query by ID.
func (s *Store) DeleteQuery(id string) error {
	res, err := s.db.Exec("DELETE FROM queries WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
// Returns an error if the byte slice length is not a multiple of 4 (indicates data corruption).
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
