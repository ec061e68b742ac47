package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Movie is one catalog entry. Index is the movie's row position in the
// similarity matrix, assigned by the offline build job and stable for the
// lifetime of the artifact.
type Movie struct {
	Index  int
	TMDBID string
	Title  string
}

// Query is one recorded recommendation request.
type Query struct {
	ID          string
	CreatedAt   time.Time
	Title       string
	TopN        int
	ResultsJSON string // JSON array stored as text
}
