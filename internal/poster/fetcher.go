package poster

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 5

// Resolver resolves a single movie id to a poster URL.
type Resolver interface {
	Resolve(ctx context.Context, id string) string
}

// Fetcher resolves poster URLs for batches of movie ids over a bounded
// worker pool, so one slow or failing request never serially blocks the
// rest while the number of simultaneous calls to the remote API stays
// capped.
type Fetcher struct {
	resolver Resolver
	workers  int
}

// NewFetcher creates a Fetcher with the given concurrency bound.
// If workers is <= 0, it defaults to 5.
func NewFetcher(resolver Resolver, workers int) *Fetcher {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Fetcher{resolver: resolver, workers: workers}
}

// FetchPosters returns one URL per id, in the same order as ids. Each slot is
// written at its input index, so completion order never leaks into the
// result. Individual failures surface as placeholder URLs, never as errors.
func (f *Fetcher) FetchPosters(ctx context.Context, ids []string) []string {
	results := make([]string, len(ids))
	if len(ids) == 0 {
		return results
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			results[i] = f.resolver.Resolve(gCtx, id)
			return nil
		})
	}

	// Workers never return errors; every failure is already a placeholder.
	_ = g.Wait()
	return results
}
