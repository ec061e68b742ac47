package poster

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type mockResolver struct {
	resolveFn func(ctx context.Context, id string) string
}

func (m *mockResolver) Resolve(ctx context.Context, id string) string {
	return m.resolveFn(ctx, id)
}

func TestFetchPosters_PreservesInputOrder(t *testing.T) {
	// Later ids complete first; output order must still match input order.
	delays := map[string]time.Duration{
		"a": 30 * time.Millisecond,
		"b": 20 * time.Millisecond,
		"c": 10 * time.Millisecond,
		"d": 0,
	}
	f := NewFetcher(&mockResolver{
		resolveFn: func(_ context.Context, id string) string {
			time.Sleep(delays[id])
			return "url-" + id
		},
	}, 4)

	got := f.FetchPosters(context.Background(), []string{"a", "b", "c", "d"})

	want := []string{"url-a", "url-b", "url-c", "url-d"}
	if len(got) != len(want) {
		t.Fatalf("got %d results, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFetchPosters_BoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	f := NewFetcher(&mockResolver{
		resolveFn: func(_ context.Context, id string) string {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return "url"
		},
	}, 3)

	ids := make([]string, 20)
	for i := range ids {
		ids[i] = "id"
	}
	f.FetchPosters(context.Background(), ids)

	if p := peak.Load(); p > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", p)
	}
}

func TestFetchPosters_MixedOutcomes(t *testing.T) {
	f := NewFetcher(&mockResolver{
		resolveFn: func(_ context.Context, id string) string {
			switch id {
			case "bad":
				return ErrorPlaceholder
			case "missing":
				return NoPosterPlaceholder
			default:
				return "url-" + id
			}
		},
	}, 2)

	got := f.FetchPosters(context.Background(), []string{"ok", "bad", "missing", "ok2"})

	want := []string{"url-ok", ErrorPlaceholder, NoPosterPlaceholder, "url-ok2"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFetchPosters_Empty(t *testing.T) {
	f := NewFetcher(&mockResolver{
		resolveFn: func(_ context.Context, _ string) string {
			t.Error("resolver called for empty input")
			return ""
		},
	}, 5)

	got := f.FetchPosters(context.Background(), nil)
	if len(got) != 0 {
		t.Errorf("got %d results, want 0", len(got))
	}
}

func TestNewFetcher_DefaultWorkers(t *testing.T) {
	f := NewFetcher(&mockResolver{resolveFn: func(_ context.Context, _ string) string { return "u" }}, 0)
	if f.workers != defaultWorkers {
		t.Errorf("workers = %d, want %d", f.workers, defaultWorkers)
	}
}
