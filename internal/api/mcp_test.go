package api

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/cinerec/internal/recommend"
	"github.com/kalambet/cinerec/internal/storage"
)

type mockPosterResolver struct {
	url string
}

func (m *mockPosterResolver) Resolve(_ context.Context, id string) string {
	if m.url != "" {
		return m.url
	}
	return "https://image.example/" + id
}

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return MCPDeps{
		Store: store,
		Engine: &mockRecommender{
			recs: []recommend.Recommendation{
				{Movie: recommend.Movie{Index: 1, TMDBID: "200", Title: "Beta"}, Score: 0.8},
			},
			titles: []string{"Alpha", "Beta"},
		},
		Posters: &mockPosterFetcher{},
		Poster:  &mockPosterResolver{},
	}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestMCPTool_RecommendMovies(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpRecommendMovies(deps)

	req := makeCallToolRequest("recommend_movies", map[string]interface{}{
		"title": "Alpha",
		"limit": 5,
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var items []RecommendationItem
	if err := json.Unmarshal([]byte(toolText(t, result)), &items); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if items[0].Title != "Beta" || items[0].PosterURL != "https://image.example/200" {
		t.Errorf("item = %+v", items[0])
	}
}

func TestMCPTool_RecommendMovies_NotFound(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Engine = &mockRecommender{err: recommend.ErrNotFound}
	handler := mcpRecommendMovies(deps)

	req := makeCallToolRequest("recommend_movies", map[string]interface{}{
		"title": "Nope",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for unknown title")
	}
}

func TestMCPTool_RecommendMovies_MissingTitle(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpRecommendMovies(deps)

	result, err := handler(context.Background(), makeCallToolRequest("recommend_movies", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing title")
	}
}

func TestMCPTool_MoviePoster(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpMoviePoster(deps)

	req := makeCallToolRequest("movie_poster", map[string]interface{}{
		"tmdb_id": "42",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := toolText(t, result); got != "https://image.example/42" {
		t.Errorf("poster = %q", got)
	}
}

func TestMCPResource_Catalog(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpResourceCatalog(deps)

	contents, err := handler(context.Background(), makeReadResourceRequest("catalog://movies"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var titles []string
	if err := json.Unmarshal([]byte(tc.Text), &titles); err != nil {
		t.Fatalf("catalog is not valid JSON: %v", err)
	}
	if len(titles) != 2 || titles[0] != "Alpha" {
		t.Errorf("titles = %v", titles)
	}
}

func TestMCPResource_RecentQueries(t *testing.T) {
	deps, store := newTestMCPDeps(t)

	if err := recordQuery(store, "q1", "Alpha", 5, nil); err != nil {
		t.Fatalf("recording query: %v", err)
	}

	handler := mcpResourceRecentQueries(deps)
	contents, err := handler(context.Background(), makeReadResourceRequest("catalog://recent-queries"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc := contents[0].(mcp.TextResourceContents)

	var summaries []map[string]any
	if err := json.Unmarshal([]byte(tc.Text), &summaries); err != nil {
		t.Fatalf("queries resource is not valid JSON: %v", err)
	}
	if len(summaries) != 1 || summaries[0]["title"] != "Alpha" {
		t.Errorf("summaries = %v", summaries)
	}
}
