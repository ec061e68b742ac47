package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/cinerec/internal/recommend"
	"github.com/kalambet/cinerec/internal/storage"
)

// PosterResolver resolves a single TMDb movie ID to a poster URL.
type PosterResolver interface {
	Resolve(ctx context.Context, id string) string
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store   *storage.Store
	Engine  Recommender
	Posters PosterFetcher
	Poster  PosterResolver
}

// NewMCPServer creates an MCP server with all cinerec tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"cinerec",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("cinerec — movie recommendations from a precomputed similarity catalog, with TMDb poster lookups."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("recommend_movies",
			mcp.WithDescription("Recommend movies similar to a given title from the local catalog."),
			mcp.WithString("title", mcp.Description("Exact movie title to search for"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of recommendations (default 5)")),
		),
		mcpRecommendMovies(deps),
	)

	s.AddTool(
		mcp.NewTool("movie_poster",
			mcp.WithDescription("Resolve the poster image URL for a TMDb movie ID."),
			mcp.WithString("tmdb_id", mcp.Description("TMDb movie ID"), mcp.Required()),
		),
		mcpMoviePoster(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"catalog://movies",
			"Movie Catalog",
			mcp.WithResourceDescription("All movie titles in the similarity catalog"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCatalog(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"catalog://recent-queries",
			"Recent Queries",
			mcp.WithResourceDescription("Last 10 recommendation queries"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecentQueries(deps),
	)

	return s
}

func mcpRecommendMovies(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}

		limit := req.GetInt("limit", defaultTopN)
		if limit <= 0 {
			limit = defaultTopN
		}
		if limit > 100 {
			limit = 100
		}

		recs, err := deps.Engine.Recommend(title, limit)
		if errors.Is(err, recommend.ErrNotFound) {
			return mcpError(fmt.Sprintf("movie %q not found in catalog", title)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("recommendation failed: %v", err)), nil
		}

		items := enrichWithPosters(ctx, deps.Posters, recs)

		b, err := json.Marshal(items)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpMoviePoster(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("tmdb_id")
		if err != nil {
			return mcpError("tmdb_id is required"), nil
		}

		return mcpText(deps.Poster.Resolve(ctx, id)), nil
	}
}

func mcpResourceCatalog(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		titles := deps.Engine.Titles()

		b, err := json.Marshal(titles)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal catalog: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceRecentQueries(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		queries, err := deps.Store.ListQueries(10, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list queries: %w", err)
		}

		type querySummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Title     string `json:"title"`
			TopN      int    `json:"top_n"`
		}

		summaries := make([]querySummary, len(queries))
		for i, q := range queries {
			summaries[i] = querySummary{
				ID:        q.ID,
				CreatedAt: q.CreatedAt.Format(time.RFC3339),
				Title:     q.Title,
				TopN:      q.TopN,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal queries: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
