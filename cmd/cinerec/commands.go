package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/cinerec/internal/config"
	"github.com/kalambet/cinerec/internal/storage"
)

// --- recommend ---

var recommendCmd = &cobra.Command{
	Use:   "recommend <title>",
	Short: "Recommend movies similar to a title",
	Long: `Recommend movies similar to a title from the local catalog.

Examples:
  cinerec recommend "The Matrix"
  cinerec recommend "Avatar" --top 5 --no-posters`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("top")
		noPosters, _ := cmd.Flags().GetBool("no-posters")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/recommendations?title=%s&limit=%d", url.QueryEscape(title), limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var result struct {
			Title   string `json:"title"`
			Results []struct {
				Title     string  `json:"title"`
				TMDBID    string  `json:"tmdb_id"`
				Score     float32 `json:"score"`
				PosterURL string  `json:"poster_url"`
			} `json:"results"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Results) == 0 {
			fmt.Println("No recommendations found.")
			return nil
		}

		fmt.Printf("\nBecause you watched %s:\n\n", colorize(colorBold, result.Title))
		for i, r := range result.Results {
			fmt.Printf("%2d. %s [score: %.3f]\n", i+1, colorize(colorCyan, r.Title), r.Score)
			if !noPosters {
				fmt.Printf("    %s\n", r.PosterURL)
			}
		}
		return nil
	},
}

func init() {
	recommendCmd.Flags().Int("top", 5, "maximum number of recommendations")
	recommendCmd.Flags().Bool("no-posters", false, "omit poster URLs from output")
}

// --- movies ---

var moviesCmd = &cobra.Command{
	Use:   "movies",
	Short: "List movies in the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/movies?limit=%d&offset=%d", limit, offset)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var body struct {
			Total  int `json:"total"`
			Movies []struct {
				Index  int    `json:"index"`
				TMDBID string `json:"tmdb_id"`
				Title  string `json:"title"`
			} `json:"movies"`
		}
		if err := decodeJSON(resp, &body); err != nil {
			return err
		}

		if len(body.Movies) == 0 {
			fmt.Println("Catalog is empty. Run `cinerec import` to load data.")
			return nil
		}

		for _, m := range body.Movies {
			fmt.Printf("%s  %s\n", colorize(colorCyan, fmt.Sprintf("%5d", m.Index)), m.Title)
		}
		fmt.Printf("\n%d of %d movies\n", len(body.Movies), body.Total)
		return nil
	},
}

func init() {
	moviesCmd.Flags().Int("limit", 50, "maximum number of movies to list")
	moviesCmd.Flags().Int("offset", 0, "offset into the catalog")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage recommendation query history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent queries",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/queries?limit=%d", limit))
		if err != nil {
			return err
		}

		var queries []struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Title     string `json:"title"`
			TopN      int    `json:"top_n"`
		}
		if err := decodeJSON(resp, &queries); err != nil {
			return err
		}

		if len(queries) == 0 {
			fmt.Println("No queries found.")
			return nil
		}

		for _, q := range queries {
			fmt.Printf("%s  %s  %s (top %d)\n",
				colorize(colorCyan, q.ID[:8]),
				q.CreatedAt,
				q.Title,
				q.TopN,
			)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single query with its results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/queries/"+args[0])
		if err != nil {
			return err
		}

		var query any
		if err := decodeJSON(resp, &query); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(query)
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a query from history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/queries/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted query %s", args[0])
		return nil
	},
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "maximum number of queries to list")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
}

// --- import ---

type catalogEntry struct {
	TMDBID json.Number `json:"tmdb_id"`
	Title  string      `json:"title"`
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a movie catalog and similarity matrix",
	Long: `Import a movie catalog and precomputed similarity matrix into local storage.

The catalog is a JSON array of {"tmdb_id", "title"} objects in matrix row
order. The matrix is a raw binary file of n*n little-endian float32 values,
row-major. Any previously imported catalog is replaced.

Example:
  cinerec import --catalog movies.json --matrix similarity.bin`,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalogPath, _ := cmd.Flags().GetString("catalog")
		matrixPath, _ := cmd.Flags().GetString("matrix")
		if catalogPath == "" || matrixPath == "" {
			return fmt.Errorf("both --catalog and --matrix are required")
		}

		movies, err := readCatalogFile(catalogPath)
		if err != nil {
			return err
		}
		matrix, err := readMatrixFile(matrixPath, len(movies))
		if err != nil {
			return err
		}

		dataDir, _ := cmd.Flags().GetString("data-dir")
		if dataDir == "" {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			dataDir = cfg.Storage.DataDir
		}
		store, err := storage.Open(dataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		printStep("Importing %d movies...", len(movies))
		if err := store.ImportCatalog(movies, matrix); err != nil {
			return fmt.Errorf("importing catalog: %w", err)
		}

		printSuccess("Imported %d movies. Restart the server to pick up the new catalog.", len(movies))
		return nil
	},
}

func readCatalogFile(path string) ([]storage.Movie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var entries []catalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}

	movies := make([]storage.Movie, len(entries))
	for i, e := range entries {
		if e.Title == "" {
			return nil, fmt.Errorf("catalog entry %d has no title", i)
		}
		movies[i] = storage.Movie{
			Index:  i,
			TMDBID: e.TMDBID.String(),
			Title:  e.Title,
		}
	}
	return movies, nil
}

func readMatrixFile(path string, n int) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading matrix: %w", err)
	}

	want := n * n * 4
	if len(data) != want {
		return nil, fmt.Errorf("matrix size mismatch: got %d bytes, want %d for %d movies", len(data), want, n)
	}

	matrix := make([][]float32, n)
	for i := range matrix {
		row := make([]float32, n)
		for j := range row {
			off := (i*n + j) * 4
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
		}
		matrix[i] = row
	}
	return matrix, nil
}

func init() {
	importCmd.Flags().String("catalog", "", "path to catalog JSON file")
	importCmd.Flags().String("matrix", "", "path to similarity matrix binary file")
	importCmd.Flags().String("data-dir", "", "override the storage data directory")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
