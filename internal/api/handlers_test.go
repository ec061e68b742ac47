package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kalambet/cinerec/internal/recommend"
	"github.com/kalambet/cinerec/internal/storage"
)

const testToken = "test-token"

// --- mocks ---

type mockRecommender struct {
	recs   []recommend.Recommendation
	err    error
	titles []string
}

func (m *mockRecommender) Recommend(_ string, _ int) ([]recommend.Recommendation, error) {
	return m.recs, m.err
}

func (m *mockRecommender) Titles() []string {
	return m.titles
}

type mockPosterFetcher struct {
	urls []string
}

func (m *mockPosterFetcher) FetchPosters(_ context.Context, ids []string) []string {
	if m.urls != nil {
		return m.urls
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = "https://image.example/" + id
	}
	return out
}

// --- helpers ---

func newTestHandler(t *testing.T, engine Recommender) (http.Handler, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	h := NewAppHandler(AppDeps{
		Store:   store,
		Engine:  engine,
		Posters: &mockPosterFetcher{},
		Token:   testToken,
	})
	return h, store
}

func doRequest(h http.Handler, method, path string, authed bool) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	h.ServeHTTP(rr, req)
	return rr
}

func seedStore(t *testing.T, store *storage.Store) {
	t.Helper()
	movies := []storage.Movie{
		{Index: 0, TMDBID: "100", Title: "Alpha"},
		{Index: 1, TMDBID: "200", Title: "Beta"},
		{Index: 2, TMDBID: "300", Title: "Gamma"},
	}
	matrix := [][]float32{
		{1.0, 0.8, 0.3},
		{0.8, 1.0, 0.5},
		{0.3, 0.5, 1.0},
	}
	if err := store.ImportCatalog(movies, matrix); err != nil {
		t.Fatalf("importing catalog: %v", err)
	}
}

// --- tests ---

func TestHealth_NoAuthRequired(t *testing.T) {
	h, _ := newTestHandler(t, &mockRecommender{})

	rr := doRequest(h, http.MethodGet, "/health", false)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var body map[string]string
	json.NewDecoder(rr.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("body = %v, want status=ok", body)
	}
}

func TestAuth_Rejected(t *testing.T) {
	h, _ := newTestHandler(t, &mockRecommender{})

	for _, path := range []string{"/movies", "/recommendations?title=x", "/queries"} {
		rr := doRequest(h, http.MethodGet, path, false)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token: status = %d, want %d", path, rr.Code, http.StatusUnauthorized)
		}
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/movies", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestListMovies(t *testing.T) {
	h, store := newTestHandler(t, &mockRecommender{})
	seedStore(t, store)

	rr := doRequest(h, http.MethodGet, "/movies", true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var body struct {
		Total  int `json:"total"`
		Movies []struct {
			Index  int    `json:"index"`
			TMDBID string `json:"tmdb_id"`
			Title  string `json:"title"`
		} `json:"movies"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Total != 3 || len(body.Movies) != 3 {
		t.Fatalf("total = %d, movies = %d, want 3 each", body.Total, len(body.Movies))
	}
	if body.Movies[0].Title != "Alpha" || body.Movies[0].TMDBID != "100" {
		t.Errorf("first movie = %+v", body.Movies[0])
	}
}

func TestListMovies_Pagination(t *testing.T) {
	h, store := newTestHandler(t, &mockRecommender{})
	seedStore(t, store)

	rr := doRequest(h, http.MethodGet, "/movies?limit=1&offset=1", true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var body struct {
		Total  int `json:"total"`
		Movies []struct {
			Title string `json:"title"`
		} `json:"movies"`
	}
	json.NewDecoder(rr.Body).Decode(&body)
	if body.Total != 3 {
		t.Errorf("total = %d, want 3", body.Total)
	}
	if len(body.Movies) != 1 || body.Movies[0].Title != "Beta" {
		t.Errorf("movies = %+v, want single Beta", body.Movies)
	}
}

func TestRecommendations(t *testing.T) {
	engine := &mockRecommender{
		recs: []recommend.Recommendation{
			{Movie: recommend.Movie{Index: 1, TMDBID: "200", Title: "Beta"}, Score: 0.8},
			{Movie: recommend.Movie{Index: 2, TMDBID: "300", Title: "Gamma"}, Score: 0.3},
		},
	}
	h, store := newTestHandler(t, engine)

	rr := doRequest(h, http.MethodGet, "/recommendations?title=Alpha", true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var body recommendationResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Title != "Alpha" {
		t.Errorf("title = %q, want Alpha", body.Title)
	}
	if body.QueryID == "" {
		t.Error("query_id is empty")
	}
	if len(body.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(body.Results))
	}
	if body.Results[0].Title != "Beta" || body.Results[0].PosterURL != "https://image.example/200" {
		t.Errorf("first result = %+v", body.Results[0])
	}
	if body.Results[1].Title != "Gamma" || body.Results[1].PosterURL != "https://image.example/300" {
		t.Errorf("second result = %+v", body.Results[1])
	}

	// The query is recorded in history.
	q, err := store.GetQuery(body.QueryID)
	if err != nil {
		t.Fatalf("getting recorded query: %v", err)
	}
	if q.Title != "Alpha" {
		t.Errorf("recorded title = %q, want Alpha", q.Title)
	}
	var recorded []RecommendationItem
	if err := json.Unmarshal([]byte(q.ResultsJSON), &recorded); err != nil {
		t.Fatalf("recorded results not valid JSON: %v", err)
	}
	if len(recorded) != 2 {
		t.Errorf("recorded results = %d, want 2", len(recorded))
	}
}

func TestRecommendations_MissingTitle(t *testing.T) {
	h, _ := newTestHandler(t, &mockRecommender{})

	rr := doRequest(h, http.MethodGet, "/recommendations", true)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRecommendations_UnknownTitle(t *testing.T) {
	h, _ := newTestHandler(t, &mockRecommender{err: recommend.ErrNotFound})

	rr := doRequest(h, http.MethodGet, "/recommendations?title=Nope", true)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}

	var body map[string]map[string]string
	json.NewDecoder(rr.Body).Decode(&body)
	if body["error"]["type"] != "not_found" {
		t.Errorf("error type = %q, want not_found", body["error"]["type"])
	}
}

func TestQueries_RoundTrip(t *testing.T) {
	engine := &mockRecommender{
		recs: []recommend.Recommendation{
			{Movie: recommend.Movie{Index: 1, TMDBID: "200", Title: "Beta"}, Score: 0.8},
		},
	}
	h, _ := newTestHandler(t, engine)

	rr := doRequest(h, http.MethodGet, "/recommendations?title=Alpha", true)
	var recResp recommendationResponse
	json.NewDecoder(rr.Body).Decode(&recResp)

	rr = doRequest(h, http.MethodGet, "/queries", true)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d, want %d", rr.Code, http.StatusOK)
	}
	var list []queryItem
	if err := json.NewDecoder(rr.Body).Decode(&list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(list) != 1 || list[0].ID != recResp.QueryID {
		t.Fatalf("list = %+v, want the recorded query", list)
	}

	rr = doRequest(h, http.MethodGet, "/queries/"+recResp.QueryID, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d", rr.Code, http.StatusOK)
	}
	var item queryItem
	json.NewDecoder(rr.Body).Decode(&item)
	if item.Title != "Alpha" || len(item.Results) != 1 {
		t.Errorf("item = %+v", item)
	}

	rr = doRequest(h, http.MethodDelete, "/queries/"+recResp.QueryID, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want %d", rr.Code, http.StatusOK)
	}

	rr = doRequest(h, http.MethodGet, "/queries/"+recResp.QueryID, true)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestQueries_DeleteNotFound(t *testing.T) {
	h, _ := newTestHandler(t, &mockRecommender{})

	rr := doRequest(h, http.MethodDelete, "/queries/missing", true)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}
