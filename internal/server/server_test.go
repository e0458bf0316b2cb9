package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/reelgraph/internal/graph"
	"github.com/Benny93/reelgraph/internal/ingestion"
	"github.com/Benny93/reelgraph/internal/movies"
)

func strPtr(s string) *string { return &s }

func testSnapshot() *ingestion.Snapshot {
	records := []movies.MovieRecord{
		{Title: "A", Year: 2001, Director: "D1", Actors: []string{"X", "Y"},
			IMDbRating: strPtr("8.5/10"), Plot: "First.", URL: "https://example.com/a"},
		{Title: "B", Year: 2005, Director: "D2", Actors: []string{"Y", "Z"}, IMDbRating: strPtr("9.0/10")},
		{Title: "C", Year: 2010, Director: "D3", Actors: []string{"Al Pacino"}},
	}
	return ingestion.NewSnapshot("test", records, graph.Build(records))
}

func get(t *testing.T, s *Server, target string, out any) int {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s := New(testSnapshot(), nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestGetStats(t *testing.T) {
	t.Parallel()

	s := New(testSnapshot(), nil)

	var resp statsResponse
	code := get(t, s, "/api/stats", &resp)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 3, resp.Records)
	assert.Equal(t, 10, resp.Graph["nodes"])
	assert.Equal(t, 3, resp.Graph["movies"])
}

func TestGetPath(t *testing.T) {
	t.Parallel()

	s := New(testSnapshot(), nil)

	t.Run("Found", func(t *testing.T) {
		t.Parallel()
		var resp pathResponse
		code := get(t, s, "/api/path?from=A&to=B", &resp)

		assert.Equal(t, http.StatusOK, code)
		assert.True(t, resp.Found)
		assert.Equal(t, 2, resp.Length)
		assert.Equal(t, []string{"A", "acted_in", "Y", "acted_in", "B"}, resp.Elements)
		assert.Equal(t, "A   <--(acted_in)-->", resp.Lines[0])
	})

	t.Run("NoLink", func(t *testing.T) {
		t.Parallel()
		var resp pathResponse
		code := get(t, s, "/api/path?from=A&to=C", &resp)

		assert.Equal(t, http.StatusOK, code)
		assert.False(t, resp.Found)
		assert.Empty(t, resp.Elements)
		assert.Equal(t, graph.NoPathMessage, resp.Message)
	})

	t.Run("UnknownName", func(t *testing.T) {
		t.Parallel()
		var resp pathResponse
		code := get(t, s, "/api/path?from=Nobody&to=A", &resp)

		assert.Equal(t, http.StatusOK, code)
		assert.False(t, resp.Found)
	})

	t.Run("IgnoresCase", func(t *testing.T) {
		t.Parallel()
		var resp pathResponse
		code := get(t, s, "/api/path?from=al+pacino&to=d3", &resp)

		assert.Equal(t, http.StatusOK, code)
		assert.True(t, resp.Found)
		assert.Equal(t, []string{"Al Pacino", "acted_in", "C", "directed_by", "D3"}, resp.Elements)
	})

	t.Run("AbsentNameSharingToken", func(t *testing.T) {
		t.Parallel()
		var resp pathResponse
		code := get(t, s, "/api/path?from=Al+Green&to=C", &resp)

		assert.Equal(t, http.StatusOK, code)
		assert.False(t, resp.Found)
		assert.Equal(t, graph.NoPathMessage, resp.Message)
	})

	t.Run("MissingParam", func(t *testing.T) {
		t.Parallel()
		var resp map[string]string
		code := get(t, s, "/api/path?from=A", &resp)

		assert.Equal(t, http.StatusBadRequest, code)
		assert.NotEmpty(t, resp["error"])
	})
}

func TestGetRank(t *testing.T) {
	t.Parallel()

	s := New(testSnapshot(), nil)

	t.Run("IMDb", func(t *testing.T) {
		t.Parallel()
		var resp []rankEntry
		code := get(t, s, "/api/rank?key=imdb_rating", &resp)

		require.Equal(t, http.StatusOK, code)
		require.Len(t, resp, 3)
		assert.Equal(t, "B", resp[0].Title)
		assert.Equal(t, 1, resp[0].Position)
		assert.Equal(t, "9", resp[0].Value)
		assert.Equal(t, "C", resp[2].Title)
	})

	t.Run("Limit", func(t *testing.T) {
		t.Parallel()
		var resp []rankEntry
		code := get(t, s, "/api/rank?key=director&limit=1", &resp)

		require.Equal(t, http.StatusOK, code)
		require.Len(t, resp, 1)
		assert.Equal(t, "A", resp[0].Title)
	})

	t.Run("UnknownKey", func(t *testing.T) {
		t.Parallel()
		var resp map[string]any
		code := get(t, s, "/api/rank?key=box_office", &resp)

		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, resp["error"], "unknown ranking key")
		assert.Len(t, resp["keys"], 5)
	})

	t.Run("BadLimit", func(t *testing.T) {
		t.Parallel()
		code := get(t, s, "/api/rank?key=genre&limit=many", nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})
}

func TestGetSearch(t *testing.T) {
	t.Parallel()

	s := New(testSnapshot(), nil)

	var resp []map[string]any
	code := get(t, s, "/api/search?q=pacino", &resp)

	require.Equal(t, http.StatusOK, code)
	require.Len(t, resp, 1)
	assert.Equal(t, "Al Pacino", resp[0]["id"])
	assert.Equal(t, "actor", resp[0]["type"])

	code = get(t, s, "/api/search", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestGetGraph(t *testing.T) {
	t.Parallel()

	s := New(testSnapshot(), nil)

	var doc graph.Document
	code := get(t, s, "/api/graph", &doc)

	require.Equal(t, http.StatusOK, code)
	assert.Len(t, doc.Nodes, 10)
	assert.Len(t, doc.Edges, 8)
}

func TestGetNode(t *testing.T) {
	t.Parallel()

	s := New(testSnapshot(), nil)

	t.Run("Movie", func(t *testing.T) {
		t.Parallel()
		var resp nodeResponse
		code := get(t, s, "/api/nodes/A", &resp)

		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, graph.KindMovie, resp.Node.Type)
		assert.Equal(t, []string{"D1", "X", "Y"}, resp.Neighbors)
		assert.Equal(t, "First.", resp.Plot)
		assert.Equal(t, "https://example.com/a", resp.URL)
	})

	t.Run("PersonWithSpace", func(t *testing.T) {
		t.Parallel()
		var resp nodeResponse
		code := get(t, s, "/api/nodes/"+url.PathEscape("Al Pacino"), &resp)

		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, graph.KindActor, resp.Node.Type)
		assert.Empty(t, resp.Plot)
	})

	t.Run("EscapedIdentities", func(t *testing.T) {
		t.Parallel()
		records := []movies.MovieRecord{
			{Title: "100% Wolf", Director: "Alexs Stadermann", Actors: []string{"AC/DC Fan"}},
			{Title: "Fast + Furious", Director: "Justin Lin", Actors: []string{"50%2B Club"}},
		}
		escaped := New(ingestion.NewSnapshot("test", records, graph.Build(records)), nil)

		for _, id := range []string{"100% Wolf", "AC/DC Fan", "Fast + Furious", "50%2B Club"} {
			var resp nodeResponse
			code := get(t, escaped, "/api/nodes/"+url.PathEscape(id), &resp)

			require.Equal(t, http.StatusOK, code, id)
			assert.Equal(t, id, resp.Node.ID)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		t.Parallel()
		var resp map[string]string
		code := get(t, s, "/api/nodes/Nobody", &resp)

		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, "node not found", resp["error"])
	})
}

func TestServer_Swap(t *testing.T) {
	t.Parallel()

	s := New(testSnapshot(), nil)

	records := []movies.MovieRecord{{Title: "Ronin", Director: "John Frankenheimer"}}
	s.Swap(ingestion.NewSnapshot("next", records, graph.Build(records)))

	var resp statsResponse
	get(t, s, "/api/stats", &resp)
	assert.Equal(t, "next", resp.Source)
	assert.Equal(t, 1, resp.Records)
	assert.Equal(t, 2, resp.Graph["nodes"])
}

func TestServer_StartAndShutdown(t *testing.T) {
	t.Parallel()

	s := New(testSnapshot(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, "127.0.0.1:0") }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
