//go:build integration

package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/reelgraph/internal/graph"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func testNeo4jBackend(t *testing.T) *Neo4jBackend {
	t.Helper()

	backend := NewNeo4jBackend(
		envOr("NEO4J_URL", "neo4j://localhost:7687"),
		os.Getenv("NEO4J_USER"),
		os.Getenv("NEO4J_PASSWORD"),
	)
	require.NoError(t, backend.Initialize("", false))
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func TestNeo4jBackend_Contract(t *testing.T) {
	ctx := context.Background()
	backend := testNeo4jBackend(t)

	g := testGraph()
	require.NoError(t, backend.BulkLoad(ctx, g))

	assert.Equal(t, g.NodeCount(), backend.NodeCount())
	assert.Equal(t, g.EdgeCount(), backend.EdgeCount())

	node, err := backend.GetNode(ctx, "Heat")
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, 1995, node.Movie.Year)

	neighbors, err := backend.Neighbors(ctx, "Robert De Niro")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Heat", "The Irishman"}, neighbors)

	results, err := backend.Search(ctx, "irishman", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "The Irishman", results[0].NodeID)

	rebuilt, err := Rebuild(ctx, backend)
	require.NoError(t, err)
	assert.Equal(t, graph.Export(g), graph.Export(rebuilt))
}
