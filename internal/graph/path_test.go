package graph

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/Benny93/reelgraph/internal/movies"
)

func TestFindPath(t *testing.T) {
	t.Parallel()

	g := Build(append(scenarioRecords(),
		movies.MovieRecord{Title: "C", Director: "D3", Actors: []string{"Q"}},
	))

	tests := []struct {
		name     string
		source   string
		target   string
		elements []string
	}{
		{
			name:     "ThroughSharedActor",
			source:   "A",
			target:   "B",
			elements: []string{"A", "acted_in", "Y", "acted_in", "B"},
		},
		{
			name:     "DirectorToActor",
			source:   "D1",
			target:   "Z",
			elements: []string{"D1", "directed_by", "A", "acted_in", "Y", "acted_in", "B", "acted_in", "Z"},
		},
		{
			name:     "Adjacent",
			source:   "B",
			target:   "D2",
			elements: []string{"B", "directed_by", "D2"},
		},
		{
			name:     "SameNode",
			source:   "X",
			target:   "X",
			elements: []string{"X"},
		},
		{
			name:   "Disconnected",
			source: "A",
			target: "C",
		},
		{
			name:   "UnknownSource",
			source: "Nobody",
			target: "A",
		},
		{
			name:   "UnknownTarget",
			source: "A",
			target: "Nobody",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result := FindPath(g, tt.source, tt.target)

			if tt.elements == nil {
				assert.False(t, result.Found())
				assert.Equal(t, NoPath.Steps, result.Steps)
				assert.Equal(t, -1, result.Len())
				return
			}

			assert.True(t, result.Found())
			if diff := cmp.Diff(tt.elements, result.Elements()); diff != "" {
				t.Errorf("Elements() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFindPath_RelationshipsMatchGraph(t *testing.T) {
	t.Parallel()

	g := Build(scenarioRecords())
	result := FindPath(g, "X", "Z")

	assert.Equal(t, 4, result.Len())
	for i := 0; i < len(result.Steps)-1; i++ {
		rel, ok := g.Relationship(result.Steps[i].Node, result.Steps[i+1].Node)
		assert.True(t, ok)
		assert.Equal(t, rel, result.Steps[i].Relationship)
	}
	assert.Empty(t, result.Steps[len(result.Steps)-1].Relationship)
}

func TestFindPath_TieBreakByInsertionOrder(t *testing.T) {
	t.Parallel()

	// A and B share both P and Q; P was linked to A first.
	g := Build([]movies.MovieRecord{
		{Title: "A", Director: "D1", Actors: []string{"P", "Q"}},
		{Title: "B", Director: "D2", Actors: []string{"Q", "P"}},
	})

	result := FindPath(g, "A", "B")

	assert.Equal(t, []string{"A", "P", "B"}, result.Nodes())
}

func TestPathResult_Lines(t *testing.T) {
	t.Parallel()

	g := Build(scenarioRecords())

	lines := FindPath(g, "A", "B").Lines()
	assert.Equal(t, []string{
		"A   <--(acted_in)-->",
		"Y   <--(acted_in)-->",
		"B",
	}, lines)

	assert.Equal(t, []string{NoPathMessage}, NoPath.Lines())
	assert.Nil(t, NoPath.Elements())
}
