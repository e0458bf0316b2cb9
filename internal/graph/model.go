// Package graph provides the movie relationship graph for reelgraph.
//
// It defines the node and edge types that represent movies, directors and
// actors and the undirected relationships between them (directed_by,
// acted_in). Every edge has exactly one movie endpoint; people are never
// connected to each other directly.
package graph

// NodeKind is the closed set of entity kinds stored in the graph.
type NodeKind string

const (
	KindMovie    NodeKind = "movie"
	KindDirector NodeKind = "director"
	KindActor    NodeKind = "actor"
)

// Valid reports whether k is one of the known kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case KindMovie, KindDirector, KindActor:
		return true
	}
	return false
}

// RelType is the relationship label stored on an edge.
type RelType string

const (
	RelDirectedBy RelType = "directed_by"
	RelActedIn    RelType = "acted_in"
)

// Valid reports whether r is one of the known relationships.
func (r RelType) Valid() bool {
	return r == RelDirectedBy || r == RelActedIn
}

// MovieAttrs holds the attributes recorded for a movie node.
type MovieAttrs struct {
	Year    int
	Country string
	Genre   string

	// Rating is the chart rating, nil when unknown.
	Rating *float64

	// Raw rating strings, nil when absent.
	IMDbRating           *string
	RottenTomatoesRating *string
	MetacriticRating     *string
}

// Node is a graph vertex.
//
// Node is a tagged variant: Kind selects the entity shape and Movie is
// populated for movie nodes. Director and actor nodes are identity only.
type Node struct {
	// ID is the name or title that identifies the node.
	ID string

	// Kind is the entity type.
	Kind NodeKind

	// Movie is set for movie nodes.
	Movie *MovieAttrs
}

// IsMovie reports whether the node is a movie.
func (n *Node) IsMovie() bool { return n.Kind == KindMovie }

// IsPerson reports whether the node is a director or an actor.
func (n *Node) IsPerson() bool { return n.Kind == KindDirector || n.Kind == KindActor }

// Edge is an undirected relationship between a movie and a person.
type Edge struct {
	// Source is the movie identity.
	Source string

	// Target is the director or actor identity.
	Target string

	// Relationship is the edge label.
	Relationship RelType
}

// Other returns the endpoint opposite to id.
func (e Edge) Other(id string) string {
	if e.Source == id {
		return e.Target
	}
	return e.Source
}

// Conflict records an identity written with a different kind than it
// already had, or a pair joined twice with different relationships.
type Conflict struct {
	// ID is the node identity (or the edge source) involved.
	ID string

	// Other is the edge target for relationship conflicts.
	Other string

	// Previous and Current describe the overwritten and winning values.
	Previous string
	Current  string
}

// IsEdgeConflict reports whether the conflict is about a relationship label.
func (c Conflict) IsEdgeConflict() bool { return c.Other != "" }

// pairKey is the unordered identity of an edge.
type pairKey struct {
	a, b int
}

func newPairKey(x, y int) pairKey {
	if x > y {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}
