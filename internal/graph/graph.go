// Package graph provides the in-memory movie graph for reelgraph.
//
// MovieGraph is a simple undirected graph keyed by identity string. A single
// identity → index map is populated insert-if-absent, which is what merges a
// person appearing in several movies into one node. Nodes and per-node
// adjacency lists keep insertion order so traversal is deterministic.
package graph

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrUnknownNode is returned when an edge references a missing identity.
	ErrUnknownNode = errors.New("unknown node")

	// ErrSelfLoop is returned when both edge endpoints are the same identity.
	ErrSelfLoop = errors.New("self loop")
)

// MovieGraph is an in-memory undirected graph of movies and people.
//
// A graph is built once and then treated as read-only; the lock only makes
// it safe to share one instance between concurrent readers.
type MovieGraph struct {
	mu sync.RWMutex

	index map[string]int
	nodes []*Node

	edges []*Edge
	pairs map[pairKey]int

	// adjacency[i] lists edge indexes touching node i in insertion order.
	adjacency [][]int

	kindCount map[NodeKind]int
	conflicts []Conflict
}

// NewMovieGraph creates a new empty graph.
func NewMovieGraph() *MovieGraph {
	return &MovieGraph{
		index:     make(map[string]int),
		pairs:     make(map[pairKey]int),
		kindCount: make(map[NodeKind]int),
	}
}

// NodeCount returns the number of nodes.
func (g *MovieGraph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *MovieGraph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// CountNodesByKind returns the count of nodes with the given kind.
func (g *MovieGraph) CountNodesByKind(kind NodeKind) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.kindCount[kind]
}

// UpsertNode inserts a node or reuses the existing one with the same ID.
//
// When the identity already exists with another kind, the most recent kind
// wins and a Conflict is recorded. Movie attributes are replaced by a movie
// write and left in place by a person write.
func (g *MovieGraph) UpsertNode(id string, kind NodeKind, movie *MovieAttrs) (*Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if idx, ok := g.index[id]; ok {
		node := g.nodes[idx]
		if node.Kind != kind {
			g.conflicts = append(g.conflicts, Conflict{
				ID:       id,
				Previous: string(node.Kind),
				Current:  string(kind),
			})
			g.kindCount[node.Kind]--
			g.kindCount[kind]++
			node.Kind = kind
		}
		if kind == KindMovie && movie != nil {
			attrs := *movie
			node.Movie = &attrs
		}
		return node, false
	}

	node := &Node{ID: id, Kind: kind}
	if kind == KindMovie && movie != nil {
		attrs := *movie
		node.Movie = &attrs
	}

	g.index[id] = len(g.nodes)
	g.nodes = append(g.nodes, node)
	g.adjacency = append(g.adjacency, nil)
	g.kindCount[kind]++
	return node, true
}

// AddEdge joins two existing nodes.
//
// The graph is simple: a second edge between the same pair never creates a
// duplicate. If the relationship differs, the new label wins and a Conflict
// is recorded. Returns true when a new edge was created.
func (g *MovieGraph) AddEdge(source, target string, rel RelType) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	si, ok := g.index[source]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownNode, source)
	}
	ti, ok := g.index[target]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownNode, target)
	}
	if si == ti {
		return false, fmt.Errorf("%w: %s", ErrSelfLoop, source)
	}

	key := newPairKey(si, ti)
	if ei, exists := g.pairs[key]; exists {
		edge := g.edges[ei]
		if edge.Relationship != rel {
			g.conflicts = append(g.conflicts, Conflict{
				ID:       edge.Source,
				Other:    edge.Target,
				Previous: string(edge.Relationship),
				Current:  string(rel),
			})
			edge.Relationship = rel
		}
		return false, nil
	}

	ei := len(g.edges)
	g.edges = append(g.edges, &Edge{Source: source, Target: target, Relationship: rel})
	g.pairs[key] = ei
	g.adjacency[si] = append(g.adjacency[si], ei)
	g.adjacency[ti] = append(g.adjacency[ti], ei)
	return true, nil
}

// GetNode returns the node with the given ID, or nil if it does not exist.
func (g *MovieGraph) GetNode(id string) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	idx, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.nodes[idx]
}

// HasNode reports whether the identity is present.
func (g *MovieGraph) HasNode(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.index[id]
	return ok
}

// Lookup maps a user-supplied name to a node ID: the exact identity, else the
// first node in insertion order whose identity matches ignoring case.
func (g *MovieGraph) Lookup(name string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.index[name]; ok {
		return name, true
	}
	for _, node := range g.nodes {
		if strings.EqualFold(node.ID, name) {
			return node.ID, true
		}
	}
	return "", false
}

// Nodes returns all nodes in insertion order.
func (g *MovieGraph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]*Node, len(g.nodes))
	copy(result, g.nodes)
	return result
}

// GetNodesByKind returns all nodes of the given kind in insertion order.
func (g *MovieGraph) GetNodesByKind(kind NodeKind) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.kindCount[kind] == 0 {
		return nil
	}

	result := make([]*Node, 0, g.kindCount[kind])
	for _, node := range g.nodes {
		if node.Kind == kind {
			result = append(result, node)
		}
	}
	return result
}

// Edges returns a copy of every edge in insertion order.
func (g *MovieGraph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]Edge, len(g.edges))
	for i, e := range g.edges {
		result[i] = *e
	}
	return result
}

// EdgesOf returns the edges touching id in insertion order.
func (g *MovieGraph) EdgesOf(id string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	idx, ok := g.index[id]
	if !ok {
		return nil
	}

	result := make([]Edge, 0, len(g.adjacency[idx]))
	for _, ei := range g.adjacency[idx] {
		result = append(result, *g.edges[ei])
	}
	return result
}

// Neighbors returns the identities adjacent to id in edge insertion order.
func (g *MovieGraph) Neighbors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	idx, ok := g.index[id]
	if !ok {
		return nil
	}

	result := make([]string, 0, len(g.adjacency[idx]))
	for _, ei := range g.adjacency[idx] {
		result = append(result, g.edges[ei].Other(id))
	}
	return result
}

// Relationship returns the label of the edge between a and b.
func (g *MovieGraph) Relationship(a, b string) (RelType, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ai, ok := g.index[a]
	if !ok {
		return "", false
	}
	bi, ok := g.index[b]
	if !ok {
		return "", false
	}

	ei, ok := g.pairs[newPairKey(ai, bi)]
	if !ok {
		return "", false
	}
	return g.edges[ei].Relationship, true
}

// Conflicts returns the identity collisions seen while building.
func (g *MovieGraph) Conflicts() []Conflict {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]Conflict, len(g.conflicts))
	copy(result, g.conflicts)
	return result
}

// Stats returns a summary of graph size.
func (g *MovieGraph) Stats() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return map[string]int{
		"nodes":     len(g.nodes),
		"edges":     len(g.edges),
		"movies":    g.kindCount[KindMovie],
		"directors": g.kindCount[KindDirector],
		"actors":    g.kindCount[KindActor],
		"conflicts": len(g.conflicts),
	}
}
