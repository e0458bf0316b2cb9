package storage

import (
	"context"
	"sync"

	"github.com/Benny93/reelgraph/internal/graph"
)

// MemoryBackend is an in-memory implementation of GraphStore.
type MemoryBackend struct {
	mu       sync.RWMutex
	doc      graph.Document
	position map[string]int
	adj      map[string][]string
	index    *tokenIndex
	readOnly bool
	ready    bool
}

// NewMemoryBackend creates a new in-memory storage backend.
func NewMemoryBackend() *MemoryBackend {
	m := &MemoryBackend{}
	m.reset()
	return m
}

func (m *MemoryBackend) reset() {
	m.doc = graph.Document{Nodes: []graph.NodeEntry{}, Edges: []graph.EdgeEntry{}}
	m.position = make(map[string]int)
	m.adj = make(map[string][]string)
	m.index = newTokenIndex()
}

// Initialize implements GraphStore. The path is ignored.
func (m *MemoryBackend) Initialize(path string, readOnly bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readOnly = readOnly
	m.ready = true
	return nil
}

// Close implements GraphStore.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	m.ready = false
	return nil
}

// BulkLoad implements GraphStore.
func (m *MemoryBackend) BulkLoad(ctx context.Context, g *graph.MovieGraph) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.readOnly {
		return ErrReadOnly
	}

	m.reset()
	m.doc = graph.Export(g)
	for i, n := range m.doc.Nodes {
		m.position[n.ID] = i
		m.index.add(n.ID, n.Type)
	}
	for _, e := range m.doc.Edges {
		m.adj[e.Source] = append(m.adj[e.Source], e.Target)
		m.adj[e.Target] = append(m.adj[e.Target], e.Source)
	}
	m.ready = true
	return nil
}

// LoadDocument implements GraphStore.
func (m *MemoryBackend) LoadDocument(ctx context.Context) (*graph.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc := graph.Document{
		Nodes: make([]graph.NodeEntry, len(m.doc.Nodes)),
		Edges: make([]graph.EdgeEntry, len(m.doc.Edges)),
	}
	for i, n := range m.doc.Nodes {
		doc.Nodes[i] = copyEntry(n)
	}
	copy(doc.Edges, m.doc.Edges)
	return &doc, nil
}

// GetNode implements GraphStore.
func (m *MemoryBackend) GetNode(ctx context.Context, nodeID string) (*graph.NodeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pos, ok := m.position[nodeID]
	if !ok {
		return nil, nil
	}
	entry := copyEntry(m.doc.Nodes[pos])
	return &entry, nil
}

// GetNodesByKind implements GraphStore.
func (m *MemoryBackend) GetNodesByKind(ctx context.Context, kind graph.NodeKind) ([]graph.NodeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var nodes []graph.NodeEntry
	for _, n := range m.doc.Nodes {
		if n.Type == kind {
			nodes = append(nodes, copyEntry(n))
		}
	}
	return nodes, nil
}

// Neighbors implements GraphStore.
func (m *MemoryBackend) Neighbors(ctx context.Context, nodeID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.adj[nodeID]...), nil
}

// Search implements GraphStore.
func (m *MemoryBackend) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index.search(query, limit), nil
}

// NodeCount returns the number of stored nodes.
func (m *MemoryBackend) NodeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.doc.Nodes)
}

// EdgeCount returns the number of stored edges.
func (m *MemoryBackend) EdgeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.doc.Edges)
}

// IsInitialized returns true once the backend has been initialized or loaded.
func (m *MemoryBackend) IsInitialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

func copyEntry(n graph.NodeEntry) graph.NodeEntry {
	if n.Movie != nil {
		attrs := *n.Movie
		n.Movie = &attrs
	}
	return n
}
