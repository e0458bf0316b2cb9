// Package storage persists movie graphs for reelgraph.
//
// It defines the GraphStore interface that all storage implementations
// must satisfy, along with common types used across backends.
package storage

import (
	"context"
	"errors"

	"github.com/Benny93/reelgraph/internal/graph"
)

// ErrReadOnly is returned by write operations on a store opened read-only.
var ErrReadOnly = errors.New("store is read-only")

// ErrNotInitialized is returned when a store is used before Initialize.
var ErrNotInitialized = errors.New("store not initialized")

// SearchResult represents a search result from the storage backend.
type SearchResult struct {
	// NodeID is the ID of the matching node.
	NodeID string

	// Kind is the node kind.
	Kind graph.NodeKind

	// Score is the relevance score (higher is better).
	Score float64
}

// GraphStore defines the interface for storage implementations.
//
// Implementations must be thread-safe and support concurrent access.
type GraphStore interface {
	// Lifecycle methods

	// Initialize opens or creates the store at the given location.
	// If readOnly is true, write operations fail with ErrReadOnly.
	Initialize(path string, readOnly bool) error

	// Close releases all resources held by the backend.
	Close() error

	// Bulk operations

	// BulkLoad replaces the entire store with the contents of the graph.
	BulkLoad(ctx context.Context, g *graph.MovieGraph) error

	// LoadDocument reads the stored graph back in insertion order.
	LoadDocument(ctx context.Context) (*graph.Document, error)

	// Node operations

	// GetNode returns a single node by ID, or nil if not found.
	GetNode(ctx context.Context, nodeID string) (*graph.NodeEntry, error)

	// GetNodesByKind returns all nodes of the given kind in insertion order.
	GetNodesByKind(ctx context.Context, kind graph.NodeKind) ([]graph.NodeEntry, error)

	// Neighbors returns the IDs adjacent to nodeID.
	Neighbors(ctx context.Context, nodeID string) ([]string, error)

	// Search

	// Search matches query tokens against node identities.
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)

	// Stats

	NodeCount() int
	EdgeCount() int
}

// Rebuild loads the stored document and reconstructs the in-memory graph.
func Rebuild(ctx context.Context, store GraphStore) (*graph.MovieGraph, error) {
	doc, err := store.LoadDocument(ctx)
	if err != nil {
		return nil, err
	}
	return graph.FromDocument(*doc)
}
