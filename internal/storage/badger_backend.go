package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/Benny93/reelgraph/internal/graph"
)

// Key prefixes for different data types
const (
	prefixNode = "n:"     // n:<id> -> storedNode
	prefixEdge = "e:"     // e:<seq> -> graph.EdgeEntry
	prefixAdj  = "i:adj:" // i:adj:<id>\x00<seq> -> neighbor id
)

// adjSep separates the node ID from the sequence in adjacency keys.
// Titles and names never contain a NUL byte.
const adjSep = "\x00"

// storedNode is the value stored under a node key. Seq preserves insertion
// order, which key iteration does not.
type storedNode struct {
	Seq  int             `json:"seq"`
	Node graph.NodeEntry `json:"node"`
}

// BadgerBackend is a BadgerDB-backed storage implementation.
type BadgerBackend struct {
	db        *badger.DB
	mu        sync.RWMutex
	readOnly  bool
	nodeCount int
	edgeCount int
	index     *tokenIndex
}

// NewBadgerBackend creates a new BadgerDB backend.
func NewBadgerBackend() *BadgerBackend {
	return &BadgerBackend{index: newTokenIndex()}
}

// Initialize opens or creates the BadgerDB database at the given path.
func (b *BadgerBackend) Initialize(path string, readOnly bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithNumMemtables(5).
		WithLoggingLevel(badger.ERROR)

	if readOnly {
		opts = opts.WithReadOnly(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening badger DB: %w", err)
	}
	b.db = db
	b.readOnly = readOnly

	if err := b.rebuildIndexFromDB(); err != nil {
		_ = b.db.Close()
		b.db = nil
		return fmt.Errorf("rebuilding search index: %w", err)
	}
	return nil
}

// rebuildIndexFromDB rebuilds the token index and counts from the database.
func (b *BadgerBackend) rebuildIndexFromDB() error {
	nodes, err := b.scanNodes(nil)
	if err != nil {
		return err
	}

	b.index = newTokenIndex()
	for _, n := range nodes {
		b.index.add(n.ID, n.Type)
	}
	b.nodeCount = len(nodes)

	b.edgeCount = 0
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixEdge)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			b.edgeCount++
		}
		return nil
	})
}

// Close releases all resources held by the backend.
func (b *BadgerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}

	err := b.db.Close()
	b.db = nil
	return err
}

// BulkLoad replaces the entire store with the contents of the graph.
func (b *BadgerBackend) BulkLoad(ctx context.Context, g *graph.MovieGraph) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return ErrNotInitialized
	}
	if b.readOnly {
		return ErrReadOnly
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := b.db.DropAll(); err != nil {
		return fmt.Errorf("clearing store: %w", err)
	}

	doc := graph.Export(g)

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	b.index = newTokenIndex()
	for i, n := range doc.Nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(storedNode{Seq: i, Node: n})
		if err != nil {
			return fmt.Errorf("marshaling node: %w", err)
		}
		if err := wb.Set(nodeKey(n.ID), data); err != nil {
			return fmt.Errorf("setting node: %w", err)
		}
		b.index.add(n.ID, n.Type)
	}

	adjSeq := 0
	for i, e := range doc.Edges {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshaling edge: %w", err)
		}
		if err := wb.Set(edgeKey(i), data); err != nil {
			return fmt.Errorf("setting edge: %w", err)
		}

		// Both endpoints see the edge.
		if err := wb.Set(adjKey(e.Source, adjSeq), []byte(e.Target)); err != nil {
			return fmt.Errorf("setting adjacency index: %w", err)
		}
		if err := wb.Set(adjKey(e.Target, adjSeq+1), []byte(e.Source)); err != nil {
			return fmt.Errorf("setting adjacency index: %w", err)
		}
		adjSeq += 2
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flushing batch: %w", err)
	}

	b.nodeCount = len(doc.Nodes)
	b.edgeCount = len(doc.Edges)
	return nil
}

// LoadDocument reads every node and edge back in insertion order.
func (b *BadgerBackend) LoadDocument(ctx context.Context) (*graph.Document, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return nil, ErrNotInitialized
	}

	nodes, err := b.scanNodes(nil)
	if err != nil {
		return nil, err
	}

	edges := make([]graph.EdgeEntry, 0, b.edgeCount)
	err = b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixEdge)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var e graph.EdgeEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("unmarshaling edge: %w", err)
			}
			edges = append(edges, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &graph.Document{Nodes: nodes, Edges: edges}, nil
}

// scanNodes returns all nodes accepted by keep, sorted by insertion order.
// The caller must hold the lock.
func (b *BadgerBackend) scanNodes(keep func(graph.NodeEntry) bool) ([]graph.NodeEntry, error) {
	var stored []storedNode

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixNode)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var sn storedNode
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sn)
			}); err != nil {
				return fmt.Errorf("unmarshaling node: %w", err)
			}
			if keep == nil || keep(sn.Node) {
				stored = append(stored, sn)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(stored, func(i, j int) bool { return stored[i].Seq < stored[j].Seq })

	nodes := make([]graph.NodeEntry, len(stored))
	for i, sn := range stored {
		nodes[i] = sn.Node
	}
	return nodes, nil
}

// GetNode returns a single node by ID, or nil if not found.
func (b *BadgerBackend) GetNode(ctx context.Context, nodeID string) (*graph.NodeEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return nil, ErrNotInitialized
	}

	var sn storedNode
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(nodeID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sn)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting node: %w", err)
	}

	return &sn.Node, nil
}

// GetNodesByKind returns all nodes with the given kind.
func (b *BadgerBackend) GetNodesByKind(ctx context.Context, kind graph.NodeKind) ([]graph.NodeEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return nil, ErrNotInitialized
	}

	return b.scanNodes(func(n graph.NodeEntry) bool { return n.Type == kind })
}

// Neighbors returns adjacent node IDs in edge insertion order.
func (b *BadgerBackend) Neighbors(ctx context.Context, nodeID string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return nil, ErrNotInitialized
	}

	var neighbors []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixAdj + nodeID + adjSep)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(func(val []byte) error {
				neighbors = append(neighbors, string(val))
				return nil
			}); err != nil {
				return fmt.Errorf("reading adjacency: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return neighbors, nil
}

// Search performs token search using the in-memory index.
func (b *BadgerBackend) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.index.search(query, limit), nil
}

// NodeCount returns the node count.
func (b *BadgerBackend) NodeCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nodeCount
}

// EdgeCount returns the edge count.
func (b *BadgerBackend) EdgeCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.edgeCount
}

// nodeKey returns the BadgerDB key for a node.
func nodeKey(nodeID string) []byte {
	return []byte(prefixNode + nodeID)
}

// edgeKey zero-pads the sequence so keys iterate in insertion order.
func edgeKey(seq int) []byte {
	return []byte(fmt.Sprintf("%s%010d", prefixEdge, seq))
}

func adjKey(nodeID string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s%s%010d", prefixAdj, nodeID, adjSep, seq))
}
