package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/Benny93/reelgraph/internal/graph"
)

// entityLabel is carried by every reelgraph node so lookups by id hit one index.
const entityLabel = "Entity"

const connectTimeout = 5 * time.Second

// Neo4jBackend stores the graph in a Neo4j database.
//
// Movies, directors and actors become :Movie, :Director and :Actor nodes
// (all also labelled :Entity) keyed by id. Edges become DIRECTED_BY and
// ACTED_IN relationships pointing from the movie to the person.
type Neo4jBackend struct {
	uri      string
	auth     neo4j.AuthToken
	driver   neo4j.DriverWithContext
	database string
	readOnly bool

	mu        sync.RWMutex
	nodeCount int
	edgeCount int
}

// NewNeo4jBackend creates a backend for the given bolt URI. An empty
// username connects without authentication.
func NewNeo4jBackend(uri, username, password string) *Neo4jBackend {
	auth := neo4j.NoAuth()
	if username != "" {
		auth = neo4j.BasicAuth(username, password, "")
	}
	return &Neo4jBackend{uri: uri, auth: auth}
}

// Initialize connects to the server and verifies connectivity. The path
// names the target database; empty selects the server default.
func (n *Neo4jBackend) Initialize(path string, readOnly bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	driver, err := neo4j.NewDriverWithContext(n.uri, n.auth)
	if err != nil {
		return fmt.Errorf("creating neo4j driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return fmt.Errorf("connecting to neo4j: %w", err)
	}

	n.driver = driver
	n.database = path
	n.readOnly = readOnly

	nodes, edges, err := n.counts(ctx)
	if err != nil {
		return fmt.Errorf("counting stored graph: %w", err)
	}
	n.nodeCount, n.edgeCount = nodes, edges
	return nil
}

// Close releases the driver.
func (n *Neo4jBackend) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.driver == nil {
		return nil
	}
	err := n.driver.Close(context.Background())
	n.driver = nil
	return err
}

func (n *Neo4jBackend) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return n.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: n.database,
		AccessMode:   mode,
	})
}

// BulkLoad replaces every reelgraph node and relationship in one transaction.
func (n *Neo4jBackend) BulkLoad(ctx context.Context, g *graph.MovieGraph) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.driver == nil {
		return ErrNotInitialized
	}
	if n.readOnly {
		return ErrReadOnly
	}

	doc := graph.Export(g)

	nodesByLabel := make(map[string][]map[string]any)
	for i, entry := range doc.Nodes {
		label := labelFor(entry.Type)
		nodesByLabel[label] = append(nodesByLabel[label], map[string]any{
			"id":    entry.ID,
			"props": nodeProps(entry, i),
		})
	}

	edgesByType := make(map[string][]map[string]any)
	for i, e := range doc.Edges {
		relType := relTypeFor(e.Relationship)
		edgesByType[relType] = append(edgesByType[relType], map[string]any{
			"source": e.Source,
			"target": e.Target,
			"seq":    i,
		})
	}

	sess := n.session(ctx, neo4j.AccessModeWrite)
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, fmt.Sprintf("MATCH (n:%s) DETACH DELETE n", entityLabel), nil); err != nil {
			return nil, fmt.Errorf("clearing graph: %w", err)
		}

		for label, rows := range nodesByLabel {
			cypher := fmt.Sprintf(
				`UNWIND $rows AS row
				 MERGE (n:%s {id: row.id})
				 SET n:%s, n += row.props`,
				entityLabel, label,
			)
			if _, err := tx.Run(ctx, cypher, map[string]any{"rows": rows}); err != nil {
				return nil, fmt.Errorf("merging %s nodes: %w", label, err)
			}
		}

		for relType, rows := range edgesByType {
			cypher := fmt.Sprintf(
				`UNWIND $rows AS row
				 MATCH (a:%[1]s {id: row.source}), (b:%[1]s {id: row.target})
				 MERGE (a)-[r:%[2]s]->(b)
				 SET r.seq = row.seq`,
				entityLabel, relType,
			)
			if _, err := tx.Run(ctx, cypher, map[string]any{"rows": rows}); err != nil {
				return nil, fmt.Errorf("merging %s relationships: %w", relType, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	n.nodeCount = len(doc.Nodes)
	n.edgeCount = len(doc.Edges)
	return nil
}

// LoadDocument reads the stored graph back ordered by insertion sequence.
func (n *Neo4jBackend) LoadDocument(ctx context.Context) (*graph.Document, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.driver == nil {
		return nil, ErrNotInitialized
	}

	nodes, err := n.queryNodes(ctx, fmt.Sprintf("MATCH (n:%s) RETURN n ORDER BY n.seq", entityLabel), nil)
	if err != nil {
		return nil, err
	}

	records, err := n.read(ctx, fmt.Sprintf(
		`MATCH (a:%[1]s)-[r]->(b:%[1]s)
		 RETURN a.id AS source, b.id AS target, type(r) AS rel
		 ORDER BY r.seq`, entityLabel), nil)
	if err != nil {
		return nil, err
	}

	edges := make([]graph.EdgeEntry, 0, len(records))
	for _, rec := range records {
		source, _, err := neo4j.GetRecordValue[string](rec, "source")
		if err != nil {
			return nil, fmt.Errorf("reading edge source: %w", err)
		}
		target, _, err := neo4j.GetRecordValue[string](rec, "target")
		if err != nil {
			return nil, fmt.Errorf("reading edge target: %w", err)
		}
		rel, _, err := neo4j.GetRecordValue[string](rec, "rel")
		if err != nil {
			return nil, fmt.Errorf("reading edge type: %w", err)
		}
		edges = append(edges, graph.EdgeEntry{
			Source:       source,
			Target:       target,
			Relationship: relationshipFor(rel),
		})
	}

	return &graph.Document{Nodes: nodes, Edges: edges}, nil
}

// GetNode returns a single node by ID, or nil if not found.
func (n *Neo4jBackend) GetNode(ctx context.Context, nodeID string) (*graph.NodeEntry, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.driver == nil {
		return nil, ErrNotInitialized
	}

	nodes, err := n.queryNodes(ctx,
		fmt.Sprintf("MATCH (n:%s {id: $id}) RETURN n", entityLabel),
		map[string]any{"id": nodeID})
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return &nodes[0], nil
}

// GetNodesByKind returns all nodes of the given kind.
func (n *Neo4jBackend) GetNodesByKind(ctx context.Context, kind graph.NodeKind) ([]graph.NodeEntry, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.driver == nil {
		return nil, ErrNotInitialized
	}
	if !kind.Valid() {
		return nil, nil
	}

	return n.queryNodes(ctx,
		fmt.Sprintf("MATCH (n:%s) RETURN n ORDER BY n.seq", labelFor(kind)), nil)
}

// Neighbors returns adjacent node IDs ordered by relationship sequence.
func (n *Neo4jBackend) Neighbors(ctx context.Context, nodeID string) ([]string, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.driver == nil {
		return nil, ErrNotInitialized
	}

	records, err := n.read(ctx, fmt.Sprintf(
		`MATCH (:%[1]s {id: $id})-[r]-(m:%[1]s)
		 RETURN m.id AS id ORDER BY r.seq`, entityLabel),
		map[string]any{"id": nodeID})
	if err != nil {
		return nil, err
	}

	neighbors := make([]string, 0, len(records))
	for _, rec := range records {
		id, _, err := neo4j.GetRecordValue[string](rec, "id")
		if err != nil {
			return nil, fmt.Errorf("reading neighbor: %w", err)
		}
		neighbors = append(neighbors, id)
	}
	return neighbors, nil
}

// Search scores node ids by how many query tokens they contain, case-insensitively.
func (n *Neo4jBackend) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.driver == nil {
		return nil, ErrNotInitialized
	}

	tokens := tokenize(query)
	if len(tokens) == 0 {
		return []SearchResult{}, nil
	}
	if limit <= 0 {
		limit = n.nodeCount
	}

	records, err := n.read(ctx, fmt.Sprintf(
		`MATCH (n:%s)
		 WITH n, size([t IN $tokens WHERE toLower(n.id) CONTAINS t]) AS score
		 WHERE score > 0
		 RETURN n.id AS id, n.kind AS kind, score
		 ORDER BY score DESC, n.seq
		 LIMIT $limit`, entityLabel),
		map[string]any{"tokens": tokens, "limit": limit})
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(records))
	for _, rec := range records {
		id, _, _ := neo4j.GetRecordValue[string](rec, "id")
		kind, _, _ := neo4j.GetRecordValue[string](rec, "kind")
		score, _, _ := neo4j.GetRecordValue[int64](rec, "score")
		results = append(results, SearchResult{
			NodeID: id,
			Kind:   graph.NodeKind(kind),
			Score:  float64(score),
		})
	}
	return results, nil
}

// NodeCount returns the node count recorded at the last load.
func (n *Neo4jBackend) NodeCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.nodeCount
}

// EdgeCount returns the edge count recorded at the last load.
func (n *Neo4jBackend) EdgeCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.edgeCount
}

func (n *Neo4jBackend) counts(ctx context.Context) (int, int, error) {
	records, err := n.read(ctx, fmt.Sprintf(
		`MATCH (n:%[1]s)
		 OPTIONAL MATCH (n)-[r]->(:%[1]s)
		 RETURN count(DISTINCT n) AS nodes, count(r) AS edges`, entityLabel), nil)
	if err != nil {
		return 0, 0, err
	}
	if len(records) == 0 {
		return 0, 0, nil
	}
	nodes, _, err := neo4j.GetRecordValue[int64](records[0], "nodes")
	if err != nil {
		return 0, 0, err
	}
	edges, _, err := neo4j.GetRecordValue[int64](records[0], "edges")
	if err != nil {
		return 0, 0, err
	}
	return int(nodes), int(edges), nil
}

func (n *Neo4jBackend) read(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	sess := n.session(ctx, neo4j.AccessModeRead)
	defer sess.Close(ctx)

	result, err := sess.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j query: %w", err)
	}
	return result.([]*neo4j.Record), nil
}

func (n *Neo4jBackend) queryNodes(ctx context.Context, cypher string, params map[string]any) ([]graph.NodeEntry, error) {
	records, err := n.read(ctx, cypher, params)
	if err != nil {
		return nil, err
	}

	nodes := make([]graph.NodeEntry, 0, len(records))
	for _, rec := range records {
		node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
		if err != nil {
			return nil, fmt.Errorf("reading node: %w", err)
		}
		nodes = append(nodes, entryFromProps(node.Props))
	}
	return nodes, nil
}

// labelFor maps a node kind to its Neo4j label.
func labelFor(kind graph.NodeKind) string {
	switch kind {
	case graph.KindMovie:
		return "Movie"
	case graph.KindDirector:
		return "Director"
	default:
		return "Actor"
	}
}

// relTypeFor maps an edge relationship to its Neo4j relationship type.
func relTypeFor(rel graph.RelType) string {
	return strings.ToUpper(string(rel))
}

func relationshipFor(relType string) graph.RelType {
	return graph.RelType(strings.ToLower(relType))
}

// nodeProps flattens a node entry into Neo4j properties. Absent rating
// strings are stored as null, which removes the property.
func nodeProps(entry graph.NodeEntry, seq int) map[string]any {
	props := map[string]any{
		"kind": string(entry.Type),
		"seq":  seq,
	}
	if m := entry.Movie; m != nil {
		props["year"] = m.Year
		props["country"] = m.Country
		props["genre"] = m.Genre
		props["rating"] = derefFloat(m.Rating)
		props["imdb_rating"] = derefString(m.IMDbRating)
		props["rotten_tomatoes_rating"] = derefString(m.RottenTomatoesRating)
		props["metacritic_rating"] = derefString(m.MetacriticRating)
	}
	return props
}

// entryFromProps is the inverse of nodeProps.
func entryFromProps(props map[string]any) graph.NodeEntry {
	entry := graph.NodeEntry{
		ID:   strProp(props, "id"),
		Type: graph.NodeKind(strProp(props, "kind")),
	}

	if _, ok := props["year"]; !ok {
		return entry
	}

	attrs := &graph.MovieAttrs{
		Country:              strProp(props, "country"),
		Genre:                strProp(props, "genre"),
		IMDbRating:           optStrProp(props, "imdb_rating"),
		RottenTomatoesRating: optStrProp(props, "rotten_tomatoes_rating"),
		MetacriticRating:     optStrProp(props, "metacritic_rating"),
	}
	switch v := props["year"].(type) {
	case int64:
		attrs.Year = int(v)
	case int:
		attrs.Year = v
	}
	if v, ok := props["rating"].(float64); ok {
		attrs.Rating = &v
	}
	entry.Movie = attrs
	return entry
}

func strProp(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

func optStrProp(props map[string]any, key string) *string {
	if s, ok := props[key].(string); ok {
		return &s
	}
	return nil
}

func derefString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func derefFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
