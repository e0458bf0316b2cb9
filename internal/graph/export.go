package graph

import (
	"encoding/json"
	"fmt"
	"io"
)

// Document is the serialized form of a graph: {"nodes": [...], "edges": [...]}.
type Document struct {
	Nodes []NodeEntry `json:"nodes"`
	Edges []EdgeEntry `json:"edges"`
}

// NodeEntry is one exported node. It marshals as a flat object holding the
// id, the type and every recorded movie attribute.
type NodeEntry struct {
	ID    string
	Type  NodeKind
	Movie *MovieAttrs
}

// EdgeEntry is one exported edge.
type EdgeEntry struct {
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	Relationship RelType `json:"relationship"`
}

// flatNode is the on-disk shape of a NodeEntry.
type flatNode struct {
	ID                   string   `json:"id"`
	Type                 NodeKind `json:"type"`
	Year                 *int     `json:"year,omitempty"`
	Country              *string  `json:"country,omitempty"`
	Genre                *string  `json:"genre,omitempty"`
	Rating               *float64 `json:"rating,omitempty"`
	IMDbRating           *string  `json:"imdb_rating"`
	RottenTomatoesRating *string  `json:"rotten_tomatoes_rating"`
	MetacriticRating     *string  `json:"metacritic_rating"`
}

// personNode omits the rating keys entirely.
type personNode struct {
	ID   string   `json:"id"`
	Type NodeKind `json:"type"`
}

// MarshalJSON implements json.Marshaler.
func (n NodeEntry) MarshalJSON() ([]byte, error) {
	if n.Movie == nil {
		return json.Marshal(personNode{ID: n.ID, Type: n.Type})
	}

	m := n.Movie
	return json.Marshal(flatNode{
		ID:                   n.ID,
		Type:                 n.Type,
		Year:                 &m.Year,
		Country:              &m.Country,
		Genre:                &m.Genre,
		Rating:               m.Rating,
		IMDbRating:           m.IMDbRating,
		RottenTomatoesRating: m.RottenTomatoesRating,
		MetacriticRating:     m.MetacriticRating,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *NodeEntry) UnmarshalJSON(data []byte) error {
	var flat flatNode
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	n.ID = flat.ID
	n.Type = flat.Type
	n.Movie = nil

	if flat.Year == nil && flat.Country == nil && flat.Genre == nil {
		return nil
	}

	attrs := &MovieAttrs{
		Rating:               flat.Rating,
		IMDbRating:           flat.IMDbRating,
		RottenTomatoesRating: flat.RottenTomatoesRating,
		MetacriticRating:     flat.MetacriticRating,
	}
	if flat.Year != nil {
		attrs.Year = *flat.Year
	}
	if flat.Country != nil {
		attrs.Country = *flat.Country
	}
	if flat.Genre != nil {
		attrs.Genre = *flat.Genre
	}
	n.Movie = attrs
	return nil
}

// Export serializes the graph without mutating it. Order follows the
// graph's insertion order.
func Export(g *MovieGraph) Document {
	g.mu.RLock()
	defer g.mu.RUnlock()

	doc := Document{
		Nodes: make([]NodeEntry, 0, len(g.nodes)),
		Edges: make([]EdgeEntry, 0, len(g.edges)),
	}

	for _, node := range g.nodes {
		entry := NodeEntry{ID: node.ID, Type: node.Kind}
		if node.Movie != nil {
			attrs := *node.Movie
			entry.Movie = &attrs
		}
		doc.Nodes = append(doc.Nodes, entry)
	}

	for _, e := range g.edges {
		doc.Edges = append(doc.Edges, EdgeEntry{
			Source:       e.Source,
			Target:       e.Target,
			Relationship: e.Relationship,
		})
	}

	return doc
}

// FromDocument rebuilds a graph from its exported node and edge lists.
func FromDocument(doc Document) (*MovieGraph, error) {
	g := NewMovieGraph()

	for i, n := range doc.Nodes {
		if !n.Type.Valid() {
			return nil, fmt.Errorf("node %d (%s): invalid type %q", i, n.ID, n.Type)
		}
		node, _ := g.UpsertNode(n.ID, n.Type, n.Movie)
		if n.Movie != nil && n.Type != KindMovie {
			// Attributes left behind by an overwritten movie write.
			g.setMovieAttrs(node, n.Movie)
		}
	}

	for i, e := range doc.Edges {
		if !e.Relationship.Valid() {
			return nil, fmt.Errorf("edge %d (%s-%s): invalid relationship %q", i, e.Source, e.Target, e.Relationship)
		}
		if _, err := g.AddEdge(e.Source, e.Target, e.Relationship); err != nil {
			return nil, fmt.Errorf("edge %d: %w", i, err)
		}
	}

	return g, nil
}

// WriteJSON writes the document with two-space indentation.
func WriteJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding graph: %w", err)
	}
	return nil
}

// ReadJSON decodes a document written by WriteJSON.
func ReadJSON(r io.Reader) (Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decoding graph: %w", err)
	}
	return doc, nil
}

func (g *MovieGraph) setMovieAttrs(node *Node, movie *MovieAttrs) {
	g.mu.Lock()
	defer g.mu.Unlock()
	attrs := *movie
	node.Movie = &attrs
}
