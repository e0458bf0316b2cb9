// Package mcp provides the MCP (Model Context Protocol) server for reelgraph.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/Benny93/reelgraph/internal/graph"
	"github.com/Benny93/reelgraph/internal/ingestion"
	"github.com/Benny93/reelgraph/internal/ranking"
)

const (
	serverName    = "reelgraph"
	serverVersion = "0.1.0"

	defaultSearchLimit = 20
)

// Server answers MCP requests against the current movie graph snapshot.
type Server struct {
	snapshot atomic.Pointer[ingestion.Snapshot]
	server   *mcp.Server
	logger   *zap.Logger
}

// Tool represents an MCP tool.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Resource represents an MCP resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// PathArgs is the input of reelgraph_path.
type PathArgs struct {
	From string `json:"from" jsonschema:"actor, director or movie title to start from"`
	To   string `json:"to" jsonschema:"actor, director or movie title to reach"`
}

// RankArgs is the input of reelgraph_rank.
type RankArgs struct {
	Key   string `json:"key" jsonschema:"ranking key"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of movies"`
}

// SearchArgs is the input of reelgraph_search.
type SearchArgs struct {
	Query string `json:"query" jsonschema:"search text"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results"`
}

// NodeArgs is the input of reelgraph_node.
type NodeArgs struct {
	ID string `json:"id" jsonschema:"name or title of the node"`
}

// NewServer creates a new MCP server.
func NewServer(snap *ingestion.Snapshot, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{logger: logger}
	s.snapshot.Store(snap)

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)

	s.registerTools()
	s.registerResources()

	return s
}

// Swap replaces the snapshot used for subsequent requests.
func (s *Server) Swap(snap *ingestion.Snapshot) {
	s.snapshot.Store(snap)
}

// Snapshot returns the snapshot currently served.
func (s *Server) Snapshot() *ingestion.Snapshot {
	return s.snapshot.Load()
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []Tool {
	return []Tool{
		{
			Name:        "reelgraph_path",
			Description: "Find the shortest chain of movies, directors and actors linking two names.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"from": {Type: "string", Description: "Name or title to start from"},
					"to":   {Type: "string", Description: "Name or title to reach"},
				},
				Required: []string{"from", "to"},
			},
		},
		{
			Name:        "reelgraph_rank",
			Description: "Rank all movies by a rating or text attribute.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"key":   {Type: "string", Description: "Ranking key", Enum: keysAsAny()},
					"limit": {Type: "integer", Description: "Maximum number of movies"},
				},
				Required: []string{"key"},
			},
		},
		{
			Name:        "reelgraph_search",
			Description: "Search node identities by word. Returns ranked movies, directors and actors.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"query": {Type: "string", Description: "Search query text"},
					"limit": {Type: "integer", Description: "Maximum number of results"},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "reelgraph_node",
			Description: "Show a node with its attributes and direct connections.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"id": {Type: "string", Description: "Name or title of the node"},
				},
				Required: []string{"id"},
			},
		},
	}
}

// ListResources returns all registered resources.
func (s *Server) ListResources() []Resource {
	return []Resource{
		{
			URI:         "reelgraph://overview",
			Name:        "Graph Overview",
			Description: "Size of the loaded movie graph",
			MimeType:    "text/plain",
		},
		{
			URI:         "reelgraph://schema",
			Name:        "Graph Schema",
			Description: "Node kinds and relationships of the movie graph",
			MimeType:    "text/plain",
		},
		{
			URI:         "reelgraph://conflicts",
			Name:        "Identity Conflicts",
			Description: "Names recorded with more than one kind or relationship",
			MimeType:    "text/plain",
		},
	}
}

// CallTool executes a tool with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "reelgraph_path":
		from, _ := args["from"].(string)
		to, _ := args["to"].(string)
		return s.handlePath(ctx, PathArgs{From: from, To: to})
	case "reelgraph_rank":
		key, _ := args["key"].(string)
		limit, _ := args["limit"].(float64)
		return s.handleRank(RankArgs{Key: key, Limit: int(limit)})
	case "reelgraph_search":
		query, _ := args["query"].(string)
		limit, _ := args["limit"].(float64)
		return s.handleSearch(ctx, SearchArgs{Query: query, Limit: int(limit)})
	case "reelgraph_node":
		id, _ := args["id"].(string)
		return s.handleNode(ctx, NodeArgs{ID: id})
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case "reelgraph://overview":
		return getOverview(s.Snapshot()), nil
	case "reelgraph://schema":
		return getSchema(), nil
	case "reelgraph://conflicts":
		return getConflicts(s.Snapshot().Graph), nil
	default:
		return "", fmt.Errorf("unknown resource: %s", uri)
	}
}

// Run serves JSON-RPC requests read line by line from stdin until EOF or
// ctx is done. Nothing but responses is written to stdout.
func (s *Server) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	if stdin == nil || stdout == nil {
		return fmt.Errorf("stdin and stdout must not be nil")
	}

	reader := bufio.NewReader(stdin)
	encoder := json.NewEncoder(stdout)
	// MCP stdio framing is one compact JSON message per line.

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if len(line) == 0 && err == io.EOF {
			return nil
		}
		if err != nil && err != io.EOF {
			return err
		}

		var req map[string]any
		if jsonErr := json.Unmarshal(line, &req); jsonErr != nil {
			s.logger.Debug("skipping malformed request", zap.Error(jsonErr))
			if err == io.EOF {
				return nil
			}
			continue
		}

		// Notifications carry no id and get no response.
		if _, ok := req["id"]; ok {
			resp := s.handleRequest(ctx, req)
			if encErr := encoder.Encode(resp); encErr != nil {
				return encErr
			}
		}

		if err == io.EOF {
			return nil
		}
	}
}

// RunStdio serves the SDK server over the process's stdin and stdout.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// SDKServer exposes the underlying SDK server, e.g. for in-memory transports.
func (s *Server) SDKServer() *mcp.Server {
	return s.server
}

func (s *Server) handleRequest(ctx context.Context, req map[string]any) map[string]any {
	method, _ := req["method"].(string)
	id := req["id"]

	switch method {
	case "initialize":
		return s.handleInitialize(id)
	case "ping":
		return map[string]any{"jsonrpc": "2.0", "id": id, "result": map[string]any{}}
	case "tools/list":
		return s.handleToolsList(id)
	case "tools/call":
		return s.handleToolsCall(ctx, id, req)
	case "resources/list":
		return s.handleResourcesList(id)
	case "resources/read":
		return s.handleResourcesRead(ctx, id, req)
	default:
		return errorResponse(id, -32601, "Method not found: "+method)
	}
}

func (s *Server) handleInitialize(id any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"protocolVersion": "2024-11-05",
			"serverInfo": map[string]any{
				"name":    serverName,
				"version": serverVersion,
			},
			"capabilities": map[string]any{
				"tools": map[string]any{
					"listChanged": false,
				},
				"resources": map[string]any{
					"listChanged": false,
				},
			},
		},
	}
}

func (s *Server) handleToolsList(id any) map[string]any {
	tools := s.ListTools()
	toolList := make([]map[string]any, len(tools))
	for i, tool := range tools {
		toolList[i] = map[string]any{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": tool.InputSchema,
		}
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"tools": toolList,
		},
	}
}

func (s *Server) handleToolsCall(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	name, _ := params["name"].(string)
	args, _ := params["arguments"].(map[string]any)

	result, err := s.CallTool(ctx, name, args)
	if err != nil {
		s.logger.Debug("tool call failed", zap.String("tool", name), zap.Error(err))
		return errorResponse(id, -32000, err.Error())
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"content": []map[string]any{
				{
					"type": "text",
					"text": result,
				},
			},
		},
	}
}

func (s *Server) handleResourcesList(id any) map[string]any {
	resources := s.ListResources()
	resourceList := make([]map[string]any, len(resources))
	for i, res := range resources {
		resourceList[i] = map[string]any{
			"uri":         res.URI,
			"name":        res.Name,
			"description": res.Description,
			"mimeType":    res.MimeType,
		}
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"resources": resourceList,
		},
	}
}

func (s *Server) handleResourcesRead(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	uri, _ := params["uri"].(string)

	content, err := s.ReadResource(ctx, uri)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"contents": []map[string]any{
				{
					"uri":      uri,
					"mimeType": "text/plain",
					"text":     content,
				},
			},
		},
	}
}

// Tool handlers

func (s *Server) handlePath(ctx context.Context, args PathArgs) (string, error) {
	if args.From == "" || args.To == "" {
		return "", fmt.Errorf("both from and to are required")
	}

	snap := s.Snapshot()
	from, okFrom := snap.Resolve(args.From)
	to, okTo := snap.Resolve(args.To)
	if !okFrom || !okTo {
		return graph.NoPathMessage, nil
	}

	result := graph.FindPath(snap.Graph, from, to)
	if !result.Found() {
		return graph.NoPathMessage, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Path from **%s** to **%s** (%d hops):\n\n", from, to, result.Len())
	for _, line := range result.Lines() {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func (s *Server) handleRank(args RankArgs) (string, error) {
	key, err := ranking.ParseKey(args.Key)
	if err != nil {
		return "", fmt.Errorf("%w (valid keys: %s)", err, strings.Join(keyStrings(), ", "))
	}

	ranked, err := ranking.Rank(s.Snapshot().Records, key)
	if err != nil {
		return "", err
	}
	if args.Limit > 0 && len(ranked) > args.Limit {
		ranked = ranked[:args.Limit]
	}

	if len(ranked) == 0 {
		return "No movies loaded", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Movies ranked by %s:\n\n", key)
	for i, rec := range ranked {
		fmt.Fprintf(&sb, "%d. **%s** (%d) - %s\n", i+1, rec.Title, rec.Year, ranking.Value(rec, key))
	}
	return sb.String(), nil
}

func (s *Server) handleSearch(ctx context.Context, args SearchArgs) (string, error) {
	if args.Query == "" {
		return "No query provided", nil
	}

	limit := args.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	results, err := s.Snapshot().Search(ctx, args.Query, limit)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No results found", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results for '%s':\n\n", len(results), args.Query)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. **%s** (%s)\n", i+1, r.NodeID, r.Kind)
		fmt.Fprintf(&sb, "   Score: %.0f\n", r.Score)
	}
	sb.WriteString("\nNext: Use `reelgraph_node` on a result for its connections.")
	return sb.String(), nil
}

func (s *Server) handleNode(ctx context.Context, args NodeArgs) (string, error) {
	if args.ID == "" {
		return "", fmt.Errorf("id is required")
	}

	snap := s.Snapshot()
	id, ok := snap.Resolve(args.ID)
	if !ok {
		return fmt.Sprintf("'%s' not found in the movie graph.", args.ID), nil
	}

	node := snap.Graph.GetNode(id)
	if node == nil {
		return fmt.Sprintf("'%s' not found in the movie graph.", args.ID), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s (%s)\n\n", node.ID, node.Kind)

	if node.IsMovie() && node.Movie != nil {
		m := node.Movie
		fmt.Fprintf(&sb, "**Year:** %d\n", m.Year)
		if m.Genre != "" {
			fmt.Fprintf(&sb, "**Genre:** %s\n", m.Genre)
		}
		if m.Country != "" {
			fmt.Fprintf(&sb, "**Country:** %s\n", m.Country)
		}
		if m.IMDbRating != nil {
			fmt.Fprintf(&sb, "**IMDb:** %s\n", *m.IMDbRating)
		}
		if m.RottenTomatoesRating != nil {
			fmt.Fprintf(&sb, "**Rotten Tomatoes:** %s\n", *m.RottenTomatoesRating)
		}
		if m.MetacriticRating != nil {
			fmt.Fprintf(&sb, "**Metacritic:** %s\n", *m.MetacriticRating)
		}
		if rec, ok := snap.Movie(node.ID); ok && rec.Plot != "" {
			fmt.Fprintf(&sb, "\n%s\n", rec.Plot)
		}
		sb.WriteString("\n")
	}

	edges := snap.Graph.EdgesOf(id)
	if len(edges) == 0 {
		sb.WriteString("### Connections\nNone\n")
		return sb.String(), nil
	}

	fmt.Fprintf(&sb, "### Connections (%d)\n", len(edges))
	for _, e := range edges {
		fmt.Fprintf(&sb, "- %s (%s)\n", e.Other(id), e.Relationship)
	}
	return sb.String(), nil
}

// Resource handlers

func getOverview(snap *ingestion.Snapshot) string {
	stats := snap.Graph.Stats()

	var sb strings.Builder
	sb.WriteString("# Movie Graph Overview\n\n")
	fmt.Fprintf(&sb, "Source: %s\n", snap.Source)
	fmt.Fprintf(&sb, "Loaded: %s\n\n", snap.LoadedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&sb, "Records:    %d\n", len(snap.Records))
	fmt.Fprintf(&sb, "Nodes:      %d\n", stats["nodes"])
	fmt.Fprintf(&sb, "Edges:      %d\n", stats["edges"])
	fmt.Fprintf(&sb, "Movies:     %d\n", stats["movies"])
	fmt.Fprintf(&sb, "Directors:  %d\n", stats["directors"])
	fmt.Fprintf(&sb, "Actors:     %d\n", stats["actors"])
	fmt.Fprintf(&sb, "Conflicts:  %d\n", stats["conflicts"])
	return sb.String()
}

func getSchema() string {
	var sb strings.Builder
	sb.WriteString("# Movie Graph Schema\n\n")
	sb.WriteString("## Node kinds\n")
	fmt.Fprintf(&sb, "- %s: identified by title; carries year, genre, country and ratings\n", graph.KindMovie)
	fmt.Fprintf(&sb, "- %s: identified by name\n", graph.KindDirector)
	fmt.Fprintf(&sb, "- %s: identified by name\n\n", graph.KindActor)
	sb.WriteString("## Relationships (undirected)\n")
	fmt.Fprintf(&sb, "- %s: movie - director\n", graph.RelDirectedBy)
	fmt.Fprintf(&sb, "- %s: movie - actor\n\n", graph.RelActedIn)
	sb.WriteString("Every edge has exactly one movie endpoint. A name is a single node\n")
	sb.WriteString("even when the same person both directs and acts.\n\n")
	sb.WriteString("## Ranking keys\n")
	for _, k := range keyStrings() {
		fmt.Fprintf(&sb, "- %s\n", k)
	}
	return sb.String()
}

func getConflicts(g *graph.MovieGraph) string {
	conflicts := g.Conflicts()
	if len(conflicts) == 0 {
		return "No identity conflicts."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Identity Conflicts (%d)\n\n", len(conflicts))
	for _, c := range conflicts {
		if c.IsEdgeConflict() {
			fmt.Fprintf(&sb, "- %s - %s: %s -> %s\n", c.ID, c.Other, c.Previous, c.Current)
			continue
		}
		fmt.Fprintf(&sb, "- %s: %s -> %s\n", c.ID, c.Previous, c.Current)
	}
	return sb.String()
}

// Helper functions

func keyStrings() []string {
	keys := ranking.Keys()
	result := make([]string, len(keys))
	for i, k := range keys {
		result[i] = string(k)
	}
	return result
}

func keysAsAny() []any {
	keys := keyStrings()
	result := make([]any, len(keys))
	for i, k := range keys {
		result[i] = k
	}
	return result
}

func errorResponse(id any, code int, message string) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// registerTools registers the tool handlers with the SDK server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "reelgraph_path",
		Description: "Find the shortest chain of movies, directors and actors linking two names.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args PathArgs) (*mcp.CallToolResult, any, error) {
		text, err := s.handlePath(ctx, args)
		if err != nil {
			return nil, nil, err
		}
		return textResult(text), nil, nil
	})

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "reelgraph_rank",
		Description: "Rank all movies by a rating or text attribute.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args RankArgs) (*mcp.CallToolResult, any, error) {
		text, err := s.handleRank(args)
		if err != nil {
			return nil, nil, err
		}
		return textResult(text), nil, nil
	})

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "reelgraph_search",
		Description: "Search node identities by word.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args SearchArgs) (*mcp.CallToolResult, any, error) {
		text, err := s.handleSearch(ctx, args)
		if err != nil {
			return nil, nil, err
		}
		return textResult(text), nil, nil
	})

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "reelgraph_node",
		Description: "Show a node with its attributes and direct connections.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args NodeArgs) (*mcp.CallToolResult, any, error) {
		text, err := s.handleNode(ctx, args)
		if err != nil {
			return nil, nil, err
		}
		return textResult(text), nil, nil
	})
}

// registerResources registers the resource handlers with the SDK server.
func (s *Server) registerResources() {
	for _, res := range s.ListResources() {
		s.server.AddResource(&mcp.Resource{
			URI:         res.URI,
			Name:        res.Name,
			Description: res.Description,
			MIMEType:    res.MimeType,
		}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			text, err := s.ReadResource(ctx, req.Params.URI)
			if err != nil {
				return nil, err
			}
			return &mcp.ReadResourceResult{
				Contents: []*mcp.ResourceContents{
					{URI: req.Params.URI, MIMEType: "text/plain", Text: text},
				},
			}, nil
		})
	}
}
