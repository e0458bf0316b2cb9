package server

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Benny93/reelgraph/internal/graph"
	"github.com/Benny93/reelgraph/internal/ranking"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 100
)

// RegisterRoutes mounts the health check and the /api group on e.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	api := e.Group("/api")
	api.GET("/stats", s.getStats)
	api.GET("/path", s.getPath)
	api.GET("/rank", s.getRank)
	api.GET("/search", s.getSearch)
	api.GET("/graph", s.getGraph)
	api.GET("/nodes/:id", s.getNode)
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

type statsResponse struct {
	Source   string         `json:"source"`
	Records  int            `json:"records"`
	LoadedAt time.Time      `json:"loaded_at"`
	Graph    map[string]int `json:"graph"`
}

func (s *Server) getStats(c echo.Context) error {
	snap := s.Snapshot()
	return c.JSON(http.StatusOK, statsResponse{
		Source:   snap.Source,
		Records:  len(snap.Records),
		LoadedAt: snap.LoadedAt,
		Graph:    snap.Graph.Stats(),
	})
}

type pathParams struct {
	From string `query:"from" validate:"required"`
	To   string `query:"to" validate:"required"`
}

type pathResponse struct {
	Found    bool     `json:"found"`
	Length   int      `json:"length"`
	Elements []string `json:"elements,omitempty"`
	Lines    []string `json:"lines"`
	Message  string   `json:"message,omitempty"`
}

func (s *Server) getPath(c echo.Context) error {
	params := new(pathParams)
	if err := c.Bind(params); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request params")
	}
	if err := c.Validate(params); err != nil {
		return errorJSON(c, http.StatusBadRequest, "from and to are required")
	}

	snap := s.Snapshot()
	from, okFrom := snap.Resolve(params.From)
	to, okTo := snap.Resolve(params.To)
	if !okFrom || !okTo {
		return c.JSON(http.StatusOK, pathResponse{Message: graph.NoPathMessage})
	}

	result := graph.FindPath(snap.Graph, from, to)
	resp := pathResponse{
		Found:    result.Found(),
		Length:   result.Len(),
		Elements: result.Elements(),
		Lines:    result.Lines(),
	}
	if !result.Found() {
		resp.Message = graph.NoPathMessage
	}
	return c.JSON(http.StatusOK, resp)
}

type rankParams struct {
	Key   string `query:"key" validate:"required"`
	Limit int    `query:"limit" validate:"min=0"`
}

type rankEntry struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Year     int    `json:"year"`
	Director string `json:"director"`
	Value    string `json:"value"`
}

func (s *Server) getRank(c echo.Context) error {
	params := new(rankParams)
	if err := c.Bind(params); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request params")
	}
	if err := c.Validate(params); err != nil {
		return errorJSON(c, http.StatusBadRequest, "key is required")
	}

	key, err := ranking.ParseKey(params.Key)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"error": err.Error(),
			"keys":  ranking.Keys(),
		})
	}

	ranked, err := ranking.Rank(s.Snapshot().Records, key)
	if errors.Is(err, ranking.ErrUnknownKey) {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	if params.Limit > 0 && len(ranked) > params.Limit {
		ranked = ranked[:params.Limit]
	}

	entries := make([]rankEntry, len(ranked))
	for i, rec := range ranked {
		entries[i] = rankEntry{
			Position: i + 1,
			Title:    rec.Title,
			Year:     rec.Year,
			Director: rec.Director,
			Value:    ranking.Value(rec, key),
		}
	}
	return c.JSON(http.StatusOK, entries)
}

type searchParams struct {
	Query string `query:"q" validate:"required"`
	Limit int    `query:"limit" validate:"min=0"`
}

func (s *Server) getSearch(c echo.Context) error {
	params := new(searchParams)
	if err := c.Bind(params); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request params")
	}
	if err := c.Validate(params); err != nil {
		return errorJSON(c, http.StatusBadRequest, "q is required")
	}

	limit := params.Limit
	if limit == 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, maxSearchLimit)

	results, err := s.Snapshot().Search(c.Request().Context(), params.Query, limit)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	type hit struct {
		ID    string         `json:"id"`
		Type  graph.NodeKind `json:"type"`
		Score float64        `json:"score"`
	}
	hits := make([]hit, len(results))
	for i, r := range results {
		hits[i] = hit{ID: r.NodeID, Type: r.Kind, Score: r.Score}
	}
	return c.JSON(http.StatusOK, hits)
}

func (s *Server) getGraph(c echo.Context) error {
	return c.JSON(http.StatusOK, graph.Export(s.Snapshot().Graph))
}

type nodeResponse struct {
	Node      graph.NodeEntry `json:"node"`
	Neighbors []string        `json:"neighbors"`
	URL       string          `json:"url,omitempty"`
	Plot      string          `json:"plot,omitempty"`
	Actors    []string        `json:"actors,omitempty"`
	Director  string          `json:"director,omitempty"`
}

func (s *Server) getNode(c echo.Context) error {
	snap := s.Snapshot()
	id := c.Param("id")
	// echo routes on the raw path when it differs from the decoded one.
	if c.Request().URL.RawPath != "" {
		unescaped, err := url.PathUnescape(id)
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, "invalid node id")
		}
		id = unescaped
	}

	node := snap.Graph.GetNode(id)
	if node == nil {
		return errorJSON(c, http.StatusNotFound, "node not found")
	}

	resp := nodeResponse{
		Node:      graph.NodeEntry{ID: node.ID, Type: node.Kind, Movie: node.Movie},
		Neighbors: snap.Graph.Neighbors(id),
	}
	if rec, ok := snap.Movie(id); ok && node.IsMovie() {
		resp.URL = rec.URL
		resp.Plot = rec.Plot
		resp.Actors = rec.Actors
		resp.Director = rec.Director
	}
	return c.JSON(http.StatusOK, resp)
}
