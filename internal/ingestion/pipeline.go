// Package ingestion loads movie records and turns them into a stored graph.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Benny93/reelgraph/internal/graph"
	"github.com/Benny93/reelgraph/internal/movies"
	"github.com/Benny93/reelgraph/internal/storage"
)

// Snapshot is an immutable pairing of a record set and the graph built from
// it. Query surfaces hold one snapshot and swap it wholesale on reload.
type Snapshot struct {
	Source   string
	Records  []movies.MovieRecord
	Graph    *graph.MovieGraph
	LoadedAt time.Time

	byTitle map[string]int
	index   *storage.MemoryBackend
}

// NewSnapshot builds a snapshot from already loaded records.
func NewSnapshot(source string, records []movies.MovieRecord, g *graph.MovieGraph) *Snapshot {
	byTitle := make(map[string]int, len(records))
	for i, rec := range records {
		byTitle[rec.Title] = i
	}

	// A writable memory backend never fails to load.
	index := storage.NewMemoryBackend()
	_ = index.BulkLoad(context.Background(), g)

	return &Snapshot{
		Source:   source,
		Records:  records,
		Graph:    g,
		LoadedAt: time.Now(),
		byTitle:  byTitle,
		index:    index,
	}
}

// Search matches query tokens against node identities.
func (s *Snapshot) Search(ctx context.Context, query string, limit int) ([]storage.SearchResult, error) {
	return s.index.Search(ctx, query, limit)
}

// Resolve maps a user-supplied name to a node ID: an exact identity first,
// then a case-insensitive match. The second result is false when neither exists.
func (s *Snapshot) Resolve(name string) (string, bool) {
	return s.Graph.Lookup(name)
}

// Movie returns the record with the given title.
func (s *Snapshot) Movie(title string) (movies.MovieRecord, bool) {
	i, ok := s.byTitle[title]
	if !ok {
		return movies.MovieRecord{}, false
	}
	return s.Records[i], true
}

// PipelineResult summarizes a pipeline run.
type PipelineResult struct {
	Records      int     `json:"records"`
	Nodes        int     `json:"nodes"`
	Edges        int     `json:"edges"`
	Movies       int     `json:"movies"`
	Directors    int     `json:"directors"`
	Actors       int     `json:"actors"`
	Conflicts    int     `json:"conflicts"`
	DurationSecs float64 `json:"duration_secs"`
}

// ProgressCallback is called with phase name and progress (0.0-1.0).
type ProgressCallback func(phase string, progress float64)

// LoadSnapshot reads the records file and builds its graph.
func LoadSnapshot(recordsPath string, logger *zap.Logger) (*Snapshot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	records, err := movies.LoadFile(recordsPath)
	if err != nil {
		return nil, err
	}

	g := graph.Build(records, graph.WithLogger(logger))
	return NewSnapshot(recordsPath, records, g), nil
}

// RunPipeline loads records, builds the graph and replaces the store's
// contents with it. A nil store skips persistence.
func RunPipeline(
	ctx context.Context,
	recordsPath string,
	store storage.GraphStore,
	progress ProgressCallback,
	logger *zap.Logger,
) (*Snapshot, *PipelineResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if progress == nil {
		progress = func(string, float64) {}
	}

	start := time.Now()

	progress("Loading records", 0.0)
	records, err := movies.LoadFile(recordsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading records: %w", err)
	}
	progress("Loading records", 1.0)

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	progress("Building graph", 0.0)
	g := graph.Build(records, graph.WithLogger(logger))
	progress("Building graph", 1.0)

	if store != nil {
		progress("Loading to storage", 0.0)
		if err := store.BulkLoad(ctx, g); err != nil {
			return nil, nil, fmt.Errorf("bulk load: %w", err)
		}
		progress("Loading to storage", 1.0)
	}

	stats := g.Stats()
	result := &PipelineResult{
		Records:      len(records),
		Nodes:        stats["nodes"],
		Edges:        stats["edges"],
		Movies:       stats["movies"],
		Directors:    stats["directors"],
		Actors:       stats["actors"],
		Conflicts:    stats["conflicts"],
		DurationSecs: time.Since(start).Seconds(),
	}

	logger.Info("pipeline complete",
		zap.String("records_path", recordsPath),
		zap.Int("records", result.Records),
		zap.Int("nodes", result.Nodes),
		zap.Int("edges", result.Edges),
		zap.Int("conflicts", result.Conflicts),
		zap.Float64("duration_secs", result.DurationSecs),
	)

	return NewSnapshot(recordsPath, records, g), result, nil
}
