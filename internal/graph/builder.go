package graph

import (
	"go.uber.org/zap"

	"github.com/Benny93/reelgraph/internal/movies"
)

// BuildOption configures Build.
type BuildOption func(*buildConfig)

type buildConfig struct {
	logger *zap.Logger
}

// WithLogger reports identity collisions and skipped edges to logger.
func WithLogger(logger *zap.Logger) BuildOption {
	return func(c *buildConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Build converts records into a movie graph.
//
// Records are processed in input order: the movie node, its director node
// and directed_by edge, then one actor node and acted_in edge per actor.
// Existing identities are reused, never duplicated.
func Build(records []movies.MovieRecord, opts ...BuildOption) *MovieGraph {
	cfg := buildConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	g := NewMovieGraph()
	for _, rec := range records {
		addRecord(g, rec, cfg.logger)
	}

	for _, c := range g.Conflicts() {
		if c.IsEdgeConflict() {
			cfg.logger.Warn("relationship overwritten",
				zap.String("movie", c.ID),
				zap.String("person", c.Other),
				zap.String("previous", c.Previous),
				zap.String("current", c.Current))
			continue
		}
		cfg.logger.Warn("node kind overwritten",
			zap.String("id", c.ID),
			zap.String("previous", c.Previous),
			zap.String("current", c.Current))
	}

	cfg.logger.Debug("graph built",
		zap.Int("records", len(records)),
		zap.Int("nodes", g.NodeCount()),
		zap.Int("edges", g.EdgeCount()))

	return g
}

func addRecord(g *MovieGraph, rec movies.MovieRecord, logger *zap.Logger) {
	g.UpsertNode(rec.Title, KindMovie, movieAttrs(rec))

	// Records without a director all share the "" director node.
	g.UpsertNode(rec.Director, KindDirector, nil)
	if _, err := g.AddEdge(rec.Title, rec.Director, RelDirectedBy); err != nil {
		logger.Warn("skipping edge", zap.String("movie", rec.Title), zap.Error(err))
	}

	for _, actor := range rec.Actors {
		g.UpsertNode(actor, KindActor, nil)
		if _, err := g.AddEdge(rec.Title, actor, RelActedIn); err != nil {
			logger.Warn("skipping edge", zap.String("movie", rec.Title), zap.Error(err))
		}
	}
}

func movieAttrs(rec movies.MovieRecord) *MovieAttrs {
	return &MovieAttrs{
		Year:                 rec.Year,
		Country:              rec.Country,
		Genre:                rec.Genre,
		Rating:               rec.Rating,
		IMDbRating:           rec.IMDbRating,
		RottenTomatoesRating: rec.RottenTomatoesRating,
		MetacriticRating:     rec.MetacriticRating,
	}
}
