package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Benny93/reelgraph/internal/config"
	"github.com/Benny93/reelgraph/internal/graph"
	"github.com/Benny93/reelgraph/internal/ingestion"
	"github.com/Benny93/reelgraph/internal/movies"
	"github.com/Benny93/reelgraph/internal/ranking"
)

func strPtr(s string) *string { return &s }

func sampleRecords() []movies.MovieRecord {
	return []movies.MovieRecord{
		{Title: "Heat", Year: 1995, Genre: "Crime", Director: "Michael Mann",
			Actors:               []string{"Al Pacino", "Robert De Niro"},
			IMDbRating:           strPtr("8.3/10"),
			RottenTomatoesRating: strPtr("88%"),
			MetacriticRating:     strPtr("76/100")},
		{Title: "The Irishman", Year: 2019, Genre: "Biography", Director: "Martin Scorsese",
			Actors:     []string{"Robert De Niro", "Al Pacino", "Joe Pesci"},
			IMDbRating: strPtr("7.8/10")},
		{Title: "Goodfellas", Year: 1990, Genre: "Crime", Director: "Martin Scorsese",
			Actors:     []string{"Robert De Niro", "Ray Liotta", "Joe Pesci"},
			IMDbRating: strPtr("8.7/10")},
		{Title: "Alien", Year: 1979, Genre: "Horror", Director: "Ridley Scott",
			Actors:     []string{"Sigourney Weaver"},
			IMDbRating: strPtr("8.5/10")},
	}
}

// testApp returns an App rooted in dir with a records file already written.
func testApp(t *testing.T, dir string) (*App, *bytes.Buffer) {
	t.Helper()

	recordsPath := filepath.Join(dir, "records.json")
	require.NoError(t, movies.WriteFile(recordsPath, sampleRecords()))

	cfg := config.Default()
	cfg.Records = recordsPath
	cfg.DataDir = filepath.Join(dir, ".reelgraph")

	out := &bytes.Buffer{}
	return &App{
		Config: cfg,
		Logger: zaptest.NewLogger(t),
		Out:    out,
		In:     strings.NewReader(""),
	}, out
}

// builtApp returns an App whose data directory already holds a build.
func builtApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()

	app, out := testApp(t, t.TempDir())
	app.Quiet = true
	require.NoError(t, (&BuildCmd{}).Run(app))
	app.Quiet = false
	out.Reset()
	return app, out
}

func TestBuildCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("BuildsStoreAndFiles", func(t *testing.T) {
		t.Parallel()
		app, out := testApp(t, t.TempDir())

		require.NoError(t, (&BuildCmd{}).Run(app))

		assert.Contains(t, out.String(), "Build complete")
		assert.Contains(t, out.String(), "Nodes:      12")
		assert.Contains(t, out.String(), "Edges:      13")

		_, err := os.Stat(app.Config.StorePath())
		assert.NoError(t, err)

		f, err := os.Open(app.Config.GraphPath())
		require.NoError(t, err)
		defer f.Close()
		doc, err := graph.ReadJSON(f)
		require.NoError(t, err)
		assert.Len(t, doc.Nodes, 12)
		assert.Len(t, doc.Edges, 13)

		metaBytes, err := os.ReadFile(app.Config.MetaPath())
		require.NoError(t, err)
		var meta buildMeta
		require.NoError(t, json.Unmarshal(metaBytes, &meta))
		assert.Equal(t, app.Config.Records, meta.Records)
		require.NotNil(t, meta.Stats)
		assert.Equal(t, 4, meta.Stats.Movies)
		assert.NotEmpty(t, meta.BuiltAt)
	})

	t.Run("RecordsOverride", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		app, _ := testApp(t, dir)

		other := filepath.Join(dir, "other.json")
		require.NoError(t, movies.WriteFile(other, sampleRecords()[:1]))

		require.NoError(t, (&BuildCmd{Records: other}).Run(app))

		metaBytes, err := os.ReadFile(app.Config.MetaPath())
		require.NoError(t, err)
		var meta buildMeta
		require.NoError(t, json.Unmarshal(metaBytes, &meta))
		assert.Equal(t, 1, meta.Stats.Records)
	})

	t.Run("MissingRecords", func(t *testing.T) {
		t.Parallel()
		app, _ := testApp(t, t.TempDir())

		err := (&BuildCmd{Records: "/nonexistent/records.json"}).Run(app)
		assert.Error(t, err)
	})
}

func TestStatusCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("StatusWithNoBuild", func(t *testing.T) {
		t.Parallel()
		app, _ := testApp(t, t.TempDir())

		err := (&StatusCmd{}).Run(app)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Run 'reelgraph build' first")
	})

	t.Run("StatusAfterBuild", func(t *testing.T) {
		t.Parallel()
		app, out := builtApp(t)

		require.NoError(t, (&StatusCmd{}).Run(app))
		assert.Contains(t, out.String(), "Movies:     4")
		assert.Contains(t, out.String(), "Actors:     5")
	})
}

func TestPathCmd_Run(t *testing.T) {
	t.Parallel()

	app, out := builtApp(t)

	t.Run("Found", func(t *testing.T) {
		out.Reset()
		require.NoError(t, (&PathCmd{From: "Heat", To: "Ray Liotta"}).Run(app))

		assert.Equal(t, strings.Join([]string{
			"Heat to Ray Liotta: 3 hops",
			"Heat   <--(acted_in)-->",
			"Robert De Niro   <--(acted_in)-->",
			"Goodfellas   <--(acted_in)-->",
			"Ray Liotta",
			"",
		}, "\n"), out.String())
	})

	t.Run("IgnoresCase", func(t *testing.T) {
		out.Reset()
		require.NoError(t, (&PathCmd{From: "ray liotta", To: "MARTIN SCORSESE"}).Run(app))
		assert.Contains(t, out.String(), "Ray Liotta to Martin Scorsese: 2 hops")
	})

	t.Run("AbsentNameSharingToken", func(t *testing.T) {
		out.Reset()
		require.NoError(t, (&PathCmd{From: "Robert Redford", To: "Heat"}).Run(app))
		assert.Equal(t, graph.NoPathMessage+"\n", out.String())

		out.Reset()
		require.NoError(t, (&PathCmd{From: "liotta", To: "Heat"}).Run(app))
		assert.Equal(t, graph.NoPathMessage+"\n", out.String())
	})

	t.Run("NoLink", func(t *testing.T) {
		out.Reset()
		require.NoError(t, (&PathCmd{From: "Sigourney Weaver", To: "Heat"}).Run(app))
		assert.Equal(t, graph.NoPathMessage+"\n", out.String())
	})

	t.Run("UnknownName", func(t *testing.T) {
		out.Reset()
		require.NoError(t, (&PathCmd{From: "Nobody", To: "Heat"}).Run(app))
		assert.Equal(t, graph.NoPathMessage+"\n", out.String())
	})
}

func TestPathCmd_NoBuild(t *testing.T) {
	t.Parallel()

	app, _ := testApp(t, t.TempDir())
	err := (&PathCmd{From: "Heat", To: "Alien"}).Run(app)
	assert.Error(t, err)
}

func TestRankCmd_Run(t *testing.T) {
	t.Parallel()

	app, out := testApp(t, t.TempDir())

	t.Run("IMDb", func(t *testing.T) {
		out.Reset()
		require.NoError(t, (&RankCmd{Criteria: "imdb_rating", Limit: 2}).Run(app))
		assert.Equal(t, "  1. Goodfellas (1990)  8.7\n  2. Alien (1979)  8.5\n", out.String())
	})

	t.Run("RatingWithSource", func(t *testing.T) {
		out.Reset()
		require.NoError(t, (&RankCmd{Criteria: "rating", Source: "metacritic_rating", Limit: 1}).Run(app))
		assert.Equal(t, "  1. Heat (1995)  76\n", out.String())
	})

	t.Run("AllMovies", func(t *testing.T) {
		out.Reset()
		require.NoError(t, (&RankCmd{Criteria: "genre"}).Run(app))
		assert.Len(t, strings.Split(strings.TrimSpace(out.String()), "\n"), 4)
	})

	t.Run("RatingWithoutSource", func(t *testing.T) {
		err := (&RankCmd{Criteria: "rating"}).Run(app)
		assert.Error(t, err)
	})

	t.Run("UnknownKey", func(t *testing.T) {
		err := (&RankCmd{Criteria: "box_office"}).Run(app)
		require.Error(t, err)
		assert.ErrorIs(t, err, ranking.ErrUnknownKey)
		assert.Contains(t, err.Error(), "valid keys")
	})
}

func TestRankingKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		criteria, source string
		want             ranking.Key
		wantErr          bool
	}{
		{criteria: "imdb_rating", want: ranking.KeyIMDbRating},
		{criteria: "director", source: "ignored", want: ranking.KeyDirector},
		{criteria: "rating", source: "rotten_tomatoes_rating", want: ranking.KeyRottenTomatoesRating},
		{criteria: "rating", wantErr: true},
		{criteria: "rating", source: "rating", wantErr: true},
		{criteria: "year", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.criteria+"/"+tt.source, func(t *testing.T) {
			got, err := rankingKey(tt.criteria, tt.source)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExportCmd_Run(t *testing.T) {
	t.Parallel()

	app, out := builtApp(t)

	t.Run("Stdout", func(t *testing.T) {
		out.Reset()
		require.NoError(t, (&ExportCmd{}).Run(app))

		doc, err := graph.ReadJSON(bytes.NewReader(out.Bytes()))
		require.NoError(t, err)
		assert.Len(t, doc.Nodes, 12)
		assert.Equal(t, "Heat", doc.Nodes[0].ID)
	})

	t.Run("File", func(t *testing.T) {
		out.Reset()
		path := filepath.Join(t.TempDir(), "export.json")
		require.NoError(t, (&ExportCmd{Output: path}).Run(app))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, []byte("{\n  \"")))
		assert.Contains(t, out.String(), "Exported 12 nodes and 13 edges")
	})
}

func TestSearchCmd_Run(t *testing.T) {
	t.Parallel()

	app, out := builtApp(t)

	t.Run("Match", func(t *testing.T) {
		out.Reset()
		require.NoError(t, (&SearchCmd{Query: "de niro", Limit: 5}).Run(app))
		assert.Equal(t, "1. Robert De Niro (actor)\n", out.String())
	})

	t.Run("NoMatch", func(t *testing.T) {
		out.Reset()
		require.NoError(t, (&SearchCmd{Query: "kubrick", Limit: 5}).Run(app))
		assert.Equal(t, "No results found\n", out.String())
	})
}

func TestCleanCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("CleanWithNoBuild", func(t *testing.T) {
		t.Parallel()
		app, _ := testApp(t, t.TempDir())

		err := (&CleanCmd{Force: true}).Run(app)
		assert.Error(t, err)
	})

	t.Run("CleanForce", func(t *testing.T) {
		t.Parallel()
		app, _ := builtApp(t)

		require.NoError(t, (&CleanCmd{Force: true}).Run(app))

		_, err := os.Stat(app.Config.DataDir)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("CleanDeclined", func(t *testing.T) {
		t.Parallel()
		app, out := builtApp(t)
		app.In = strings.NewReader("n\n")

		require.NoError(t, (&CleanCmd{}).Run(app))

		assert.Contains(t, out.String(), "Aborted")
		_, err := os.Stat(app.Config.DataDir)
		assert.NoError(t, err)
	})

	t.Run("CleanConfirmed", func(t *testing.T) {
		t.Parallel()
		app, _ := builtApp(t)
		app.In = strings.NewReader("y\n")

		require.NoError(t, (&CleanCmd{}).Run(app))

		_, err := os.Stat(app.Config.DataDir)
		assert.True(t, os.IsNotExist(err))
	})
}

func TestStorageHelpers(t *testing.T) {
	t.Parallel()

	t.Run("LoadStorageWithNoBuild", func(t *testing.T) {
		t.Parallel()
		cfg := config.Default()
		cfg.DataDir = t.TempDir()

		store, err := loadStorage(cfg)
		assert.Error(t, err)
		assert.Nil(t, store)
	})

	t.Run("LoadStorageAfterBuild", func(t *testing.T) {
		t.Parallel()
		app, _ := builtApp(t)

		store, err := loadStorage(app.Config)
		require.NoError(t, err)
		defer store.Close()

		assert.Equal(t, 12, store.NodeCount())
		assert.Equal(t, 13, store.EdgeCount())
	})
}

func TestRunWatched(t *testing.T) {
	t.Parallel()

	t.Run("StopsWatcherWhenServeReturns", func(t *testing.T) {
		t.Parallel()
		app, _ := testApp(t, t.TempDir())

		called := false
		err := runWatched(context.Background(), app, app.Config.Records, true,
			func(*ingestion.Snapshot) {},
			func(ctx context.Context) error {
				called = true
				return nil
			})

		require.NoError(t, err)
		assert.True(t, called)
	})

	t.Run("ReturnsServeError", func(t *testing.T) {
		t.Parallel()
		app, _ := testApp(t, t.TempDir())

		boom := errors.New("boom")
		err := runWatched(context.Background(), app, app.Config.Records, true,
			func(*ingestion.Snapshot) {},
			func(ctx context.Context) error { return boom })

		assert.ErrorIs(t, err, boom)
	})

	t.Run("WithoutWatch", func(t *testing.T) {
		t.Parallel()
		app, _ := testApp(t, t.TempDir())

		err := runWatched(context.Background(), app, "/nonexistent/records.json", false,
			nil,
			func(ctx context.Context) error { return nil })

		assert.NoError(t, err)
	})
}

func TestCLI_Execute(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, movies.WriteFile(filepath.Join(dir, "records.json"), sampleRecords()))

	cfgPath := filepath.Join(dir, "reelgraph.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("records: records.json\ndata_dir: data\n"), 0o644))

	t.Run("BuildFromConfig", func(t *testing.T) {
		require.NoError(t, NewCLI().Execute([]string{"--config", cfgPath, "-q", "build"}))

		_, err := os.Stat(filepath.Join(dir, "data", "graph.json"))
		assert.NoError(t, err)
	})

	t.Run("DataDirOverride", func(t *testing.T) {
		other := filepath.Join(t.TempDir(), "elsewhere")
		require.NoError(t, NewCLI().Execute([]string{"--config", cfgPath, "--data-dir", other, "-q", "build"}))

		_, err := os.Stat(filepath.Join(other, "meta.json"))
		assert.NoError(t, err)
	})

	t.Run("UnknownCommand", func(t *testing.T) {
		assert.Error(t, NewCLI().Execute([]string{"bogus"}))
	})
}
