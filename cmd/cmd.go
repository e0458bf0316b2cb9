// Package cmd provides CLI command implementations for reelgraph.
package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/Benny93/reelgraph/internal/config"
	"github.com/Benny93/reelgraph/internal/graph"
	"github.com/Benny93/reelgraph/internal/ingestion"
	"github.com/Benny93/reelgraph/internal/movies"
	"github.com/Benny93/reelgraph/internal/ranking"
	"github.com/Benny93/reelgraph/internal/server"
	"github.com/Benny93/reelgraph/internal/storage"
	"github.com/Benny93/reelgraph/mcp"
)

// Version is set at build time via ldflags.
var Version = "dev"

// App carries what every command needs. It is bound into each Run method.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Out    io.Writer
	In     io.Reader
	Quiet  bool
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.Out, format, args...)
}

func (a *App) success(format string, args ...any) {
	color.New(color.FgGreen).Fprintf(a.Out, format+"\n", args...)
}

func (a *App) recordsPath(override string) string {
	if override != "" {
		return override
	}
	return a.Config.Records
}

// buildMeta is the content of meta.json.
type buildMeta struct {
	Version string                    `json:"version"`
	Records string                    `json:"records"`
	Stats   *ingestion.PipelineResult `json:"stats"`
	BuiltAt string                    `json:"built_at"`
}

// BuildCmd loads the records file into the local graph store.
type BuildCmd struct {
	Records string `arg:"" optional:"" help:"Path to the movie records JSON file"`
}

// Run executes the build command.
func (c *BuildCmd) Run(app *App) error {
	ctx := context.Background()
	recordsPath := app.recordsPath(c.Records)

	if err := os.MkdirAll(app.Config.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	store := storage.NewBadgerBackend()
	if err := store.Initialize(app.Config.StorePath(), false); err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	if !app.Quiet {
		app.success("Building graph from %s", recordsPath)
	}

	progress := func(phase string, pct float64) {
		if !app.Quiet {
			app.printf("\r\033[K%s (%.0f%%)", phase, pct*100)
		}
	}

	snap, result, err := ingestion.RunPipeline(ctx, recordsPath, store, progress, app.Logger)
	if err != nil {
		return fmt.Errorf("running pipeline: %w", err)
	}
	if !app.Quiet {
		app.printf("\n")
	}

	if err := writeGraphFile(app.Config.GraphPath(), snap.Graph); err != nil {
		return err
	}
	if err := writeMeta(app.Config.MetaPath(), recordsPath, result); err != nil {
		return err
	}

	if app.Quiet {
		return nil
	}

	app.success("\n✓ Build complete")
	printResult(app, result)
	app.printf("  Duration:   %.2fs\n", result.DurationSecs)
	if result.Conflicts > 0 {
		color.New(color.FgYellow).Fprintf(app.Out, "  %d identity conflicts; see `reelgraph status`\n", result.Conflicts)
	}

	return nil
}

// PathCmd finds the shortest link between two names.
type PathCmd struct {
	From string `arg:"" help:"Actor, director or movie title to start from"`
	To   string `arg:"" help:"Actor, director or movie title to reach"`
}

// Run executes the path command.
func (c *PathCmd) Run(app *App) error {
	ctx := context.Background()
	store, err := loadStorage(app.Config)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	g, err := storage.Rebuild(ctx, store)
	if err != nil {
		return fmt.Errorf("loading graph: %w", err)
	}

	from, okFrom := g.Lookup(c.From)
	to, okTo := g.Lookup(c.To)
	if !okFrom || !okTo {
		app.printf("%s\n", graph.NoPathMessage)
		return nil
	}

	result := graph.FindPath(g, from, to)
	if !result.Found() {
		app.printf("%s\n", graph.NoPathMessage)
		return nil
	}

	if !app.Quiet {
		app.success("%s to %s: %d hops", from, to, result.Len())
	}
	for _, line := range result.Lines() {
		app.printf("%s\n", line)
	}

	return nil
}

// RankCmd orders movies by a rating source or text attribute.
type RankCmd struct {
	Criteria string `arg:"" optional:"" default:"imdb_rating" help:"Ranking key, or 'rating' together with --source"`
	Source   string `help:"Rating source when criteria is 'rating'"`
	Limit    int    `short:"n" default:"10" help:"Maximum movies to show (0 for all)"`
	Records  string `help:"Path to the movie records JSON file"`
}

// Run executes the rank command.
func (c *RankCmd) Run(app *App) error {
	key, err := rankingKey(c.Criteria, c.Source)
	if err != nil {
		return err
	}

	records, err := movies.LoadFile(app.recordsPath(c.Records))
	if err != nil {
		return err
	}

	ranked, err := ranking.Rank(records, key)
	if err != nil {
		return err
	}
	if c.Limit > 0 && len(ranked) > c.Limit {
		ranked = ranked[:c.Limit]
	}

	for i, rec := range ranked {
		app.printf("%3d. %s (%d)  %s\n", i+1, rec.Title, rec.Year, ranking.Value(rec, key))
	}
	return nil
}

// rankingKey resolves the criteria/source pair. The criteria "rating"
// defers to source; anything else is the key itself.
func rankingKey(criteria, source string) (ranking.Key, error) {
	if criteria == "rating" {
		if source == "" {
			return "", fmt.Errorf("--source is required when criteria is 'rating'")
		}
		criteria = source
	}

	key, err := ranking.ParseKey(criteria)
	if err != nil {
		keys := make([]string, 0, len(ranking.Keys()))
		for _, k := range ranking.Keys() {
			keys = append(keys, string(k))
		}
		return "", fmt.Errorf("%w (valid keys: %s)", err, strings.Join(keys, ", "))
	}
	return key, nil
}

// ExportCmd writes the stored graph as JSON.
type ExportCmd struct {
	Output string `short:"o" help:"Output file (default stdout)"`
}

// Run executes the export command.
func (c *ExportCmd) Run(app *App) error {
	ctx := context.Background()
	store, err := loadStorage(app.Config)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	doc, err := store.LoadDocument(ctx)
	if err != nil {
		return fmt.Errorf("reading graph: %w", err)
	}

	if c.Output == "" || c.Output == "-" {
		return graph.WriteJSON(app.Out, *doc)
	}

	f, err := os.Create(c.Output)
	if err != nil {
		return fmt.Errorf("creating %s: %w", c.Output, err)
	}
	defer func() { _ = f.Close() }()

	if err := graph.WriteJSON(f, *doc); err != nil {
		return err
	}
	if !app.Quiet {
		app.success("Exported %d nodes and %d edges to %s", len(doc.Nodes), len(doc.Edges), c.Output)
	}
	return nil
}

// SearchCmd searches node identities.
type SearchCmd struct {
	Query string `arg:"" help:"Search query"`
	Limit int    `short:"n" default:"20" help:"Maximum results"`
}

// Run executes the search command.
func (c *SearchCmd) Run(app *App) error {
	ctx := context.Background()
	store, err := loadStorage(app.Config)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	results, err := store.Search(ctx, c.Query, c.Limit)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}

	if len(results) == 0 {
		app.printf("No results found\n")
		return nil
	}

	for i, r := range results {
		app.printf("%d. %s (%s)\n", i+1, r.NodeID, r.Kind)
	}
	return nil
}

// StatusCmd shows what the last build produced.
type StatusCmd struct{}

// Run executes the status command.
func (c *StatusCmd) Run(app *App) error {
	metaPath := app.Config.MetaPath()
	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no graph found in %s. Run 'reelgraph build' first", app.Config.DataDir)
		}
		return fmt.Errorf("reading meta.json: %w", err)
	}

	var meta buildMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return fmt.Errorf("parsing meta.json: %w", err)
	}

	app.printf("Graph status for %s\n", app.Config.DataDir)
	app.printf("  Version:    %s\n", meta.Version)
	app.printf("  Records:    %s\n", meta.Records)
	app.printf("  Built:      %s\n", meta.BuiltAt)
	if meta.Stats != nil {
		printResult(app, meta.Stats)
	}
	return nil
}

// WatchCmd rebuilds the store whenever the records file changes.
type WatchCmd struct {
	Records string `arg:"" optional:"" help:"Path to the movie records JSON file"`
}

// Run executes the watch command.
func (c *WatchCmd) Run(app *App) error {
	recordsPath := app.recordsPath(c.Records)

	if err := os.MkdirAll(app.Config.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	store := storage.NewBadgerBackend()
	if err := store.Initialize(app.Config.StorePath(), false); err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		<-osSignalChannel()
		app.printf("\nStopping watch mode...\n")
		cancel()
	}()

	snap, _, err := ingestion.RunPipeline(ctx, recordsPath, store, nil, app.Logger)
	if err != nil {
		return fmt.Errorf("running pipeline: %w", err)
	}
	if err := writeGraphFile(app.Config.GraphPath(), snap.Graph); err != nil {
		return err
	}

	app.printf("## Watch Mode\n")
	app.printf("Watching %s for changes (Ctrl+C to stop)\n\n", recordsPath)

	onReload := func(next *ingestion.Snapshot) {
		if err := store.BulkLoad(ctx, next.Graph); err != nil {
			app.Logger.Error("storing reloaded graph", zap.Error(err))
			return
		}
		if err := writeGraphFile(app.Config.GraphPath(), next.Graph); err != nil {
			app.Logger.Error("exporting reloaded graph", zap.Error(err))
			return
		}
		app.success("Reloaded: %d nodes, %d edges", next.Graph.NodeCount(), next.Graph.EdgeCount())
	}

	err = ingestion.WatchRecords(ctx, recordsPath, app.Logger, onReload)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch error: %w", err)
	}

	app.printf("Watch mode stopped.\n")
	return nil
}

// MCPCmd starts the MCP server.
type MCPCmd struct {
	Records string `help:"Path to the movie records JSON file"`
	Watch   bool   `short:"w" help:"Reload the graph when the records file changes"`
	SDK     bool   `help:"Serve through the SDK stdio transport"`
}

// Run executes the mcp command. Stdout carries JSON-RPC only.
func (c *MCPCmd) Run(app *App) error {
	recordsPath := app.recordsPath(c.Records)
	snap, err := ingestion.LoadSnapshot(recordsPath, app.Logger)
	if err != nil {
		return err
	}

	srv := mcp.NewServer(snap, app.Logger)

	return runWatched(context.Background(), app, recordsPath, c.Watch, srv.Swap, func(ctx context.Context) error {
		if c.SDK {
			return srv.RunStdio(ctx)
		}
		return srv.Run(ctx, os.Stdin, os.Stdout)
	})
}

// ServeCmd starts the HTTP API with optional watch mode.
type ServeCmd struct {
	Addr    string `help:"Listen address (default from config)"`
	Records string `help:"Path to the movie records JSON file"`
	Watch   bool   `short:"w" help:"Reload the graph when the records file changes"`
}

// Run executes the serve command.
func (c *ServeCmd) Run(app *App) error {
	recordsPath := app.recordsPath(c.Records)
	snap, err := ingestion.LoadSnapshot(recordsPath, app.Logger)
	if err != nil {
		return err
	}

	addr := c.Addr
	if addr == "" {
		addr = app.Config.HTTP.Addr
	}

	srv := server.New(snap, app.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		<-osSignalChannel()
		cancel()
	}()

	if !app.Quiet {
		app.success("Serving %d movies on %s", len(snap.Records), addr)
	}
	return runWatched(ctx, app, recordsPath, c.Watch, srv.Swap, func(ctx context.Context) error {
		return srv.Start(ctx, addr)
	})
}

// runWatched runs serve until it returns, optionally alongside a watcher
// that hands reloaded snapshots to swap. A failing watcher is logged and
// leaves serve running.
func runWatched(
	ctx context.Context,
	app *App,
	recordsPath string,
	watch bool,
	swap func(*ingestion.Snapshot),
	serve func(context.Context) error,
) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if watch {
		g.Go(func() error {
			err := ingestion.WatchRecords(gctx, recordsPath, app.Logger, swap)
			if err != nil && !errors.Is(err, context.Canceled) {
				app.Logger.Error("watch stopped", zap.Error(err))
			}
			return nil
		})
	}

	g.Go(func() error {
		defer cancel()
		return serve(gctx)
	})

	return g.Wait()
}

// PushCmd loads the graph into Neo4j.
type PushCmd struct {
	Records  string `arg:"" optional:"" help:"Path to the movie records JSON file"`
	URI      string `help:"Neo4j URI (default from config)"`
	Username string `help:"Neo4j username"`
	Password string `help:"Neo4j password" env:"NEO4J_PASSWORD"`
	Database string `help:"Neo4j database"`
}

// Run executes the push command.
func (c *PushCmd) Run(app *App) error {
	ctx := context.Background()
	neo := app.Config.Neo4j
	if c.URI != "" {
		neo.URI = c.URI
	}
	if c.Username != "" {
		neo.Username = c.Username
	}
	if c.Password != "" {
		neo.Password = c.Password
	}
	if c.Database != "" {
		neo.Database = c.Database
	}

	store := storage.NewNeo4jBackend(neo.URI, neo.Username, neo.Password)
	if err := store.Initialize(neo.Database, false); err != nil {
		return fmt.Errorf("connecting to neo4j: %w", err)
	}
	defer func() { _ = store.Close() }()

	_, result, err := ingestion.RunPipeline(ctx, app.recordsPath(c.Records), store, nil, app.Logger)
	if err != nil {
		return fmt.Errorf("running pipeline: %w", err)
	}

	if !app.Quiet {
		app.success("✓ Pushed graph to %s", neo.URI)
		printResult(app, result)
	}
	return nil
}

// CleanCmd deletes the data directory.
type CleanCmd struct {
	Force bool `short:"f" help:"Skip confirmation"`
}

// Run executes the clean command.
func (c *CleanCmd) Run(app *App) error {
	dataDir := app.Config.DataDir
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		return fmt.Errorf("no graph found in %s. Nothing to clean", dataDir)
	}

	if !c.Force {
		app.printf("Delete %s? [y/N] ", dataDir)
		response, _ := bufio.NewReader(app.In).ReadString('\n')
		response = strings.TrimSpace(response)
		if response != "y" && response != "Y" {
			app.printf("Aborted\n")
			return nil
		}
	}

	if err := os.RemoveAll(dataDir); err != nil {
		return fmt.Errorf("deleting data directory: %w", err)
	}

	app.success("Deleted %s", dataDir)
	return nil
}

// Helper functions

// osSignalChannel returns a channel that receives OS signals for graceful shutdown.
func osSignalChannel() <-chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	return sigChan
}

func loadStorage(cfg *config.Config) (*storage.BadgerBackend, error) {
	dbPath := cfg.StorePath()
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("no graph found in %s. Run 'reelgraph build' first", cfg.DataDir)
	}

	store := storage.NewBadgerBackend()
	if err := store.Initialize(dbPath, true); err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}

	return store, nil
}

func writeGraphFile(path string, g *graph.MovieGraph) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	defer func() { _ = f.Close() }()

	if err := graph.WriteJSON(f, graph.Export(g)); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeMeta(path, recordsPath string, result *ingestion.PipelineResult) error {
	meta := buildMeta{
		Version: Version,
		Records: recordsPath,
		Stats:   result,
		BuiltAt: time.Now().UTC().Format(time.RFC3339),
	}

	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling meta.json: %w", err)
	}
	if err := os.WriteFile(path, metaJSON, 0o644); err != nil {
		return fmt.Errorf("writing meta.json: %w", err)
	}
	return nil
}

func printResult(app *App, result *ingestion.PipelineResult) {
	app.printf("  Movies:     %d\n", result.Movies)
	app.printf("  Directors:  %d\n", result.Directors)
	app.printf("  Actors:     %d\n", result.Actors)
	app.printf("  Nodes:      %d\n", result.Nodes)
	app.printf("  Edges:      %d\n", result.Edges)
	if result.Conflicts > 0 {
		app.printf("  Conflicts:  %d\n", result.Conflicts)
	}
}

// newLogger builds a development logger on stderr. Stdout belongs to
// command output and the MCP transport.
func newLogger(verbose, quiet bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	level := zapcore.WarnLevel
	switch {
	case verbose:
		level = zapcore.DebugLevel
	case quiet:
		level = zapcore.ErrorLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	return cfg.Build()
}

// CLI is the root Kong command structure.
type CLI struct {
	Version kong.VersionFlag `help:"Show version information"`
	Verbose bool             `short:"v" help:"Enable verbose output"`
	Quiet   bool             `short:"q" help:"Suppress non-essential output"`
	Config  string           `short:"c" type:"path" help:"Path to a reelgraph.yaml config file"`
	DataDir string           `type:"path" help:"Override the data directory"`

	// Commands
	Build  BuildCmd  `cmd:"" help:"Build the movie graph from a records file"`
	Path   PathCmd   `cmd:"" help:"Find the shortest link between two names"`
	Rank   RankCmd   `cmd:"" help:"Rank movies by rating or attribute"`
	Export ExportCmd `cmd:"" help:"Export the graph as JSON"`
	Search SearchCmd `cmd:"" help:"Search movies, directors and actors"`
	Status StatusCmd `cmd:"" help:"Show the last build summary"`
	Watch  WatchCmd  `cmd:"" help:"Rebuild whenever the records file changes"`
	Setup  SetupCmd  `cmd:"" help:"Configure MCP for Claude Code / Cursor"`
	MCP    MCPCmd    `cmd:"" help:"Start MCP server (stdio transport)"`
	Serve  ServeCmd  `cmd:"" help:"Start the HTTP API with optional watch mode"`
	Push   PushCmd   `cmd:"" help:"Load the graph into Neo4j"`
	Clean  CleanCmd  `cmd:"" help:"Delete the data directory"`
}

// NewCLI creates a new CLI instance.
func NewCLI() *CLI {
	return &CLI{}
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	parser, err := kong.New(c,
		kong.Name("reelgraph"),
		kong.Description("Movie relationship graph: shortest links between actors, directors and films"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)
	if err != nil {
		return err
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(c.Verbose, c.Quiet)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Path != "" {
		logger.Debug("loaded config", zap.String("path", cfg.Path))
	}

	app := &App{
		Config: cfg,
		Logger: logger,
		Out:    os.Stdout,
		In:     os.Stdin,
		Quiet:  c.Quiet,
	}
	return kongCtx.Run(app)
}

func (c *CLI) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if c.Config != "" {
		cfg, err = config.LoadFile(c.Config)
	} else {
		cfg, err = config.Load(".")
	}
	if err != nil {
		return nil, err
	}

	if c.DataDir != "" {
		cfg.DataDir = c.DataDir
	}
	return cfg, nil
}
