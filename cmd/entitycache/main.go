// Command entitycache restores an entity cache from its snapshot store,
// optionally loads entities from the SQL data service, replays a JSON-lines
// action log and saves the resulting snapshot.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"entitycache/internal/core"
	"entitycache/internal/dataservice"
	"entitycache/internal/platform/config"
	"entitycache/internal/platform/otel"
	"entitycache/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

type options struct {
	actions     string
	restore     string
	dryRun      bool
	sync        bool
	metricsAddr string
	traceFile   string
}

func cli(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("entitycache", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	fs.StringVar(&opts.actions, "actions", "", "JSON-lines action log to replay (- for stdin)")
	fs.StringVar(&opts.restore, "restore", "replace", "apply the stored snapshot: replace, merge or none")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "do not save the snapshot")
	fs.BoolVar(&opts.sync, "sync", false, "load every entity type from the SQL data service before replaying")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address until interrupted")
	fs.StringVar(&opts.traceFile, "trace-file", "", "write one JSON line per dispatch to this file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 0 {
		_, _ = fmt.Fprintf(stderr, "unknown arguments: %v\n", fs.Args())
		return 2
	}
	switch opts.restore {
	case "replace", "merge", "none":
	default:
		_, _ = fmt.Fprintf(stderr, "invalid -restore %q\n", opts.restore)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "entitycache: %v\n", err)
		return 1
	}
	level, err := cfg.Level()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "entitycache: %v\n", err)
		return 1
	}
	logger := newLogger(stderr, level)
	if err := run(ctx, cfg, opts, logger, stdin, stdout); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("entitycache failed", "error", err)
		return 1
	}
	return 0
}

func newLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
		w = colorable.NewColorable(f)
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
	}))
}

func run(ctx context.Context, cfg config.Config, opts options, logger *slog.Logger, stdin io.Reader, stdout io.Writer) (err error) {
	entities, err := config.LoadEntities(cfg.EntitiesFile)
	if err != nil {
		return err
	}
	records := config.Definitions(entities)
	defs := make([]core.EntityDefinition, 0, len(records))
	for _, d := range records {
		defs = append(defs, d)
	}
	definitions, err := core.NewDefinitionService(defs...)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	prom, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	storeOpts := []core.StoreOption{
		core.WithLogger(logger),
		core.WithMetricsRecorder(core.MultiRecorder{prom, core.NewExpvarMetricsRecorder("")}),
	}

	shutdownTracing, err := otel.Setup(ctx, "entitycache", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if serr := shutdownTracing(flushCtx); serr != nil {
			logger.Warn("flush traces", "error", serr)
		}
	}()
	switch {
	case cfg.OTelEndpoint != "":
		storeOpts = append(storeOpts, core.WithTracer(otel.NewTracer(nil)))
	case opts.traceFile != "":
		f, err := os.Create(opts.traceFile)
		if err != nil {
			return fmt.Errorf("create trace file: %w", err)
		}
		defer func() { _ = f.Close() }()
		storeOpts = append(storeOpts, core.WithTracer(core.NewJSONTracer(f)))
	}
	store := core.NewStore(core.NewCacheReducer(definitions), storeOpts...)

	snapshots, err := core.OpenSnapshotStore(ctx, cfg.Storage())
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	defer func() {
		if cerr := snapshots.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close snapshot store: %w", cerr)
		}
	}()
	logger.Info("snapshot store opened", "driver", cfg.Storage().Driver, "entities", definitions.Names())

	if opts.restore != "none" {
		if err := store.Restore(ctx, snapshots, core.RestoreMode(opts.restore)); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
	}

	if opts.sync {
		if err := syncFromDataService(ctx, cfg, snapshots, store, records, logger); err != nil {
			return err
		}
	}

	if opts.actions != "" {
		applied, err := replay(ctx, opts.actions, definitions, store, stdin)
		if err != nil {
			return err
		}
		logger.Info("actions replayed", "applied", applied)
	}

	if !opts.dryRun {
		if err := store.SaveSnapshot(ctx, snapshots); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
	}
	if err := printSummary(stdout, store.State()); err != nil {
		return err
	}

	if opts.metricsAddr != "" {
		return serveMetrics(ctx, opts.metricsAddr, registry, logger)
	}
	return nil
}

func replay(ctx context.Context, path string, definitions *core.DefinitionService, store *core.Store, stdin io.Reader) (int, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return 0, fmt.Errorf("open actions: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	return core.NewActionCodec(definitions).Replay(ctx, r, store)
}

// syncFromDataService queries every entity type from the entities table that
// shares the snapshot database.
func syncFromDataService(ctx context.Context, cfg config.Config, snapshots domain.SnapshotStore, store *core.Store, records []*core.Definition[domain.Record], logger *slog.Logger) error {
	holder, ok := snapshots.(interface{ DB() *sql.DB })
	if !ok {
		return fmt.Errorf("-sync needs the sqlite or postgres storage driver, got %s", cfg.Storage().Driver)
	}
	dialect := dataservice.DialectSQLite
	if cfg.Storage().Driver == core.StoragePostgres {
		dialect = dataservice.DialectPostgres
	}
	if err := dataservice.EnsureSchema(ctx, holder.DB(), dialect); err != nil {
		return err
	}
	for _, def := range records {
		var data domain.DataService[domain.Record] = dataservice.NewSQL(holder.DB(), dialect, def)
		if cfg.DataServiceRate > 0 {
			data = dataservice.NewRateLimited(data, cfg.DataServiceRate, cfg.DataServiceBurst)
		}
		svc := core.NewEntityCollectionService(store, def,
			core.WithDataService(data),
			core.WithServiceLogger[domain.Record](logger),
		)
		loaded, err := svc.GetAll(ctx)
		if err != nil {
			return fmt.Errorf("sync %s: %w", def.EntityName(), err)
		}
		logger.Info("entities synced", "entity", def.EntityName(), "source", data.Name(), "count", len(loaded))
	}
	return nil
}

func printSummary(w io.Writer, cache domain.EntityCache) error {
	for _, name := range cache.Names() {
		c := cache[name]
		if _, err := fmt.Fprintf(w, "%s\t%d\tloaded=%t\tfilter=%q\n", name, c.Len(), c.IsLoaded(), c.FilterPattern()); err != nil {
			return err
		}
	}
	return nil
}

func metricsHandler(registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return mux
}

func serveMetrics(ctx context.Context, addr string, registry *prometheus.Registry, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen metrics: %w", err)
	}
	srv := &http.Server{Handler: metricsHandler(registry), ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
