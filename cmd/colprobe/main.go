package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guillermoBallester/colprobe/internal/adapter/csvsource"
	"github.com/guillermoBallester/colprobe/internal/adapter/mcp"
	"github.com/guillermoBallester/colprobe/internal/adapter/policy"
	"github.com/guillermoBallester/colprobe/internal/adapter/postgres"
	"github.com/guillermoBallester/colprobe/internal/adapter/store"
	"github.com/guillermoBallester/colprobe/internal/audit"
	"github.com/guillermoBallester/colprobe/internal/config"
	"github.com/guillermoBallester/colprobe/internal/core/domain"
	"github.com/guillermoBallester/colprobe/internal/core/port"
	"github.com/guillermoBallester/colprobe/internal/core/service"
	"github.com/guillermoBallester/colprobe/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	overrides, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if err := run(overrides); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags maps command-line flags onto config overrides. Only flags that
// were actually passed are set.
func parseFlags(args []string) (config.Overrides, error) {
	var o config.Overrides
	fs := flag.NewFlagSet("colprobe", flag.ContinueOnError)

	databaseURL := fs.String("database-url", "", "Postgres connection string (enables sql and pg_table sources)")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	maxRows := fs.Int("max-rows", 0, "row cap for database sources")
	queryTimeout := fs.Duration("query-timeout", 0, "statement timeout for database sources")
	storeBackend := fs.String("store", "", "snapshot store backend: memory, file or postgres")
	storeFile := fs.String("store-file", "", "JSON document path for the file store")
	policyFile := fs.String("policy-file", "", "path to a profiling policy YAML")
	threshold := fs.Float64("category-threshold", 0, "distinct/rows ratio at or below which a column is categorical")
	resamples := fs.Int("bootstrap-resamples", 0, "number of bootstrap resamples")
	level := fs.Float64("confidence-level", 0, "bootstrap interval level in percent")
	workers := fs.Int("bootstrap-workers", 0, "bootstrap workers; more than one runs resamples in parallel")
	seed := fs.Uint64("seed", 0, "random seed for reproducible bootstrap and sampling")
	maxResamples := fs.Int("max-resamples", 0, "largest resample count a bootstrap call may request")
	maxSampleSize := fs.Int("max-sample-size", 0, "largest n a sample call may request")
	transport := fs.String("transport", "", "MCP transport: stdio or http")
	httpAddr := fs.String("http-addr", "", "listen address for the http transport")
	httpToken := fs.String("http-bearer-token", "", "bearer token required by the http transport")
	poolMaxConns := fs.Int("pool-max-conns", 0, "maximum pool connections")
	poolMinConns := fs.Int("pool-min-conns", 0, "minimum pool connections")
	poolLifetime := fs.Duration("pool-max-conn-lifetime", 0, "maximum connection lifetime")
	fs.BoolVar(&o.ExclusiveDatetime, "exclusive-datetime", false, "keep datetime columns out of the other categories")
	fs.BoolVar(&o.OTelEnabled, "otel", false, "enable OpenTelemetry tracing and metrics")
	fs.StringVar(&o.AuditLog, "audit-log", "", "path to an NDJSON scan audit log")

	if err := fs.Parse(args); err != nil {
		return config.Overrides{}, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "database-url":
			o.DatabaseURL = databaseURL
		case "log-level":
			o.LogLevel = logLevel
		case "max-rows":
			o.MaxRows = maxRows
		case "query-timeout":
			o.QueryTimeout = queryTimeout
		case "store":
			o.StoreBackend = storeBackend
		case "store-file":
			o.StoreFile = storeFile
		case "policy-file":
			o.PolicyFile = policyFile
		case "category-threshold":
			o.CategoryThreshold = threshold
		case "bootstrap-resamples":
			o.BootstrapResamples = resamples
		case "confidence-level":
			o.ConfidenceLevel = level
		case "bootstrap-workers":
			o.BootstrapWorkers = workers
		case "seed":
			o.RandomSeed = seed
		case "max-resamples":
			o.MaxResamples = maxResamples
		case "max-sample-size":
			o.MaxSampleSize = maxSampleSize
		case "transport":
			o.Transport = transport
		case "http-addr":
			o.HTTPAddr = httpAddr
		case "http-bearer-token":
			o.HTTPBearerToken = httpToken
		case "pool-max-conns":
			n := int32(*poolMaxConns)
			o.PoolMaxConns = &n
		case "pool-min-conns":
			n := int32(*poolMinConns)
			o.PoolMinConns = &n
		case "pool-max-conn-lifetime":
			o.PoolMaxConnLifetime = poolLifetime
		}
	})
	return o, nil
}

func run(overrides config.Overrides) error {
	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr; stdout is reserved for the MCP stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	logger.Info("starting colprobe",
		slog.String("version", version),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.String("store", cfg.StoreBackend),
		slog.String("transport", cfg.Transport),
		slog.Int("bootstrap_resamples", cfg.BootstrapResamples),
		slog.Float64("confidence_level", cfg.ConfidenceLevel),
		slog.Int("bootstrap_workers", cfg.BootstrapWorkers),
		slog.Bool("seeded", cfg.RandomSeed != nil),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Observability.
	tracer := telemetry.NoopTracer()
	inst := telemetry.NoopInstruments()
	if cfg.OTelEnabled {
		provider, err := telemetry.Init(ctx, "colprobe", version)
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
			}
		}()
		tracer = provider.Tracer()
		inst = provider.Instruments()
		logger.Info("opentelemetry enabled")
	}

	var auditor port.ScanAuditor = port.NoopAuditor{}
	if cfg.AuditLog != "" {
		fa, err := audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer func() { _ = fa.Close() }()
		auditor = fa
		logger.Info("audit log enabled", slog.String("file", cfg.AuditLog))
	}

	// Policy (optional).
	var options port.OptionsResolver
	if cfg.PolicyFile != "" {
		pol, err := policy.LoadFromFile(cfg.PolicyFile)
		if err != nil {
			return fmt.Errorf("loading policy: %w", err)
		}
		options = pol
		logger.Info("policy loaded", slog.String("file", cfg.PolicyFile))
	}

	// Database (optional unless it backs the snapshot store).
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolSettings{
			MaxConns:        cfg.PoolMaxConns,
			MinConns:        cfg.PoolMinConns,
			MaxConnLifetime: cfg.PoolMaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()
		logger.Info("database pool connected",
			slog.String("db.system", "postgresql"),
			slog.String("dsn", redactDSN(cfg.DatabaseURL)),
		)
	}

	persistence, err := newPersistence(ctx, cfg, pool)
	if err != nil {
		return err
	}

	svcs := newServices(cfg, pool, persistence, options, auditor, logger, tracer, inst)
	if err := svcs.Profiler.Restore(ctx); err != nil {
		return fmt.Errorf("restoring snapshots: %w", err)
	}

	mcpServer := mcp.NewServer(version, svcs, logger, tracer, inst)

	switch cfg.Transport {
	case "http":
		return serveHTTP(ctx, cfg, mcpServer, logger)
	default:
		stdioServer := mcpserver.NewStdioServer(mcpServer)
		logger.Info("serving MCP over stdio")
		if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stdio server: %w", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// newPersistence picks the snapshot document backend.
func newPersistence(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (port.SnapshotPersistence, error) {
	switch cfg.StoreBackend {
	case config.StoreFile:
		return store.NewFileStore(cfg.StoreFile), nil
	case config.StorePostgres:
		repo, err := postgres.NewSnapshotRepository(ctx, pool)
		if err != nil {
			return nil, fmt.Errorf("preparing snapshot repository: %w", err)
		}
		return repo, nil
	default:
		return store.NoopPersistence{}, nil
	}
}

func newServices(
	cfg *config.Config,
	pool *pgxpool.Pool,
	persistence port.SnapshotPersistence,
	options port.OptionsResolver,
	auditor port.ScanAuditor,
	logger *slog.Logger,
	tracer trace.Tracer,
	inst port.Instrumentation,
) mcp.Services {
	settings := service.Settings{
		CategoryThreshold: cfg.CategoryThreshold,
		ExclusiveDatetime: cfg.ExclusiveDatetime,
		Resamples:         cfg.BootstrapResamples,
		ConfidenceLevel:   cfg.ConfidenceLevel,
		Workers:           cfg.BootstrapWorkers,
		Seed:              cfg.RandomSeed,
		MaxResamples:      cfg.MaxResamples,
		MaxSampleSize:     cfg.MaxSampleSize,
	}

	var queries port.QuerySource
	if pool != nil {
		queries = postgres.NewSourceLoader(pool, cfg.MaxRows, cfg.QueryTimeout)
	}
	files := csvsource.NewLoader(csvsource.WithMaxRows(cfg.MaxRows))

	profiler := service.NewTableProfiler(settings, service.ProfilerDeps{
		Store:       store.NewMemoryStore(),
		Persistence: persistence,
		Options:     options,
		Auditor:     auditor,
		Logger:      logger,
		Tracer:      tracer,
		Inst:        inst,
	})

	return mcp.Services{
		Sources:    service.NewSourceService(domain.NewSourceQueryValidator(), files, queries, logger, tracer),
		Classifier: service.NewClassifierService(settings, options, logger),
		Profiler:   profiler,
		Matcher:    service.NewDataMatcher(profiler, options, logger),
		Stats:      service.NewStatsService(settings, logger, tracer, inst),
	}
}

func serveHTTP(ctx context.Context, cfg *config.Config, mcpServer *mcpserver.MCPServer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/mcp", bearerAuthMiddleware(mcpserver.NewStreamableHTTPServer(mcpServer), cfg.HTTPBearerToken))
	mux.HandleFunc("/health", healthHandler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           recoveryMiddleware(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving MCP over http", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// redactDSN masks the password of a connection URL for logging.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "***"
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
