// Package main provides the deckgen binary. It loads configuration from
// DECKGEN_* environment variables (optionally seeded from a .env file),
// reads the credential pools once, and serves the generate endpoint until
// it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/haukened/deckgen/internal/app"
	"github.com/haukened/deckgen/internal/config"
	"github.com/haukened/deckgen/internal/httpx"
	"github.com/haukened/deckgen/internal/keys"
	"github.com/haukened/deckgen/internal/metrics"
	"github.com/haukened/deckgen/internal/provider"
	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// CLI defines the command-line interface parsed by kong.
type CLI struct {
	EnvFile   string `name:"env-file" help:"Path to .env file (defaults to ./.env when present)"`
	LogLevel  string `name:"log-level" help:"Override DECKGEN_LOG_LEVEL (debug, info, warn, error)"`
	LogFormat string `name:"log-format" help:"Override DECKGEN_LOG_FORMAT (json, text)"`

	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the HTTP server"`
	Pools   PoolsCmd   `cmd:"" help:"Print how many keys each pool holds"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

type (
	ServeCmd struct {
		Addr string `help:"Listen address, overrides DECKGEN_ADDR"`
	}
	PoolsCmd   struct{}
	VersionCmd struct{}
)

// shutdownGrace bounds how long in-flight generate calls may finish after a
// termination signal.
const shutdownGrace = 15 * time.Second

// lookupEnv is swapped in tests.
var lookupEnv keys.LookupFunc = os.LookupEnv

// run parses args and dispatches to the selected command. It returns the
// process exit code.
func run(ctx context.Context, args []string, out io.Writer) int {
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("deckgen"), kong.Writers(out, out))
	if err != nil {
		fmt.Fprintln(out, err)
		return 1
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintln(out, err)
		return 2
	}

	if kctx.Command() == "version" {
		fmt.Fprintln(out, "deckgen", version)
		return 0
	}

	loadEnvFile(cli.EnvFile)
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(out, "configuration error: %v\n", err)
		return 2
	}
	applyFlags(cfg, cli)
	logger := newLogger(out, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	store := keys.NewStore(lookupEnv, cfg.MaxKeys, poolNames(cfg)...)
	switch kctx.Command() {
	case "pools":
		printPools(out, store)
		return 0
	case "serve":
		if err := serve(ctx, cfg, store, logger); err != nil {
			logger.Error("server error", "err", err)
			return 1
		}
		return 0
	}
	fmt.Fprintln(out, "unknown command", kctx.Command())
	return 1
}

// loadEnvFile seeds the process environment from an explicit file or, when
// present, ./.env. Existing variables are not overwritten.
func loadEnvFile(path string) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			slog.Warn("failed to load env file", "path", path, "err", err)
		}
		return
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			slog.Warn("failed to load .env", "err", err)
		}
	}
}

func applyFlags(cfg *config.Config, cli CLI) {
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.LogFormat = cli.LogFormat
	}
	if cli.Serve.Addr != "" {
		cfg.Addr = cli.Serve.Addr
	}
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func poolNames(cfg *config.Config) []string {
	return append([]string{cfg.TextPool}, cfg.ImagePools()...)
}

// printPools reports pool sizes. Secrets are never printed.
func printPools(w io.Writer, store *keys.Store) {
	sizes := store.Sizes()
	names := make([]string, 0, len(sizes))
	for n := range sizes {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(w, "%s\t%d\n", n, sizes[n])
	}
}

func openMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, *metrics.Manager, error) {
	db, err := sql.Open("sqlite3", cfg.MetricsDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open metrics db: %w", err)
	}
	// A shared in-memory database disappears when its last connection closes.
	db.SetMaxOpenConns(1)
	mgr := metrics.New(db, metrics.Config{FlushInterval: cfg.MetricsFlushInterval, Logger: logger})
	if err := mgr.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("init metrics schema: %w", err)
	}
	return db, mgr, nil
}

func buildService(cfg *config.Config, store app.KeySource, rec app.Recorder, logger *slog.Logger) *app.Service {
	hc := &http.Client{Timeout: cfg.UpstreamTimeout}
	images := []app.Upstream{{
		Client: provider.NewHuggingFace(provider.HuggingFaceConfig{
			URL:           cfg.HFURL,
			QualitySuffix: cfg.HFQualitySuffix,
			Width:         cfg.HFWidth,
			Height:        cfg.HFHeight,
			HTTPClient:    hc,
		}),
		Pool: cfg.ImagePool,
	}}
	if cfg.SecondaryImagePool != "" {
		images = append(images, app.Upstream{
			Client: provider.NewOpenAIImage(provider.OpenAIImageConfig{
				BaseURL:    cfg.SecondaryImageBaseURL,
				Model:      cfg.SecondaryImageModel,
				Size:       cfg.SecondaryImageSize,
				HTTPClient: hc,
			}),
			Pool: cfg.SecondaryImagePool,
		})
	}
	return &app.Service{
		Keys: store,
		Text: app.Upstream{
			Client: provider.NewText(provider.TextConfig{
				BaseURL:     cfg.TextBaseURL,
				Model:       cfg.TextModel,
				MaxTokens:   cfg.TextMaxTokens,
				Temperature: cfg.TextTemperature,
				HTTPClient:  hc,
			}),
			Pool:  cfg.TextPool,
			Retry: app.RetryPolicy{Delays: cfg.TextRetry},
		},
		Images:  images,
		Timeout: cfg.RequestTimeout,
		Metrics: rec,
		Logger:  logger,
	}
}

// readiness reports ready once the metrics database answers and at least
// one pool can serve requests.
func readiness(db *sql.DB, store *keys.Store) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		for _, n := range store.Sizes() {
			if n > 0 {
				return nil
			}
		}
		return errors.New("no credential pool is populated")
	}
}

func buildHandler(cfg *config.Config, svc httpx.ServicePort, db *sql.DB, store *keys.Store, mgr *metrics.Manager) http.Handler {
	h := httpx.New(svc, cfg.MaxBody, readiness(db, store))
	h.Metrics = metrics.Handler(mgr, cfg.MetricsToken)
	return h.Router()
}

func newServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func serve(ctx context.Context, cfg *config.Config, store *keys.Store, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, mgr, err := openMetrics(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	// Metrics outlive the server so the final flush sees drained requests.
	metricsCtx, stopMetrics := context.WithCancel(context.WithoutCancel(ctx))
	metricsDone := make(chan struct{})
	go func() {
		defer close(metricsDone)
		mgr.Run(metricsCtx)
	}()
	defer func() {
		stopMetrics()
		<-metricsDone
	}()

	for name, n := range store.Sizes() {
		logger.Info("credential pool loaded", "pool", name, "keys", n)
	}
	if strings.TrimSpace(cfg.TextModel) == "" {
		logger.Warn("text model is not set; deck requests will fail", "env", config.EnvPrefix+"TEXT_MODEL")
	}

	svc := buildService(cfg, store, mgr, logger)
	srv := newServer(cfg, buildHandler(cfg, svc, db, store, mgr))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.Addr, "pid", os.Getpid(), "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout))
}
