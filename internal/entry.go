// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/contextpad/internal/analysis"
	"github.com/starford/contextpad/internal/api"
	"github.com/starford/contextpad/internal/docapi"
	"github.com/starford/contextpad/internal/docservice"
	"github.com/starford/contextpad/internal/draft"
	"github.com/starford/contextpad/internal/editorapi"
	"github.com/starford/contextpad/internal/index"
	"github.com/starford/contextpad/internal/linkmeta"
	"github.com/starford/contextpad/internal/mcpserver"
	"github.com/starford/contextpad/internal/metrics"
	"github.com/starford/contextpad/internal/persistence"
	"github.com/starford/contextpad/internal/session"
	"github.com/starford/contextpad/internal/sse"
)

const shutdownTimeout = 10 * time.Second

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// RunServer starts the document backend: document storage, the link index
// and the analysis endpoints.
func RunServer(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(os.Stdout, cfg.App.LogLevel)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	svc := docservice.NewService(db,
		docservice.WithLogger(logger),
		docservice.WithVerifier(linkmeta.New(&http.Client{Timeout: cfg.Analysis.Timeout}, logger)),
		docservice.WithRelevantQuota(cfg.Analysis.RelevantQuota),
	)

	r := baseRouter()
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := svc.Ready(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/", api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token))

	return serve(ctx, logger, cfg.App.HTTP.Address(), r, nil, nil)
}

// RunEditor starts one editor session and serves it over HTTP with a live
// event stream.
func RunEditor(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(os.Stdout, cfg.App.LogLevel)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("backend_url", cfg.Backend.BaseURL),
		slog.String("draft_driver", cfg.Draft.Driver),
		slog.String("level", cfg.Session.Level.String()),
		slog.Bool("analysis", cfg.Analysis.Enabled()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	ed, err := openEditor(ctx, cfg, logger, session.WithNotifier(broker.Notify))
	if err != nil {
		return err
	}
	defer ed.close()

	r := baseRouter()
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/", editorapi.NewRouter(ed.session, broker))

	var background []func(context.Context) error
	if fs, ok := ed.store.(*draft.FS); ok {
		background = append(background, func(ctx context.Context) error {
			return fs.Watch(ctx, logger, draft.DefaultWatchDebounce, func() {
				reloaded, err := ed.session.ReloadDraft(ctx)
				if err != nil {
					logger.Warn("draft reload failed", slog.String("error", err.Error()))
					return
				}
				if reloaded {
					logger.Info("draft reloaded from disk")
				}
			})
		})
	}

	return serve(ctx, logger, cfg.App.HTTP.Address(), r, background, ed.flush)
}

// RunMCP starts one editor session and exposes it to an MCP client over
// stdio. Logs go to stderr.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(os.Stderr, cfg.App.LogLevel)

	ed, err := openEditor(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer ed.close()
	defer ed.flush()

	logger.Info("MCP server starting on stdio", slog.String("version", app.version))
	return mcpserver.New(ed.session, app.version).ServeStdio()
}

// editor is an opened session with the resources behind it.
type editor struct {
	session *session.Session
	store   draft.Store
	logger  *slog.Logger
	closers []func() error
}

// openEditor wires the draft store, the backend client and the analysis
// client into a session and loads the initial document.
func openEditor(ctx context.Context, cfg *Config, logger *slog.Logger, opts ...session.Option) (*editor, error) {
	ed := &editor{logger: logger}

	switch cfg.Draft.Driver {
	case DraftDriverRedis:
		rs, err := draft.NewRedis(cfg.Draft.RedisURL, cfg.Draft.KeyPrefix, cfg.Draft.MaxBytes)
		if err != nil {
			return nil, fmt.Errorf("init draft store: %w", err)
		}
		ed.store = rs
		ed.closers = append(ed.closers, rs.Close)
	default:
		fs, err := draft.NewFS(cfg.Draft.Dir, cfg.Draft.MaxBytes)
		if err != nil {
			return nil, fmt.Errorf("init draft store: %w", err)
		}
		ed.store = fs
	}

	var remote persistence.Remote
	if cfg.Backend.BaseURL != "" {
		remote = docapi.New(cfg.Backend.BaseURL, cfg.Backend.Token, &http.Client{Timeout: cfg.Backend.Timeout})
	}
	gw := persistence.New(ed.store, remote, logger)

	opts = append([]session.Option{session.WithLogger(logger)}, opts...)
	if cfg.Analysis.Enabled() {
		opts = append(opts, session.WithAnalyzer(newAnalysisClient(cfg)))
	}

	ed.session = session.New(session.Config{
		Level:        cfg.Session.Level,
		Debounce:     cfg.Session.Debounce,
		FreeDocLimit: cfg.Session.FreeDocLimit,
		RetryInitial: cfg.Session.RetryInitial,
		RetryMax:     cfg.Session.RetryMax,
	}, gw, opts...)

	if err := ed.session.Open(ctx); err != nil {
		ed.close()
		return nil, fmt.Errorf("open session: %w", err)
	}
	return ed, nil
}

func newAnalysisClient(cfg *Config) *analysis.Client {
	ac := cfg.Analysis
	verify := ac.VerifyURL
	if verify == "" {
		verify = strings.TrimSuffix(ac.RelevantURL, "/") + "/verify"
	}
	return analysis.New(analysis.Endpoints{
		Analyze:  ac.AnalyzeURL,
		Relevant: ac.RelevantURL,
		Verify:   verify,
	},
		analysis.WithHTTPClient(&http.Client{Timeout: ac.Timeout}),
		analysis.WithRate(ac.Rate, ac.Burst),
		analysis.WithShortening(ac.UseShortening),
		analysis.WithToken(cfg.Backend.Token),
	)
}

// flush saves unsaved edits before shutdown.
func (e *editor) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.session.Flush(ctx); err != nil {
		e.logger.Error("final save failed", slog.String("error", err.Error()))
	}
}

func (e *editor) close() {
	e.session.Close()
	for _, c := range e.closers {
		if err := c(); err != nil {
			e.logger.Warn("close failed", slog.String("error", err.Error()))
		}
	}
}

// baseRouter returns a chi router with the shared middleware, liveness and
// metrics endpoints.
func baseRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

// serve runs the HTTP server and the background tasks until a signal
// arrives or ctx is cancelled. beforeShutdown runs after the server has
// stopped accepting requests.
func serve(ctx context.Context, logger *slog.Logger, addr string, h http.Handler,
	background []func(context.Context) error, beforeShutdown func(),
) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", addr))

	g, gCtx := errgroup.WithContext(ctx)
	bgCtx, stopBackground := context.WithCancel(gCtx)
	defer stopBackground()

	for _, task := range background {
		g.Go(func() error {
			if err := task(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("background task failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")
		stopBackground()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		if beforeShutdown != nil {
			beforeShutdown()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
