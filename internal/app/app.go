// Package app wires the application together: configuration, storage,
// providers, the retrieval engine and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/docloom/docloom/api"
	"github.com/docloom/docloom/db"
	"github.com/docloom/docloom/internal/chat"
	"github.com/docloom/docloom/internal/config"
	"github.com/docloom/docloom/internal/conversation"
	"github.com/docloom/docloom/internal/database"
	"github.com/docloom/docloom/internal/index"
	"github.com/docloom/docloom/internal/log"
	"github.com/docloom/docloom/internal/observability"
	"github.com/docloom/docloom/internal/provider"
	"github.com/docloom/docloom/internal/rag"
	"github.com/docloom/docloom/internal/tokens"
	"github.com/docloom/docloom/internal/usage"
)

const shutdownTimeout = 15 * time.Second

// App holds the assembled application.
type App struct {
	Config *config.Config
	Logger log.Logger
	Pool   *pgxpool.Pool
	Meter  *usage.Meter

	server      *http.Server
	stopTracing func(context.Context) error
}

// New builds the application from configuration: runs migrations, opens the
// database pool, constructs providers, stores, the retrieval engine and the
// HTTP server. On error everything already opened is closed.
func New(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = log.NewNop()
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Open(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	app, err := assemble(ctx, cfg, logger, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return app, nil
}

func assemble(ctx context.Context, cfg *config.Config, logger log.Logger, pool *pgxpool.Pool) (*App, error) {
	stopTracing, err := observability.Setup(ctx, cfg.Tracing, logger)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	closeTracing := func() {
		if err := stopTracing(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}

	factory, err := provider.NewFactory(cfg, logger)
	if err != nil {
		closeTracing()
		return nil, fmt.Errorf("building provider factory: %w", err)
	}
	embedder, err := factory.Embedder()
	if err != nil {
		closeTracing()
		return nil, fmt.Errorf("building embedder: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	meter := usage.NewMeter(pool, registry, logger, usage.DefaultBufferSize)
	counter := tokens.NewCounter(logger)

	indexStore := index.NewStore(pool, logger)
	convStore := conversation.NewStore(pool, logger)
	botStore := chat.NewStore(pool, logger)

	engine := rag.NewEngine(embedder, indexStore, counter, rag.Budget{
		ContextTokens: cfg.ContextBudget,
		HistoryTokens: cfg.MaxHistoryTokens,
	}, logger)

	generators := chat.GeneratorsFunc(func(s provider.Settings) (rag.Generator, error) {
		return factory.ChatModel(s)
	})
	service := chat.NewService(botStore, convStore, engine, generators, meter, counter,
		chat.ProviderInfo{
			Name:           cfg.Provider,
			ChatModel:      cfg.ChatModel,
			EmbeddingModel: cfg.EmbeddingModel,
		}, logger)

	server, err := api.NewServer(api.ServerConfig{
		Logger:        logger,
		ChatService:   service,
		Chatbots:      botStore,
		Conversations: convStore,
		Index:         indexStore,
		Embedder:      embedder,
		Counter:       counter,
		Meter:         meter,
		Pool:          pool,
		Registry:      registry,
		TrustProxy:    cfg.TrustProxy,
		RateBurst:     cfg.RateBurst,
	})
	if err != nil {
		meter.Close()
		closeTracing()
		return nil, fmt.Errorf("building HTTP server: %w", err)
	}

	return &App{
		Config: cfg,
		Logger: logger,
		Pool:   pool,
		Meter:  meter,
		server: &http.Server{
			Addr:              cfg.Listen,
			Handler:           server.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		stopTracing: stopTracing,
	}, nil
}

// Run serves HTTP until the context is canceled, then drains in-flight
// requests and releases all resources.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		a.close(context.Background())
		return err
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := a.server.Shutdown(shutdownCtx)
	a.close(shutdownCtx)
	if serveErr := <-errCh; err == nil {
		err = serveErr
	}
	return err
}

// close releases resources in reverse construction order.
func (a *App) close(ctx context.Context) {
	a.Meter.Close()
	if a.stopTracing != nil {
		if err := a.stopTracing(ctx); err != nil {
			a.Logger.Warn("tracer shutdown failed", "error", err)
		}
	}
	a.Pool.Close()
}
