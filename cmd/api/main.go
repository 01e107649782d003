package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leafsii/leafsii-farm/internal/api"
	"github.com/leafsii/leafsii-farm/internal/config"
	"github.com/leafsii/leafsii-farm/internal/initializer"
	"github.com/leafsii/leafsii-farm/internal/jobs"
	"github.com/leafsii/leafsii-farm/internal/log"
	"github.com/leafsii/leafsii-farm/internal/metrics"
	"github.com/leafsii/leafsii-farm/internal/repository"
	"github.com/leafsii/leafsii-farm/internal/service"
	"github.com/leafsii/leafsii-farm/internal/store"
	"github.com/leafsii/leafsii-farm/internal/ws"
	"github.com/leafsii/leafsii-farm/pkg/kv"
	_ "github.com/leafsii/leafsii-farm/pkg/kv/memory"
	_ "github.com/leafsii/leafsii-farm/pkg/kv/redis"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := log.NewSugar(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("Starting farm API server",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"kv_backend", cfg.Store.Backend,
	)

	metricsObj, metricsHandler, err := metrics.Setup("leafsii-farm")
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kvStore, err := kv.NewStoreFromConfig(cfg.KV())
	if err != nil {
		logger.Fatalw("Failed to open farm state store", "error", err)
	}
	defer kvStore.Close()

	cache, err := store.NewCache(cfg.Store.RedisURL, logger, metricsObj)
	if err != nil {
		logger.Fatalw("Failed to setup cache", "error", err)
	}
	defer cache.Close()

	checks := map[string]api.HealthChecker{
		"kv":    kvStore,
		"cache": cache,
	}
	sinks := []service.EventSink{store.NewEventPublisher(cache)}

	var journal api.EventJournal
	if cfg.Database.PostgresDSN != "" {
		repo, err := openRepository(ctx, cfg.Database.PostgresDSN, logger)
		if err != nil {
			logger.Fatalw("Failed to open event journal", "error", err)
		}
		defer repo.Close()
		journal = repo
		checks["postgres"] = repo
		// Journal first so subscribers never see an event the journal lacks.
		sinks = append([]service.EventSink{repo}, sinks...)
	}

	svc := service.New(kvStore, service.Options{
		Logger:  logger,
		Metrics: metricsObj,
		Sinks:   sinks,
		Faucet:  cfg.Farm.DevFaucet,
	})

	if cfg.Farm.GenesisPath != "" {
		if err := applyGenesis(ctx, svc, cfg.Farm.GenesisPath, logger); err != nil {
			logger.Fatalw("Failed to apply genesis", "path", cfg.Farm.GenesisPath, "error", err)
		}
	}

	wsHub := ws.NewHub(cache, cfg.Security.CORSAllowedOrigins, logger, metricsObj)
	sseHandler := ws.NewSSEHandler(cache, cfg.Security.CORSAllowedOrigins, logger, metricsObj)
	snapshots := jobs.NewSnapshotPublisher(svc, cache, logger, jobs.SnapshotPublisherConfig{
		Interval: cfg.Jobs.SnapshotInterval,
	})

	handler := api.NewHandler(svc, journal, wsHub.HandleWebSocket, sseHandler.HandleSSE, checks, cfg, logger)
	middleware := api.NewMiddleware(logger, metricsObj)
	auth := api.NewAuthenticator(cfg.Security.JWTSecret)
	router := handler.Routes(middleware, auth, metricsHandler)

	logger.Infow("CORS configured", "allowed_origins", cfg.Security.CORSAllowedOrigins)

	server := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// Streams stay open; other routes are bounded by the router's timeout.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infow("API server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		wsHub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := snapshots.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Infow("Shutting down")

		// Give outstanding requests 30 seconds to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Errorw("Server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Infow("Server stopped")
}

func openRepository(ctx context.Context, dsn string, logger *zap.SugaredLogger) (*repository.Repository, error) {
	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := repository.Open(dbCtx, dsn)
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(dbCtx, db, "up"); err != nil {
		db.Close()
		return nil, err
	}
	logger.Infow("Event journal ready")
	return repository.NewRepository(db, logger), nil
}

func applyGenesis(ctx context.Context, svc *service.Service, path string, logger *zap.SugaredLogger) error {
	genesis, err := initializer.ReadGenesis(path)
	if err != nil {
		return err
	}
	result, err := initializer.Initialize(ctx, svc, genesis, logger)
	if err != nil {
		return err
	}
	logger.Infow("Genesis applied", "created", result.Created, "new_pools", len(result.NewPools))
	return nil
}
