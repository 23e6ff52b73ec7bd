package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attrix/internal/catalog"
	"attrix/internal/config"
	"attrix/internal/core"
	"attrix/internal/docs"
	"attrix/internal/index"
	"attrix/internal/logging"
	"attrix/internal/metrics"
	"attrix/internal/pubsub"
	"attrix/internal/registry"
	"attrix/internal/reindex"
	"attrix/internal/rest"
	"attrix/internal/storage"
	"attrix/internal/storage/memory"
	"attrix/internal/storage/mongostore"
	"attrix/internal/storage/pebblestore"
	"attrix/internal/validator"
)

func main() {
	configDir := flag.String("config", "config", "Config directory")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.Load(*configDir)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// 2. Initialize Logging
	logger, logFile, err := logging.Setup(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logFile.Close()
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Open Storage
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		logger.Error("Failed to open storage", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	defer store.Close(context.Background())
	store = storage.WithRetry(store, cfg.Storage.Retry)

	// 4. Invalidation Bus
	bus, err := openBus(cfg.PubSub)
	if err != nil {
		logger.Error("Failed to connect pubsub", "backend", cfg.PubSub.Backend, "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	// 5. Wire Services
	m := metrics.New(prometheus.DefaultRegisterer)

	reg := registry.New(registry.Config{CacheTTL: cfg.Cache.RegistryTTL}, store, bus, logger)
	cat := catalog.New(catalog.Config{CacheTTL: cfg.Cache.CatalogTTL}, store, reg, bus, logger)
	val := validator.New(reg, cat)
	docStore := docs.New(store)
	idx := index.New(store, m, logger)
	ri := reindex.New(store, docStore, val, idx, m, logger)
	service := core.New(store, reg, cat, val, docStore, idx, ri, m, logger)

	// 6. HTTP Surface
	mux := http.NewServeMux()
	rest.NewHandler(service, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Server listening", "addr", cfg.Server.Addr, "storage", cfg.Storage.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			cancel()
		}
	}()

	// 7. Wait for Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	logger.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Backend {
	case "memory":
		return memory.New(), nil
	case "mongo":
		openCtx, cancel := context.WithTimeout(ctx, cfg.Mongo.Timeout)
		defer cancel()
		return mongostore.New(openCtx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
	default:
		return pebblestore.Open(cfg.Pebble.Dir)
	}
}

func openBus(cfg config.PubSubConfig) (pubsub.Bus, error) {
	if cfg.Backend == "nats" {
		return pubsub.NewNATSBus(cfg.NATS.URL)
	}
	return pubsub.NewMemoryBus(), nil
}
