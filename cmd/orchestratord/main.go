package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/storyloom/orchestrator/internal/backend"
	"github.com/storyloom/orchestrator/internal/breaker"
	"github.com/storyloom/orchestrator/internal/cache"
	"github.com/storyloom/orchestrator/internal/classifier"
	"github.com/storyloom/orchestrator/internal/config"
	"github.com/storyloom/orchestrator/internal/orchestrator"
	"github.com/storyloom/orchestrator/internal/registry"
	"github.com/storyloom/orchestrator/internal/retry"
	"github.com/storyloom/orchestrator/internal/router"
	"github.com/storyloom/orchestrator/internal/server"
	"github.com/storyloom/orchestrator/internal/session"
	"github.com/storyloom/orchestrator/internal/storage"
	"github.com/storyloom/orchestrator/internal/storage/memory"
	"github.com/storyloom/orchestrator/internal/storage/sqlite"
	"github.com/storyloom/orchestrator/internal/telemetry"
	"github.com/storyloom/orchestrator/internal/tokens"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdownTracer, err := telemetry.InitTracer("storyloom-orchestrator", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	if store != nil {
		defer store.Close()
	}

	reg, err := registry.New(cfg.Descriptors())
	if err != nil {
		log.Fatalf("Invalid backend configuration: %v", err)
	}

	directory, err := buildDirectory(cfg)
	if err != nil {
		log.Fatalf("Failed to build backend clients: %v", err)
	}

	brk := breaker.New(
		breaker.WithFailureThreshold(cfg.Breaker.FailureThreshold),
		breaker.WithRecoveryTimeout(cfg.Breaker.RecoveryTimeout),
	)
	rp := retry.New(
		retry.WithBaseDelay(cfg.Retry.BaseDelay),
		retry.WithMaxDelay(cfg.Retry.MaxDelay),
		retry.WithMaxAttempts(cfg.Retry.MaxAttempts),
		retry.WithJitter(cfg.Retry.Jitter),
	)
	ch := cache.New(
		cache.WithCapacity(cfg.Cache.Capacity),
		cache.WithThreshold(cfg.Cache.Threshold),
		cache.WithEvictFraction(cfg.Cache.EvictFraction),
	)
	sessions := session.NewManager()
	cls := classifier.New(tokens.NewEstimator())
	rt := router.New(reg)

	orch := orchestrator.New(cls, rt, brk, rp, ch, sessions, directory,
		orchestrator.WithStore(store),
		orchestrator.WithLogger(logger),
		orchestrator.WithConfig(orchestrator.Config{
			BatchSize:   cfg.Orchestrator.BatchSize,
			MaxWorkers:  cfg.Orchestrator.MaxWorkers,
			CallTimeout: cfg.Orchestrator.CallTimeout,
		}),
	)

	srv := server.New(cfg.Server.Port, orch, sessions, logger,
		server.WithDefaultMaxCalls(cfg.Session.DefaultMaxCalls),
		server.WithStats(func() server.Stats {
			hits, misses := ch.Stats()
			rateLimit, transient := rp.Stats()
			snap := reg.Snapshot()
			ids := make([]string, 0, snap.Len())
			for _, b := range snap.All() {
				ids = append(ids, b.ID)
			}
			return server.Stats{
				CacheHits:          hits,
				CacheMisses:        misses,
				CacheEntries:       ch.Len(),
				RateLimitRetries:   rateLimit,
				TransientRetries:   transient,
				CircuitStates:      brk.Snapshot(),
				RegisteredBackends: ids,
			}
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Hot reload replaces only the backend registry; pipeline parameters
	// require a restart.
	if *configPath != "" {
		go func() {
			err := config.Watch(ctx, *configPath, logger, func(next *config.Config) {
				if err := reg.Replace(next.Descriptors()); err != nil {
					logger.Warn("backend registry reload rejected",
						slog.String("error", err.Error()))
					return
				}
				logger.Info("backend registry reloaded",
					slog.Int("backends", len(next.Backends)))
			})
			if err != nil && ctx.Err() == nil {
				logger.Error("config watcher stopped", slog.String("error", err.Error()))
			}
		}()
	}

	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	logger.Info("orchestrator shutdown complete")
}

func openStore(cfg *config.Config) (storage.JobStore, error) {
	switch cfg.Storage.Type {
	case "sqlite":
		return sqlite.New(cfg.Storage.SQLite.Path)
	case "memory":
		return memory.New(), nil
	default:
		return nil, nil
	}
}

// buildDirectory instantiates one client per configured backend.
func buildDirectory(cfg *config.Config) (backend.Directory, error) {
	dir := make(backend.StaticDirectory, len(cfg.Backends))
	for _, b := range cfg.Backends {
		switch b.Type {
		case "fake":
			dir[b.ID] = backend.NewFake(b.ID)
		default:
			var opts []backend.HTTPOption
			if b.APIKey != "" {
				opts = append(opts, backend.WithAPIKey(b.APIKey))
			}
			dir[b.ID] = backend.NewHTTPBackend(b.ID, b.BaseURL, opts...)
		}
	}
	return dir, nil
}
