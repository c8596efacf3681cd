package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bmstu-itstech/matchorch/internal/api"
	"github.com/bmstu-itstech/matchorch/internal/api/handlers"
	"github.com/bmstu-itstech/matchorch/internal/config"
	"github.com/bmstu-itstech/matchorch/internal/domain/counter"
	"github.com/bmstu-itstech/matchorch/internal/engine"
	"github.com/bmstu-itstech/matchorch/internal/infrastructure/cache"
	"github.com/bmstu-itstech/matchorch/internal/infrastructure/db"
	"github.com/bmstu-itstech/matchorch/internal/match"
	"github.com/bmstu-itstech/matchorch/internal/runner"
	"github.com/bmstu-itstech/matchorch/internal/scrimmage"
	"github.com/bmstu-itstech/matchorch/internal/storage"
	"github.com/bmstu-itstech/matchorch/internal/tournament"
	"github.com/bmstu-itstech/matchorch/pkg/logger"
	"github.com/bmstu-itstech/matchorch/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewWithOptions(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Async:  cfg.Logging.Async,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting match orchestration API server", zap.Int("port", cfg.Server.Port))

	m := metrics.New()

	database, err := db.New(&cfg.Database, log, m)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	if err := database.Health(context.Background()); err != nil {
		log.Fatal("Database health check failed", zap.Error(err))
	}
	log.Info("Connected to database", zap.String("host", cfg.Database.Host), zap.Int("port", cfg.Database.Port))

	redisCache, err := cache.New(&cfg.Redis, log, m)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisCache.Close()
	log.Info("Connected to Redis", zap.String("host", cfg.Redis.Host), zap.Int("port", cfg.Redis.Port))

	distributedLock := cache.NewDistributedLock(redisCache)
	rateLimiter := cache.NewRateLimiter(redisCache)
	ratingCache := cache.NewRatingCache(redisCache)

	matchRepo := db.NewMatchRepository(database)
	playerRepo := db.NewPlayerRepository(database, ratingCache)

	runnerClient := runner.New(cfg.Runner.Host, cfg.Runner.Key, &http.Client{Timeout: cfg.Runner.Timeout}, log)

	objectStore, err := storage.New(storage.Config{
		BasePath:        cfg.Storage.BasePath,
		ReplayBucket:    cfg.Storage.ReplayBucket,
		BracketBucket:   cfg.Storage.BracketBucket,
		ErrorLogBucket:  cfg.Storage.ErrorLogBucket,
		PublicURLPrefix: cfg.Storage.PublicURLPrefix,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize object store", zap.Error(err))
	}

	engineRegistry := engine.New(cfg.Engine.DataDir, distributedLock, runnerClient, log)
	if err := engineRegistry.Reload(context.Background()); err != nil {
		log.Warn("no persisted game engine to reload at startup", zap.Error(err))
	}

	seed, err := matchRepo.NextMatchID(context.Background())
	if err != nil {
		log.Fatal("Failed to seed match id counter", zap.Error(err))
	}
	matchCounter := counter.New(seed)

	matchRunner := match.NewRunner(matchRepo, objectStore, runnerClient, cfg.Runner.ScratchDir, cfg.Runner.CallbackBaseURL, log)

	scrimmageOrch := scrimmage.NewOrchestrator(matchCounter, playerRepo, matchRepo, objectStore, matchRunner, log)
	tournamentOrch := tournament.NewOrchestrator(matchCounter, playerRepo, matchRepo, objectStore, matchRunner, log)

	watchdog := match.NewWatchdog(match.WatchdogConfig{
		Enabled:       cfg.Watchdog.Enabled,
		SweepInterval: cfg.Watchdog.SweepInterval,
		StaleAfter:    cfg.Watchdog.StaleAfter,
	}, matchRepo, log)
	watchdog.Start()
	defer watchdog.Stop()

	engineHandler := handlers.NewEngineHandler(engineRegistry, log)
	matchHandler := handlers.NewMatchHandler(matchCounter, engineRegistry, matchRunner, matchRepo, objectStore, log)
	scrimmageHandler := handlers.NewScrimmageHandler(scrimmageOrch, engineRegistry, matchRepo, objectStore, log)
	tournamentHandler := handlers.NewTournamentHandler(tournamentOrch, engineRegistry, matchRepo, objectStore, log)
	systemHandler := handlers.NewSystemHandler(log)
	leaderboardHandler := handlers.NewLeaderboardHandler(playerRepo)

	apiServer := api.NewServer(
		engineHandler,
		matchHandler,
		scrimmageHandler,
		tournamentHandler,
		systemHandler,
		leaderboardHandler,
		rateLimiter,
		cfg.CORS,
		cfg.RateLimit,
		log,
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())

		metricsSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           metricsMux,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			log.Info("Metrics server listening", zap.String("addr", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("Metrics server error", zap.Error(err))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("API server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	<-quit
	log.Info("Shutting down servers...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("API server forced to shutdown", zap.Error(err))
	}

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("Metrics server forced to shutdown", zap.Error(err))
		}
	}

	log.Info("Servers stopped gracefully")
}
