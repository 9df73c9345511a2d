package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/config"
	"github.com/mamadbah2/stockcount/internal/repository"
	"github.com/mamadbah2/stockcount/internal/repository/memory"
	"github.com/mamadbah2/stockcount/internal/repository/mongodb"
	"github.com/mamadbah2/stockcount/internal/repository/redis"
	"github.com/mamadbah2/stockcount/internal/repository/sheets"
	"github.com/mamadbah2/stockcount/internal/repository/sqlite"
	"github.com/mamadbah2/stockcount/internal/scheduler"
	"github.com/mamadbah2/stockcount/internal/server/handlers"
	"github.com/mamadbah2/stockcount/internal/server/router"
	"github.com/mamadbah2/stockcount/internal/service/counting"
	"github.com/mamadbah2/stockcount/internal/service/engine"
	"github.com/mamadbah2/stockcount/pkg/logger"
	"github.com/mamadbah2/stockcount/pkg/metrics"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Log.Level))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collectorSet := metrics.New(registry)

	var remote repository.RemoteStore
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		baseLogger.Warn("using in-memory remote store, counts are lost on restart")
		remote = memory.NewStore()
	default:
		mongoRepo, err := mongodb.NewMongoDBRepository(context.Background(), cfg.MongoDB.URI, cfg.MongoDB.DBName, baseLogger.Named("repo.mongodb"))
		if err != nil {
			baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
		}
		defer func() {
			if err := mongoRepo.Close(context.Background()); err != nil {
				baseLogger.Error("failed to close mongodb connection", zap.Error(err))
			}
		}()
		remote = mongoRepo
	}

	local, err := sqlite.NewStore(cfg.Local.CachePath)
	if err != nil {
		baseLogger.Fatal("failed to open local cache", zap.String("path", cfg.Local.CachePath), zap.Error(err))
	}
	defer func() {
		if err := local.Close(); err != nil {
			baseLogger.Error("failed to close local cache", zap.Error(err))
		}
	}()

	var prefs repository.Prefs = local.Prefs()
	if cfg.Redis.URL != "" {
		redisPrefs, err := redis.NewPrefs(cfg.Redis.URL, cfg.Redis.PrefTTL)
		if err != nil {
			baseLogger.Fatal("failed to init redis prefs", zap.Error(err))
		}
		defer func() { _ = redisPrefs.Close() }()
		prefs = redisPrefs
		baseLogger.Info("preferences stored in redis")
	}

	deps := engine.Deps{
		Remote:  remote,
		Local:   local,
		Prefs:   prefs,
		Metrics: collectorSet,
		Logger:  baseLogger.Named("svc.engine"),
	}
	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(context.Background(), cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		deps.Sheets = sheetsRepo
	} else {
		baseLogger.Warn("google sheets not configured, sheet import disabled")
	}

	sessions := engine.NewRegistry(deps, engine.Options{
		DedupWindow:          cfg.Engine.DedupWindow,
		PersistDebounce:      cfg.Engine.PersistDebounce,
		RemoteTimeout:        cfg.Sync.RemoteTimeout,
		DefaultWarehouseName: cfg.Engine.DefaultWarehouseName,
		Policy:               counting.ConfirmOnCrossing,
	})

	handler := handlers.NewHandler(sessions, baseLogger.Named("handlers"))
	ginEngine := router.New(handler, registry, baseLogger.Named("router"))

	sched := scheduler.NewScheduler(cfg.Sync, sessions, baseLogger.Named("scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     ginEngine,
		ReadTimeout: 15 * time.Second,
		// No write timeout: /events streams stay open for the whole session.
		IdleTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Ending the sessions closes their event streams, which lets Shutdown drain.
	if err := sessions.CloseAll(shutdownCtx); err != nil {
		baseLogger.Error("failed to flush sessions", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
