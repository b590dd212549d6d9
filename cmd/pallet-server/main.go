// Package main runs the pallet registry HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/solaius/pallet-registry/pkg/api"
	"github.com/solaius/pallet-registry/pkg/archive"
	"github.com/solaius/pallet-registry/pkg/auth"
	"github.com/solaius/pallet-registry/pkg/cache"
	"github.com/solaius/pallet-registry/pkg/config"
	"github.com/solaius/pallet-registry/pkg/db"
	"github.com/solaius/pallet-registry/pkg/lifecycle"
	"github.com/solaius/pallet-registry/pkg/metrics"
	"github.com/solaius/pallet-registry/pkg/pallet"
	"github.com/solaius/pallet-registry/pkg/tracing"
)

func main() {
	fs := pflag.CommandLine
	config.RegisterFlags(fs)
	fs.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()

	// glog writes start-up failures to stderr.
	_ = flag.Set("logtostderr", "true")

	cfg, err := config.Load(fs)
	if err != nil {
		glog.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Server.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, logger)
	if err != nil {
		glog.Fatalf("Failed to set up tracing: %v", err)
	}

	gormDB, err := db.Open(cfg.DB)
	if err != nil {
		glog.Fatalf("Failed to connect to database: %v", err)
	}
	repo := pallet.NewRepository(gormDB)
	if err := db.Migrate(ctx, gormDB, cfg.DB, repo.AutoMigrate, logger); err != nil {
		glog.Fatalf("Failed to migrate database: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	authSvc, err := auth.NewService(repo, cfg.Auth, logger)
	if err != nil {
		glog.Fatalf("Failed to set up authentication: %v", err)
	}
	if err := bootstrapAdmin(ctx, repo, authSvc, logger); err != nil {
		glog.Fatalf("Failed to create bootstrap admin: %v", err)
	}

	sink, err := archive.NewSink(ctx, cfg.Archive)
	if err != nil {
		glog.Fatalf("Failed to set up archive export: %v", err)
	}

	engine := lifecycle.NewEngine(gormDB, lifecycle.Config{Logger: logger, Metrics: m})
	manager := archive.NewManager(gormDB, archive.Config{Logger: logger, Metrics: m})

	var cacheManager *cache.CacheManager
	if cfg.Cache.Enabled {
		cacheManager = cache.NewCacheManager(cfg.Cache)
		logger.Info("response caching enabled",
			"referenceTTL", cfg.Cache.ReferenceTTL, "statsTTL", cfg.Cache.StatsTTL)
	}

	router := api.NewRouter(api.Deps{
		Engine:        engine,
		Archive:       manager,
		ArchiveConfig: cfg.Archive,
		Sink:          sink,
		Auth:          authSvc,
		Cache:         cacheManager,
		Metrics:       m,
		Gatherer:      reg,
		Logger:        logger,
	})

	worker := archive.NewRetentionWorker(manager, cfg.Archive, sink, logger)
	go worker.Run(ctx)

	httpServer := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: router,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()

	logger.Info("pallet registry ready",
		"listen", cfg.Server.Listen,
		"database", cfg.DB.Type,
		"retentionWorker", cfg.Archive.WorkerEnabled,
	)

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", "error", err)
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		_ = sqlDB.Close()
	}

	logger.Info("pallet registry stopped")
}

// bootstrapAdmin creates the admin named by PALLET_BOOTSTRAP_ADMIN
// ("login:password") when that login does not exist yet.
func bootstrapAdmin(ctx context.Context, repo *pallet.Repository, svc *auth.Service, logger *slog.Logger) error {
	v := os.Getenv("PALLET_BOOTSTRAP_ADMIN")
	if v == "" {
		return nil
	}
	login, password, ok := strings.Cut(v, ":")
	if !ok || login == "" || password == "" {
		return errors.New("PALLET_BOOTSTRAP_ADMIN must be login:password")
	}
	existing, err := repo.GetOperator(ctx, login)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	if err := svc.CreateOperator(ctx, login, password, pallet.RoleAdmin); err != nil {
		return err
	}
	logger.Info("bootstrap admin created", "login", login)
	return nil
}

func logLevel(v string) slog.Level {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
