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

	"ventas/backend/internal/cache"
	"ventas/backend/internal/catalog"
	"ventas/backend/internal/config"
	"ventas/backend/internal/guard"
	"ventas/backend/internal/httpapi"
	"ventas/backend/internal/logging"
	"ventas/backend/internal/service"
	"ventas/backend/internal/store"
	"ventas/backend/internal/store/memory"
	pgstore "ventas/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		seeded, err := memory.NewSeededWithLogger(logger)
		if err != nil {
			logger.Fatalf("seed in-memory store: %v", err)
		}
		repo = seeded
		logger.Info("repository: in-memory")
	}

	catalogCache := cache.CatalogCache(cache.NoopCatalogCache{})
	var commitGuard guard.Guard = guard.NewLocal()
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		redisCache := cache.NewRedisCatalogCache(client)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warnf("redis unavailable (%v), using noop cache and in-process commit guard", err)
			_ = client.Close()
		} else {
			catalogCache = redisCache
			commitGuard = guard.NewRedis(client, time.Duration(cfg.CommitLockTTLSeconds)*time.Second)
			closers = append(closers, client.Close)
			logger.Info("cache: redis")
		}
	} else {
		logger.Info("cache: noop")
	}

	loader := catalog.NewLoader(repo, catalog.Options{
		Cache:    catalogCache,
		CacheTTL: time.Duration(cfg.CatalogCacheTTLSeconds) * time.Second,
		Overrides: catalog.Defaults{
			CustomerID:     cfg.DefaultCustomerID,
			UserID:         cfg.DefaultUserID,
			DocumentTypeID: cfg.DefaultDocumentTypeID,
		},
		Logger: logger,
	})
	svc := service.New(repo, service.Options{
		Loader:          loader,
		Guard:           commitGuard,
		Logger:          logger,
		TrialDays:       cfg.TrialDays,
		SuggestionLimit: cfg.SuggestionLimit,
		SessionIdle:     time.Duration(cfg.SessionIdleMinutes) * time.Minute,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go svc.RunSweeper(sweepCtx, time.Minute)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Infof("sales backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	stopSweep()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Errorf("close error: %v", err)
		}
	}

	logger.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AllowedOrigin == "*" && cfg.DatabaseURL != "" {
		return fmt.Errorf("ALLOWED_ORIGIN must name an origin when running against postgres")
	}
	for name, id := range map[string]int64{
		"DEFAULT_CUSTOMER_ID":      cfg.DefaultCustomerID,
		"DEFAULT_USER_ID":          cfg.DefaultUserID,
		"DEFAULT_DOCUMENT_TYPE_ID": cfg.DefaultDocumentTypeID,
	} {
		if id < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}
