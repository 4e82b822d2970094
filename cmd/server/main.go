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

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"onedesk/backend/internal/cache"
	"onedesk/backend/internal/config"
	"onedesk/backend/internal/expiry"
	"onedesk/backend/internal/httpapi"
	"onedesk/backend/internal/logging"
	"onedesk/backend/internal/receipt"
	"onedesk/backend/internal/service"
	"onedesk/backend/internal/store"
	"onedesk/backend/internal/store/memory"
	pgstore "onedesk/backend/internal/store/postgres"
	"onedesk/backend/internal/xid"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(logging.Options{
		Production: cfg.Production(),
		Level:      cfg.LogLevel,
		Filename:   cfg.LogFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}
	if err := xid.SetNode(cfg.NodeID); err != nil {
		logger.Fatal("invalid NODE_ID", zap.Int64("node", cfg.NodeID), zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if cfg.AutoMigrate {
			if err := pgstore.Migrate(ctx, pg.DB()); err != nil {
				logger.Fatal("auto migrate", zap.Error(err))
			}
			logger.Info("schema migrated")
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.New()
		logger.Info("repository: in-memory")
	}

	expiryState := cache.ExpiryStateStore(cache.NewMemoryExpiryState())
	if cfg.RedisAddr != "" {
		redisState := cache.NewRedisExpiryState(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisState.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, keeping expiry state in memory", zap.Error(err))
		} else {
			expiryState = redisState
			closers = append(closers, redisState.Close)
			logger.Info("expiry state: redis")
		}
	} else {
		logger.Info("expiry state: memory")
	}

	pool, err := ants.NewPool(cfg.SyncWorkers, ants.WithPanicHandler(func(p any) {
		logger.Error("sync worker panic", zap.Any("panic", p))
	}))
	if err != nil {
		logger.Fatal("create sync pool", zap.Error(err))
	}

	var printer receipt.Printer = receipt.LogPrinter{Logger: logger}
	if cfg.ReceiptSpoolDir != "" {
		printer = receipt.SpoolPrinter{Dir: cfg.ReceiptSpoolDir}
		logger.Info("receipts: spool", zap.String("dir", cfg.ReceiptSpoolDir))
	}

	svc := service.New(service.Options{
		Repo:        repo,
		ExpiryState: expiryState,
		Printer:     printer,
		ShopName:    cfg.ShopName,
		Pool:        pool,
		Logger:      logger,
	})

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo, logger)
	unsubscribe, err := auth.OnSessionChange(svc.HandleSessionEvent)
	if err != nil {
		logger.Fatal("subscribe session events", zap.Error(err))
	}
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)

	sweeper, err := expiry.NewScheduler(cfg.ExpirySweepSpec, svc.SweepExpiry, logger)
	if err != nil {
		logger.Fatal("invalid EXPIRY_SWEEP_SPEC", zap.String("spec", cfg.ExpirySweepSpec), zap.Error(err))
	}
	sweeper.Start()

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	sweeper.Stop()
	unsubscribe()
	svc.Shutdown()
	pool.Release()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.Production() && cfg.AllowedOrigin == "*" {
		return fmt.Errorf("ALLOWED_ORIGIN must name the client origin in production")
	}
	return nil
}
