package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"onedesk/backend/internal/config"
	"onedesk/backend/internal/logging"
	pgstore "onedesk/backend/internal/store/postgres"
)

func main() {
	var (
		timeout = flag.Duration("timeout", 30*time.Second, "Give up after this long")
		help    = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	cfg := config.Load()
	logger, err := logging.New(logging.Options{Production: cfg.Production(), Level: cfg.LogLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer func() { _ = pg.Close() }()

	logger.Info("running schema migration")
	if err := pgstore.Migrate(ctx, pg.DB()); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
	logger.Info("migration completed")
}

func showHelp() {
	fmt.Println("Schema migration tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  migrate [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Reads DATABASE_URL from the environment or a .env file and creates or widens")
	fmt.Println("the users, products, bills, returns and audit_logs tables.")
}
