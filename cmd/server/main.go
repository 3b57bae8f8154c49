package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/iudanet/zfswitness/internal/config"
	"github.com/iudanet/zfswitness/internal/reconcile"
	"github.com/iudanet/zfswitness/internal/scheduler"
	"github.com/iudanet/zfswitness/internal/server"
	"github.com/iudanet/zfswitness/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	configPath := flag.String("config", "", "Path to config file (default: search standard locations)")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	if configPath == "" {
		// Отсутствие файла не ошибка: конфиг может прийти целиком из окружения
		if found, err := config.FindConfigFile(); err == nil {
			configPath = found
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	}))
	slog.SetDefault(logger)

	logger.Info("starting zfswitness server",
		"version", Version,
		"config", configPath,
		"db_path", cfg.Server.DBPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(ctx, cfg.Server.DBPath)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close storage", "error", err)
		}
	}()

	clock := clockwork.NewRealClock()

	coordinator := reconcile.NewCoordinator(logger, clock, store, store, store, store, reconcile.Config{
		MinGapHours:     cfg.Sync.MinGapHours,
		IncrementalOnly: cfg.Sync.IncrementalOnly,
	})
	conflicts := reconcile.NewConflictService(logger, clock, store, store, store)

	sched := scheduler.New(logger, clock, store, coordinator, conflicts, scheduler.Config{
		Interval:          cfg.SyncInterval(),
		MaxParallelGroups: cfg.Sync.MaxParallelGroups,
	})

	srv := server.New(cfg, logger, store, coordinator, conflicts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("server stopped")
	return nil
}

func printVersion() {
	fmt.Printf("zfswitness server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
