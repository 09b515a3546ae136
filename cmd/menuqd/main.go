package main

import (
	"context"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/cli"
	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/config"
	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/engine"
	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/handler"
	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/store"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	st, err := store.Open(context.Background(), store.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open job store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	reg := engine.NewRegistry()
	reg.MustRegister(handler.CSVCleanType, handler.CleanMenuCSV, handler.CSVCleanSchema)

	root := cli.NewRootCmd()
	root.AddCommand(
		cli.NewServeCmd(st, reg, cfg, logger),
		cli.NewWorkerCmd(st, reg, cfg, logger),
		cli.NewSweepCmd(st, cfg, logger),
		cli.NewCleanupCmd(st, cfg, logger),
		cli.NewEnqueueCmd(st, reg, cfg.Worker.DefaultMaxRetries),
		cli.NewGetCmd(st),
		cli.NewListCmd(st),
		cli.NewStatusCmd(st),
		cli.NewCancelCmd(st),
		cli.NewWatchCmd(),
		cli.NewExportCmd(st, logger),
		cli.NewResetCmd(st),
	)

	if err := root.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
