// Package main is the entry point for the gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pgcrud/pgcrud/internal/api"
	"github.com/pgcrud/pgcrud/internal/api/handlers"
	"github.com/pgcrud/pgcrud/internal/catalog"
	"github.com/pgcrud/pgcrud/internal/config"
	"github.com/pgcrud/pgcrud/internal/gateway"
	"github.com/pgcrud/pgcrud/internal/mcpbridge"
	"github.com/pgcrud/pgcrud/internal/metrics"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("pgcrud %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Bootstrap logger until configuration is loaded.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger = setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting gateway",
		slog.String("version", version),
		slog.String("address", cfg.Address()),
		slog.Bool("auth", cfg.Auth.Enabled),
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	pools, err := gateway.OpenPools(ctx, cfg)
	if err != nil {
		cancel()
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	model, err := catalog.Introspect(ctx, pools.Primary, catalog.Options{
		IncludeNamespaces: cfg.Schema.IncludeNamespaces,
		ExcludeNamespaces: cfg.Schema.ExcludeNamespaces,
		ExcludeTables:     cfg.Schema.ExcludeTables,
		Logger:            logger,
	})
	cancel()
	if err != nil {
		logger.Error("schema introspection failed", slog.String("error", err.Error()))
		pools.Close()
		os.Exit(1)
	}

	logger.Info("schema introspected",
		slog.Int("tables", len(model.Entities)),
		slog.Int("namespaces", len(model.Namespaces)),
		slog.String("hash", model.Hash()),
	)

	m := metrics.New()
	m.TablesTotal.Set(float64(len(model.Entities)))
	m.NamespacesTotal.Set(float64(len(model.Namespaces)))

	core := gateway.New(model, pools, cfg, logger, m)
	bridge := mcpbridge.New(core, logger, m, version)

	server := api.NewServer(cfg, logger, api.Options{
		Core:    core,
		Metrics: m,
		Agent:   bridge.Handler(),
		Build: handlers.Config{
			Version:   version,
			Commit:    commit,
			BuildTime: buildDate,
		},
	})

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			pools.Close()
			os.Exit(1)
		}
	case sig := <-shutdown:
		logger.Info("shutting down", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
		}
		pools.Close()
	}

	logger.Info("shutdown complete")
}

// setupLogger builds the logger from configuration: JSON or text handler,
// with optional rotated file output.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(out, opts))
	}
	return slog.New(slog.NewJSONHandler(out, opts))
}
