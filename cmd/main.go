package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/l0p7/gatewaycache/internal/config"
	"github.com/l0p7/gatewaycache/internal/logging"
	"github.com/l0p7/gatewaycache/internal/server"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to configuration file")
		envPrefix  = flag.String("env-prefix", "GATEWAYCACHE", "environment variable prefix")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var files []string
	if *configFile != "" {
		files = append(files, *configFile)
	}
	loader := config.NewLoader(*envPrefix, files...)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Server.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("unable to assemble services", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		a.close(shutdownCtx)
	}()

	if len(files) > 0 {
		watcher, err := loader.Watch(ctx, a.reconfigure, func(err error) {
			logger.Error("configuration reload rejected", slog.Any("error", err))
		})
		if err != nil {
			logger.Error("configuration watcher setup failed", slog.Any("error", err))
		} else {
			defer watcher.Stop()
		}
	}

	go a.runChangeFeed(ctx)

	srv, err := server.New(cfg.Server, logger, a.opsHandler())
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		os.Exit(1)
	}
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}
