// Package main implements the Roadwise API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/WessleyAI/roadwise/engine/app"
	"github.com/WessleyAI/roadwise/engine/refresh"
	"github.com/WessleyAI/roadwise/pkg/config"
)

func main() {
	configPath := flag.String("config", "", "path to roadwise.{yaml,toml,json}")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{Services: true, Chat: true}, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// An unbuilt index only degrades resolution, so startup continues.
	if err := a.BuildIndex(ctx); err != nil {
		logger.Warn("similarity index not built, questions will be answered without road matches", "err", err)
	}

	a.Registry.CollectRuntime(ctx, "roadwise_api", 15*time.Second)
	if cfg.Metrics.Port > 0 && cfg.Metrics.Port != cfg.HTTP.Port {
		a.Registry.ServeAsync(ctx, cfg.Metrics.Port, logger)
	}

	if a.NATS != nil {
		syncer := &refresh.Syncer{Catalog: a.Catalog, Rebuild: a.Rebuild, Logger: logger}
		sub, err := refresh.StartConsumer(a.NATS, syncer.Apply, logger)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", refresh.DiscoveredSubject, err)
		}
		defer sub.Unsubscribe()
		logger.Info("listening for catalog refreshes", "subject", refresh.DiscoveredSubject)

		statusSub, err := refresh.ServeStatus(a.NATS, statusFunc(a), logger)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", refresh.StatusSubject, err)
		}
		defer statusSub.Unsubscribe()
	}

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.HTTP.Port),
		Handler:      newServer(a, logger).routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.HTTP.Port, "roads", len(a.Catalog.RoadNames()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// statusFunc reports this replica's catalog and index state.
func statusFunc(a *app.App) func() refresh.Status {
	host, _ := os.Hostname()
	return func() refresh.Status {
		return refresh.Status{
			Instance: host,
			Records:  a.Catalog.Len(),
			Roads:    len(a.Catalog.RoadNames()),
			Indexed:  a.Indexed(),
		}
	}
}
