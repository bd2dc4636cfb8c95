// Command refresh rescans the data directory on an interval, mirrors new
// road versions to Neo4j and announces them on NATS so API replicas can
// rebuild their road-name index.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WessleyAI/roadwise/engine/app"
	"github.com/WessleyAI/roadwise/engine/refresh"
	"github.com/WessleyAI/roadwise/pkg/config"
	"github.com/WessleyAI/roadwise/pkg/fn"
	"github.com/WessleyAI/roadwise/pkg/resilience"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to roadwise.{yaml,toml,json}")
		interval   = flag.Duration("interval", 0, "scan interval (default from config)")
		once       = flag.Bool("once", false, "scan once and exit")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}
	if *interval > 0 {
		cfg.Refresh.Interval = *interval
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *once, logger); err != nil && ctx.Err() == nil {
		logger.Error("refresh exited with error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, once bool, logger *slog.Logger) error {
	a, err := app.New(ctx, cfg, app.Options{Services: true}, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	deps := refresh.Deps{
		Catalog: a.Catalog,
		Conn:    a.NATS,
		Retry:   fn.DefaultRetry,
		Metrics: a.Metrics,
		Logger:  logger,
	}
	if a.Graph != nil {
		deps.Graph = a.Graph
		deps.Breaker = resilience.NewBreaker(resilience.BreakerOpts{
			Name: "neo4j",
			OnStateChange: func(name string, from, to resilience.State) {
				logger.Warn("breaker state change", "breaker", name, "from", from, "to", to)
			},
		})
		// Records found before this process started are mirrored once.
		if err := a.Graph.Mirror(ctx, a.Catalog.Records()); err != nil {
			logger.Warn("initial graph mirror failed", "err", err)
		} else {
			logger.Info("graph mirrored", "records", a.Catalog.Len())
		}
	}
	r := refresh.New(deps)

	if once {
		d, err := r.Scan(ctx)
		if err != nil {
			return err
		}
		logger.Info("scan complete", "records", len(d.Records), "roads", len(d.Roads))
		return nil
	}

	if cfg.Metrics.Port > 0 {
		a.Registry.CollectRuntime(ctx, "roadwise_refresh", 15*time.Second)
		a.Registry.ServeAsync(ctx, cfg.Metrics.Port, logger)
	}
	logger.Info("watching for new road versions", "dir", cfg.DataDir, "interval", cfg.Refresh.Interval)
	return r.Run(ctx, cfg.Refresh.Interval)
}
