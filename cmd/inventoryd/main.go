package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"inventory/pkg/config"
	"inventory/pkg/item"
	"inventory/pkg/item/offline"
	"inventory/pkg/logger"
	"inventory/pkg/metrics"
	"inventory/pkg/otel"
	"inventory/pkg/store"
)

var log *logger.Logger

// inventoryd opens the process-wide item store and logs every change of the
// inventory until it is interrupted. When INVENTORY_METRICS_ADDR is set the
// Prometheus metrics are served on it at /metrics.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(os.Stderr, logger.LevelError, "inventory", nil).Error(context.Background(), "load config", "error", err)
		os.Exit(1)
	}

	log = logger.New(os.Stdout, cfg.LogLevel, cfg.ServiceName, otel.GetTraceID)
	defer log.Sync()

	if err := run(cfg); err != nil {
		log.Error(context.Background(), "inventoryd stopped", "error", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, shutdown, err := otel.InitTracing(log, cfg.Tracing())
	if err != nil {
		return err
	}
	defer shutdown(context.Background())

	sc := cfg.Store()
	sc.Log = log
	sc.Metrics = metrics.New(prometheus.DefaultRegisterer)

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, prometheus.DefaultGatherer, log); err != nil {
				log.Error(ctx, "metrics endpoint stopped", "error", err)
			}
		}()
	}

	h, err := store.GetInstance(ctx, sc)
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Close(); err != nil {
			log.Error(context.Background(), "close store", "error", err)
		}
	}()

	repo := offline.New(h)
	sub, err := repo.ObserveAllItems(ctx)
	if err != nil {
		return err
	}

	log.Info(ctx, "watching inventory", "location", cfg.StorageLocation, "driver", cfg.StorageDriver)
	for items := range sub.C() {
		logSnapshot(ctx, items)
	}

	log.Info(context.Background(), "shutting down")
	return nil
}

func logSnapshot(ctx context.Context, items []item.Item) {
	var units int
	var value float64
	for _, it := range items {
		units += it.Quantity
		value += it.Price * float64(it.Quantity)
	}
	log.Info(ctx, "inventory snapshot", "items", len(items), "units", units, "value", value)
}
