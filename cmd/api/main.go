package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/LukasLeindals/ergonaut/internal/app"
	"github.com/LukasLeindals/ergonaut/internal/bus"
	"github.com/LukasLeindals/ergonaut/internal/config"
	"github.com/LukasLeindals/ergonaut/internal/httpserver"
	"github.com/LukasLeindals/ergonaut/internal/ingest"
	"github.com/LukasLeindals/ergonaut/internal/logging"
	"github.com/LukasLeindals/ergonaut/internal/metrics"
	"github.com/LukasLeindals/ergonaut/internal/queue"
)

const shutdownTimeout = 10 * time.Second

// main boots the ingestion API: config → tracker → transport → HTTP server.
// With the bus transport the Sentinel worker runs in this process too.
func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file (default $SENTINEL_CONFIG)")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogFormat, cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	tr, closeTracker, err := app.OpenTracker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeTracker()

	g, ctx := errgroup.WithContext(ctx)

	var (
		publisher ingest.Publisher
		hub       *bus.Hub
		closers   []func()
	)
	switch cfg.Transport {
	case config.TransportKafka:
		if err := app.EnsureKafkaTopic(ctx, cfg); err != nil {
			return err
		}
		p, err := queue.NewKafkaProducer(app.KafkaConfig(cfg), logger, m)
		if err != nil {
			return err
		}
		publisher, closers = p, append(closers, p.Close)
	case config.TransportAMQP:
		p, err := queue.NewAMQPProducer(app.AMQPConfig(cfg), logger, m)
		if err != nil {
			return err
		}
		publisher, closers = p, append(closers, p.Close)
	default:
		hub = bus.New(logger, bus.WithMetrics(m))
		closers = append(closers, hub.Close)
		publisher = hub

		worker, cache, err := app.NewWorker(cfg, tr, logger, m)
		if err != nil {
			return err
		}
		sub, err := hub.Subscribe("sentinel")
		if err != nil {
			return err
		}
		go cache.Start()
		closers = append(closers, cache.Stop)

		g.Go(func() error {
			worker.Run(ctx, sub.Events())
			return nil
		})
	}

	router := httpserver.NewRouter(httpserver.Deps{
		APIKey:   cfg.IngestAPIKey,
		Pipeline: ingest.NewPipeline(publisher, logger, m),
		Tracker:  tr,
		Hub:      hub,
		Metrics:  m,
		Logger:   logger,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("server started", "addr", cfg.HTTPAddr, "transport", string(cfg.Transport))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		return err
	})

	return g.Wait()
}
