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
	"github.com/LukasLeindals/ergonaut/internal/config"
	"github.com/LukasLeindals/ergonaut/internal/logging"
	"github.com/LukasLeindals/ergonaut/internal/metrics"
	"github.com/LukasLeindals/ergonaut/internal/queue"
)

// pumpBuffer is how many consumed events may wait for the worker.
const pumpBuffer = 256

// main runs the Sentinel worker against a broker-backed transport. The bus
// transport has no out-of-process consumer; the api binary runs the worker
// itself in that mode.
func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file (default $SENTINEL_CONFIG)")
	metricsAddr := pflag.String("metrics-addr", ":9091", "address for /metrics, empty to disable")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogFormat, cfg.LogLevel)

	if err := run(cfg, *metricsAddr, logger); err != nil {
		logger.Error("sentinel exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, metricsAddr string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	var (
		consumer queue.Consumer
		closer   func()
	)
	switch cfg.Transport {
	case config.TransportKafka:
		if err := app.EnsureKafkaTopic(ctx, cfg); err != nil {
			return err
		}
		c, err := queue.NewKafkaConsumer(app.KafkaConfig(cfg), logger, m)
		if err != nil {
			return err
		}
		consumer, closer = c, c.Close
	case config.TransportAMQP:
		c, err := queue.NewAMQPConsumer(app.AMQPConfig(cfg), logger, m)
		if err != nil {
			return err
		}
		consumer, closer = c, c.Close
	default:
		return fmt.Errorf("transport %q runs in the api process; set SENTINEL_TRANSPORT to kafka or amqp", cfg.Transport)
	}
	defer closer()

	tr, closeTracker, err := app.OpenTracker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeTracker()

	worker, cache, err := app.NewWorker(cfg, tr, logger, m)
	if err != nil {
		return err
	}
	go cache.Start()
	defer cache.Stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		worker.Run(ctx, queue.Pump(ctx, consumer, pumpBuffer, logger))
		if ctx.Err() == nil {
			return errors.New("event consumer stopped")
		}
		return nil
	})

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	logger.Info("sentinel started", "transport", string(cfg.Transport))
	return g.Wait()
}
