// Command worker executes run requests published to the Kafka request topic.
// It serves /healthz, /readyz and /metrics on its own port and publishes
// results to the same sinks as the API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/KeyIP-MMP/internal/bootstrap"
	"github.com/turtacn/KeyIP-MMP/internal/config"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	httpiface "github.com/turtacn/KeyIP-MMP/internal/interfaces/http"
	"github.com/turtacn/KeyIP-MMP/internal/interfaces/http/handlers"
)

var version = "dev"

const (
	defaultHealthPort = 8081
	startupTimeout    = time.Minute
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (environment only when empty)")
	workers := flag.Int("workers", 0, "fragmentation concurrency per run (default: worker.concurrency)")
	healthPort := flag.Int("health-port", defaultHealthPort, "port of the probe and metrics endpoint")
	flag.Parse()

	cfg, err := config.LoadOptional(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *workers > 0 {
		cfg.Worker.Concurrency = *workers
	}
	cfg.Server.Port = *healthPort

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:            cfg.Log.Level,
		Format:           cfg.Log.Format,
		OutputPaths:      cfg.Log.OutputPaths,
		ErrorOutputPaths: cfg.Log.ErrorOutputPaths,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker exited", logging.Err(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	if err := kafka.ValidateConsumerConfig(cfg.Kafka); err != nil {
		return err
	}
	logger.Info("starting mmp worker",
		logging.String("version", version),
		logging.String("topic", cfg.Kafka.RequestTopic),
		logging.String("group", cfg.Kafka.GroupID),
		logging.Int("concurrency", cfg.Worker.Concurrency),
		logging.Int("cpus", runtime.NumCPU()))

	initCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	infra, err := bootstrap.New(initCtx, cfg, logger)
	cancel()
	if err != nil {
		return err
	}
	defer infra.Close()

	svc := infra.Service()

	consumer, err := kafka.NewConsumer(cfg.Kafka, logger)
	if err != nil {
		return err
	}
	consumer.Subscribe(cfg.Kafka.RequestTopic, kafka.NewRunRequestHandler(svc.Run, logger))

	probes := httpiface.NewServer(cfg.Server, httpiface.NewRouter(httpiface.RouterConfig{
		Mode:           "release",
		Logger:         logger,
		Health:         handlers.NewHealthHandler(version, infra.HealthCheckers()...),
		MetricsHandler: infra.MetricsHandler(),
	}), logger)

	if err := consumer.Start(ctx); err != nil {
		_ = consumer.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(probes.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Close waits for the consume loop before the probes go away.
		cerr := consumer.Close()
		m := consumer.Metrics()
		logger.Info("consumer stopped",
			logging.Int64("processed", m.MessagesProcessed.Load()),
			logging.Int64("failed", m.MessagesFailed.Load()),
			logging.Int64("dead_lettered", m.MessagesDeadLettered.Load()))
		return errors.Join(cerr, probes.Stop(shutdownCtx))
	})

	err = g.Wait()
	logger.Info("worker stopped")
	return err
}
