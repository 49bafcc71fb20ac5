// Command apiserver serves matched-molecular-pair runs over HTTP and,
// optionally, gRPC and a Kafka request topic.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/KeyIP-MMP/internal/bootstrap"
	"github.com/turtacn/KeyIP-MMP/internal/config"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	grpciface "github.com/turtacn/KeyIP-MMP/internal/interfaces/grpc"
	httpiface "github.com/turtacn/KeyIP-MMP/internal/interfaces/http"
	"github.com/turtacn/KeyIP-MMP/internal/interfaces/http/handlers"
)

var version = "dev"

const startupTimeout = time.Minute

func main() {
	configPath := flag.String("config", "", "path to configuration file (environment only when empty)")
	httpPort := flag.Int("http-port", 0, "HTTP port (overrides server.port)")
	grpcPort := flag.Int("grpc-port", 0, "gRPC port (overrides grpc.port)")
	flag.Parse()

	cfg, err := config.LoadOptional(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *httpPort > 0 {
		cfg.Server.Port = *httpPort
	}
	if *grpcPort > 0 {
		cfg.GRPC.Port = *grpcPort
	}

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
		logger.Error("apiserver exited", logging.Err(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	logger.Info("starting mmp apiserver",
		logging.String("version", version),
		logging.Int("http_port", cfg.Server.Port),
		logging.Bool("grpc", cfg.GRPC.Enabled),
		logging.Bool("consume_requests", cfg.Kafka.ConsumeRequests))

	initCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	infra, err := bootstrap.New(initCtx, cfg, logger)
	cancel()
	if err != nil {
		return err
	}
	defer infra.Close()

	svc := infra.Service()
	metrics := infra.Metrics()

	router := httpiface.NewRouter(httpiface.RouterConfig{
		Mode:           cfg.Server.Mode,
		Logger:         logger,
		Health:         handlers.NewHealthHandler(version, infra.HealthCheckers()...),
		Run:            handlers.NewRunHandler(svc, cfg.Server.MaxStructures, logger),
		Query:          infra.QueryHandler(),
		MetricsHandler: infra.MetricsHandler(),
		Recorder:       metrics,
		MaxBodySize:    cfg.Server.MaxBodySize,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
	})
	httpSrv := httpiface.NewServer(cfg.Server, router, logger)

	var grpcSrv *grpciface.Server
	if cfg.GRPC.Enabled {
		grpcSrv, err = grpciface.NewServer(cfg.GRPC,
			grpciface.WithLogger(logger),
			grpciface.WithRecorder(metrics),
			grpciface.WithGracefulTimeout(cfg.Server.ShutdownTimeout))
		if err != nil {
			return err
		}
		grpciface.NewRunService(svc, cfg.Server.MaxStructures, logger).Register(grpcSrv)
	}

	var consumer *kafka.Consumer
	if cfg.Kafka.ConsumeRequests {
		consumer, err = kafka.NewConsumer(cfg.Kafka, logger)
		if err != nil {
			return err
		}
		consumer.Subscribe(cfg.Kafka.RequestTopic, kafka.NewRunRequestHandler(svc.Run, logger))
		if err := consumer.Start(ctx); err != nil {
			_ = consumer.Close()
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpSrv.Start)
	if grpcSrv != nil {
		g.Go(grpcSrv.Start)
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if consumer != nil {
			errs = append(errs, consumer.Close())
		}
		if grpcSrv != nil {
			errs = append(errs, grpcSrv.Stop(shutdownCtx))
		}
		errs = append(errs, httpSrv.Stop(shutdownCtx))
		return errors.Join(errs...)
	})

	err = g.Wait()
	logger.Info("apiserver stopped")
	return err
}
