package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/MikeMC777/ordenes-stock/internal/config"
	"github.com/MikeMC777/ordenes-stock/internal/events"
	"github.com/MikeMC777/ordenes-stock/internal/lock"
	"github.com/MikeMC777/ordenes-stock/internal/observability"
	"github.com/MikeMC777/ordenes-stock/internal/ordering"
	"github.com/MikeMC777/ordenes-stock/internal/storage/postgres"
)

const serviceName = "order-reaper"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	otelShutdown, err := observability.Setup(ctx, observability.Settings{
		ServiceName: serviceName,
		Endpoint:    cfg.OtelEndpoint,
		AuthHeader:  cfg.OtelAuthHeader,
	})
	if err != nil {
		log.Printf("[otel] partial setup: %v", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	logger := observability.NewLogger(serviceName, cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	pool, err := postgres.Open(ctx, cfg.PostgresDSN, cfg.DBMaxConns)
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	deps := ordering.Deps{
		UnitOfWork: postgres.NewUnitOfWork(pool),
		Logger:     logger,
		MaxRetries: cfg.TxMaxRetries,
	}
	if cfg.KafkaBroker != "" {
		w, err := events.NewWriter(cfg.KafkaBroker, cfg.KafkaTopic, serviceName, otel.GetTracerProvider())
		if err != nil {
			logger.Fatal("kafka writer", zap.Error(err))
		}
		pub := events.NewKafkaPublisher(w, logger)
		defer func() { _ = pub.Close() }()
		deps.Publisher = pub
	}
	svc, err := ordering.NewService(deps)
	if err != nil {
		logger.Fatal("ordering service", zap.Error(err))
	}

	rcfg := ordering.ReaperConfig{
		Interval:  cfg.ReaperInterval,
		Threshold: cfg.UnpaidOrderTimeout,
		LeaseTTL:  cfg.ReaperLeaseTTL,
		Logger:    logger,
	}
	if cfg.RedisURL != "" {
		client, err := lock.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis unavailable", zap.Error(err))
		}
		defer func() { _ = client.Close() }()
		rcfg.Locker = lock.NewRedisLocker(client)
		logger.Info("sweep lease enabled")
	}
	reaper := ordering.NewReaper(svc, rcfg)

	l, err := net.Listen("tcp", cfg.ReaperGRPCAddr)
	if err != nil {
		logger.Fatal("listen", zap.String("addr", cfg.ReaperGRPCAddr), zap.Error(err))
	}
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("health server listening", zap.String("addr", cfg.ReaperGRPCAddr))
		return gs.Serve(l)
	})
	g.Go(func() error {
		return reaper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		hs.Shutdown()
		gs.GracefulStop()
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error("reaper stopped with error", zap.Error(err))
		return
	}
	logger.Info("reaper stopped")
}
