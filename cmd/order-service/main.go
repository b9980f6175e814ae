// @title        Ordenes API
// @version      1.0
// @description  Colocación y cancelación de órdenes con reserva de stock atómica.
// @BasePath     /
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	_ "github.com/MikeMC777/ordenes-stock/docs"
	"github.com/MikeMC777/ordenes-stock/internal/config"
	"github.com/MikeMC777/ordenes-stock/internal/events"
	"github.com/MikeMC777/ordenes-stock/internal/httpx"
	"github.com/MikeMC777/ordenes-stock/internal/observability"
	"github.com/MikeMC777/ordenes-stock/internal/ordering"
	"github.com/MikeMC777/ordenes-stock/internal/storage/postgres"
)

const serviceName = "order-service"

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
		defer func() {
			if err := pub.Close(); err != nil {
				logger.Error("failed to close kafka writer", zap.Error(err))
			}
		}()
		deps.Publisher = pub
		logger.Info("publishing order events", zap.String("broker", cfg.KafkaBroker), zap.String("topic", cfg.KafkaTopic))
	}

	svc, err := ordering.NewService(deps)
	if err != nil {
		logger.Fatal("ordering service", zap.Error(err))
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.OrderRateLimit), cfg.OrderRateBurst)
	srv := &http.Server{
		Addr:              cfg.OrderSvcAddr,
		Handler:           newRouter(svc, logger, limiter, cfg.UnpaidOrderTimeout),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("order-service listening", zap.String("addr", cfg.OrderSvcAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("order-service stopped with error", zap.Error(err))
		return
	}
	logger.Info("order-service stopped")
}

func newRouter(svc orderService, logger *zap.Logger, limiter *rate.Limiter, sweepThreshold time.Duration) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger(logger))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.POST("/orders", httpx.RateLimit(limiter), createOrderHandler(svc))
	r.GET("/orders/customer", listOrdersByCustomerHandler(svc))
	r.GET("/orders/number/:number", getOrderByNumberHandler(svc))
	r.GET("/orders/:id", getOrderHandler(svc))
	r.PUT("/orders/:id/status", updateOrderStatusHandler(svc))
	r.POST("/orders/:id/cancel", cancelOrderHandler(svc))

	r.POST("/admin/orders/sweep", sweepUnpaidHandler(svc, sweepThreshold))
	return r
}
