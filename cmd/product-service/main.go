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
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/MikeMC777/ordenes-stock/docs"
	"github.com/MikeMC777/ordenes-stock/internal/catalog"
	"github.com/MikeMC777/ordenes-stock/internal/config"
	"github.com/MikeMC777/ordenes-stock/internal/httpx"
	"github.com/MikeMC777/ordenes-stock/internal/observability"
	"github.com/MikeMC777/ordenes-stock/internal/storage/postgres"
)

const serviceName = "product-service"

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

	svc := catalog.NewService(postgres.NewUnitOfWork(pool), logger)
	srv := &http.Server{
		Addr:              cfg.ProductSvcAddr,
		Handler:           newRouter(svc, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("product-service listening", zap.String("addr", cfg.ProductSvcAddr))
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
		logger.Error("product-service stopped with error", zap.Error(err))
		return
	}
	logger.Info("product-service stopped")
}

func newRouter(svc catalogService, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger(logger))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/products", listOnlyHandler(svc))
	r.GET("/products/search", searchHandler(svc))
	r.GET("/products/low-stock", lowStockHandler(svc))
	r.GET("/products/:id", getProductHandler(svc))
	r.POST("/products", createProductHandler(svc))
	r.PUT("/products/:id", updateProductHandler(svc))
	r.PATCH("/products/:id/stock", adjustStockHandler(svc))
	r.DELETE("/products/:id", deleteProductHandler(svc))
	return r
}
