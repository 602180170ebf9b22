package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/broker"
	"storefront/internal/fiscal"
	"storefront/internal/geo"
	"storefront/internal/rates"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront service")

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint, cfg.Server.Env)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(context.Background()); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicEvents))

	eventPublisher := broker.NewEventPublisher(producer)

	rateSource := rates.NewCachedSource(
		rates.NewBNRSource(cfg.Integrations.BNRURL, cfg.Integrations.BNRTimeout),
		redisClient,
		cfg.Business.RateCacheTTL,
	)
	vies := fiscal.NewVIESClient(cfg.Integrations.VIESURL, cfg.Integrations.VIESTimeout)
	detector := geo.NewDetector(db, cfg.Business.GeoCountryHeader, cfg.Business.DefaultCountryCode)

	stockCache := service.NewStockCache(db, redisClient)
	if cfg.Business.StockCacheSyncOnStartup {
		if err := stockCache.SyncToRedis(context.Background()); err != nil {
			logger.Warn("Failed to sync stock to Redis", zap.Error(err))
		}
	}

	services := api.Services{
		Addresses: service.NewAddressService(db),
		Orders:    service.NewOrderService(db, rateSource, eventPublisher, cfg.Business.HomeCountryCode),
		Queries:   service.NewOrderQueryService(db, cfg.Business.DefaultPerPage),
		Returns: service.NewReturnService(db, redisClient, eventPublisher, service.ReturnServiceConfig{
			StrictTransitions: cfg.Business.StrictReturnTransitions,
			IdempotencyTTL:    cfg.Business.ReturnIdempotencyTTL,
			DefaultPerPage:    cfg.Business.DefaultPerPage,
		}),
		Company:   service.NewCompanyService(db, vies, cfg.Business.HomeCountryCode),
		Locations: service.NewLocationService(db, detector),
		Stock:     stockCache,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	stockConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
	stockWorker := worker.NewStockCacheWorker(stockConsumer, stockCache)
	go func() {
		if err := stockWorker.Start(workerCtx); err != nil {
			logger.Error("Stock cache worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(services, map[string]api.Pinger{
		"postgres": db,
		"redis":    redisClient,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := stockWorker.Stop(); err != nil {
		logger.Warn("Stock cache worker did not stop cleanly", zap.Error(err))
	}

	logger.Info("Server exited")
}
