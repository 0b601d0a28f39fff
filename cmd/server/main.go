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

	"storefront-checkout/config"
	"storefront-checkout/internal/api"
	"storefront-checkout/internal/broker"
	"storefront-checkout/internal/payu"
	"storefront-checkout/internal/redisclient"
	"storefront-checkout/internal/service"
	"storefront-checkout/internal/store"
	"storefront-checkout/internal/util"
	"storefront-checkout/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront checkout", zap.String("env", cfg.Server.Env))

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Refusing to start with sandbox settings", zap.Error(err))
	}

	tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint, cfg.Server.Env)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	algo, err := payu.ParseAlgorithm(cfg.PayU.SignatureAlgo)
	if err != nil {
		logger.Fatal("Invalid PayU configuration", zap.Error(err))
	}
	payuCfg := payu.Config{
		MerchantID:      cfg.PayU.MerchantID,
		AccountID:       cfg.PayU.AccountID,
		APIKey:          cfg.PayU.APIKey,
		GatewayURL:      cfg.PayU.GatewayURL,
		ResponseURL:     cfg.PayU.ResponseURL,
		ConfirmationURL: cfg.PayU.ConfirmationURL,
		Test:            cfg.PayU.Test,
		Algorithm:       algo,
		ReferencePrefix: cfg.PayU.ReferencePrefix,
		Description:     cfg.PayU.Description,
	}
	if err := payuCfg.Validate(); err != nil {
		logger.Fatal("Invalid PayU configuration", zap.Error(err))
	}

	shipping, err := decimal.NewFromString(cfg.Business.ShippingFee)
	if err != nil || shipping.IsNegative() {
		logger.Fatal("Invalid SHIPPING_FEE", zap.String("value", cfg.Business.ShippingFee))
	}

	db, err := store.NewStore(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	var (
		idem   service.IdempotencyStore
		locker service.Locker
	)
	if cfg.Redis.Enabled {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("Redis unavailable, running without idempotency keys and confirmation locks", zap.Error(err))
		} else {
			defer redisClient.Close()
			idem, locker = redisClient, redisClient
			logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
		}
	}

	var events service.EventPublisher
	var producer *broker.Producer
	if cfg.Kafka.Enabled {
		producer = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer producer.Close()
		events = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	builder := payu.NewBuilder(payuCfg)
	orderService := service.NewOrderService(db, events, idem, service.OrderOptions{
		Timeout:                  time.Duration(cfg.Business.OrderTimeoutSeconds) * time.Second,
		Currency:                 cfg.Business.Currency,
		CreatePaymentPlaceholder: cfg.Business.CreatePaymentPlaceholder,
		IdempotencyTTL:           time.Duration(cfg.Business.IdempotencyTTLSeconds) * time.Second,
	})
	paymentService := service.NewPaymentService(db, builder.Signer(), builder.MerchantID(), events, locker,
		time.Duration(cfg.Business.ConfirmLockSeconds)*time.Second)
	checkoutService := service.NewCheckoutService(service.NewCartAssembler(db, shipping), orderService, builder)
	inventoryService := service.NewInventoryService(db)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var stockWorker *worker.StockWorker
	if cfg.Kafka.Enabled {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
		stockWorker = worker.NewStockWorker(consumer, inventoryService)
		go func() {
			if err := stockWorker.Start(workerCtx); err != nil && err != context.Canceled {
				logger.Error("Stock worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(checkoutService, orderService, paymentService, db, api.Options{
		FrontendURL: cfg.Server.FrontendURL,
		JWTSecret:   cfg.Auth.JWTSecret,
		AdminToken:  cfg.Auth.AdminToken,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if stockWorker != nil {
		if err := stockWorker.Stop(); err != nil {
			logger.Warn("Error stopping stock worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
