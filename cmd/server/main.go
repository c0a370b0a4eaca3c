package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/staysure/service-reservation/internal/application"
	"github.com/staysure/service-reservation/internal/config"
	reservationEvents "github.com/staysure/service-reservation/internal/events"
	"github.com/staysure/service-reservation/internal/handler"
	"github.com/staysure/service-reservation/internal/platform/auth"
	"github.com/staysure/service-reservation/internal/platform/health"
	"github.com/staysure/service-reservation/internal/platform/kafka"
	"github.com/staysure/service-reservation/internal/platform/logger"
	"github.com/staysure/service-reservation/internal/platform/middleware"
	"github.com/staysure/service-reservation/internal/platform/tracing"
)

const serviceName = "service-reservation"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting "+serviceName,
		zap.String("port", cfg.Port),
		zap.String("storage", cfg.StorageDriver),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, cfg.TracingConfig.Enabled, cfg.TracingConfig.Endpoint, serviceName, cfg.AppEnv, log)
	if err != nil {
		log.Fatal("failed to initialize tracing", zap.Error(err))
	}

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open booking store", zap.Error(err))
	}
	defer closeStore()

	jwtManager := auth.NewJWTManager(cfg.JWTConfig.Secret, 15*time.Minute)

	// Booking events are published best effort; see BookingService.publishEvent.
	kafkaProducer := kafka.NewProducer(cfg.KafkaConfig.Brokers, log)
	defer func() { _ = kafkaProducer.Close() }()

	bookingService := application.NewBookingService(
		store,
		kafkaProducer,
		log,
		application.WithEscrowCallerCheck(cfg.EnforceEscrowCaller),
	)

	// Escrow events drive the lifecycle of pending and confirmed bookings.
	escrowConsumer := reservationEvents.NewEscrowEventConsumer(
		cfg.KafkaConfig.Brokers,
		cfg.ConsumerGroup(serviceName),
		bookingService,
		log,
	)
	defer func() { _ = escrowConsumer.Close() }()

	go func() {
		log.Info("starting escrow event consumer")
		if err := escrowConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("escrow event consumer error", zap.Error(err))
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	health.NewHandler(store, serviceName).RegisterRoutes(router)

	handler.NewBookingHandler(bookingService).RegisterRoutes(&router.RouterGroup, jwtManager)
	handler.NewPropertyHandler(bookingService).RegisterRoutes(&router.RouterGroup, jwtManager)
	handler.NewAdminBookingHandler(bookingService).RegisterRoutes(&router.RouterGroup, jwtManager)

	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      otelhttp.NewHandler(router, serviceName),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down " + serviceName + "...")

	// Stops the escrow consumer loop.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("failed to flush traces", zap.Error(err))
	}

	log.Info(serviceName + " stopped")
}
