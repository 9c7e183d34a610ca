package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/coursedesk/payment-service/internal/api"
	"github.com/coursedesk/payment-service/internal/config"
	"github.com/coursedesk/payment-service/internal/gateway"
	"github.com/coursedesk/payment-service/internal/handlers"
	"github.com/coursedesk/payment-service/internal/repository"
	"github.com/coursedesk/payment-service/internal/service"
	"github.com/coursedesk/payment-service/internal/telemetry"
)

func main() {
	// Initialize telemetry
	if err := telemetry.InitTelemetry("payment-service"); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		telemetry.Logger.Fatal("Invalid configuration", zap.Error(err))
	}

	telemetry.Logger.Info("Starting Payment Service")

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize repositories
	orderRepo := repository.NewOrderRepository(db)
	if err := orderRepo.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize orders table", zap.Error(err))
	}
	registrationRepo := repository.NewRegistrationRepository(db)
	if err := registrationRepo.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize course_registrations table", zap.Error(err))
	}

	// Connect to Redis (advisory locks; optional)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.RedisURL,
		})
	}

	// Connect to NATS (confirmation-email dispatch; optional)
	var nc *nats.Conn
	if cfg.NatsURL != "" {
		nc, err = nats.Connect(cfg.NatsURL)
		if err != nil {
			telemetry.Logger.Warn("Failed to connect to NATS, confirmation emails disabled", zap.Error(err))
			nc = nil
		} else {
			defer nc.Close()
		}
	}

	// Connect to Kafka (settled events; optional)
	var kafkaWriter *kafka.Writer
	if cfg.KafkaBrokers != "" {
		kafkaWriter = &kafka.Writer{
			Addr:     kafka.TCP(cfg.KafkaBrokers),
			Topic:    "payment.settled",
			Balancer: &kafka.LeastBytes{},
		}
		defer kafkaWriter.Close()
	}

	// Gateway codec from validated credentials
	codec, err := gateway.NewCodec(cfg.Gateway.HashKey, cfg.Gateway.HashIV)
	if err != nil {
		telemetry.Logger.Fatal("Invalid gateway credentials", zap.Error(err))
	}

	// Reconciliation engine and side-effect dispatcher
	reconciler := service.NewReconciler(orderRepo, registrationRepo, redisClient)
	dispatcher := service.NewDispatcher(nc, kafkaWriter, cfg.NewsletterWebhookURL, cfg.AccountingWebhookURL)
	dispatcher.Start(4)

	// Handlers and router
	notifyHandler := handlers.NewNotifyHandler(codec, reconciler, dispatcher)
	returnHandler := handlers.NewReturnHandler(codec, orderRepo, registrationRepo)
	checkoutHandler := handlers.NewCheckoutHandler(codec, orderRepo, registrationRepo,
		cfg.Gateway.MerchantID, cfg.Gateway.GatewayURL, cfg.SiteBaseURL)
	router := api.NewRouter(notifyHandler, returnHandler, checkoutHandler)

	// Setup HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Payment Service starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Drain queued side effects before exiting
	dispatcher.Close()

	telemetry.Logger.Info("Server exited")
}
