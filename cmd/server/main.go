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

	"course-service/config"
	"course-service/internal/api"
	"course-service/internal/auth"
	"course-service/internal/broker"
	"course-service/internal/chat"
	"course-service/internal/gateway"
	"course-service/internal/redisclient"
	"course-service/internal/service"
	"course-service/internal/store"
	"course-service/internal/transcribe"
	"course-service/internal/util"
	"course-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, "course-service", cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting course service", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer("course-service", cfg.Observ.JaegerEndpoint, cfg.Observ.TracingEnabled)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	checks := map[string]api.Checker{}

	var (
		repo service.Repository
		keys service.KeyStore
	)
	switch cfg.Database.Driver {
	case "memory":
		memory := store.NewMemory()
		repo, keys = memory, memory
		logger.Warn("Using in-memory store; data is lost on restart")
	default:
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		if cfg.Database.Migrate {
			if err := db.Migrate(context.Background()); err != nil {
				logger.Fatal("Failed to apply schema", zap.Error(err))
			}
		}
		repo = db
		checks["database"] = db
		logger.Info("Database connected")

		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		keys = redisClient
		checks["redis"] = redisClient
		logger.Info("Redis connected")
	}

	notificationService := service.NewNotificationService(
		repo, keys, cfg.Business.NotificationListLimit, cfg.Business.WebhookDedupTTL)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var (
		publisher          broker.Publisher
		notificationWorker *worker.NotificationWorker
	)
	switch cfg.Kafka.Transport {
	case "local":
		notificationWorker = worker.NewNotificationWorker(nil, notificationService)
		publisher = broker.NewLocalPublisher(notificationWorker.Handler())
		logger.Info("Delivering events in-process")
	default:
		publisher = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicCourseEvents)
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicCourseEvents, cfg.Kafka.ConsumerGroup)
		notificationWorker = worker.NewNotificationWorker(consumer, notificationService)
		go func() {
			if err := notificationWorker.Start(workerCtx); err != nil && err != context.Canceled {
				logger.Error("Notification worker error", zap.Error(err))
			}
		}()
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	}
	eventPublisher := broker.NewEventPublisher(publisher)

	var transcriber transcribe.Transcriber
	if cfg.Transcribe.URL != "" {
		transcriber = transcribe.NewClient(cfg.Transcribe.URL, cfg.Transcribe.APIKey, cfg.Transcribe.RequestsPerSecond)
	} else {
		logger.Warn("TRANSCRIBE_URL not set; videos get a placeholder transcript")
	}

	hub := chat.NewHub()
	background := service.NewBackground(cfg.Business.NotificationTimeout)

	services := api.Services{
		Payments: service.NewPaymentService(
			repo, keys,
			gateway.NewHTTPClient(cfg.Gateway.BaseURL, cfg.Gateway.SecretKey),
			eventPublisher, background,
			service.PaymentConfig{
				Currency:        cfg.Gateway.Currency,
				RedirectURL:     cfg.Gateway.SuccessRedirectURL,
				VerifyWait:      cfg.Business.VerifyEnrollmentWait,
				LinkLockTTL:     cfg.Business.PaymentLinkLockTTL,
				WebhookDedupTTL: cfg.Business.WebhookDedupTTL,
			}),
		Enrollments:   service.NewEnrollmentService(repo, eventPublisher, background),
		Notifications: notificationService,
		Chat:          service.NewChatService(repo, hub, eventPublisher, background),
		Courses:       service.NewCourseService(repo, transcriber, eventPublisher, background),
	}

	if cfg.Gateway.WebhookSecret == "" {
		logger.Warn("PAYMENT_WEBHOOK_SECRET not set; webhook signatures are not verified")
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(services, hub, auth.NewValidator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer), api.Options{
		WebhookSecret:  cfg.Gateway.WebhookSecret,
		AllowedOrigins: cfg.Business.ChatAllowedOrigins,
		Checks:         checks,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
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

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// websocket connections are hijacked and not covered by Shutdown
	hub.Close()
	background.Wait()

	workerCancel()
	if err := notificationWorker.Stop(); err != nil {
		logger.Error("Error stopping notification worker", zap.Error(err))
	}
	if err := eventPublisher.Close(); err != nil {
		logger.Error("Error closing event publisher", zap.Error(err))
	}

	logger.Info("Server exited")
}
