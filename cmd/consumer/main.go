package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/streadway/amqp"

	"github.com/tonymans33/microservices-rabbitmq/services/notification/internal/config"
	"github.com/tonymans33/microservices-rabbitmq/services/notification/internal/consumer"
	"github.com/tonymans33/microservices-rabbitmq/services/notification/internal/models"
	"github.com/tonymans33/microservices-rabbitmq/services/notification/internal/repository"
	"github.com/tonymans33/microservices-rabbitmq/services/notification/internal/routes"
	"github.com/tonymans33/microservices-rabbitmq/services/notification/internal/services"
	"github.com/tonymans33/microservices-rabbitmq/services/notification/pkg/logger"
	"github.com/tonymans33/microservices-rabbitmq/services/notification/pkg/metrics"
	"github.com/tonymans33/microservices-rabbitmq/services/notification/pkg/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logr := logger.New(cfg.LogLevel, cfg.AppName)
	logr.Info("starting notification service")

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 15*time.Second)
	mongoClient, err := repository.Connect(connectCtx, cfg.MongoURI)
	cancelConnect()
	if err != nil {
		logr.Error("failed to connect mongodb", slog.Any("error", err))
		os.Exit(1)
	}

	store := repository.NewNotificationStore(mongoClient.Database(cfg.MongoDatabase), cfg.MongoCollection)
	if err := store.EnsureIndexes(context.Background()); err != nil {
		logr.Warn("failed to ensure indexes", slog.Any("error", err))
	}

	var webhook services.WebhookSender
	if cfg.DiscordWebhookURL != "" {
		webhook = services.NewDiscordClient(cfg.DiscordWebhookURL, cfg.WebhookTimeout, cfg.WebhookMaxRetries, logr)
	} else {
		logr.Warn("discord webhook not configured, webhook channel disabled")
	}

	var mailer services.Mailer
	if cfg.EmailServiceURL != "" {
		mailer = services.NewEmailClient(cfg.EmailServiceURL, cfg.EmailTimeout)
	}

	metricsCollector := metrics.New()
	dispatcher := services.NewDispatcher(store, webhook, mailer, metricsCollector, logr, cfg.SummaryEvery)

	bindings := []consumer.QueueBinding{
		{Queue: cfg.RegistrationQueue, RoutingKey: models.EventUserRegistered},
		{Queue: cfg.DepositQueue, RoutingKey: models.EventWalletDeposit},
	}
	cons := consumer.New(
		func() (*amqp.Connection, error) { return amqp.Dial(cfg.RabbitURL) },
		cfg.Exchange,
		bindings,
		dispatcher,
		metricsCollector,
		logr,
		retry.Config{
			MaxAttempts:    cfg.ReconnectAttempts,
			InitialBackoff: cfg.ReconnectBackoff,
			MaxBackoff:     cfg.ReconnectMaxDelay,
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpSrv := startHTTPServer(cfg.HTTPPort, store, metricsCollector, logr)

	exitCode := 0
	if err := cons.Start(ctx); err != nil {
		logr.Error("consumer exited", slog.Any("error", err))
		exitCode = 1
	}

	shutdownHTTP(httpSrv, logr)

	disconnectCtx, cancelDisconnect := context.WithTimeout(context.Background(), 5*time.Second)
	if err := mongoClient.Disconnect(disconnectCtx); err != nil {
		logr.Error("failed to disconnect mongodb", slog.Any("error", err))
	}
	cancelDisconnect()

	logr.Info("notification service stopped")
	os.Exit(exitCode)
}

func startHTTPServer(port string, store routes.StatsSource, m *metrics.Metrics, logr *slog.Logger) *http.Server {
	if port == "" {
		port = "3000"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: routes.NewRouter(store, m, time.Now()),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Error("http server error", slog.Any("error", err))
		}
	}()
	return srv
}

func shutdownHTTP(srv *http.Server, logr *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("failed to shutdown http server", slog.Any("error", err))
	}
}
