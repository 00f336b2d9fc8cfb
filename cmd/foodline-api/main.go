// README: Entry point; loads config, wires services, starts the HTTP server and background workers.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"foodline/internal/config"
	httptransport "foodline/internal/http"
	"foodline/internal/infra"
	"foodline/internal/modules/directory"
	"foodline/internal/modules/events"
	"foodline/internal/modules/notification"
	"foodline/internal/modules/order"
	"foodline/internal/modules/pricing"
)

const shutdownGrace = 15 * time.Second

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := infra.NewLogger("foodline-api", cfg.LogLevel)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		log.Fatalf("auth init: %v", err)
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		log.Fatal(err)
	}
	defer redisClient.Close()

	directoryStore := directory.NewStore(dbPool)
	directorySvc := directory.NewService(directoryStore, logger)
	pricingSvc := pricing.NewService(cfg.Pricing)

	registry := notification.NewRegistry()
	var sink notification.Sink = notification.NewDispatcher(registry, directoryStore, logger)
	stopRelay := func() {}
	if cfg.Notify.Relay == "redis" {
		relay := notification.NewRedisRelay(redisClient, cfg.Notify.Channel, sink, logger)
		stopRelay = runRelay(relay, logger)
		sink = relay
	}
	outbox := notification.NewOutbox(sink, cfg.Notify.OutboxSize, cfg.Notify.OutboxWorkers, logger)
	outbox.Start(ctx)

	var publisher events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, 256, logger)
		kp.Start()
		defer kp.Close()
		publisher = kp
	}

	orderSvc := order.NewService(order.Deps{
		Repo:      order.NewStore(dbPool),
		Directory: directoryStore,
		Pricing:   pricingSvc,
		Notifier:  outbox,
		Events:    publisher,
		Cache:     order.NewRedisStatusCache(redisClient),
		Log:       logger,
	})

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Order:          orderSvc,
		Availability:   directorySvc,
		Registry:       registry,
		Verifier:       verifier,
		Log:            logger,
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		RateLimitRPS:   cfg.HTTP.RateLimitRPS,
		RateLimitBurst: cfg.HTTP.RateLimitBurst,
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", slog.String("action", "shutdown"), slog.Any("error", err))
		}
	}()

	logger.Info("server listening", slog.String("action", "startup"), slog.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}

	stopNotifications(outbox, stopRelay, registry)
	logger.Info("server stopped", slog.String("action", "shutdown"))
}

type relayRunner interface {
	Run(ctx context.Context) error
}

// runRelay subscribes on a context of its own so the subscriber outlives the
// signal context. The returned func cancels it and waits for Run to return.
func runRelay(relay relayRunner, logger *slog.Logger) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("notification relay stopped", slog.String("action", "relay_run"), slog.Any("error", err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// stopNotifications drains the outbox while the relay subscriber still runs,
// then stops the subscriber and drops the hijacked sockets Shutdown does not track.
func stopNotifications(outbox *notification.Outbox, stopRelay func(), registry *notification.Registry) {
	outbox.Close()
	stopRelay()
	registry.Close()
}

func newVerifier(ctx context.Context, cfg config.Config) (infra.TokenVerifier, error) {
	if cfg.Auth.JWTSecret != "" {
		return infra.NewJWTVerifier(cfg.Auth.JWTSecret)
	}
	return infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
}
