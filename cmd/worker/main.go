package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/notify-worker/internal/backoff"
	"github.com/kursadbilgin/notify-worker/internal/channel"
	"github.com/kursadbilgin/notify-worker/internal/config"
	"github.com/kursadbilgin/notify-worker/internal/domain"
	"github.com/kursadbilgin/notify-worker/internal/handler"
	"github.com/kursadbilgin/notify-worker/internal/infra/postgresql"
	"github.com/kursadbilgin/notify-worker/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/notify-worker/internal/infra/redis"
	"github.com/kursadbilgin/notify-worker/internal/observability"
	"github.com/kursadbilgin/notify-worker/internal/queue"
	"github.com/kursadbilgin/notify-worker/internal/repository"
	"github.com/kursadbilgin/notify-worker/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("worker exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	channelLimits := map[domain.Channel]int{
		domain.ChannelEmail: cfg.RateLimitEmailPerSec,
		domain.ChannelSMS:   cfg.RateLimitSMSPerSec,
	}
	limiter, err := infraredis.NewSendLimiter(rdb, cfg.RateLimitPerSec, channelLimits)
	if err != nil {
		return fmt.Errorf("rate limiter initialization failed: %w", err)
	}

	broker, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer broker.Close() //nolint:errcheck

	metrics := observability.NewMetrics()

	publisher := queue.NewRabbitMQPublisher(broker)
	consumer := queue.NewRabbitMQConsumer(broker, publisher, logger)
	consumer.SetMetrics(metrics)

	emailAdapter, err := channel.NewEmailAdapter(cfg.SMTPServer, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	if err != nil {
		return fmt.Errorf("email adapter initialization failed: %w", err)
	}
	adapters := channel.Registry{
		domain.ChannelEmail: emailAdapter,
		domain.ChannelSMS:   channel.NewSMSAdapter(logger),
		domain.ChannelInApp: channel.NewInAppAdapter(),
	}

	policy := backoff.NewPolicy(cfg.MaxDeliveryAttempts, time.Duration(cfg.RetryBaseDelayMs)*time.Millisecond)

	users := repository.NewGormUserRepo(db)
	notifications := repository.NewGormNotificationRepo(db)
	attempts := repository.NewGormAttemptRepo(db)

	dispatcher, err := service.NewDispatcher(users, adapters, policy, limiter, logger)
	if err != nil {
		return fmt.Errorf("dispatcher initialization failed: %w", err)
	}
	dispatcher.SetMetrics(metrics)

	recorder, err := service.NewStatusRecorder(notifications, attempts, logger)
	if err != nil {
		return fmt.Errorf("recorder initialization failed: %w", err)
	}

	worker, err := service.NewWorkerService(consumer, dispatcher, recorder, publisher, cfg.WorkerConcurrency, logger)
	if err != nil {
		return fmt.Errorf("worker initialization failed: %w", err)
	}
	worker.SetMetrics(metrics)

	ops := newOpsApp(metrics, sqlDB, rdb, broker)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return worker.Start(groupCtx)
	})

	group.Go(func() error {
		logger.Info("ops server listening", zap.Int("port", cfg.OpsPort))
		if err := ops.Listen(fmt.Sprintf(":%d", cfg.OpsPort)); err != nil {
			return fmt.Errorf("ops server failed: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return ops.ShutdownWithTimeout(shutdownTimeout)
	})

	logger.Info("notify-worker started",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Int("maxDeliveryAttempts", cfg.MaxDeliveryAttempts),
	)

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func newOpsApp(metrics *observability.Metrics, sqlDB *sql.DB, rdb *redis.Client, broker handler.BrokerStatus) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Use(metrics.HTTPMiddleware())
	handler.RegisterHealthRoutes(app, sqlDB, rdb, broker)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	return app
}
