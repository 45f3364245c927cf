package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderflow/internal/config"
	"orderflow/internal/jobs"
	"orderflow/internal/mqhandler"
	"orderflow/internal/orderflow"
	"orderflow/internal/repository"
	"orderflow/pkg/db"
	"orderflow/pkg/logger"
	"orderflow/pkg/mq"
	"orderflow/pkg/otel"
	"orderflow/pkg/outbox"
	redisclient "orderflow/pkg/redis"
	"orderflow/pkg/util"

	"go.uber.org/zap"
)

const (
	orderStatusQueue  = "order.status_changed.flow.q"
	outboxReplayLimit = 100
	jobTimeout        = 5 * time.Minute
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Starting orderflow worker...",
		zap.String("mq_url", cfg.MQ.URL),
		zap.String("overdue_sweep_cron", cfg.Worker.OverdueSweepCron),
		zap.String("outbox_replay_cron", cfg.Worker.OutboxReplayCron),
	)

	shutdownOtel, err := otel.Init(otel.Config{
		ServiceName:    "orderflow-worker",
		ServiceVersion: "1.0.0",
		Endpoint:       cfg.Otel.Endpoint,
		Enabled:        cfg.Otel.Enabled,
	}, log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer shutdownOtel()

	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	rdb := redisclient.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	if err := redisclient.Ping(context.Background(), rdb); err != nil {
		log.Fatal("Redis is required by the worker", zap.Error(err))
	}

	deduper := util.NewDeduper(rdb, 24*time.Hour, log)
	retries := util.NewRetryCounter(rdb, time.Hour)

	svc := orderflow.NewService(repository.NewStore(dbConn, log), log)

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	// order.status_changed -> APPROVED 自动生成里程碑
	approvedHandler := mqhandler.NewOrderApprovedHandler(svc, deduper, retries, publisher, cfg.Worker.MaxRetries, log)

	log.Info("Initializing MQ consumer for order.status_changed...",
		zap.String("queue", orderStatusQueue),
		zap.String("routing_key", mq.RoutingOrderStatusChanged),
	)
	consumer, err := mq.NewConsumer(cfg.MQ.URL, orderStatusQueue, mq.RoutingOrderStatusChanged, log)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(approvedHandler.Handle)

	go func() {
		log.Info("Starting order.status_changed consumer...")
		if err := consumer.StartConsuming(); err != nil {
			log.Fatal("Order status consumer failed", zap.Error(err))
		}
	}()

	// 定时任务
	jobCtx, jobCancel := context.WithCancel(context.Background())
	defer jobCancel()

	scheduler := jobs.NewScheduler(jobCtx, jobTimeout, log)
	sweeper := jobs.NewOverdueSweeper(svc, publisher, deduper, log)
	replay := outbox.NewReplayService(outbox.NewRepository(dbConn), log)

	if err := scheduler.Add(cfg.Worker.OverdueSweepCron, "overdue_milestones", func(ctx context.Context) error {
		_, err := sweeper.Run(ctx)
		return err
	}); err != nil {
		log.Fatal("Failed to schedule overdue sweep", zap.Error(err))
	}
	if err := scheduler.Add(cfg.Worker.OutboxReplayCron, "outbox_replay", func(ctx context.Context) error {
		_, err := replay.ReplayFailedEvents(ctx, outboxReplayLimit)
		return err
	}); err != nil {
		log.Fatal("Failed to schedule outbox replay", zap.Error(err))
	}
	scheduler.Start()

	log.Info("orderflow worker is fully initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down orderflow worker gracefully...")

	consumer.Stop()
	jobCancel()
	scheduler.Stop()

	log.Info("orderflow worker shutdown complete")
}
