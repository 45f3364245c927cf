package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderflow/internal/auth"
	"orderflow/internal/cache"
	"orderflow/internal/config"
	"orderflow/internal/evaluator"
	"orderflow/internal/handler"
	"orderflow/internal/httpserver"
	"orderflow/internal/orderflow"
	"orderflow/internal/repository"
	"orderflow/pkg/circuitbreaker"
	"orderflow/pkg/db"
	"orderflow/pkg/logger"
	"orderflow/pkg/mq"
	"orderflow/pkg/otel"
	"orderflow/pkg/outbox"
	redisclient "orderflow/pkg/redis"

	"go.uber.org/zap"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Starting orderflow server...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("mq_url", cfg.MQ.URL),
		zap.String("port", cfg.Server.Port),
	)

	shutdownOtel, err := otel.Init(otel.Config{
		ServiceName:    "orderflow-server",
		ServiceVersion: "1.0.0",
		Endpoint:       cfg.Otel.Endpoint,
		Enabled:        cfg.Otel.Enabled,
	}, log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer shutdownOtel()

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	if err := db.Migrate(context.Background(), dbConn, log); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb := redisclient.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	if err := redisclient.Ping(context.Background(), rdb); err != nil {
		// 缓存不可用只降级，不阻止启动
		log.Warn("Redis unavailable, flow status cache degraded", zap.Error(err))
	}

	store := repository.NewStore(dbConn, log)
	flowCache := cache.NewFlowCache(rdb, cache.DefaultFlowTTL, log)
	var next orderflow.Evaluator = orderflow.CannedEvaluator{}
	if cfg.Evaluator.URL != "" {
		log.Info("Using remote quality evaluator", zap.String("url", cfg.Evaluator.URL))
		next = evaluator.NewHTTPEvaluator(cfg.Evaluator.URL, cfg.Evaluator.Timeout())
	}
	qualityEvaluator := orderflow.NewBreakerEvaluator(next, circuitbreaker.DefaultConfig())

	svc := orderflow.NewService(store, log,
		orderflow.WithCache(flowCache),
		orderflow.WithEvaluator(qualityEvaluator),
	)

	authSvc := auth.NewService(
		repository.NewAdminUserRepository(dbConn, log),
		cfg.JWT.Secret,
		cfg.JWT.TokenTTL(),
	)

	// MQ publisher + outbox dispatcher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	dispatchCtx, dispatchCancel := context.WithCancel(context.Background())
	defer dispatchCancel()

	dispatcher := outbox.NewDispatcher(outbox.NewRepository(dbConn), publisher, log)
	go dispatcher.Start(dispatchCtx)
	log.Info("Outbox dispatcher started")

	ready := func(ctx context.Context) error {
		if err := dbConn.Ping(ctx); err != nil {
			return err
		}
		return redisclient.Ping(ctx, rdb)
	}

	router := httpserver.NewRouter(
		handler.NewOrderHandler(svc, log),
		handler.NewAuthHandler(authSvc, log),
		cfg.JWT.Secret,
		ready,
		log,
	)

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: router.Engine,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("orderflow server is fully initialized and running")

	// 优雅退出处理
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down orderflow server gracefully...")

	dispatchCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("orderflow server shutdown complete")
}
