// Package bootstrap 各进程共用的启动步骤
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/IlliaDrahun/multichain/internal/event"
	"github.com/IlliaDrahun/multichain/internal/model"
	"github.com/IlliaDrahun/multichain/internal/service/mq"
	"github.com/IlliaDrahun/multichain/pkg/config"
	"github.com/IlliaDrahun/multichain/pkg/database"
	"github.com/IlliaDrahun/multichain/pkg/logger"
	"github.com/IlliaDrahun/multichain/pkg/monitor"
)

// Init 加载配置、日志和监控指标
func Init(service string) *config.Config {
	config.Init()
	logger.Init(config.Global.App.Env)
	monitor.Init()
	logger.Info("Starting "+service, zap.String("env", config.Global.App.Env))
	return &config.Global
}

// SignalContext SIGINT/SIGTERM 时取消
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// OpenDatabase 连接 Postgres，开发环境自动建表
func OpenDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.ConnectPostgres(cfg.DB.DSN(), cfg.App.Env)
	if err != nil {
		return nil, err
	}
	if cfg.App.Env == "development" {
		if err := db.AutoMigrate(model.AllModels()...); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}
	return db, nil
}

// OpenRedis 按总线重试策略等待 Redis 可用
// 重试耗尽时仍返回客户端 (降级模式)，go-redis 会在后续命令中重连
func OpenRedis(ctx context.Context, cfg *config.Config) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	err := mq.Retry(ctx, "redis", RetryPolicy(cfg), nil, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		logger.Error("Redis unavailable, continuing in degraded mode", zap.Error(err))
	}
	return rdb
}

func RetryPolicy(cfg *config.Config) mq.RetryPolicy {
	policy := mq.DefaultRetryPolicy()
	if cfg.Bus.ConnectMaxAttempts > 0 {
		policy.MaxAttempts = cfg.Bus.ConnectMaxAttempts
	}
	if cfg.Bus.ConnectInitialBackoff > 0 {
		policy.Min = cfg.Bus.ConnectInitialBackoff
	}
	if cfg.Bus.ConnectMaxBackoff > 0 {
		policy.Max = cfg.Bus.ConnectMaxBackoff
	}
	return policy
}

func BusOptions(cfg *config.Config, rdb *redis.Client) mq.Options {
	return mq.Options{
		Type:    cfg.Bus.Type,
		Brokers: cfg.Kafka.Brokers,
		Redis:   rdb,
		Topics:  []string{event.TopicTxSent, event.TopicTxStatus},
		Retry:   RetryPolicy(cfg),
	}
}

// Publisher 连接事件总线，不可用时返回降级的 Publisher (只记录日志)
func Publisher(ctx context.Context, cfg *config.Config, rdb *redis.Client) (*event.Publisher, func()) {
	producer, err := mq.ConnectProducer(ctx, BusOptions(cfg, rdb))
	if err != nil {
		logger.Error("Event bus unavailable, notifications will be dropped", zap.Error(err))
		return event.NewPublisher(nil), func() {}
	}
	logger.Info("Event bus connected", zap.String("type", cfg.Bus.Type))
	return event.NewPublisher(producer), func() { _ = producer.Close() }
}

// ServeMetrics worker 进程单独暴露 /metrics
func ServeMetrics(cfg *config.Config) func() {
	srv := monitor.Serve(cfg.App.MetricsPort)
	logger.Info("Metrics endpoint started", zap.String("addr", srv.Addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Metrics server shutdown failed", zap.Error(err))
		}
	}
}
