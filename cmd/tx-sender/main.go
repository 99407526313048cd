package main

import (
	"go.uber.org/zap"

	"github.com/IlliaDrahun/multichain/internal/bootstrap"
	"github.com/IlliaDrahun/multichain/internal/chain"
	"github.com/IlliaDrahun/multichain/internal/service/queue"
	"github.com/IlliaDrahun/multichain/internal/service/sender"
	"github.com/IlliaDrahun/multichain/internal/store"
	"github.com/IlliaDrahun/multichain/pkg/database"
	"github.com/IlliaDrahun/multichain/pkg/logger"
)

// tx-sender 持有签名私钥，是系统中最敏感的组件
func main() {
	// 1. 初始化配置与日志
	cfg := bootstrap.Init("tx-sender")
	defer logger.Sync()

	ctx, stop := bootstrap.SignalContext()
	defer stop()

	// 2. 加载签名私钥，缺失直接退出
	key, err := chain.LoadSigningKey(cfg.Signer)
	if err != nil {
		logger.Fatal("Failed to load signing key", zap.Error(err))
	}
	logger.Info("Signing key loaded", zap.String("address", chain.AddressOf(key)))

	// 3. 数据库与 Redis
	db, err := bootstrap.OpenDatabase(cfg)
	if err != nil {
		logger.Fatal("Failed to connect database", zap.Error(err))
	}
	defer database.Close(db)

	rdb := bootstrap.OpenRedis(ctx, cfg)
	defer rdb.Close()

	// 4. 链连接，单条链失败只影响该链
	gateways := chain.DialRegistry(ctx, cfg.ChainList(), key)
	defer gateways.Close()

	// 5. 事件总线 (降级时只记录日志)
	publisher, closeBus := bootstrap.Publisher(ctx, cfg, rdb)
	defer closeBus()

	stopMetrics := bootstrap.ServeMetrics(cfg)
	defer stopMetrics()

	opts := sender.Options{
		MaxAttempts:    cfg.Sender.MaxAttempts,
		InitialBackoff: cfg.Sender.InitialBackoff,
		ErrorPause:     cfg.Sender.ErrorPause,
		BlockTimeout:   cfg.Queue.BlockTimeout,
		MaxNotReady:    cfg.Sender.MaxNotReady,
	}
	worker := sender.NewWorker(queue.NewRedisStreamQueue(rdb, cfg.Queue.Stream), store.NewGormStore(db), gateways, publisher, opts)
	if cfg.Sender.ResumeCursor {
		worker.WithCheckpoints(store.NewGormCheckpointStore(db), cfg.Sender.ConsumerName)
	}

	// 6. 阻塞运行直到收到退出信号
	if err := worker.Run(ctx); err != nil {
		logger.Error("Submission worker exited", zap.Error(err))
	}
	logger.Info("tx-sender stopped")
}
