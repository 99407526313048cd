package main

import (
	"go.uber.org/zap"

	"github.com/IlliaDrahun/multichain/internal/bootstrap"
	"github.com/IlliaDrahun/multichain/internal/chain"
	"github.com/IlliaDrahun/multichain/internal/service/queue"
	"github.com/IlliaDrahun/multichain/internal/service/watcher"
	"github.com/IlliaDrahun/multichain/internal/store"
	"github.com/IlliaDrahun/multichain/pkg/database"
	"github.com/IlliaDrahun/multichain/pkg/logger"
)

// tx-watcher 运行 ConfirmationWatcher 与 ReorgResolver
func main() {
	cfg := bootstrap.Init("tx-watcher")
	defer logger.Sync()

	ctx, stop := bootstrap.SignalContext()
	defer stop()

	db, err := bootstrap.OpenDatabase(cfg)
	if err != nil {
		logger.Fatal("Failed to connect database", zap.Error(err))
	}
	defer database.Close(db)

	rdb := bootstrap.OpenRedis(ctx, cfg)
	defer rdb.Close()

	// watcher 只读链上状态，不持有私钥
	gateways := chain.DialRegistry(ctx, cfg.ChainList(), nil)
	defer gateways.Close()

	publisher, closeBus := bootstrap.Publisher(ctx, cfg, rdb)
	defer closeBus()

	stopMetrics := bootstrap.ServeMetrics(cfg)
	defer stopMetrics()

	txStore := store.NewGormStore(db)
	q := queue.NewRedisStreamQueue(rdb, cfg.Queue.Stream)
	opts := watcher.Options{
		RequiredConfirmations: cfg.Watcher.RequiredConfirmations,
		TrackFinality:         cfg.Watcher.TrackFinality,
		BatchSize:             cfg.Watcher.BatchSize,
	}
	scheduler := watcher.NewScheduler(
		cfg.Watcher.Interval,
		gateways,
		watcher.NewConfirmationWatcher(txStore, q, gateways, publisher, opts),
		watcher.NewReorgResolver(txStore, q, gateways, publisher, opts.BatchSize),
	)
	if err := scheduler.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher scheduler", zap.Error(err))
	}

	<-ctx.Done()
	logger.Info("Stopping watcher...")
	scheduler.Stop()
	logger.Info("tx-watcher stopped")
}
