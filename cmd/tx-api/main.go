package main

import (
	"time"

	"go.uber.org/zap"

	"github.com/IlliaDrahun/multichain/internal/bootstrap"
	"github.com/IlliaDrahun/multichain/internal/chain"
	"github.com/IlliaDrahun/multichain/internal/handler"
	"github.com/IlliaDrahun/multichain/internal/server"
	"github.com/IlliaDrahun/multichain/internal/service/mq"
	"github.com/IlliaDrahun/multichain/internal/service/notify"
	"github.com/IlliaDrahun/multichain/internal/service/queue"
	"github.com/IlliaDrahun/multichain/internal/service/transaction"
	"github.com/IlliaDrahun/multichain/internal/store"
	"github.com/IlliaDrahun/multichain/pkg/database"
	"github.com/IlliaDrahun/multichain/pkg/logger"
	"github.com/IlliaDrahun/multichain/pkg/validator"
)

const consumerGroup = "tx-api"

// tx-api 受理/查询交易，并把总线事件推送到 websocket
func main() {
	cfg := bootstrap.Init("tx-api")
	defer logger.Sync()

	ctx, stop := bootstrap.SignalContext()
	defer stop()

	if err := validator.Init(); err != nil {
		logger.Fatal("Failed to register validators", zap.Error(err))
	}

	db, err := bootstrap.OpenDatabase(cfg)
	if err != nil {
		logger.Fatal("Failed to connect database", zap.Error(err))
	}
	defer database.Close(db)

	rdb := bootstrap.OpenRedis(ctx, cfg)
	defer rdb.Close()

	txStore := store.NewGormStore(db)
	svc := transaction.NewService(txStore, queue.NewRedisStreamQueue(rdb, cfg.Queue.Stream), chain.SupportedChainIDs(cfg.ChainList()))

	// websocket 推送
	hub := notify.NewHub()
	defer hub.Close()

	// 消费 tx.sent / tx.status，总线不可用时只提供 HTTP
	consumer, err := mq.ConnectConsumer(ctx, bootstrap.BusOptions(cfg, rdb), consumerGroup, consumerGroup)
	if err != nil {
		logger.Error("Event bus unavailable, notifications disabled", zap.Error(err))
	} else {
		defer consumer.Close()
		events := transaction.NewEventHandler(txStore, hub, 10*time.Minute)
		go func() {
			logger.Info("Subscribing to transaction events", zap.Strings("topics", transaction.Topics))
			if err := consumer.Subscribe(ctx, transaction.Topics, events.Handle); err != nil {
				logger.Error("Event subscription stopped", zap.Error(err))
			}
		}()
	}

	router := server.NewHTTPRouter(server.Handlers{
		Transaction: handler.NewTransactionHandler(svc),
		WS:          handler.NewWSHandler(hub),
	})
	app := server.New(server.Config{HttpPort: cfg.App.HttpPort}, router)
	if err := app.Run(ctx); err != nil {
		logger.Error("HTTP server failure", zap.Error(err))
	}
}
