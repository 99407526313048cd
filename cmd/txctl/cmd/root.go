package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/IlliaDrahun/multichain/internal/bootstrap"
	"github.com/IlliaDrahun/multichain/internal/chain"
	"github.com/IlliaDrahun/multichain/internal/service/queue"
	"github.com/IlliaDrahun/multichain/internal/service/transaction"
	"github.com/IlliaDrahun/multichain/internal/store"
	"github.com/IlliaDrahun/multichain/pkg/config"
	"github.com/IlliaDrahun/multichain/pkg/database"
	"github.com/IlliaDrahun/multichain/pkg/logger"
)

// rootCmd 代表基础命令，没有子命令时直接调用
var rootCmd = &cobra.Command{
	Use:   "txctl",
	Short: "多链交易运维工具",
	Long: `直接读写交易库和待签名队列的运维命令行。
可以在不经过 HTTP 的情况下受理交易、查询用户交易以及检查签名私钥。`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.Init()
		logger.Init(config.Global.App.Env)
	},
}

// Execute 将所有子命令添加到根命令并设置标志
func Execute() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// openService 连接数据库和 Redis，返回受理服务以及清理函数
func openService(ctx context.Context) (*transaction.Service, func(), error) {
	cfg := &config.Global
	db, err := database.ConnectPostgres(cfg.DB.DSN(), cfg.App.Env)
	if err != nil {
		return nil, nil, err
	}
	rdb := bootstrap.OpenRedis(ctx, cfg)

	svc := transaction.NewService(
		store.NewGormStore(db),
		queue.NewRedisStreamQueue(rdb, cfg.Queue.Stream),
		chain.SupportedChainIDs(cfg.ChainList()),
	)
	cleanup := func() {
		_ = rdb.Close()
		database.Close(db)
	}
	return svc, cleanup, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
