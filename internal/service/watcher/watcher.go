// Package watcher 轮询链上状态，推进 PENDING 和 REORGED 记录
package watcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/IlliaDrahun/multichain/internal/chain"
	"github.com/IlliaDrahun/multichain/internal/event"
	"github.com/IlliaDrahun/multichain/internal/model"
	"github.com/IlliaDrahun/multichain/internal/service/queue"
	"github.com/IlliaDrahun/multichain/internal/store"
	"github.com/IlliaDrahun/multichain/pkg/logger"
	"github.com/IlliaDrahun/multichain/pkg/monitor"
)

// GatewayResolver 按 chainId 查找网关
type GatewayResolver interface {
	Get(chainID string) (chain.Gateway, error)
}

type Options struct {
	RequiredConfirmations uint64
	// TrackFinality 回执成功但确认数不足时记录区块号，之后走 finality 路径
	TrackFinality bool
	BatchSize     int // 分页大小，<= 0 时一次读出全部
}

func DefaultOptions() Options {
	return Options{
		RequiredConfirmations: 3,
		TrackFinality:         false,
		BatchSize:             100,
	}
}

// ConfirmationWatcher 推进 PENDING -> CONFIRMED | FAILED | REORGED
type ConfirmationWatcher struct {
	store     store.TransactionStore
	queue     queue.Queue
	gateways  GatewayResolver
	publisher *event.Publisher
	opts      Options
}

func NewConfirmationWatcher(s store.TransactionStore, q queue.Queue, gateways GatewayResolver, publisher *event.Publisher, opts Options) *ConfirmationWatcher {
	return &ConfirmationWatcher{
		store:     s,
		queue:     q,
		gateways:  gateways,
		publisher: publisher,
		opts:      opts,
	}
}

// CheckPending 分页扫描一条链上的全部 PENDING 记录
// 单条记录出错只记录日志，不影响后续记录
func (w *ConfirmationWatcher) CheckPending(ctx context.Context, chainID string) error {
	gw, err := w.gateways.Get(chainID)
	if err != nil {
		return err
	}

	err = store.ScanAll(ctx, w.store, chainID, model.StatusPending, w.opts.BatchSize, func(tx *model.Transaction) {
		if err := w.check(ctx, gw, tx); err != nil {
			logger.Error("Error checking transaction",
				zap.String("tx_id", tx.ID), zap.String("chain_id", chainID), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("scan pending transactions on %s: %w", chainID, err)
	}
	return nil
}

func (w *ConfirmationWatcher) check(ctx context.Context, gw chain.Gateway, tx *model.Transaction) error {
	if tx.TxHash == nil {
		logger.Warn("PENDING transaction without tx hash, skipping", zap.String("tx_id", tx.ID))
		return nil
	}

	if tx.BlockNumber != nil {
		return w.checkFinality(ctx, gw, tx)
	}
	return w.checkConfirmations(ctx, gw, tx)
}

// checkFinality 区块已最终确认后，检查交易是否仍在该区块中
func (w *ConfirmationWatcher) checkFinality(ctx context.Context, gw chain.Gateway, tx *model.Transaction) error {
	finalized, err := gw.IsBlockFinalized(ctx, *tx.BlockNumber)
	if err != nil {
		return fmt.Errorf("check finality of block %d: %w", *tx.BlockNumber, err)
	}
	if !finalized {
		return nil
	}

	hashes, err := gw.BlockTransactionHashes(ctx, *tx.BlockNumber)
	if err != nil {
		return fmt.Errorf("fetch finalized block %d: %w", *tx.BlockNumber, err)
	}

	if chain.ContainsHash(hashes, *tx.TxHash) {
		return w.settle(ctx, tx, model.StatusConfirmed)
	}

	// 浅重组后交易可能被重新打包进其他区块，回执仍在就不算 REORGED
	receipt, err := gw.Receipt(ctx, *tx.TxHash)
	if err != nil {
		return fmt.Errorf("recheck receipt: %w", err)
	}
	if receipt != nil && receipt.BlockNumber != *tx.BlockNumber {
		logger.Info("Transaction re-mined in another block",
			zap.String("tx_id", tx.ID), zap.Uint64("old_block", *tx.BlockNumber), zap.Uint64("block", receipt.BlockNumber))
		return w.remined(ctx, tx)
	}
	logger.Warn("Transaction missing from finalized block, marking as REORGED",
		zap.String("tx_id", tx.ID), zap.String("tx_hash", *tx.TxHash), zap.Uint64("block", *tx.BlockNumber))
	return w.settle(ctx, tx, model.StatusReorged)
}

func (w *ConfirmationWatcher) checkConfirmations(ctx context.Context, gw chain.Gateway, tx *model.Transaction) error {
	receipt, err := gw.Receipt(ctx, *tx.TxHash)
	if err != nil {
		return fmt.Errorf("fetch receipt: %w", err)
	}
	if receipt == nil {
		// 仍在打包中
		return nil
	}

	if receipt.Confirmations < w.opts.RequiredConfirmations {
		if w.opts.TrackFinality && receipt.Status == 1 {
			return w.stashBlock(ctx, tx, receipt.BlockNumber)
		}
		return nil
	}

	tx.BlockNumber = model.Uint64Ptr(receipt.BlockNumber)
	if receipt.Status == 1 {
		return w.settle(ctx, tx, model.StatusConfirmed)
	}
	logger.Warn("Transaction reverted", zap.String("tx_id", tx.ID), zap.String("tx_hash", *tx.TxHash))
	return w.settle(ctx, tx, model.StatusFailed)
}

// stashBlock 记录打包区块号，状态保持 PENDING
func (w *ConfirmationWatcher) stashBlock(ctx context.Context, tx *model.Transaction, blockNumber uint64) error {
	tx.BlockNumber = model.Uint64Ptr(blockNumber)
	if err := w.store.Update(ctx, tx, model.StatusPending); err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			return nil
		}
		return err
	}
	logger.Debug("Inclusion block recorded",
		zap.String("tx_id", tx.ID), zap.Uint64("block", blockNumber))
	return nil
}

// remined 清除区块号，下一轮重新走确认数路径
func (w *ConfirmationWatcher) remined(ctx context.Context, tx *model.Transaction) error {
	tx.BlockNumber = nil
	if err := w.store.Update(ctx, tx, model.StatusPending); err != nil && !errors.Is(err, store.ErrStaleStatus) {
		return err
	}
	return nil
}

// settle 持久化新状态，发布事件，删除队列消息
func (w *ConfirmationWatcher) settle(ctx context.Context, tx *model.Transaction, to model.Status) error {
	if err := tx.Transition(to); err != nil {
		return err
	}
	if err := w.store.Update(ctx, tx, model.StatusPending); err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			logger.Warn("Transaction status changed concurrently, skipping", zap.String("tx_id", tx.ID))
			return nil
		}
		return err
	}
	monitor.Business.RecordTransition(tx.ChainID, string(to))
	logger.Info("Transaction status updated",
		zap.String("tx_id", tx.ID), zap.String("status", string(to)), zap.String("tx_hash", *tx.TxHash))

	w.publisher.PublishStatus(ctx, tx, "")
	drain(ctx, w.queue, tx)
	return nil
}

// drain 删除记录对应的队列消息，失败只记录日志
func drain(ctx context.Context, q queue.Queue, tx *model.Transaction) {
	if tx.QueueCursor == nil {
		return
	}
	if err := q.Delete(ctx, *tx.QueueCursor); err != nil {
		logger.Warn("Delete queue entry failed",
			zap.String("tx_id", tx.ID), zap.String("cursor", *tx.QueueCursor), zap.Error(err))
	}
}
