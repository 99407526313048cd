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

// ReorgResolver 推进 REORGED -> FAILED | PENDING_SIGN
//
// 比较账户当前 nonce 与记录的 nonce:
//
//	account > record  nonce 已被其他交易占用，FAILED (nonce_replaced)
//	account == record nonce 仍空闲，重新入队，PENDING_SIGN (auto_resubmitted)
//	account < record  本轮不处理
type ReorgResolver struct {
	store     store.TransactionStore
	queue     queue.Queue
	gateways  GatewayResolver
	publisher *event.Publisher
	batchSize int
}

func NewReorgResolver(s store.TransactionStore, q queue.Queue, gateways GatewayResolver, publisher *event.Publisher, batchSize int) *ReorgResolver {
	return &ReorgResolver{
		store:     s,
		queue:     q,
		gateways:  gateways,
		publisher: publisher,
		batchSize: batchSize,
	}
}

// Resolve 处理一条链上的 REORGED 记录
func (r *ReorgResolver) Resolve(ctx context.Context, chainID string) error {
	gw, err := r.gateways.Get(chainID)
	if err != nil {
		return err
	}

	err = store.ScanAll(ctx, r.store, chainID, model.StatusReorged, r.batchSize, func(tx *model.Transaction) {
		if err := r.resolve(ctx, gw, tx); err != nil {
			logger.Error("Error resolving reorged transaction",
				zap.String("tx_id", tx.ID), zap.String("chain_id", chainID), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("scan reorged transactions on %s: %w", chainID, err)
	}
	return nil
}

func (r *ReorgResolver) resolve(ctx context.Context, gw chain.Gateway, tx *model.Transaction) error {
	if tx.Nonce == nil || tx.UserAddress == "" {
		logger.Warn("Reorged transaction missing nonce or user address, skipping", zap.String("tx_id", tx.ID))
		return nil
	}

	account := tx.NonceAccount()
	current, err := gw.NonceAt(ctx, account)
	if err != nil {
		return fmt.Errorf("fetch nonce of %s: %w", account, err)
	}

	switch {
	case current > *tx.Nonce:
		return r.replaced(ctx, tx, current)
	case current == *tx.Nonce:
		return r.resubmit(ctx, tx)
	default:
		logger.Debug("Account nonce behind record, waiting",
			zap.String("tx_id", tx.ID), zap.Uint64("account_nonce", current), zap.Uint64("record_nonce", *tx.Nonce))
		return nil
	}
}

// replaced nonce 已被占用，终态 FAILED，保留原 tx_hash 和 block_number
func (r *ReorgResolver) replaced(ctx context.Context, tx *model.Transaction, current uint64) error {
	if err := tx.Transition(model.StatusFailed); err != nil {
		return err
	}
	if err := r.store.Update(ctx, tx, model.StatusReorged); err != nil {
		return ignoreStale(tx, err)
	}
	monitor.Business.RecordTransition(tx.ChainID, string(model.StatusFailed))
	logger.Info("Nonce replaced, transaction FAILED",
		zap.String("tx_id", tx.ID), zap.Uint64("account_nonce", current), zap.Uint64("record_nonce", *tx.Nonce))

	r.publisher.PublishStatus(ctx, tx, event.ReasonNonceReplaced)
	drain(ctx, r.queue, tx)
	return nil
}

// resubmit 先入队再改状态；状态写入失败时删除新消息
func (r *ReorgResolver) resubmit(ctx context.Context, tx *model.Transaction) error {
	cursor, err := r.queue.Enqueue(ctx, queue.Fields{
		TransactionID:   tx.ID,
		ChainID:         tx.ChainID,
		ContractAddress: tx.ContractAddress,
		Method:          tx.Method,
		Args:            tx.Args,
		UserAddress:     tx.UserAddress,
	})
	if err != nil {
		return fmt.Errorf("re-enqueue: %w", err)
	}

	old := tx.QueueCursor
	tx.QueueCursor = model.StringPtr(cursor)
	tx.TxHash = nil
	tx.BlockNumber = nil
	if err := tx.Transition(model.StatusPendingSign); err != nil {
		return err
	}
	if err := r.store.Update(ctx, tx, model.StatusReorged); err != nil {
		if delErr := r.queue.Delete(ctx, cursor); delErr != nil {
			logger.Error("Remove orphaned queue entry failed",
				zap.String("tx_id", tx.ID), zap.String("cursor", cursor), zap.Error(delErr))
		}
		return ignoreStale(tx, err)
	}
	monitor.Business.RecordTransition(tx.ChainID, string(model.StatusPendingSign))
	logger.Info("Transaction re-enqueued after reorg",
		zap.String("tx_id", tx.ID), zap.String("cursor", cursor), zap.Uint64("nonce", *tx.Nonce))

	r.publisher.PublishStatus(ctx, tx, event.ReasonAutoResubmitted)
	if old != nil && *old != cursor {
		if err := r.queue.Delete(ctx, *old); err != nil {
			logger.Warn("Delete previous queue entry failed", zap.String("cursor", *old), zap.Error(err))
		}
	}
	return nil
}

func ignoreStale(tx *model.Transaction, err error) error {
	if errors.Is(err, store.ErrStaleStatus) {
		logger.Warn("Transaction status changed concurrently, skipping", zap.String("tx_id", tx.ID))
		return nil
	}
	return err
}
