// Package sender 消费 tx:to-sign 队列，签名并广播交易
package sender

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/IlliaDrahun/multichain/internal/chain"
	"github.com/IlliaDrahun/multichain/internal/event"
	"github.com/IlliaDrahun/multichain/internal/model"
	"github.com/IlliaDrahun/multichain/internal/service/queue"
	"github.com/IlliaDrahun/multichain/internal/store"
	"github.com/IlliaDrahun/multichain/pkg/logger"
	"github.com/IlliaDrahun/multichain/pkg/monitor"
)

// errNotReady 记录仍处于 REORGED，resolver 正在重新入队
var errNotReady = errors.New("transaction not ready for submission")

// GatewayResolver 按 chainId 查找网关
type GatewayResolver interface {
	Get(chainID string) (chain.Gateway, error)
}

type Options struct {
	MaxAttempts    int           // 发送最大尝试次数
	InitialBackoff time.Duration // 首次重试等待，之后翻倍
	ErrorPause     time.Duration // 处理出错后的暂停
	BlockTimeout   time.Duration // 队列阻塞读取超时
	// MaxNotReady 同一条 REORGED 消息最多等待的次数，超过后跳过
	MaxNotReady int
	// CheckpointName 非空且 Worker 持有 CheckpointStore 时，游标会持久化
	CheckpointName string
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		ErrorPause:     5 * time.Second,
		BlockTimeout:   5 * time.Second,
		MaxNotReady:    3,
	}
}

// Worker 单线程顺序处理队列，永不并发
type Worker struct {
	queue       queue.Queue
	store       store.TransactionStore
	gateways    GatewayResolver
	publisher   *event.Publisher
	checkpoints store.CheckpointStore
	opts        Options

	cursor   string
	notReady int // 当前消息连续 errNotReady 的次数
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewWorker(q queue.Queue, s store.TransactionStore, gateways GatewayResolver, publisher *event.Publisher, opts Options) *Worker {
	return &Worker{
		queue:     q,
		store:     s,
		gateways:  gateways,
		publisher: publisher,
		opts:      opts,
		cursor:    queue.StartCursor,
		sleep:     sleepCtx,
	}
}

// WithCheckpoints 启用游标持久化
func (w *Worker) WithCheckpoints(cp store.CheckpointStore, name string) *Worker {
	w.checkpoints = cp
	w.opts.CheckpointName = name
	return w
}

// Cursor 最后处理完成的队列游标
func (w *Worker) Cursor() string { return w.cursor }

// Run 阻塞运行直到 ctx 取消
func (w *Worker) Run(ctx context.Context) error {
	if err := w.restoreCursor(ctx); err != nil {
		return err
	}
	logger.Info("Submission worker started", zap.String("cursor", w.cursor))

	for ctx.Err() == nil {
		if err := w.Step(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error("Error in processing loop, retrying after pause",
				zap.Duration("pause", w.opts.ErrorPause), zap.Error(err))
			_ = w.sleep(ctx, w.opts.ErrorPause)
		}
	}
	logger.Info("Submission worker stopped", zap.String("cursor", w.cursor))
	return nil
}

// Step 读取并处理一条消息
// 返回 error 时游标不前进，同一条消息会被再次读取
func (w *Worker) Step(ctx context.Context) error {
	entry, err := w.queue.ReadNext(ctx, w.cursor, w.opts.BlockTimeout)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}

	if err := w.handle(ctx, entry); err != nil {
		return fmt.Errorf("entry %s: %w", entry.Cursor, err)
	}
	w.advance(ctx, entry.Cursor)
	return nil
}

func (w *Worker) handle(ctx context.Context, entry *queue.Entry) error {
	fields, err := entry.Decode()
	if err != nil {
		logger.Warn("Skipping malformed queue entry", zap.String("cursor", entry.Cursor), zap.Error(err))
		return nil
	}

	tx, err := w.store.Get(ctx, fields.TransactionID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Error("Transaction not found in database, skipping",
			zap.String("tx_id", fields.TransactionID), zap.String("cursor", entry.Cursor))
		return nil
	}
	if err != nil {
		return err
	}

	switch tx.Status {
	case model.StatusPendingSign:
	case model.StatusReorged:
		return w.waitReorged(tx, entry.Cursor)
	default:
		// 重复投递: 已经处理过的记录不再发送
		logger.Info("Transaction already processed, skipping",
			zap.String("tx_id", tx.ID), zap.String("status", string(tx.Status)))
		return nil
	}

	return w.submit(ctx, tx, fields, entry.Cursor)
}

// waitReorged 处理 REORGED 记录的消息
// 不晚于记录游标的是上一次提交的残留，resolver 会重新入队，直接跳过；
// 更新的消息可能是 resolver 刚写入、状态还没改成 PENDING_SIGN，有限次等待
func (w *Worker) waitReorged(tx *model.Transaction, cursor string) error {
	if tx.QueueCursor == nil || queue.CompareCursor(cursor, *tx.QueueCursor) <= 0 {
		logger.Info("Stale queue entry for REORGED transaction, skipping",
			zap.String("tx_id", tx.ID), zap.String("cursor", cursor))
		return nil
	}
	if w.notReady >= w.opts.MaxNotReady {
		logger.Warn("REORGED transaction still not resubmitted, skipping entry",
			zap.String("tx_id", tx.ID), zap.String("cursor", cursor), zap.Int("waits", w.notReady))
		return nil
	}
	w.notReady++
	return fmt.Errorf("%w: %s is %s", errNotReady, tx.ID, tx.Status)
}

func (w *Worker) submit(ctx context.Context, tx *model.Transaction, fields queue.Fields, cursor string) error {
	log := logger.With(zap.String("tx_id", tx.ID), zap.String("chain_id", fields.ChainID))

	// 1. 记录来源游标，终态时 watcher 用它删除队列消息
	tx.QueueCursor = model.StringPtr(cursor)
	if err := w.store.Update(ctx, tx, model.StatusPendingSign); err != nil {
		return w.resolveWriteError(log, err)
	}

	// 2. 查找网关
	gw, err := w.gateways.Get(fields.ChainID)
	if err != nil {
		log.Error("No gateway for chain, marking as FAILED", zap.Error(err))
		return w.fail(ctx, tx, fields.ChainID)
	}

	call := chain.CallRequest{To: fields.ContractAddress, Method: fields.Method, Args: fields.Args}

	// 3. 预估 gas，失败即终态，不重试
	gas, err := gw.EstimateGas(ctx, call)
	if err != nil {
		log.Error("Gas estimation failed, marking as FAILED", zap.Error(err))
		return w.fail(ctx, tx, fields.ChainID)
	}

	// 4. 带退避的发送
	res, err := w.sendWithRetry(ctx, gw, call, gas, log)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("Transaction failed after multiple retries, marking as FAILED", zap.Error(err))
		return w.fail(ctx, tx, fields.ChainID)
	}

	// 5. 持久化后再发布事件
	tx.TxHash = model.StringPtr(res.TxHash)
	tx.Nonce = model.Uint64Ptr(res.Nonce)
	tx.SenderAddress = model.StringPtr(res.From)
	if err := tx.Transition(model.StatusPending); err != nil {
		return err
	}
	if err := w.store.Update(ctx, tx, model.StatusPendingSign); err != nil {
		// 交易已上链但状态未写入，记录哈希方便人工核对
		log.Error("Transaction sent but status not persisted",
			zap.String("tx_hash", res.TxHash), zap.Uint64("nonce", res.Nonce), zap.Error(err))
		return w.resolveWriteError(log, err)
	}
	monitor.Business.RecordSubmitted(fields.ChainID, "sent")
	monitor.Business.RecordTransition(fields.ChainID, string(model.StatusPending))
	log.Info("Transaction sent", zap.String("tx_hash", res.TxHash), zap.Uint64("nonce", res.Nonce))

	w.publisher.PublishSent(ctx, tx)
	return nil
}

func (w *Worker) sendWithRetry(ctx context.Context, gw chain.Gateway, call chain.CallRequest, gas uint64, log *zap.Logger) (*chain.SendResult, error) {
	attempts := w.opts.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	b := &backoff.Backoff{
		Min:    w.opts.InitialBackoff,
		Max:    w.opts.InitialBackoff << uint(attempts),
		Factor: 2,
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		monitor.Business.RecordSendAttempt(gw.ChainID())
		res, err := gw.Send(ctx, call, gas)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		wait := b.Duration()
		log.Warn("Send attempt failed, retrying",
			zap.Int("attempt", attempt), zap.Duration("backoff", wait), zap.Error(err))
		if err := w.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (w *Worker) fail(ctx context.Context, tx *model.Transaction, chainID string) error {
	if err := tx.Transition(model.StatusFailed); err != nil {
		return err
	}
	if err := w.store.Update(ctx, tx, model.StatusPendingSign); err != nil {
		return w.resolveWriteError(logger.With(zap.String("tx_id", tx.ID)), err)
	}
	monitor.Business.RecordSubmitted(chainID, "failed")
	monitor.Business.RecordTransition(chainID, string(model.StatusFailed))

	w.publisher.PublishStatus(ctx, tx, "")
	return nil
}

// resolveWriteError 状态被其他进程改过视为已处理，其它错误向上返回
func (w *Worker) resolveWriteError(log *zap.Logger, err error) error {
	if errors.Is(err, store.ErrStaleStatus) {
		log.Warn("Transaction status changed concurrently, skipping", zap.Error(err))
		return nil
	}
	return err
}

func (w *Worker) advance(ctx context.Context, cursor string) {
	w.cursor = cursor
	w.notReady = 0
	if w.checkpoints == nil || w.opts.CheckpointName == "" {
		return
	}
	if err := w.checkpoints.SaveCursor(ctx, w.opts.CheckpointName, cursor); err != nil {
		logger.Warn("Save queue checkpoint failed", zap.String("cursor", cursor), zap.Error(err))
	}
}

func (w *Worker) restoreCursor(ctx context.Context) error {
	if w.checkpoints == nil || w.opts.CheckpointName == "" {
		return nil
	}
	cursor, ok, err := w.checkpoints.LoadCursor(ctx, w.opts.CheckpointName)
	if err != nil {
		return fmt.Errorf("load queue checkpoint: %w", err)
	}
	if ok {
		w.cursor = cursor
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
