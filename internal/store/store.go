// Package store 交易记录与队列检查点的持久化
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IlliaDrahun/multichain/internal/model"
)

var (
	ErrNotFound = errors.New("transaction not found")
	// ErrStaleStatus 记录当前状态与期望状态不一致，说明其他进程已经处理过
	ErrStaleStatus = errors.New("transaction status changed concurrently")
)

// TransactionStore 交易记录存储
type TransactionStore interface {
	Create(ctx context.Context, tx *model.Transaction) error
	Get(ctx context.Context, id string) (*model.Transaction, error)
	FindByUserAddress(ctx context.Context, userAddress string) ([]model.Transaction, error)
	// FindByChainAndStatus 按 (created_at, id) 升序返回 after 之后的记录，limit <= 0 表示不限制
	FindByChainAndStatus(ctx context.Context, chainID string, status model.Status, after ScanCursor, limit int) ([]model.Transaction, error)
	// Update 以 expected 为条件写入可变字段 (compare-and-set)
	// 状态不一致返回 ErrStaleStatus，记录不存在返回 ErrNotFound
	Update(ctx context.Context, tx *model.Transaction, expected model.Status) error
}

// ScanCursor 分页扫描的位置，零值表示从头开始
type ScanCursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorAfter 以 tx 为上一页最后一条记录
func CursorAfter(tx *model.Transaction) ScanCursor {
	return ScanCursor{CreatedAt: tx.CreatedAt, ID: tx.ID}
}

func (c ScanCursor) IsZero() bool { return c.ID == "" }

// ScanAll 分页读出全部匹配记录并逐条回调，单页 pageSize <= 0 时一次读完
// 回调修改记录状态不影响后续分页
func ScanAll(ctx context.Context, s TransactionStore, chainID string, status model.Status, pageSize int, fn func(tx *model.Transaction)) error {
	var after ScanCursor
	for {
		txs, err := s.FindByChainAndStatus(ctx, chainID, status, after, pageSize)
		if err != nil {
			return err
		}
		for i := range txs {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fn(&txs[i])
		}
		if pageSize <= 0 || len(txs) < pageSize {
			return nil
		}
		after = CursorAfter(&txs[len(txs)-1])
	}
}

// CheckpointStore 队列游标检查点
type CheckpointStore interface {
	LoadCursor(ctx context.Context, name string) (string, bool, error)
	SaveCursor(ctx context.Context, name, cursor string) error
}

func validateUpdate(tx *model.Transaction, expected model.Status) error {
	if tx.Status == expected {
		return nil
	}
	if !model.CanTransition(expected, tx.Status) {
		return fmt.Errorf("illegal status transition %s -> %s for %s", expected, tx.Status, tx.ID)
	}
	return nil
}
