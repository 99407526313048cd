package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IlliaDrahun/multichain/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Create(ctx context.Context, tx *model.Transaction) error {
	if err := s.db.WithContext(ctx).Create(tx).Error; err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, id string) (*model.Transaction, error) {
	var tx model.Transaction
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return &tx, nil
}

func (s *GormStore) FindByUserAddress(ctx context.Context, userAddress string) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := s.db.WithContext(ctx).
		Where("user_address = ?", userAddress).
		Order("created_at DESC").
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("find by user %s: %w", userAddress, err)
	}
	return txs, nil
}

func (s *GormStore) FindByChainAndStatus(ctx context.Context, chainID string, status model.Status, after ScanCursor, limit int) ([]model.Transaction, error) {
	var txs []model.Transaction
	q := s.db.WithContext(ctx).
		Where("chain_id = ? AND status = ?", chainID, status).
		Order("created_at ASC, id ASC")
	if !after.IsZero() {
		q = q.Where("(created_at, id) > (?, ?)", after.CreatedAt, after.ID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("find %s on %s: %w", status, chainID, err)
	}
	return txs, nil
}

func (s *GormStore) Update(ctx context.Context, tx *model.Transaction, expected model.Status) error {
	if err := validateUpdate(tx, expected); err != nil {
		return err
	}

	tx.UpdatedAt = time.Now()
	// map 才能把 nil 写成 NULL
	res := s.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND status = ?", tx.ID, expected).
		Updates(map[string]interface{}{
			"tx_hash":        tx.TxHash,
			"queue_cursor":   tx.QueueCursor,
			"block_number":   tx.BlockNumber,
			"nonce":          tx.Nonce,
			"sender_address": tx.SenderAddress,
			"status":         tx.Status,
			"updated_at":     tx.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("update transaction %s: %w", tx.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&model.Transaction{}).Where("id = ?", tx.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("update transaction %s: %w", tx.ID, err)
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrStaleStatus
	}
	return nil
}

// GormCheckpointStore 基于 queue_checkpoints 表
type GormCheckpointStore struct {
	db *gorm.DB
}

func NewGormCheckpointStore(db *gorm.DB) *GormCheckpointStore {
	return &GormCheckpointStore{db: db}
}

func (s *GormCheckpointStore) LoadCursor(ctx context.Context, name string) (string, bool, error) {
	var cp model.QueueCheckpoint
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load checkpoint %s: %w", name, err)
	}
	return cp.Cursor, true, nil
}

func (s *GormCheckpointStore) SaveCursor(ctx context.Context, name, cursor string) error {
	cp := model.QueueCheckpoint{Name: name, Cursor: cursor, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"cursor", "updated_at"}),
	}).Create(&cp).Error
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", name, err)
	}
	return nil
}
