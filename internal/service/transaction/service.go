// Package transaction 交易受理、查询以及状态事件的推送
package transaction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/IlliaDrahun/multichain/internal/chain"
	"github.com/IlliaDrahun/multichain/internal/model"
	"github.com/IlliaDrahun/multichain/internal/service/queue"
	"github.com/IlliaDrahun/multichain/internal/store"
	"github.com/IlliaDrahun/multichain/pkg/logger"
)

var (
	ErrUnsupportedChain = errors.New("unsupported chain")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrEnqueue          = errors.New("enqueue transaction failed")
)

// CreateRequest 受理一笔合约调用
type CreateRequest struct {
	ChainID         string
	ContractAddress string
	Method          string
	Args            []string
	UserAddress     string
}

type Service struct {
	store  store.TransactionStore
	queue  queue.Queue
	chains map[string]string // hex chain id -> name
}

func NewService(s store.TransactionStore, q queue.Queue, supported map[string]string) *Service {
	return &Service{store: s, queue: q, chains: supported}
}

// SupportedChains hex chain id -> name
func (s *Service) SupportedChains() map[string]string {
	out := make(map[string]string, len(s.chains))
	for k, v := range s.chains {
		out[k] = v
	}
	return out
}

// Create 写入 PENDING_SIGN 记录并投递到待签名队列
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.Transaction, error) {
	chainID := chain.NormalizeChainID(req.ChainID)
	if _, ok := s.chains[chainID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChain, req.ChainID)
	}
	if !common.IsHexAddress(req.ContractAddress) {
		return nil, fmt.Errorf("%w: contract %s", ErrInvalidAddress, req.ContractAddress)
	}
	user, err := NormalizeAddress(req.UserAddress)
	if err != nil {
		return nil, err
	}

	tx := &model.Transaction{
		UserAddress:     user,
		ChainID:         chainID,
		ContractAddress: common.HexToAddress(req.ContractAddress).Hex(),
		Method:          strings.TrimSpace(req.Method),
		Args:            append([]string{}, req.Args...),
		Status:          model.StatusPendingSign,
	}
	if err := s.store.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	cursor, err := s.queue.Enqueue(ctx, queue.Fields{
		TransactionID:   tx.ID,
		ChainID:         tx.ChainID,
		ContractAddress: tx.ContractAddress,
		Method:          tx.Method,
		Args:            tx.Args,
		UserAddress:     tx.UserAddress,
	})
	if err != nil {
		logger.Error("Enqueue transaction failed, marking as FAILED", zap.String("tx_id", tx.ID), zap.Error(err))
		s.abandon(ctx, tx)
		return nil, fmt.Errorf("%w: %s: %v", ErrEnqueue, tx.ID, err)
	}

	tx.QueueCursor = model.StringPtr(cursor)
	if err := s.store.Update(ctx, tx, model.StatusPendingSign); err != nil && !errors.Is(err, store.ErrStaleStatus) {
		// sender 处理时会再次写入游标
		logger.Warn("Stash queue cursor failed", zap.String("tx_id", tx.ID), zap.Error(err))
	}

	logger.Info("Transaction accepted",
		zap.String("tx_id", tx.ID), zap.String("chain_id", chainID), zap.String("cursor", cursor))
	return tx, nil
}

// abandon 未能入队的记录直接置为 FAILED，PENDING_SIGN 必须对应一条队列消息
func (s *Service) abandon(ctx context.Context, tx *model.Transaction) {
	if err := tx.Transition(model.StatusFailed); err != nil {
		return
	}
	if err := s.store.Update(ctx, tx, model.StatusPendingSign); err != nil {
		logger.Error("Mark unqueued transaction FAILED failed", zap.String("tx_id", tx.ID), zap.Error(err))
	}
}

func (s *Service) Get(ctx context.Context, id string) (*model.Transaction, error) {
	return s.store.Get(ctx, id)
}

// FindByUserAddress 用户的全部交易，最新的在前
func (s *Service) FindByUserAddress(ctx context.Context, userAddress string) ([]model.Transaction, error) {
	user, err := NormalizeAddress(userAddress)
	if err != nil {
		return nil, err
	}
	return s.store.FindByUserAddress(ctx, user)
}

// NormalizeAddress 校验并转为 EIP-55 格式
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}
	return common.HexToAddress(address).Hex(), nil
}
