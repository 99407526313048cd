package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/IlliaDrahun/multichain/internal/model"
)

// MemoryStore 内存实现，用于测试和 txctl 的 dry-run
// 读写都做深拷贝，行为与数据库一致
type MemoryStore struct {
	mu   sync.RWMutex
	txs  map[string]*model.Transaction
	seq  map[string]int
	next int
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		txs: make(map[string]*model.Transaction),
		seq: make(map[string]int),
		now: time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, tx *model.Transaction) error {
	tx.Prepare()
	now := s.now()
	tx.CreatedAt, tx.UpdatedAt = now, now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[tx.ID] = tx.Clone()
	s.seq[tx.ID] = s.next
	s.next++
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return tx.Clone(), nil
}

func (s *MemoryStore) FindByUserAddress(_ context.Context, userAddress string) ([]model.Transaction, error) {
	out := s.filter(func(tx *model.Transaction) bool { return tx.UserAddress == userAddress })
	// 与数据库实现一致: 最新的在前
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// FindByChainAndStatus 内存实现按写入顺序分页，after 只看 ID
func (s *MemoryStore) FindByChainAndStatus(_ context.Context, chainID string, status model.Status, after ScanCursor, limit int) ([]model.Transaction, error) {
	from := -1
	if !after.IsZero() {
		s.mu.RLock()
		seq, ok := s.seq[after.ID]
		s.mu.RUnlock()
		if !ok {
			return []model.Transaction{}, nil
		}
		from = seq
	}
	out := s.filter(func(tx *model.Transaction) bool {
		return tx.ChainID == chainID && tx.Status == status && s.seq[tx.ID] > from
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, tx *model.Transaction, expected model.Status) error {
	if err := validateUpdate(tx, expected); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.txs[tx.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != expected {
		return ErrStaleStatus
	}

	tx.UpdatedAt = s.now()
	next := cur.Clone()
	next.TxHash = tx.TxHash
	next.QueueCursor = tx.QueueCursor
	next.BlockNumber = tx.BlockNumber
	next.Nonce = tx.Nonce
	next.SenderAddress = tx.SenderAddress
	next.Status = tx.Status
	next.UpdatedAt = tx.UpdatedAt
	s.txs[tx.ID] = next.Clone()
	return nil
}

// Put 直接写入记录，测试用来构造任意状态
func (s *MemoryStore) Put(tx *model.Transaction) {
	tx.Prepare()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seq[tx.ID]; !ok {
		s.seq[tx.ID] = s.next
		s.next++
	}
	s.txs[tx.ID] = tx.Clone()
}

func (s *MemoryStore) filter(match func(*model.Transaction) bool) []model.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Transaction, 0)
	for _, tx := range s.txs {
		if match(tx) {
			out = append(out, *tx.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.seq[out[i].ID] < s.seq[out[j].ID] })
	return out
}

// MemoryCheckpointStore 内存检查点
type MemoryCheckpointStore struct {
	mu      sync.Mutex
	cursors map[string]string
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{cursors: make(map[string]string)}
}

func (s *MemoryCheckpointStore) LoadCursor(_ context.Context, name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cursors[name]
	return c, ok, nil
}

func (s *MemoryCheckpointStore) SaveCursor(_ context.Context, name, cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[name] = cursor
	return nil
}
