package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Status 交易生命周期状态
type Status string

const (
	StatusPendingSign Status = "PENDING_SIGN"
	StatusPending     Status = "PENDING"
	StatusConfirmed   Status = "CONFIRMED"
	StatusFailed      Status = "FAILED"
	StatusReorged     Status = "REORGED"
)

// transitions 允许的状态迁移
//
//	PENDING_SIGN -> PENDING | FAILED
//	PENDING      -> CONFIRMED | FAILED | REORGED
//	REORGED      -> PENDING_SIGN | FAILED
var transitions = map[Status][]Status{
	StatusPendingSign: {StatusPending, StatusFailed},
	StatusPending:     {StatusConfirmed, StatusFailed, StatusReorged},
	StatusReorged:     {StatusPendingSign, StatusFailed},
}

// CanTransition 判断 from -> to 是否是合法迁移
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusPendingSign, StatusPending, StatusConfirmed, StatusFailed, StatusReorged:
		return true
	}
	return false
}

// IsTerminal CONFIRMED 和 FAILED 不会再变化
func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// Transaction 交易记录表
type Transaction struct {
	ID              string   `gorm:"type:uuid;primaryKey" json:"id"`
	UserAddress     string   `gorm:"type:varchar(64);not null;index" json:"userAddress"`
	ChainID         string   `gorm:"type:varchar(32);not null;index:idx_chain_status" json:"chainId"` // hex chain id, e.g. 0x61
	ContractAddress string   `gorm:"type:varchar(64);not null" json:"contractAddress"`
	Method          string   `gorm:"type:varchar(255);not null" json:"method"`
	Args            []string `gorm:"type:jsonb;serializer:json;not null" json:"args"`

	TxHash        *string `gorm:"type:varchar(80)" json:"txHash"`
	QueueCursor   *string `gorm:"type:varchar(64)" json:"queueCursor,omitempty"` // 对应 SubmissionQueue 中的 entry id
	BlockNumber   *uint64 `json:"blockNumber"`
	Nonce         *uint64 `json:"nonce"`
	SenderAddress *string `gorm:"type:varchar(64)" json:"senderAddress,omitempty"` // 实际消耗 nonce 的签名地址

	Status    Status    `gorm:"type:varchar(20);not null;index:idx_chain_status" json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// BeforeCreate 生成 uuid 并设置初始状态
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	t.Prepare()
	return nil
}

// Prepare 补全 id 和初始状态，gorm 和内存实现共用
func (t *Transaction) Prepare() {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = StatusPendingSign
	}
	if t.Args == nil {
		t.Args = []string{}
	}
}

// Clone 深拷贝，避免调用方共享指针字段
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	c := *t
	c.Args = append([]string(nil), t.Args...)
	c.TxHash = cloneString(t.TxHash)
	c.QueueCursor = cloneString(t.QueueCursor)
	c.SenderAddress = cloneString(t.SenderAddress)
	c.BlockNumber = cloneUint64(t.BlockNumber)
	c.Nonce = cloneUint64(t.Nonce)
	return &c
}

// Transition 校验并修改状态，不持久化
func (t *Transaction) Transition(to Status) error {
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("illegal status transition %s -> %s for %s", t.Status, to, t.ID)
	}
	t.Status = to
	return nil
}

// NonceAccount 用于 nonce 比较的账户，优先签名地址
func (t *Transaction) NonceAccount() string {
	if t.SenderAddress != nil && *t.SenderAddress != "" {
		return *t.SenderAddress
	}
	return t.UserAddress
}

func StringPtr(s string) *string { return &s }

func Uint64Ptr(v uint64) *uint64 { return &v }

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneUint64(p *uint64) *uint64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
