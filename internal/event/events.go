package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IlliaDrahun/multichain/internal/model"
)

// Topics
const (
	TopicTxSent   = "tx.sent"
	TopicTxStatus = "tx.status"
)

// Reason 附加在 tx.status 上的原因
type Reason string

const (
	ReasonNonceReplaced   Reason = "nonce_replaced"
	ReasonAutoResubmitted Reason = "auto_resubmitted"
)

var (
	ErrUnknownTopic   = errors.New("unknown event topic")
	ErrInvalidPayload = errors.New("invalid event payload")
)

// Event 按 topic 解码后的事件
type Event interface {
	Topic() string
	TxID() string
}

// TxSentEvent 交易广播成功
// Topic: tx.sent
type TxSentEvent struct {
	TransactionID string `json:"transactionId"`
	TxHash        string `json:"txHash"`
}

func (TxSentEvent) Topic() string  { return TopicTxSent }
func (e TxSentEvent) TxID() string { return e.TransactionID }

// TxStatusEvent 交易状态变化
// Topic: tx.status
type TxStatusEvent struct {
	TransactionID string       `json:"transactionId"`
	Status        model.Status `json:"status"`
	TxHash        *string      `json:"txHash"`
	BlockNumber   *uint64      `json:"blockNumber,omitempty"`
	UpdatedAt     *time.Time   `json:"updatedAt,omitempty"`
	Reason        Reason       `json:"reason,omitempty"`
}

func (TxStatusEvent) Topic() string  { return TopicTxStatus }
func (e TxStatusEvent) TxID() string { return e.TransactionID }

// NewTxStatusEvent 从记录当前状态构造事件
func NewTxStatusEvent(tx *model.Transaction, reason Reason) TxStatusEvent {
	updated := tx.UpdatedAt
	return TxStatusEvent{
		TransactionID: tx.ID,
		Status:        tx.Status,
		TxHash:        tx.TxHash,
		BlockNumber:   tx.BlockNumber,
		UpdatedAt:     &updated,
		Reason:        reason,
	}
}

// Decode 按 topic 解码，字段不符直接拒绝
func Decode(topic string, payload []byte) (Event, error) {
	switch topic {
	case TopicTxSent:
		var e TxSentEvent
		if err := strictUnmarshal(payload, &e); err != nil {
			return nil, err
		}
		if e.TransactionID == "" || e.TxHash == "" {
			return nil, fmt.Errorf("%w: tx.sent requires transactionId and txHash", ErrInvalidPayload)
		}
		return e, nil

	case TopicTxStatus:
		var e TxStatusEvent
		if err := strictUnmarshal(payload, &e); err != nil {
			return nil, err
		}
		if e.TransactionID == "" {
			return nil, fmt.Errorf("%w: tx.status requires transactionId", ErrInvalidPayload)
		}
		if !e.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidPayload, e.Status)
		}
		switch e.Reason {
		case "", ReasonNonceReplaced, ReasonAutoResubmitted:
		default:
			return nil, fmt.Errorf("%w: unknown reason %q", ErrInvalidPayload, e.Reason)
		}
		return e, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
}

func strictUnmarshal(payload []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", ErrInvalidPayload)
	}
	return nil
}
