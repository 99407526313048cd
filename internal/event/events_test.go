package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IlliaDrahun/multichain/internal/model"
	"github.com/IlliaDrahun/multichain/internal/service/mq"
)

func TestDecodeTxSent(t *testing.T) {
	e, err := Decode(TopicTxSent, []byte(`{"transactionId":"a","txHash":"0xabc"}`))
	require.NoError(t, err)
	sent, ok := e.(TxSentEvent)
	require.True(t, ok)
	assert.Equal(t, "0xabc", sent.TxHash)
	assert.Equal(t, "a", sent.TxID())
}

func TestDecodeTxStatus(t *testing.T) {
	e, err := Decode(TopicTxStatus, []byte(`{"transactionId":"a","status":"FAILED","txHash":"0xabc","blockNumber":100,"reason":"nonce_replaced"}`))
	require.NoError(t, err)
	st, ok := e.(TxStatusEvent)
	require.True(t, ok)
	assert.Equal(t, model.StatusFailed, st.Status)
	assert.Equal(t, ReasonNonceReplaced, st.Reason)
	assert.Equal(t, uint64(100), *st.BlockNumber)

	e, err = Decode(TopicTxStatus, []byte(`{"transactionId":"a","status":"PENDING_SIGN","txHash":null}`))
	require.NoError(t, err)
	assert.Nil(t, e.(TxStatusEvent).TxHash)
}

func TestDecodeFailsClosed(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		wantErr error
	}{
		{"unknown topic", "tx.other", `{}`, ErrUnknownTopic},
		{"not json", TopicTxSent, `nope`, ErrInvalidPayload},
		{"missing hash", TopicTxSent, `{"transactionId":"a"}`, ErrInvalidPayload},
		{"status shape on sent", TopicTxSent, `{"transactionId":"a","status":"PENDING"}`, ErrInvalidPayload},
		{"unknown field", TopicTxStatus, `{"transactionId":"a","status":"PENDING","extra":1}`, ErrInvalidPayload},
		{"unknown status", TopicTxStatus, `{"transactionId":"a","status":"DONE"}`, ErrInvalidPayload},
		{"unknown reason", TopicTxStatus, `{"transactionId":"a","status":"FAILED","reason":"why"}`, ErrInvalidPayload},
		{"missing id", TopicTxStatus, `{"status":"FAILED"}`, ErrInvalidPayload},
		{"trailing", TopicTxSent, `{"transactionId":"a","txHash":"0x1"}{}`, ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.topic, []byte(tt.payload))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPublisher(t *testing.T) {
	bus := mq.NewMemoryBus()
	p := NewPublisher(bus)
	ctx := context.Background()

	tx := &model.Transaction{
		ID:          "a",
		Status:      model.StatusConfirmed,
		TxHash:      model.StringPtr("0xabc"),
		BlockNumber: model.Uint64Ptr(100),
		UpdatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	p.PublishSent(ctx, tx)
	p.PublishStatus(ctx, tx, "")

	sent := bus.Published(TopicTxSent)
	require.Len(t, sent, 1)
	assert.Equal(t, "a", sent[0].Key)
	assert.JSONEq(t, `{"transactionId":"a","txHash":"0xabc"}`, string(sent[0].Payload))

	status := bus.Published(TopicTxStatus)
	require.Len(t, status, 1)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(status[0].Payload, &payload))
	assert.Equal(t, "CONFIRMED", payload["status"])
	assert.Equal(t, float64(100), payload["blockNumber"])
	assert.NotContains(t, payload, "reason")

	// 发布的消息能被 Decode 解回
	_, err := Decode(TopicTxStatus, status[0].Payload)
	assert.NoError(t, err)
}

func TestPublisherBestEffort(t *testing.T) {
	tx := &model.Transaction{ID: "a", Status: model.StatusFailed}

	bus := mq.NewMemoryBus()
	bus.FailWith = errors.New("broker down")
	assert.NotPanics(t, func() { NewPublisher(bus).PublishStatus(context.Background(), tx, "") })

	// 降级模式
	assert.NotPanics(t, func() { NewPublisher(nil).PublishStatus(context.Background(), tx, "") })

	// 没有 txHash 不发 tx.sent
	ok := mq.NewMemoryBus()
	NewPublisher(ok).PublishSent(context.Background(), tx)
	assert.Empty(t, ok.Published(""))
}
