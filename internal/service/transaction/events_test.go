package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/IlliaDrahun/multichain/internal/event"
	"github.com/IlliaDrahun/multichain/internal/model"
	"github.com/IlliaDrahun/multichain/internal/service/mq"
	"github.com/IlliaDrahun/multichain/internal/service/notify"
	"github.com/IlliaDrahun/multichain/internal/store"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(userAddress, eventName string, payload interface{}) {
	m.Called(userAddress, eventName, payload)
}

type mockLookup struct {
	mock.Mock
}

func (m *mockLookup) Get(ctx context.Context, id string) (*model.Transaction, error) {
	args := m.Called(ctx, id)
	tx, _ := args.Get(0).(*model.Transaction)
	return tx, args.Error(1)
}

func statusMessage(t *testing.T, status model.Status, reason event.Reason) *mq.Message {
	t.Helper()
	payload, err := json.Marshal(event.TxStatusEvent{
		TransactionID: "t1",
		Status:        status,
		TxHash:        model.StringPtr("0xabc"),
		Reason:        reason,
	})
	require.NoError(t, err)
	return &mq.Message{ID: "1-0", Topic: event.TopicTxStatus, Payload: payload}
}

func TestEventHandlerNotifies(t *testing.T) {
	tests := []struct {
		name   string
		status model.Status
		want   string
	}{
		{name: "confirmed", status: model.StatusConfirmed, want: notify.EventStatusUpdate},
		{name: "reorged", status: model.StatusReorged, want: notify.EventReorged},
		{name: "resubmitted", status: model.StatusPendingSign, want: notify.EventStatusUpdate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := new(mockLookup)
			notifier := new(mockNotifier)
			lookup.On("Get", mock.Anything, "t1").Return(&model.Transaction{ID: "t1", UserAddress: "0xU"}, nil)
			notifier.On("Notify", "0xU", tt.want, mock.AnythingOfType("event.TxStatusEvent")).Once()

			h := NewEventHandler(lookup, notifier, time.Minute)
			require.NoError(t, h.Handle(context.Background(), statusMessage(t, tt.status, "")))

			notifier.AssertExpectations(t)
		})
	}
}

func TestEventHandlerSent(t *testing.T) {
	lookup := new(mockLookup)
	notifier := new(mockNotifier)
	lookup.On("Get", mock.Anything, "t1").Return(&model.Transaction{ID: "t1", UserAddress: "0xU"}, nil)
	notifier.On("Notify", "0xU", notify.EventStatusUpdate, event.TxSentEvent{TransactionID: "t1", TxHash: "0xabc"}).Once()

	h := NewEventHandler(lookup, notifier, time.Minute)
	msg := &mq.Message{Topic: event.TopicTxSent, Payload: []byte(`{"transactionId":"t1","txHash":"0xabc"}`)}
	require.NoError(t, h.Handle(context.Background(), msg))

	notifier.AssertExpectations(t)
}

func TestEventHandlerDeduplicates(t *testing.T) {
	lookup := new(mockLookup)
	notifier := new(mockNotifier)
	lookup.On("Get", mock.Anything, "t1").Return(&model.Transaction{ID: "t1", UserAddress: "0xU"}, nil)
	notifier.On("Notify", "0xU", notify.EventStatusUpdate, mock.Anything).Once()

	h := NewEventHandler(lookup, notifier, time.Minute)
	msg := statusMessage(t, model.StatusConfirmed, "")
	require.NoError(t, h.Handle(context.Background(), msg))
	require.NoError(t, h.Handle(context.Background(), msg))

	notifier.AssertNumberOfCalls(t, "Notify", 1)
}

func TestEventHandlerDiscardsMalformed(t *testing.T) {
	lookup := new(mockLookup)
	notifier := new(mockNotifier)
	h := NewEventHandler(lookup, notifier, time.Minute)

	for _, msg := range []*mq.Message{
		{Topic: event.TopicTxStatus, Payload: []byte(`{"transactionId":"t1","status":"DONE"}`)},
		{Topic: event.TopicTxSent, Payload: []byte(`{"transactionId":"t1","txHash":"0x1","extra":true}`)},
		{Topic: "tx.other", Payload: []byte(`{}`)},
		{Topic: event.TopicTxSent, Payload: []byte(`not json`)},
	} {
		assert.NoError(t, h.Handle(context.Background(), msg))
	}

	lookup.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
}

func TestEventHandlerLookupErrors(t *testing.T) {
	t.Run("unknown record is dropped", func(t *testing.T) {
		lookup := new(mockLookup)
		notifier := new(mockNotifier)
		lookup.On("Get", mock.Anything, "t1").Return(nil, store.ErrNotFound)

		h := NewEventHandler(lookup, notifier, time.Minute)
		assert.NoError(t, h.Handle(context.Background(), statusMessage(t, model.StatusConfirmed, "")))
		notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("store error is retried", func(t *testing.T) {
		lookup := new(mockLookup)
		notifier := new(mockNotifier)
		boom := errors.New("db down")
		lookup.On("Get", mock.Anything, "t1").Return(nil, boom).Once()
		lookup.On("Get", mock.Anything, "t1").Return(&model.Transaction{ID: "t1", UserAddress: "0xU"}, nil).Once()
		notifier.On("Notify", "0xU", notify.EventStatusUpdate, mock.Anything).Once()

		h := NewEventHandler(lookup, notifier, time.Minute)
		msg := statusMessage(t, model.StatusConfirmed, "")
		assert.ErrorIs(t, h.Handle(context.Background(), msg), boom)
		// 失败的消息不进入去重缓存
		assert.NoError(t, h.Handle(context.Background(), msg))
		notifier.AssertExpectations(t)
	})
}

func TestEventHandlerWithMemoryBus(t *testing.T) {
	bus := mq.NewMemoryBus()
	consumer := bus.Consumer("tx-api")
	lookup := new(mockLookup)
	notifier := new(mockNotifier)
	notified := make(chan struct{})
	lookup.On("Get", mock.Anything, "t1").Return(&model.Transaction{ID: "t1", UserAddress: "0xU"}, nil)
	notifier.On("Notify", "0xU", notify.EventStatusUpdate, mock.Anything).
		Run(func(mock.Arguments) { close(notified) }).Once()

	h := NewEventHandler(lookup, notifier, time.Minute)
	publisher := event.NewPublisher(bus)
	publisher.PublishSent(context.Background(), &model.Transaction{ID: "t1", TxHash: model.StringPtr("0xabc")})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Subscribe(ctx, Topics, h.Handle) }()

	select {
	case <-notified:
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
	cancel()
	require.NoError(t, <-done)
}
