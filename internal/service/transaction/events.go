package transaction

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/IlliaDrahun/multichain/internal/event"
	"github.com/IlliaDrahun/multichain/internal/model"
	"github.com/IlliaDrahun/multichain/internal/service/mq"
	"github.com/IlliaDrahun/multichain/internal/service/notify"
	"github.com/IlliaDrahun/multichain/internal/store"
	"github.com/IlliaDrahun/multichain/pkg/logger"
)

// Topics API 进程订阅的事件
var Topics = []string{event.TopicTxSent, event.TopicTxStatus}

// Lookup 按 id 查询记录
type Lookup interface {
	Get(ctx context.Context, id string) (*model.Transaction, error)
}

// EventHandler 把 tx.sent / tx.status 推送给用户，只读不写记录
type EventHandler struct {
	lookup   Lookup
	notifier notify.Notifier
	// seen 至少一次投递下的重复消息去重
	seen *gocache.Cache
}

func NewEventHandler(lookup Lookup, notifier notify.Notifier, dedupeTTL time.Duration) *EventHandler {
	return &EventHandler{
		lookup:   lookup,
		notifier: notifier,
		seen:     gocache.New(dedupeTTL, 2*dedupeTTL),
	}
}

// Handle 作为 mq.Handler 使用
// 负载格式不符直接丢弃，查询失败返回 error 让消息重新投递
func (h *EventHandler) Handle(ctx context.Context, msg *mq.Message) error {
	e, err := event.Decode(msg.Topic, msg.Payload)
	if err != nil {
		logger.Warn("Discarding malformed event",
			zap.String("topic", msg.Topic), zap.String("msg_id", msg.ID), zap.Error(err))
		return nil
	}

	key := msg.Topic + "|" + string(msg.Payload)
	if _, dup := h.seen.Get(key); dup {
		logger.Debug("Duplicate event skipped", zap.String("topic", msg.Topic), zap.String("tx_id", e.TxID()))
		return nil
	}

	tx, err := h.lookup.Get(ctx, e.TxID())
	if errors.Is(err, store.ErrNotFound) {
		logger.Warn("Event for unknown transaction", zap.String("topic", msg.Topic), zap.String("tx_id", e.TxID()))
		return nil
	}
	if err != nil {
		return err
	}

	h.notifier.Notify(tx.UserAddress, eventName(e), e)
	h.seen.SetDefault(key, struct{}{})
	return nil
}

func eventName(e event.Event) string {
	if s, ok := e.(event.TxStatusEvent); ok && s.Status == model.StatusReorged {
		return notify.EventReorged
	}
	return notify.EventStatusUpdate
}
