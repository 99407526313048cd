package event

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/IlliaDrahun/multichain/internal/model"
	"github.com/IlliaDrahun/multichain/internal/service/mq"
	"github.com/IlliaDrahun/multichain/pkg/logger"
	"github.com/IlliaDrahun/multichain/pkg/monitor"
)

// Publisher 发布生命周期事件，尽力而为: 失败只记录日志，不影响状态变更
// producer 为 nil 表示总线不可用 (降级模式)
type Publisher struct {
	producer mq.Producer
}

func NewPublisher(producer mq.Producer) *Publisher {
	return &Publisher{producer: producer}
}

func (p *Publisher) PublishSent(ctx context.Context, tx *model.Transaction) {
	if tx.TxHash == nil {
		return
	}
	p.publish(ctx, TxSentEvent{TransactionID: tx.ID, TxHash: *tx.TxHash})
}

func (p *Publisher) PublishStatus(ctx context.Context, tx *model.Transaction, reason Reason) {
	p.publish(ctx, NewTxStatusEvent(tx, reason))
}

func (p *Publisher) publish(ctx context.Context, e Event) {
	if p == nil || p.producer == nil {
		logger.Warn("Event bus unavailable, event dropped",
			zap.String("topic", e.Topic()), zap.String("tx_id", e.TxID()))
		return
	}

	payload, err := json.Marshal(e)
	if err != nil {
		logger.Error("Marshal event failed", zap.String("topic", e.Topic()), zap.Error(err))
		return
	}
	if err := p.producer.Publish(ctx, e.Topic(), e.TxID(), payload); err != nil {
		monitor.Business.RecordPublishFailure(e.Topic())
		logger.Error("Publish event failed",
			zap.String("topic", e.Topic()), zap.String("tx_id", e.TxID()), zap.Error(err))
	}
}
