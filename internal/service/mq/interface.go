package mq

import (
	"context"
	"errors"
)

// ErrUnavailable 连接重试耗尽，进程以降级模式运行
var ErrUnavailable = errors.New("event bus unavailable")

// Message 代表一条通用的业务消息
type Message struct {
	ID      string // 消息ID (Redis Stream ID 或 Kafka partition/offset)
	Topic   string // 主题 (例如 "tx.status")
	Key     string // 分区键，这里使用 transactionId 保证同一笔交易有序
	Payload []byte // 消息体 (JSON)
}

// Handler 返回 error 表示处理失败，消息不会被确认
type Handler func(ctx context.Context, msg *Message) error

// Producer 生产者接口
type Producer interface {
	// Publish 发送消息
	// key: 用于分区排序 (Partition Key). 传空字符串则随机分区.
	Publish(ctx context.Context, topic string, key string, payload []byte) error
	Close() error
}

// Consumer 消费者接口
// 每个逻辑订阅者使用独立的消费组，同一条消息对每个组各投递一次
type Consumer interface {
	// Subscribe 阻塞消费直到 ctx 取消
	Subscribe(ctx context.Context, topics []string, handler Handler) error
	Close() error
}
