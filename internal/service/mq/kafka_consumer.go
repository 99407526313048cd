package mq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/IlliaDrahun/multichain/pkg/logger"
)

// KafkaConsumer 实现 Consumer 接口
type KafkaConsumer struct {
	brokers []string
	groupID string
	reader  *kafka.Reader

	// 处理失败时原地重试，Kafka 无法单条 Nack
	retryAttempts int
	retryMin      time.Duration
	retryMax      time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
}

// NewKafkaConsumer 创建 Kafka 消费者
func NewKafkaConsumer(brokers []string, groupID string) *KafkaConsumer {
	return &KafkaConsumer{
		brokers:       brokers,
		groupID:       groupID,
		retryAttempts: 5,
		retryMin:      500 * time.Millisecond,
		retryMax:      10 * time.Second,
		sleep:         sleepCtx,
	}
}

// Subscribe 订阅多个 Kafka 主题，阻塞直到 ctx 取消
func (c *KafkaConsumer) Subscribe(ctx context.Context, topics []string, handler Handler) error {
	if len(topics) == 0 {
		return errors.New("no topics to subscribe")
	}

	// GroupID: 每个逻辑订阅者一个消费组
	// StartOffset: 新组从最新位置开始，已有组从提交的 offset 继续
	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.brokers,
		GroupID:     c.groupID,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		StartOffset: kafka.LastOffset,
	})
	defer c.reader.Close()

	logger.Info("[Kafka MQ] 开始监听", zap.Strings("topics", topics), zap.String("group", c.groupID))

	for {
		// 1. 读取消息 (阻塞直到有消息)
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("[Kafka MQ] 读取消息错误", zap.Error(err))
			sleepCtx(ctx, time.Second)
			continue
		}

		msg := &Message{
			ID:      fmt.Sprintf("%d/%d", m.Partition, m.Offset),
			Topic:   m.Topic,
			Key:     string(m.Key),
			Payload: m.Value,
		}

		// 2. 调用业务处理函数，失败时原地重试
		if err := c.handle(ctx, handler, msg); err != nil {
			if ctx.Err() != nil {
				// 未提交，重启后从该 offset 重新投递
				return nil
			}
			logger.Error("[Kafka MQ] 重试耗尽，丢弃消息", zap.String("topic", m.Topic), zap.String("id", msg.ID), zap.Error(err))
		}

		// 3. 手动提交 Offset
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			logger.Warn("[Kafka MQ] 提交 Offset 失败", zap.Error(err))
		}
	}
}

// handle 调用 handler，失败按退避重试 retryAttempts 次
func (c *KafkaConsumer) handle(ctx context.Context, handler Handler, msg *Message) error {
	attempts := c.retryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	b := &backoff.Backoff{Min: c.retryMin, Max: c.retryMax, Factor: 2}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = handler(ctx, msg); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		wait := b.Duration()
		logger.Warn("[Kafka MQ] 业务处理失败，稍后重试",
			zap.String("topic", msg.Topic), zap.String("id", msg.ID),
			zap.Int("attempt", attempt), zap.Duration("backoff", wait), zap.Error(err))
		if sleepErr := c.sleep(ctx, wait); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

// Close 关闭消费者
func (c *KafkaConsumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
