package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/IlliaDrahun/multichain/pkg/logger"
)

// RedisProducer 实现 Producer 接口
type RedisProducer struct {
	client *redis.Client
}

// NewRedisProducer 创建 Redis 生产者
func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{client: client}
}

// Publish 发送消息到 Redis Stream，Stream Name = topic
func (p *RedisProducer) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{
			"key":     key,
			"payload": payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis xadd error: %w", err)
	}
	return nil
}

// Close 连接由调用方统一管理
func (p *RedisProducer) Close() error { return nil }

// RedisConsumer 实现 Consumer 接口 (消费组)
type RedisConsumer struct {
	client *redis.Client
	group  string
	name   string
	block  time.Duration
}

// NewRedisConsumer 创建 Redis 消费者
func NewRedisConsumer(client *redis.Client, group, name string) *RedisConsumer {
	return &RedisConsumer{
		client: client,
		group:  group,
		name:   name,
		block:  2 * time.Second,
	}
}

// Subscribe 订阅多个 Redis Stream
// 启动时先重放本消费者未 ACK 的消息，再读取新消息
func (c *RedisConsumer) Subscribe(ctx context.Context, topics []string, handler Handler) error {
	if len(topics) == 0 {
		return errors.New("no topics to subscribe")
	}

	// 1. 创建 Consumer Group (如果不存在)
	for _, topic := range topics {
		err := c.client.XGroupCreateMkStream(ctx, topic, c.group, "$").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("创建消费者组失败: %w", err)
		}
	}
	logger.Info("[Redis MQ] 开始监听", zap.Strings("topics", topics), zap.String("group", c.group))

	// 2. 先处理 pending，再处理新消息
	pending := true
	for {
		if ctx.Err() != nil {
			return nil
		}

		id := ">"
		if pending {
			id = "0"
		}
		streams := make([]string, 0, len(topics)*2)
		streams = append(streams, topics...)
		for range topics {
			streams = append(streams, id)
		}

		res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  streams,
			Count:    100,
			Block:    c.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue // 超时无消息
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("[Redis MQ] 读取消息错误", zap.Error(err))
			sleepCtx(ctx, time.Second)
			continue
		}

		// pending 只重放一轮，仍失败的留到下次重启
		pending = false
		for _, stream := range res {
			for _, xm := range stream.Messages {
				c.dispatch(ctx, stream.Stream, xm, handler)
			}
		}
	}
}

func (c *RedisConsumer) dispatch(ctx context.Context, topic string, xm redis.XMessage, handler Handler) {
	val, ok := xm.Values["payload"].(string)
	if !ok {
		logger.Warn("[Redis MQ] 消息格式错误: payload 缺失", zap.String("topic", topic), zap.String("id", xm.ID))
		c.ack(ctx, topic, xm.ID)
		return
	}
	key, _ := xm.Values["key"].(string)

	msg := &Message{ID: xm.ID, Topic: topic, Key: key, Payload: []byte(val)}
	if err := handler(ctx, msg); err != nil {
		logger.Warn("[Redis MQ] 消息处理失败", zap.String("topic", topic), zap.String("id", xm.ID), zap.Error(err))
		return
	}
	c.ack(ctx, topic, xm.ID)
}

func (c *RedisConsumer) ack(ctx context.Context, topic, id string) {
	if err := c.client.XAck(ctx, topic, c.group, id).Err(); err != nil {
		logger.Warn("[Redis MQ] ACK 失败", zap.String("topic", topic), zap.String("id", id), zap.Error(err))
	}
}

// Close 连接由调用方统一管理
func (c *RedisConsumer) Close() error { return nil }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
