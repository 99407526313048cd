package mq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/IlliaDrahun/multichain/pkg/logger"
)

const (
	TypeKafka = "kafka"
	TypeRedis = "redis"
)

// RetryPolicy 连接重试策略: 初始 2s, ×1.5, 上限 30s, 最多 10 次
type RetryPolicy struct {
	MaxAttempts int
	Min         time.Duration
	Max         time.Duration
	Factor      float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 10, Min: 2 * time.Second, Max: 30 * time.Second, Factor: 1.5}
}

// Options 事件总线连接参数
type Options struct {
	Type    string
	Brokers []string
	Redis   *redis.Client
	Topics  []string // kafka 模式下启动时确保存在
	Retry   RetryPolicy

	// Sleep 可注入，测试时跳过真实等待
	Sleep func(ctx context.Context, d time.Duration) error
}

// Retry 按策略重试 fn，全部失败返回 ErrUnavailable
func Retry(ctx context.Context, name string, policy RetryPolicy, sleep func(context.Context, time.Duration) error, fn func(context.Context) error) error {
	if sleep == nil {
		sleep = sleepCtx
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	b := &backoff.Backoff{Min: policy.Min, Max: policy.Max, Factor: policy.Factor}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if lastErr = fn(ctx); lastErr == nil {
			if attempt > 1 {
				logger.Info("Connected after retry", zap.String("target", name), zap.Int("attempt", attempt))
			}
			return nil
		}
		if attempt == policy.MaxAttempts {
			break
		}

		wait := b.Duration()
		logger.Warn("Connection failed, retrying",
			zap.String("target", name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(lastErr))
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, name, lastErr)
}

// ConnectProducer 建立连接并返回 Producer
// 返回 ErrUnavailable 时调用方应继续运行 (降级模式)
func ConnectProducer(ctx context.Context, opts Options) (Producer, error) {
	if err := Retry(ctx, "bus:"+opts.Type, opts.Retry, opts.Sleep, ping(opts)); err != nil {
		return nil, err
	}
	switch opts.Type {
	case TypeRedis:
		return NewRedisProducer(opts.Redis), nil
	default:
		return NewKafkaProducer(opts.Brokers), nil
	}
}

// ConnectConsumer 建立连接并返回指定消费组的 Consumer
func ConnectConsumer(ctx context.Context, opts Options, group, name string) (Consumer, error) {
	if err := Retry(ctx, "bus:"+opts.Type, opts.Retry, opts.Sleep, ping(opts)); err != nil {
		return nil, err
	}
	switch opts.Type {
	case TypeRedis:
		return NewRedisConsumer(opts.Redis, group, name), nil
	default:
		return NewKafkaConsumer(opts.Brokers, group), nil
	}
}

func ping(opts Options) func(context.Context) error {
	switch opts.Type {
	case TypeRedis:
		return func(ctx context.Context) error {
			if opts.Redis == nil {
				return errors.New("redis client not configured")
			}
			return opts.Redis.Ping(ctx).Err()
		}
	case TypeKafka, "":
		return func(ctx context.Context) error {
			return ensureKafkaTopics(ctx, opts.Brokers, opts.Topics)
		}
	default:
		return func(context.Context) error {
			return fmt.Errorf("unknown bus type %q", opts.Type)
		}
	}
}

// ensureKafkaTopics 连接 controller 并创建缺失的 topic
func ensureKafkaTopics(ctx context.Context, brokers []string, topics []string) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(dialCtx, "tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	if len(topics) == 0 {
		return nil
	}

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	cc, err := kafka.DialContext(dialCtx, "tcp", net.JoinHostPort(controller.Host, fmt.Sprint(controller.Port)))
	if err != nil {
		return err
	}
	defer cc.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, t := range topics {
		configs = append(configs, kafka.TopicConfig{Topic: t, NumPartitions: 1, ReplicationFactor: 1})
	}
	if err := cc.CreateTopics(configs...); err != nil && !strings.Contains(err.Error(), "already exists") {
		return err
	}
	return nil
}
