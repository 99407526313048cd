package mq

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBus 进程内总线，用于测试
// 每个消费组独立收到所有消息
type MemoryBus struct {
	mu        sync.Mutex
	published []Message
	groups    map[string]chan Message
	seq       int
	FailWith  error // 非 nil 时 Publish 返回该错误
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{groups: make(map[string]chan Message)}
}

func (b *MemoryBus) Publish(_ context.Context, topic string, key string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailWith != nil {
		return b.FailWith
	}

	b.seq++
	msg := Message{
		ID:      fmt.Sprintf("%d-0", b.seq),
		Topic:   topic,
		Key:     key,
		Payload: append([]byte(nil), payload...),
	}
	b.published = append(b.published, msg)
	for _, ch := range b.groups {
		select {
		case ch <- msg:
		default: // 测试里不消费的组直接丢弃
		}
	}
	return nil
}

func (b *MemoryBus) Close() error { return nil }

// Published 已发布消息，可按 topic 过滤
func (b *MemoryBus) Published(topic string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, 0, len(b.published))
	for _, m := range b.published {
		if topic == "" || m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// Consumer 返回某个消费组的消费者，需在 Publish 之前创建
func (b *MemoryBus) Consumer(group string) Consumer {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.groups[group]
	if !ok {
		ch = make(chan Message, 256)
		b.groups[group] = ch
	}
	return &memoryConsumer{ch: ch}
}

type memoryConsumer struct {
	ch chan Message
}

func (c *memoryConsumer) Subscribe(ctx context.Context, topics []string, handler Handler) error {
	want := make(map[string]bool, len(topics))
	for _, t := range topics {
		want[t] = true
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-c.ch:
			if !want[m.Topic] {
				continue
			}
			msg := m
			_ = handler(ctx, &msg)
		}
	}
}

func (c *memoryConsumer) Close() error { return nil }
