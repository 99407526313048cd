package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryQueue 内存队列，语义与 Redis Stream 一致
type MemoryQueue struct {
	mu      sync.Mutex
	entries []Entry
	seq     uint64
	notify  chan struct{}
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{notify: make(chan struct{})}
}

func (q *MemoryQueue) Enqueue(_ context.Context, f Fields) (string, error) {
	values, err := f.Values()
	if err != nil {
		return "", err
	}
	raw := make(map[string]string, len(values)/2)
	for i := 0; i+1 < len(values); i += 2 {
		raw[values[i]] = values[i+1]
	}
	return q.EnqueueRaw(raw), nil
}

// EnqueueRaw 写入任意字段，测试用来构造格式错误的消息
func (q *MemoryQueue) EnqueueRaw(raw map[string]string) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	id := fmt.Sprintf("%d-0", q.seq)
	q.entries = append(q.entries, Entry{Cursor: id, Raw: raw})

	// 唤醒阻塞中的读取
	close(q.notify)
	q.notify = make(chan struct{})
	return id
}

func (q *MemoryQueue) ReadNext(ctx context.Context, after string, block time.Duration) (*Entry, error) {
	if after == "" {
		after = StartCursor
	}
	timer := time.NewTimer(block)
	defer timer.Stop()

	for {
		q.mu.Lock()
		for _, e := range q.entries {
			if CompareCursor(e.Cursor, after) > 0 {
				q.mu.Unlock()
				c := e
				return &c, nil
			}
		}
		wait := q.notify
		q.mu.Unlock()

		if block <= 0 {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-wait:
		}
	}
}

func (q *MemoryQueue) Delete(_ context.Context, cursor string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.Cursor == cursor {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

// Len 当前队列长度
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Cursors 当前所有消息 id
func (q *MemoryQueue) Cursors() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, e.Cursor)
	}
	return out
}
