package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStreamQueue 基于 XADD / XREAD BLOCK / XDEL
// 与事件总线不同，这里不使用消费组，游标由 worker 自己维护
type RedisStreamQueue struct {
	client *redis.Client
	stream string
}

func NewRedisStreamQueue(client *redis.Client, stream string) *RedisStreamQueue {
	return &RedisStreamQueue{client: client, stream: stream}
}

func (q *RedisStreamQueue) Enqueue(ctx context.Context, f Fields) (string, error) {
	values, err := f.Values()
	if err != nil {
		return "", err
	}
	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", f.TransactionID, err)
	}
	return id, nil
}

func (q *RedisStreamQueue) ReadNext(ctx context.Context, after string, block time.Duration) (*Entry, error) {
	if after == "" {
		after = StartCursor
	}
	switch {
	case block <= 0:
		block = -1 // 不阻塞
	case block < time.Millisecond:
		block = time.Millisecond // BLOCK 0 表示永久阻塞
	}

	res, err := q.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{q.stream, after},
		Count:   1,
		Block:   block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s after %s: %w", q.stream, after, err)
	}

	for _, s := range res {
		for _, m := range s.Messages {
			raw := make(map[string]string, len(m.Values))
			for k, v := range m.Values {
				raw[k] = fmt.Sprint(v)
			}
			return &Entry{Cursor: m.ID, Raw: raw}, nil
		}
	}
	return nil, nil
}

func (q *RedisStreamQueue) Delete(ctx context.Context, cursor string) error {
	if err := q.client.XDel(ctx, q.stream, cursor).Err(); err != nil {
		return fmt.Errorf("delete %s from %s: %w", cursor, q.stream, err)
	}
	return nil
}
