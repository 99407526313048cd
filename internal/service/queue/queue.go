// Package queue 待签名交易队列 (tx:to-sign)
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StartCursor 从队列开头读取
const StartCursor = "0"

var ErrMalformedEntry = errors.New("malformed queue entry")

// Fields 队列中的扁平字段
type Fields struct {
	TransactionID   string
	ChainID         string
	ContractAddress string
	Method          string
	Args            []string
	UserAddress     string
}

// Entry 一条队列消息，Raw 为原始字段
type Entry struct {
	Cursor string
	Raw    map[string]string
}

// Queue 有序、至少一次投递的队列
// 读取不会删除消息，由 watcher/resolver 在终态时显式 Delete
type Queue interface {
	Enqueue(ctx context.Context, f Fields) (string, error)
	// ReadNext 读取 after 之后的第一条消息，block 内无消息返回 nil, nil
	ReadNext(ctx context.Context, after string, block time.Duration) (*Entry, error)
	Delete(ctx context.Context, cursor string) error
}

// Values 按固定顺序展开为 field/value 列表
func (f Fields) Values() ([]string, error) {
	args := f.Args
	if args == nil {
		args = []string{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return []string{
		"transactionId", f.TransactionID,
		"chainId", f.ChainID,
		"contractAddress", f.ContractAddress,
		"method", f.Method,
		"args", string(raw),
		"userAddress", f.UserAddress,
	}, nil
}

// Decode 解析字段，缺字段或 args 不是字符串数组时返回 ErrMalformedEntry
func (e *Entry) Decode() (Fields, error) {
	get := func(name string) (string, error) {
		v, ok := e.Raw[name]
		if !ok || v == "" {
			return "", fmt.Errorf("%w: %s missing field %s", ErrMalformedEntry, e.Cursor, name)
		}
		return v, nil
	}

	var f Fields
	var err error
	if f.TransactionID, err = get("transactionId"); err != nil {
		return Fields{}, err
	}
	if f.ChainID, err = get("chainId"); err != nil {
		return Fields{}, err
	}
	if f.ContractAddress, err = get("contractAddress"); err != nil {
		return Fields{}, err
	}
	if f.Method, err = get("method"); err != nil {
		return Fields{}, err
	}
	rawArgs, err := get("args")
	if err != nil {
		return Fields{}, err
	}
	if err := json.Unmarshal([]byte(rawArgs), &f.Args); err != nil {
		return Fields{}, fmt.Errorf("%w: %s args: %v", ErrMalformedEntry, e.Cursor, err)
	}
	// userAddress 可以为空，resolver 会跳过缺少 userAddress 的记录
	f.UserAddress = e.Raw["userAddress"]
	return f, nil
}

// CompareCursor 比较 stream id "ms-seq"，无法解析的按字符串比较
func CompareCursor(a, b string) int {
	am, as, aok := splitCursor(a)
	bm, bs, bok := splitCursor(b)
	if !aok || !bok {
		return strings.Compare(a, b)
	}
	switch {
	case am != bm:
		if am < bm {
			return -1
		}
		return 1
	case as != bs:
		if as < bs {
			return -1
		}
		return 1
	}
	return 0
}

func splitCursor(c string) (uint64, uint64, bool) {
	ms, seq, found := strings.Cut(c, "-")
	m, err := strconv.ParseUint(ms, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if !found {
		return m, 0, true
	}
	s, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return m, s, true
}
