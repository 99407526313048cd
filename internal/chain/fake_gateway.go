package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

// FakeGateway 内存中的链，测试里按需设置回执、区块和 nonce
type FakeGateway struct {
	mu sync.Mutex

	ID     string
	Signer string

	EstimateErr error
	// SendErrs 依次作为每次 Send 的返回错误，用完后 Send 成功
	SendErrs  []error
	NextNonce uint64

	Receipts        map[string]*Receipt
	FinalizedHeight uint64
	Blocks          map[uint64][]string
	Nonces          map[string]uint64

	EstimateCalls int
	SendCalls     int
	Sent          []CallRequest
}

func NewFakeGateway(chainID string) *FakeGateway {
	return &FakeGateway{
		ID:       chainID,
		Signer:   "0x00000000000000000000000000000000000000A1",
		Receipts: make(map[string]*Receipt),
		Blocks:   make(map[uint64][]string),
		Nonces:   make(map[string]uint64),
	}
}

func (f *FakeGateway) ChainID() string { return f.ID }

func (f *FakeGateway) SignerAddress() string { return f.Signer }

func (f *FakeGateway) EstimateGas(_ context.Context, call CallRequest) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.EstimateCalls++
	if f.EstimateErr != nil {
		return 0, f.EstimateErr
	}
	return 21000 + uint64(len(call.Args))*1000, nil
}

func (f *FakeGateway) Send(_ context.Context, call CallRequest, _ uint64) (*SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SendCalls++
	if len(f.SendErrs) > 0 {
		err := f.SendErrs[0]
		f.SendErrs = f.SendErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	nonce := f.NextNonce
	f.NextNonce++
	f.Sent = append(f.Sent, call)
	return &SendResult{
		TxHash: FakeTxHash(f.ID, nonce, f.SendCalls),
		Nonce:  nonce,
		From:   f.Signer,
	}, nil
}

func (f *FakeGateway) Receipt(_ context.Context, txHash string) (*Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.Receipts[strings.ToLower(txHash)]
	if !ok {
		return nil, nil
	}
	c := *r
	return &c, nil
}

func (f *FakeGateway) IsBlockFinalized(_ context.Context, blockNumber uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.FinalizedHeight >= blockNumber, nil
}

func (f *FakeGateway) BlockTransactionHashes(_ context.Context, blockNumber uint64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hashes, ok := f.Blocks[blockNumber]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrBlockNotFound, blockNumber)
	}
	return append([]string(nil), hashes...), nil
}

func (f *FakeGateway) NonceAt(_ context.Context, account string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Nonces[strings.ToLower(account)], nil
}

// SetReceipt 登记回执
func (f *FakeGateway) SetReceipt(r Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Receipts[strings.ToLower(r.TxHash)] = &r
}

func (f *FakeGateway) SetNonce(account string, nonce uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Nonces[strings.ToLower(account)] = nonce
}

func (f *FakeGateway) SetBlock(number uint64, hashes ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Blocks[number] = hashes
}

func (f *FakeGateway) Calls() (estimate, send int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.EstimateCalls, f.SendCalls
}

// FakeTxHash 确定性的伪交易哈希
func FakeTxHash(chainID string, nonce uint64, seq int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s-%d-%d", chainID, nonce, seq)))
	return "0x" + hex.EncodeToString(sum[:])
}
