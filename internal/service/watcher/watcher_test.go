package watcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IlliaDrahun/multichain/internal/chain"
	"github.com/IlliaDrahun/multichain/internal/event"
	"github.com/IlliaDrahun/multichain/internal/model"
	"github.com/IlliaDrahun/multichain/internal/service/mq"
	"github.com/IlliaDrahun/multichain/internal/service/queue"
	"github.com/IlliaDrahun/multichain/internal/store"
)

const (
	chainID  = "0x61"
	contract = "0x00000000000000000000000000000000000000C1"
	receiver = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
	user     = "0x00000000000000000000000000000000000000FF"
	signer   = "0x00000000000000000000000000000000000000A1"
)

type env struct {
	store    *store.MemoryStore
	queue    *queue.MemoryQueue
	gw       *chain.FakeGateway
	bus      *mq.MemoryBus
	watcher  *ConfirmationWatcher
	resolver *ReorgResolver
}

func newEnv(t *testing.T, opts Options) *env {
	t.Helper()
	e := &env{
		store: store.NewMemoryStore(),
		queue: queue.NewMemoryQueue(),
		gw:    chain.NewFakeGateway(chainID),
		bus:   mq.NewMemoryBus(),
	}
	registry := chain.NewRegistry(e.gw)
	publisher := event.NewPublisher(e.bus)
	e.watcher = NewConfirmationWatcher(e.store, e.queue, registry, publisher, opts)
	e.resolver = NewReorgResolver(e.store, e.queue, registry, publisher, opts.BatchSize)
	return e
}

// pending 构造一条已发送的 PENDING 记录及其队列消息
func (e *env) pending(t *testing.T, hash string, block *uint64) *model.Transaction {
	t.Helper()
	cursor, err := e.queue.Enqueue(context.Background(), queue.Fields{
		TransactionID: "tx-" + hash, ChainID: chainID, ContractAddress: contract,
		Method: "transfer", Args: []string{receiver, "1000"}, UserAddress: user,
	})
	require.NoError(t, err)

	tx := &model.Transaction{
		ID:              "tx-" + hash,
		UserAddress:     user,
		ChainID:         chainID,
		ContractAddress: contract,
		Method:          "transfer",
		Args:            []string{receiver, "1000"},
		TxHash:          model.StringPtr(hash),
		QueueCursor:     model.StringPtr(cursor),
		BlockNumber:     block,
		Nonce:           model.Uint64Ptr(5),
		SenderAddress:   model.StringPtr(signer),
		Status:          model.StatusPending,
	}
	e.store.Put(tx)
	return tx
}

func (e *env) get(t *testing.T, id string) *model.Transaction {
	t.Helper()
	tx, err := e.store.Get(context.Background(), id)
	require.NoError(t, err)
	return tx
}

func (e *env) statusEvents(t *testing.T) []event.TxStatusEvent {
	t.Helper()
	var out []event.TxStatusEvent
	for _, m := range e.bus.Published(event.TopicTxStatus) {
		decoded, err := event.Decode(m.Topic, m.Payload)
		require.NoError(t, err)
		out = append(out, decoded.(event.TxStatusEvent))
	}
	return out
}

func TestCheckPendingConfirmedByReceipt(t *testing.T) {
	e := newEnv(t, DefaultOptions())
	tx := e.pending(t, "0xaaa", nil)
	e.gw.SetReceipt(chain.Receipt{TxHash: "0xaaa", Status: 1, BlockNumber: 42, Confirmations: 3})

	require.NoError(t, e.watcher.CheckPending(context.Background(), chainID))

	got := e.get(t, tx.ID)
	assert.Equal(t, model.StatusConfirmed, got.Status)
	assert.Equal(t, uint64(42), *got.BlockNumber)
	assert.Zero(t, e.queue.Len())

	events := e.statusEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, model.StatusConfirmed, events[0].Status)
	assert.Equal(t, "0xaaa", *events[0].TxHash)
	assert.Empty(t, events[0].Reason)
}

func TestCheckPendingReverted(t *testing.T) {
	e := newEnv(t, DefaultOptions())
	tx := e.pending(t, "0xbbb", nil)
	e.gw.SetReceipt(chain.Receipt{TxHash: "0xbbb", Status: 0, BlockNumber: 42, Confirmations: 5})

	require.NoError(t, e.watcher.CheckPending(context.Background(), chainID))

	got := e.get(t, tx.ID)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, "0xbbb", *got.TxHash)
	assert.Zero(t, e.queue.Len())
}

func TestCheckPendingWaitsForReceipt(t *testing.T) {
	e := newEnv(t, DefaultOptions())
	tx := e.pending(t, "0xccc", nil)

	require.NoError(t, e.watcher.CheckPending(context.Background(), chainID))

	got := e.get(t, tx.ID)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Nil(t, got.BlockNumber)
	assert.Equal(t, 1, e.queue.Len())
	assert.Empty(t, e.bus.Published(event.TopicTxStatus))
}

func TestCheckPendingBelowThreshold(t *testing.T) {
	t.Run("track finality stashes block", func(t *testing.T) {
		opts := DefaultOptions()
		opts.TrackFinality = true
		e := newEnv(t, opts)
		tx := e.pending(t, "0xddd", nil)
		e.gw.SetReceipt(chain.Receipt{TxHash: "0xddd", Status: 1, BlockNumber: 100, Confirmations: 1})

		require.NoError(t, e.watcher.CheckPending(context.Background(), chainID))

		got := e.get(t, tx.ID)
		assert.Equal(t, model.StatusPending, got.Status)
		require.NotNil(t, got.BlockNumber)
		assert.Equal(t, uint64(100), *got.BlockNumber)
		assert.Empty(t, e.bus.Published(event.TopicTxStatus))
	})

	t.Run("without tracking nothing changes", func(t *testing.T) {
		e := newEnv(t, DefaultOptions())
		tx := e.pending(t, "0xddd", nil)
		e.gw.SetReceipt(chain.Receipt{TxHash: "0xddd", Status: 1, BlockNumber: 100, Confirmations: 2})

		require.NoError(t, e.watcher.CheckPending(context.Background(), chainID))

		got := e.get(t, tx.ID)
		assert.Equal(t, model.StatusPending, got.Status)
		assert.Nil(t, got.BlockNumber)
	})
}

func TestCheckPendingFinalityPath(t *testing.T) {
	tests := []struct {
		name      string
		finalized uint64
		block     []string
		want      model.Status
		drained   bool
	}{
		{name: "not finalized yet", finalized: 99, want: model.StatusPending},
		{name: "hash in finalized block", finalized: 100, block: []string{"0x01", "0xEEE"}, want: model.StatusConfirmed, drained: true},
		{name: "hash missing from finalized block", finalized: 100, block: []string{"0x01", "0x02"}, want: model.StatusReorged, drained: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, DefaultOptions())
			tx := e.pending(t, "0xeee", model.Uint64Ptr(100))
			e.gw.FinalizedHeight = tt.finalized
			if tt.block != nil {
				e.gw.SetBlock(100, tt.block...)
			}

			require.NoError(t, e.watcher.CheckPending(context.Background(), chainID))

			got := e.get(t, tx.ID)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, "0xeee", *got.TxHash)
			if tt.drained {
				assert.Zero(t, e.queue.Len())
				events := e.statusEvents(t)
				require.Len(t, events, 1)
				assert.Equal(t, tt.want, events[0].Status)
			} else {
				assert.Equal(t, 1, e.queue.Len())
			}
		})
	}
}

func TestCheckPendingIsolatesRecordErrors(t *testing.T) {
	e := newEnv(t, DefaultOptions())
	broken := e.pending(t, "0x111", model.Uint64Ptr(7)) // 区块不存在
	ok := e.pending(t, "0x222", nil)
	e.gw.FinalizedHeight = 10
	e.gw.SetReceipt(chain.Receipt{TxHash: "0x222", Status: 1, BlockNumber: 8, Confirmations: 3})

	require.NoError(t, e.watcher.CheckPending(context.Background(), chainID))

	assert.Equal(t, model.StatusPending, e.get(t, broken.ID).Status)
	assert.Equal(t, model.StatusConfirmed, e.get(t, ok.ID).Status)
}

func TestCheckPendingUnknownChain(t *testing.T) {
	e := newEnv(t, DefaultOptions())
	err := e.watcher.CheckPending(context.Background(), "0x1")
	assert.ErrorIs(t, err, chain.ErrNoGateway)
}

func TestCheckPendingScansEveryPage(t *testing.T) {
	opts := DefaultOptions()
	opts.BatchSize = 2
	e := newEnv(t, opts)
	// 前两条一直没有回执 (例如交易被丢弃)
	stuck1 := e.pending(t, "0x301", nil)
	stuck2 := e.pending(t, "0x302", nil)
	ready := e.pending(t, "0x303", nil)
	e.gw.SetReceipt(chain.Receipt{TxHash: "0x303", Status: 1, BlockNumber: 1, Confirmations: 10})

	require.NoError(t, e.watcher.CheckPending(context.Background(), chainID))

	assert.Equal(t, model.StatusPending, e.get(t, stuck1.ID).Status)
	assert.Equal(t, model.StatusPending, e.get(t, stuck2.ID).Status)
	assert.Equal(t, model.StatusConfirmed, e.get(t, ready.ID).Status)
}

func TestCheckPendingReminedInAnotherBlock(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()
	opts.TrackFinality = true
	e := newEnv(t, opts)
	tx := e.pending(t, "0xfff", nil)

	// 第一次打包在 100，确认数不足，记录区块号
	e.gw.SetReceipt(chain.Receipt{TxHash: "0xfff", Status: 1, BlockNumber: 100, Confirmations: 1})
	require.NoError(t, e.watcher.CheckPending(ctx, chainID))
	require.Equal(t, uint64(100), *e.get(t, tx.ID).BlockNumber)

	// 浅重组后同一笔交易被打包进 101，nonce 已被它自己消耗
	e.gw.SetReceipt(chain.Receipt{TxHash: "0xfff", Status: 1, BlockNumber: 101, Confirmations: 5})
	e.gw.SetBlock(100, "0x01")
	e.gw.SetBlock(101, "0xfff")
	e.gw.FinalizedHeight = 101
	e.gw.SetNonce(signer, 6)

	for i := 0; i < 3; i++ {
		require.NoError(t, e.watcher.CheckPending(ctx, chainID))
		require.NoError(t, e.resolver.Resolve(ctx, chainID))
	}

	got := e.get(t, tx.ID)
	assert.Equal(t, model.StatusConfirmed, got.Status)
	assert.Equal(t, uint64(101), *got.BlockNumber)

	events := e.statusEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, model.StatusConfirmed, events[0].Status)
}

func TestCheckPendingReorgedWhenReceiptGone(t *testing.T) {
	e := newEnv(t, DefaultOptions())
	tx := e.pending(t, "0xabc", model.Uint64Ptr(100))
	e.gw.FinalizedHeight = 100
	e.gw.SetBlock(100, "0x01")

	require.NoError(t, e.watcher.CheckPending(context.Background(), chainID))
	assert.Equal(t, model.StatusReorged, e.get(t, tx.ID).Status)
}
