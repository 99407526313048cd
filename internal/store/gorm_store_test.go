package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/IlliaDrahun/multichain/internal/model"
	"github.com/IlliaDrahun/multichain/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	db, err := database.ConnectPostgres(dsn, "test")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	t.Cleanup(func() { database.Close(db) })
	return db
}

func TestGormStoreLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := NewGormStore(db)
	user := "0xU-" + time.Now().Format("150405.000000")

	tx := newTx(user, "0x61")
	require.NoError(t, s.Create(ctx, tx))
	assert.Len(t, tx.ID, 36)
	assert.Equal(t, model.StatusPendingSign, tx.Status)

	tx.QueueCursor = model.StringPtr("1-0")
	require.NoError(t, s.Update(ctx, tx, model.StatusPendingSign))

	tx.TxHash = model.StringPtr("0xabc")
	tx.Nonce = model.Uint64Ptr(5)
	tx.Status = model.StatusPending
	require.NoError(t, s.Update(ctx, tx, model.StatusPendingSign))

	stale := tx.Clone()
	stale.Status = model.StatusFailed
	assert.ErrorIs(t, s.Update(ctx, stale, model.StatusPendingSign), ErrStaleStatus)

	got, err := s.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, []string{"0xR", "1000"}, got.Args)
	assert.Equal(t, uint64(5), *got.Nonce)
	assert.Equal(t, "1-0", *got.QueueCursor)

	byUser, err := s.FindByUserAddress(ctx, user)
	require.NoError(t, err)
	assert.Len(t, byUser, 1)

	_, err = s.Get(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStorePagesByCreatedAt(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := NewGormStore(db)
	// 每次测试使用独立的链 id，避免与已有数据混在一起
	chainID := "0xtest" + time.Now().Format("150405.000")
	created := make(map[string]bool)
	for i := 0; i < 5; i++ {
		tx := newTx("0xU", chainID)
		require.NoError(t, s.Create(ctx, tx))
		created[tx.ID] = true
	}

	seen := make(map[string]bool)
	err := ScanAll(ctx, s, chainID, model.StatusPendingSign, 2, func(tx *model.Transaction) {
		assert.False(t, seen[tx.ID], "visited twice: %s", tx.ID)
		seen[tx.ID] = true
	})
	require.NoError(t, err)
	assert.Equal(t, created, seen)
}

func TestGormCheckpointStore(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s := NewGormCheckpointStore(db)
	name := "test-" + time.Now().Format("150405.000000")

	require.NoError(t, s.SaveCursor(ctx, name, "1-0"))
	require.NoError(t, s.SaveCursor(ctx, name, "5-1"))

	cursor, ok, err := s.LoadCursor(ctx, name)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "5-1", cursor)
}
