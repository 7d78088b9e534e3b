package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pump-sniper/internal/domain"
	"pump-sniper/internal/storage"
	. "pump-sniper/internal/storage/postgres"
)

func createTestTrade(tradeID, mint string, closedAt time.Time) *domain.Trade {
	openedAt := closedAt.Add(-45 * time.Second)
	return &domain.Trade{
		TradeID:      tradeID,
		PositionID:   "pos-" + tradeID,
		Mint:         mint,
		Symbol:       "SNIPE",
		Tier:         domain.TierHigh,
		EntryPrice:   0.0001,
		ExitPrice:    0.00016,
		Quantity:     1975,
		Committed:    0.2,
		Returned:     0.31205,
		GrossPnL:     0.1185,
		NetPnL:       0.11205,
		EntryFee:     0.0025,
		ExitFee:      0.00395,
		ExitReason:   domain.ExitReasonProfitTarget,
		Outcome:      domain.OutcomeProfit,
		OpenedAt:     openedAt,
		ClosedAt:     closedAt,
		HoldDuration: closedAt.Sub(openedAt),
	}
}

func TestTradeStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	closedAt := time.Date(2026, 3, 1, 12, 0, 45, 0, time.UTC)
	trade := createTestTrade("trade-001", "So11111111111111111111111111111111111111112", closedAt)

	err := store.Insert(ctx, trade)
	require.NoError(t, err)

	retrieved, err := store.GetByID(ctx, "trade-001")
	require.NoError(t, err)

	assert.Equal(t, trade.TradeID, retrieved.TradeID)
	assert.Equal(t, trade.PositionID, retrieved.PositionID)
	assert.Equal(t, trade.Mint, retrieved.Mint)
	assert.Equal(t, trade.Symbol, retrieved.Symbol)
	assert.Equal(t, trade.Tier, retrieved.Tier)
	assert.InDelta(t, trade.EntryPrice, retrieved.EntryPrice, 1e-12)
	assert.InDelta(t, trade.ExitPrice, retrieved.ExitPrice, 1e-12)
	assert.InDelta(t, trade.Quantity, retrieved.Quantity, 1e-9)
	assert.InDelta(t, trade.Committed, retrieved.Committed, 1e-9)
	assert.InDelta(t, trade.Returned, retrieved.Returned, 1e-9)
	assert.InDelta(t, trade.GrossPnL, retrieved.GrossPnL, 1e-9)
	assert.InDelta(t, trade.NetPnL, retrieved.NetPnL, 1e-9)
	assert.InDelta(t, trade.EntryFee, retrieved.EntryFee, 1e-9)
	assert.InDelta(t, trade.ExitFee, retrieved.ExitFee, 1e-9)
	assert.Equal(t, trade.ExitReason, retrieved.ExitReason)
	assert.Equal(t, trade.Outcome, retrieved.Outcome)
	assert.True(t, retrieved.OpenedAt.Equal(trade.OpenedAt))
	assert.True(t, retrieved.ClosedAt.Equal(trade.ClosedAt))
	assert.Equal(t, trade.HoldDuration, retrieved.HoldDuration)
}

func TestTradeStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	trade := createTestTrade("trade-dup", "MintA", time.Now().UTC())
	require.NoError(t, store.Insert(ctx, trade))

	err := store.Insert(ctx, trade)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestTradeStore_GetByIDNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	_, err := store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTradeStore_Queries(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Insert(ctx, createTestTrade("t2", "MintA", base.Add(time.Minute))))
	require.NoError(t, store.Insert(ctx, createTestTrade("t1", "MintA", base)))
	require.NoError(t, store.Insert(ctx, createTestTrade("t3", "MintB", base.Add(2*time.Minute))))

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "t1", all[0].TradeID)
	assert.Equal(t, "t3", all[2].TradeID)

	byMint, err := store.GetByMint(ctx, "MintA")
	require.NoError(t, err)
	require.Len(t, byMint, 2)
	assert.Equal(t, "t1", byMint[0].TradeID)

	ranged, err := store.GetByTimeRange(ctx, base, base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, ranged, 2)
	assert.Equal(t, "t2", ranged[1].TradeID)
}
