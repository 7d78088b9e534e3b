package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"pump-sniper/internal/domain"
	"pump-sniper/internal/storage"
)

func testTrade(id, mint string, closedAt time.Time) *domain.Trade {
	return &domain.Trade{
		TradeID:    id,
		PositionID: "pos-" + id,
		Mint:       mint,
		Symbol:     "TEST",
		Tier:       domain.TierMedium,
		EntryPrice: 0.0001,
		ExitPrice:  0.00016,
		Quantity:   2000,
		Committed:  0.2,
		Returned:   0.3156,
		NetPnL:     0.1156,
		ExitReason: domain.ExitReasonProfitTarget,
		Outcome:    domain.OutcomeProfit,
		OpenedAt:   closedAt.Add(-30 * time.Second),
		ClosedAt:   closedAt,
	}
}

func TestTradeStoreInsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewTradeStore()
	now := time.Now()

	trade := testTrade("t1", "MintA", now)
	if err := s.Insert(ctx, trade); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Insert(ctx, trade); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	got, err := s.GetByID(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Mint != "MintA" || got.NetPnL != 0.1156 {
		t.Fatalf("got %+v", got)
	}

	// The store hands out copies.
	got.NetPnL = 0
	again, _ := s.GetByID(ctx, "t1")
	if again.NetPnL != 0.1156 {
		t.Fatal("store returned a shared pointer")
	}

	if _, err := s.GetByID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Insert(ctx, &domain.Trade{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestTradeStoreQueriesOrdered(t *testing.T) {
	ctx := context.Background()
	s := NewTradeStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, tr := range []*domain.Trade{
		testTrade("t3", "MintA", base.Add(2*time.Minute)),
		testTrade("t1", "MintA", base),
		testTrade("t2", "MintB", base.Add(time.Minute)),
	} {
		if err := s.Insert(ctx, tr); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].TradeID != "t1" || all[2].TradeID != "t3" {
		t.Fatalf("GetAll order wrong: %v", ids(all))
	}

	byMint, err := s.GetByMint(ctx, "MintA")
	if err != nil {
		t.Fatal(err)
	}
	if len(byMint) != 2 || byMint[0].TradeID != "t1" {
		t.Fatalf("GetByMint: %v", ids(byMint))
	}

	ranged, err := s.GetByTimeRange(ctx, base, base.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(ranged) != 2 || ranged[1].TradeID != "t2" {
		t.Fatalf("GetByTimeRange inclusive bounds: %v", ids(ranged))
	}
}

func ids(trades []*domain.Trade) []string {
	out := make([]string, len(trades))
	for i, t := range trades {
		out[i] = t.TradeID
	}
	return out
}
