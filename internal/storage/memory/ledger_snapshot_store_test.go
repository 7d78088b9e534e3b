package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"pump-sniper/internal/domain"
	"pump-sniper/internal/storage"
)

func TestLedgerSnapshotStoreLatest(t *testing.T) {
	ctx := context.Background()
	s := NewLedgerSnapshotStore()

	if _, _, err := s.Latest(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.Insert(ctx, base, domain.LedgerSummary{TotalCapital: 2.0}); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(ctx, base.Add(time.Minute), domain.LedgerSummary{TotalCapital: 2.1}); err != nil {
		t.Fatal(err)
	}

	summary, at, err := s.Latest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if summary.TotalCapital != 2.1 || !at.Equal(base.Add(time.Minute)) {
		t.Fatalf("latest = %v at %v", summary.TotalCapital, at)
	}
}

func TestTickStoreAppends(t *testing.T) {
	ctx := context.Background()
	s := NewTickStore()
	now := time.Now()

	ticks := []*domain.PriceTick{
		{PositionID: "p1", Mint: "MintA", Price: 0.0001, PeakPrice: 0.0001, ObservedAt: now},
		{PositionID: "p1", Mint: "MintA", Price: 0.0003, PeakPrice: 0.0003, ObservedAt: now.Add(time.Second)},
	}
	if err := s.InsertBulk(ctx, ticks); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertBulk(ctx, nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if err := s.InsertBulk(ctx, []*domain.PriceTick{{}}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	all := s.All()
	if len(all) != 2 || all[1].Price != 0.0003 {
		t.Fatalf("archived %d ticks: %+v", len(all), all)
	}
}
