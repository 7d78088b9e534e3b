package clickhouse

import (
	"context"
	"fmt"

	"pump-sniper/internal/domain"
	"pump-sniper/internal/storage"
)

// TickStore implements storage.TickStore using ClickHouse. Ticks are an
// append-only archive; the MergeTree collapses duplicates on merge, so no
// duplicate checks are done at insert time.
type TickStore struct {
	conn *Conn
}

// NewTickStore creates a new TickStore.
func NewTickStore(conn *Conn) *TickStore {
	return &TickStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TickStore = (*TickStore)(nil)

// InsertBulk appends a batch of ticks.
func (s *TickStore) InsertBulk(ctx context.Context, ticks []*domain.PriceTick) error {
	if len(ticks) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO position_ticks (
			position_id, mint, price, peak_price, observed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, tick := range ticks {
		if tick == nil || tick.PositionID == "" {
			return storage.ErrInvalidInput
		}
		err = batch.Append(
			tick.PositionID, tick.Mint, tick.Price, tick.PeakPrice, tick.ObservedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}
