package storage

import (
	"context"
	"time"

	"pump-sniper/internal/domain"
)

// TradeStore provides access to the trade_records history.
type TradeStore interface {
	// Insert adds a completed trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.Trade) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.Trade, error)

	// GetByMint retrieves all trades for a mint, ordered by close time ASC.
	GetByMint(ctx context.Context, mint string) ([]*domain.Trade, error)

	// GetByTimeRange retrieves trades closed within [start, end] (inclusive),
	// ordered by close time ASC.
	GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.Trade, error)

	// GetAll retrieves all trades, ordered by close time ASC.
	GetAll(ctx context.Context) ([]*domain.Trade, error)
}

// TickStore archives price observations from monitoring loops. The archive
// is write-only for the engine; it exists for offline analysis.
type TickStore interface {
	// InsertBulk appends a batch of ticks. The archive tolerates duplicates.
	InsertBulk(ctx context.Context, ticks []*domain.PriceTick) error
}

// LedgerSnapshotStore persists periodic capital ledger snapshots.
type LedgerSnapshotStore interface {
	// Insert appends a snapshot taken at the given time.
	Insert(ctx context.Context, at time.Time, s domain.LedgerSummary) error

	// Latest retrieves the most recent snapshot. Returns ErrNotFound when
	// none has been recorded.
	Latest(ctx context.Context) (domain.LedgerSummary, time.Time, error)
}
