package postgres

import (
	"context"
	"fmt"
	"time"

	"pump-sniper/internal/domain"
	"pump-sniper/internal/storage"
)

// LedgerSnapshotStore implements storage.LedgerSnapshotStore using PostgreSQL.
type LedgerSnapshotStore struct {
	pool *Pool
}

// NewLedgerSnapshotStore creates a new LedgerSnapshotStore.
func NewLedgerSnapshotStore(pool *Pool) *LedgerSnapshotStore {
	return &LedgerSnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerSnapshotStore = (*LedgerSnapshotStore)(nil)

// Insert appends a snapshot.
func (s *LedgerSnapshotStore) Insert(ctx context.Context, at time.Time, summary domain.LedgerSummary) error {
	query := `
		INSERT INTO ledger_snapshots (
			recorded_at, total_capital, reserved_capital, available,
			realized_pnl, peak_capital, day_start_capital, day_start
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		at, summary.TotalCapital, summary.ReservedCapital, summary.Available,
		summary.RealizedPnL, summary.PeakCapital, summary.DayStartCapital, summary.DayStart,
	)
	if err != nil {
		return fmt.Errorf("insert ledger snapshot: %w", err)
	}
	return nil
}

// Latest retrieves the most recent snapshot.
func (s *LedgerSnapshotStore) Latest(ctx context.Context) (domain.LedgerSummary, time.Time, error) {
	query := `
		SELECT recorded_at, total_capital, reserved_capital, available,
			realized_pnl, peak_capital, day_start_capital, day_start
		FROM ledger_snapshots
		ORDER BY recorded_at DESC
		LIMIT 1
	`

	var summary domain.LedgerSummary
	var at time.Time
	err := s.pool.QueryRow(ctx, query).Scan(
		&at, &summary.TotalCapital, &summary.ReservedCapital, &summary.Available,
		&summary.RealizedPnL, &summary.PeakCapital, &summary.DayStartCapital, &summary.DayStart,
	)
	if err != nil {
		if isNotFoundError(err) {
			return domain.LedgerSummary{}, time.Time{}, storage.ErrNotFound
		}
		return domain.LedgerSummary{}, time.Time{}, fmt.Errorf("get latest ledger snapshot: %w", err)
	}
	return summary, at, nil
}
