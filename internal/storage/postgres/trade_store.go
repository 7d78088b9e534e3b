package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pump-sniper/internal/domain"
	"pump-sniper/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	trade_id, position_id, mint, symbol, tier,
	entry_price, exit_price, quantity,
	committed, returned,
	gross_pnl, net_pnl, entry_fee, exit_fee,
	exit_reason, outcome,
	opened_at, closed_at, hold_duration_ms
`

// Insert adds a completed trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trade_records (` + tradeColumns + `) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10,
			$11, $12, $13, $14,
			$15, $16,
			$17, $18, $19
		)
	`

	_, err := s.pool.Exec(ctx, query,
		t.TradeID, t.PositionID, t.Mint, t.Symbol, string(t.Tier),
		t.EntryPrice, t.ExitPrice, t.Quantity,
		t.Committed, t.Returned,
		t.GrossPnL, t.NetPnL, t.EntryFee, t.ExitFee,
		t.ExitReason, t.Outcome,
		t.OpenedAt, t.ClosedAt, t.HoldDuration.Milliseconds(),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade record: %w", err)
	}
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(ctx context.Context, tradeID string) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trade_records WHERE trade_id = $1`

	row := s.pool.QueryRow(ctx, query, tradeID)
	t, err := scanTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade record by id: %w", err)
	}
	return t, nil
}

// GetByMint retrieves all trades for a mint, ordered by close time ASC.
func (s *TradeStore) GetByMint(ctx context.Context, mint string) ([]*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trade_records
		WHERE mint = $1
		ORDER BY closed_at ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("get trade records by mint: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetByTimeRange retrieves trades closed within [start, end] (inclusive).
func (s *TradeStore) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trade_records
		WHERE closed_at >= $1 AND closed_at <= $2
		ORDER BY closed_at ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get trade records by time range: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetAll retrieves all trades, ordered by close time ASC.
func (s *TradeStore) GetAll(ctx context.Context) ([]*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trade_records
		ORDER BY closed_at ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all trade records: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// scanTrade scans a single row into a Trade.
func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var t domain.Trade
	var tier string
	var holdMs int64

	err := row.Scan(
		&t.TradeID, &t.PositionID, &t.Mint, &t.Symbol, &tier,
		&t.EntryPrice, &t.ExitPrice, &t.Quantity,
		&t.Committed, &t.Returned,
		&t.GrossPnL, &t.NetPnL, &t.EntryFee, &t.ExitFee,
		&t.ExitReason, &t.Outcome,
		&t.OpenedAt, &t.ClosedAt, &holdMs,
	)
	if err != nil {
		return nil, err
	}

	t.Tier = domain.QualityTier(tier)
	t.HoldDuration = time.Duration(holdMs) * time.Millisecond
	return &t, nil
}

// scanTrades scans multiple rows into a slice of Trade.
func scanTrades(rows pgx.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade

	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade record row: %w", err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade record rows: %w", err)
	}

	return trades, nil
}
