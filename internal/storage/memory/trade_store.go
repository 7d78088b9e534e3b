// Package memory holds in-memory store implementations, used in dry-run
// mode and in tests when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"pump-sniper/internal/domain"
	"pump-sniper/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Trade // keyed by trade_id
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{data: make(map[string]*domain.Trade)}
}

var _ storage.TradeStore = (*TradeStore)(nil)

// Insert adds a completed trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.Trade) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.TradeID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *t
	s.data[t.TradeID] = &copy
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(_ context.Context, tradeID string) (*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[tradeID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *t
	return &copy, nil
}

// GetByMint retrieves all trades for a mint, ordered by close time ASC.
func (s *TradeStore) GetByMint(_ context.Context, mint string) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if t.Mint == mint {
			copy := *t
			result = append(result, &copy)
		}
	}
	sortByClosedAt(result)
	return result, nil
}

// GetByTimeRange retrieves trades closed within [start, end] (inclusive).
func (s *TradeStore) GetByTimeRange(_ context.Context, start, end time.Time) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if !t.ClosedAt.Before(start) && !t.ClosedAt.After(end) {
			copy := *t
			result = append(result, &copy)
		}
	}
	sortByClosedAt(result)
	return result, nil
}

// GetAll retrieves all trades, ordered by close time ASC.
func (s *TradeStore) GetAll(_ context.Context) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Trade, 0, len(s.data))
	for _, t := range s.data {
		copy := *t
		result = append(result, &copy)
	}
	sortByClosedAt(result)
	return result, nil
}

func sortByClosedAt(trades []*domain.Trade) {
	sort.Slice(trades, func(i, j int) bool {
		if trades[i].ClosedAt.Equal(trades[j].ClosedAt) {
			return trades[i].TradeID < trades[j].TradeID
		}
		return trades[i].ClosedAt.Before(trades[j].ClosedAt)
	})
}
