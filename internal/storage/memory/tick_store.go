package memory

import (
	"context"
	"sync"

	"pump-sniper/internal/domain"
	"pump-sniper/internal/storage"
)

// TickStore is an in-memory implementation of storage.TickStore.
type TickStore struct {
	mu    sync.RWMutex
	ticks []*domain.PriceTick
}

// NewTickStore creates a new in-memory tick archive.
func NewTickStore() *TickStore {
	return &TickStore{}
}

var _ storage.TickStore = (*TickStore)(nil)

// InsertBulk appends a batch of ticks.
func (s *TickStore) InsertBulk(_ context.Context, ticks []*domain.PriceTick) error {
	if len(ticks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tick := range ticks {
		if tick == nil || tick.PositionID == "" {
			return storage.ErrInvalidInput
		}
		copy := *tick
		s.ticks = append(s.ticks, &copy)
	}
	return nil
}

// All returns every archived tick in insertion order. Test helper.
func (s *TickStore) All() []*domain.PriceTick {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.PriceTick, len(s.ticks))
	for i, tick := range s.ticks {
		copy := *tick
		out[i] = &copy
	}
	return out
}
