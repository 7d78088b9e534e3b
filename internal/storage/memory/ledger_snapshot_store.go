package memory

import (
	"context"
	"sync"
	"time"

	"pump-sniper/internal/domain"
	"pump-sniper/internal/storage"
)

// LedgerSnapshotStore is an in-memory implementation of
// storage.LedgerSnapshotStore.
type LedgerSnapshotStore struct {
	mu        sync.RWMutex
	snapshots []ledgerSnapshot
}

type ledgerSnapshot struct {
	at      time.Time
	summary domain.LedgerSummary
}

// NewLedgerSnapshotStore creates a new in-memory snapshot store.
func NewLedgerSnapshotStore() *LedgerSnapshotStore {
	return &LedgerSnapshotStore{}
}

var _ storage.LedgerSnapshotStore = (*LedgerSnapshotStore)(nil)

// Insert appends a snapshot.
func (s *LedgerSnapshotStore) Insert(_ context.Context, at time.Time, summary domain.LedgerSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots = append(s.snapshots, ledgerSnapshot{at: at, summary: summary})
	return nil
}

// Latest retrieves the most recent snapshot by recorded time.
func (s *LedgerSnapshotStore) Latest(_ context.Context) (domain.LedgerSummary, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.snapshots) == 0 {
		return domain.LedgerSummary{}, time.Time{}, storage.ErrNotFound
	}

	latest := s.snapshots[0]
	for _, snap := range s.snapshots[1:] {
		if snap.at.After(latest.at) {
			latest = snap
		}
	}
	return latest.summary, latest.at, nil
}
