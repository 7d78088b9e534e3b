// Package registry owns the set of live positions. All mutation goes
// through registry methods under a single mutex, and lifecycle transitions
// are checked: a position moves OPEN -> EXIT_REQUESTED -> CLOSED, with the
// error branch through EXIT_FAILED and the dead end FATAL. Illegal
// transitions are rejected, never applied.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"pump-sniper/internal/domain"
)

var (
	// ErrNotFound is returned for an unknown position id.
	ErrNotFound = errors.New("position not found")
	// ErrDuplicatePosition is returned when opening an id twice.
	ErrDuplicatePosition = errors.New("position already registered")
)

// TransitionError reports an attempted illegal state transition.
type TransitionError struct {
	PositionID string
	From       domain.PositionState
	To         domain.PositionState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("position %s: illegal transition %s -> %s", e.PositionID, e.From, e.To)
}

// Registry is the in-memory set of live positions.
type Registry struct {
	mu        sync.Mutex
	positions map[string]*domain.Position
	pending   int
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{positions: make(map[string]*domain.Position)}
}

// AcquireSlot claims one slot against the concurrency limit before the
// position exists, so entries with a buy still in flight already count.
// Open consumes the claim; ReleaseSlot returns it when the entry fails
// before registration.
func (r *Registry) AcquireSlot(limit int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.activeLocked()+r.pending >= limit {
		return false
	}
	r.pending++
	return true
}

// ReleaseSlot returns a slot claimed by AcquireSlot.
func (r *Registry) ReleaseSlot() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending > 0 {
		r.pending--
	}
}

// Open registers a new position in state OPEN, consuming a pending slot
// claim when one is held.
func (r *Registry) Open(pos *domain.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.positions[pos.PositionID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePosition, pos.PositionID)
	}
	pos.State = domain.StateOpen
	pos.UpdatedAt = pos.OpenedAt
	r.positions[pos.PositionID] = pos
	if r.pending > 0 {
		r.pending--
	}
	return nil
}

// Get returns a copy of the position, so callers never observe a snapshot
// mid-mutation.
func (r *Registry) Get(id string) (domain.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.positions[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *pos, nil
}

// UpdatePrice records a new price observation. The peak only ever moves up.
func (r *Registry) UpdatePrice(id string, price float64, now time.Time) (domain.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.positions[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	pos.CurrentPrice = price
	if price > pos.PeakPrice {
		pos.PeakPrice = price
	}
	pos.UpdatedAt = now
	return *pos, nil
}

// BeginExit moves the position to EXIT_REQUESTED, freezing the exit price
// and reason for settlement and any retries. It is idempotent: a second
// call for a position already past OPEN reports started=false with no
// error, so concurrent exit triggers collapse to one settlement.
func (r *Registry) BeginExit(id, reason string, price float64, now time.Time) (started bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.positions[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if pos.State != domain.StateOpen {
		return false, nil
	}
	pos.State = domain.StateExitRequested
	pos.ExitReason = reason
	pos.ExitPrice = price
	pos.UpdatedAt = now
	return true, nil
}

// MarkExitFailed records a failed settlement attempt and returns the
// attempt count so far.
func (r *Registry) MarkExitFailed(id string, now time.Time) (attempts int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.positions[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if pos.State != domain.StateExitRequested && pos.State != domain.StateExitFailed {
		return 0, &TransitionError{PositionID: id, From: pos.State, To: domain.StateExitFailed}
	}
	pos.State = domain.StateExitFailed
	pos.ExitAttempts++
	pos.UpdatedAt = now
	return pos.ExitAttempts, nil
}

// RetryExit moves a failed position back to EXIT_REQUESTED for another
// settlement attempt with the frozen exit snapshot.
func (r *Registry) RetryExit(id string, now time.Time) (domain.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.positions[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if pos.State != domain.StateExitFailed {
		return domain.Position{}, &TransitionError{PositionID: id, From: pos.State, To: domain.StateExitRequested}
	}
	pos.State = domain.StateExitRequested
	pos.UpdatedAt = now
	return *pos, nil
}

// Close finalizes the position and removes it from the live set.
func (r *Registry) Close(id string, exitPrice float64, now time.Time) (domain.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.positions[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if pos.State != domain.StateExitRequested && pos.State != domain.StateExitFailed {
		return domain.Position{}, &TransitionError{PositionID: id, From: pos.State, To: domain.StateClosed}
	}
	pos.State = domain.StateClosed
	pos.ExitPrice = exitPrice
	pos.UpdatedAt = now
	snapshot := *pos
	delete(r.positions, id)
	return snapshot, nil
}

// MarkFatal abandons a position whose settlement could not be completed.
// The position stays in the live set for visibility but admits no further
// transitions.
func (r *Registry) MarkFatal(id string, now time.Time) (domain.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.positions[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if pos.State.Terminal() {
		return domain.Position{}, &TransitionError{PositionID: id, From: pos.State, To: domain.StateFatal}
	}
	pos.State = domain.StateFatal
	pos.UpdatedAt = now
	return *pos, nil
}

// ActiveCount returns the number of positions still counting against the
// concurrency cap. FATAL positions hold no reservation and do not count.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeLocked()
}

func (r *Registry) activeLocked() int {
	n := 0
	for _, pos := range r.positions {
		if pos.State != domain.StateFatal {
			n++
		}
	}
	return n
}

// Snapshot returns copies of every live position, ordered by open time.
func (r *Registry) Snapshot() []domain.Position {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Position, 0, len(r.positions))
	for _, pos := range r.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}
