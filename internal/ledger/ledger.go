// Package ledger tracks capital for one bot instance: available and
// reserved balances, realized P&L and the daily loss window. It is the
// only place capital is mutated, and every mutation happens under one
// lock so concurrent entry attempts can never over-reserve.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"pump-sniper/internal/domain"
)

// ErrInsufficientCapital is returned when a reservation would push the
// reserved total past the minimum-reserve boundary.
var ErrInsufficientCapital = errors.New("insufficient capital for reservation")

// dailyWindow is how long a daily-loss tracking window lasts before reset.
const dailyWindow = 24 * time.Hour

// Ledger is the capital ledger. Invariant: reserved <= total - minReserve.
type Ledger struct {
	mu sync.Mutex

	total    float64 // available + reserved
	reserved float64
	realized float64
	peak     float64

	minReserve      float64
	maxDailyLossPct float64

	dayStart        time.Time
	dayStartCapital float64
}

// New creates a ledger with the given starting capital.
func New(initialCapital, minReserve, maxDailyLossPct float64, now time.Time) *Ledger {
	return &Ledger{
		total:           initialCapital,
		peak:            initialCapital,
		minReserve:      minReserve,
		maxDailyLossPct: maxDailyLossPct,
		dayStart:        now,
		dayStartCapital: initialCapital,
	}
}

// Reserve earmarks capital for a new position. It fails if the reservation
// would violate the minimum-reserve invariant. The lock is held only for
// the reservation decision itself.
func (l *Ledger) Reserve(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("reserve amount must be positive, got %v", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.reserved+amount > l.total-l.minReserve {
		return fmt.Errorf("%w: reserve %v, reserved %v, total %v, min reserve %v",
			ErrInsufficientCapital, amount, l.reserved, l.total, l.minReserve)
	}
	l.reserved += amount
	return nil
}

// ReleaseReservation returns earmarked capital untouched. Used when entry
// settlement fails after the reservation was made.
func (l *Ledger) ReleaseReservation(amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.reserved -= amount
	if l.reserved < 0 {
		l.reserved = 0
	}
}

// Settle releases a position's reservation and applies the settled
// outcome: committed capital leaves, returned capital arrives, and the
// difference is realized P&L. Atomic with respect to concurrent
// reservations.
func (l *Ledger) Settle(committed, returned float64, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollDailyWindowLocked(now)

	l.reserved -= committed
	if l.reserved < 0 {
		l.reserved = 0
	}
	pnl := returned - committed
	l.total += pnl
	l.realized += pnl

	if l.total > l.peak {
		l.peak = l.total
	}
}

// Available returns capital not reserved against any position.
func (l *Ledger) Available() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total - l.reserved
}

// Tradeable returns the capital that may be committed to new positions:
// the available balance minus the minimum reserve, floored at zero.
func (l *Ledger) Tradeable() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.total - l.reserved - l.minReserve
	if t < 0 {
		return 0
	}
	return t
}

// DailyLossLimitReached reports whether realized losses within the current
// window have consumed the configured share of day-start capital. The
// window rolls over after 24 hours.
func (l *Ledger) DailyLossLimitReached(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollDailyWindowLocked(now)

	if l.dayStartCapital <= 0 {
		return false
	}
	lossPct := (l.dayStartCapital - l.total) / l.dayStartCapital * 100
	return lossPct >= l.maxDailyLossPct
}

// rollDailyWindowLocked resets the daily tracking anchor once the window
// has elapsed. Caller must hold l.mu.
func (l *Ledger) rollDailyWindowLocked(now time.Time) {
	if now.Sub(l.dayStart) >= dailyWindow {
		l.dayStart = now
		l.dayStartCapital = l.total
	}
}

// Summary returns a read-only snapshot.
func (l *Ledger) Summary() domain.LedgerSummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	return domain.LedgerSummary{
		TotalCapital:    l.total,
		ReservedCapital: l.reserved,
		Available:       l.total - l.reserved,
		RealizedPnL:     l.realized,
		PeakCapital:     l.peak,
		DayStartCapital: l.dayStartCapital,
		DayStart:        l.dayStart,
	}
}
