package domain

import "time"

// PositionState is the lifecycle state of an open position.
type PositionState string

// Position lifecycle states. Transitions are one-way:
// OPEN -> EXIT_REQUESTED -> CLOSED, with the error branch
// OPEN/EXIT_REQUESTED -> EXIT_FAILED -> (retry) -> CLOSED | FATAL.
const (
	StateOpen          PositionState = "OPEN"
	StateExitRequested PositionState = "EXIT_REQUESTED"
	StateExitFailed    PositionState = "EXIT_FAILED"
	StateClosed        PositionState = "CLOSED"
	StateFatal         PositionState = "FATAL"
)

// Terminal reports whether the state admits no further transitions.
func (s PositionState) Terminal() bool {
	return s == StateClosed || s == StateFatal
}

// QualityTier classifies a candidate at entry. The tier is fixed for the
// position's lifetime and scales its profit-target and stop-loss ratios.
type QualityTier string

const (
	TierHigh   QualityTier = "HIGH"
	TierMedium QualityTier = "MEDIUM"
	TierLow    QualityTier = "LOW"
)

// Position is an open trade. It is owned by the position registry and
// mutated only through registry operations: price updates from the monitor
// bound to it, and close transitions from the orchestrator.
type Position struct {
	PositionID string
	Candidate  TokenCandidate
	Tier       QualityTier

	EntryPrice   float64
	CurrentPrice float64
	PeakPrice    float64 // monotonically non-decreasing since entry
	Quantity     float64
	Committed    float64 // capital reserved for this position, entry fee included
	EntryFee     float64

	OpenedAt  time.Time
	UpdatedAt time.Time

	State PositionState

	// Exit target, frozen when the position leaves OPEN. Retries after a
	// settlement failure reuse this snapshot rather than re-evaluating.
	ExitPrice    float64
	ExitReason   string
	ExitAttempts int
}

// UnrealizedPnL returns the net P&L the position would realize at its
// current price, after the configured round-trip fee on the exit side.
func (p *Position) UnrealizedPnL(feeRate float64) float64 {
	gross := p.CurrentPrice * p.Quantity
	return gross*(1-feeRate) - p.Committed
}

// HoldDuration returns how long the position has been open as of now.
func (p *Position) HoldDuration(now time.Time) time.Duration {
	return now.Sub(p.OpenedAt)
}
