package domain

import "time"

// Trade is the immutable record of a completed position. Created exactly
// once when a position transitions to CLOSED, never mutated afterward.
type Trade struct {
	TradeID    string
	PositionID string
	Mint       string
	Symbol     string
	Tier       QualityTier

	EntryPrice float64
	ExitPrice  float64
	Quantity   float64

	Committed float64 // capital committed at entry, entry fee included
	Returned  float64 // capital returned by settlement, exit fee deducted

	GrossPnL float64 // exit value minus entry value, before fees
	NetPnL   float64 // GrossPnL minus entry and exit fees
	EntryFee float64
	ExitFee  float64

	ExitReason string
	Outcome    string

	OpenedAt     time.Time
	ClosedAt     time.Time
	HoldDuration time.Duration
}

// Exit reason codes, in the order the exit policy evaluates them.
const (
	ExitReasonLossCap      = "LOSS_CAP"
	ExitReasonProfitTarget = "PROFIT_TARGET"
	ExitReasonTrailingStop = "TRAILING_STOP"
	ExitReasonStopLoss     = "STOP_LOSS"
	ExitReasonTimeLimit    = "TIME_LIMIT"
	ExitReasonShutdown     = "SHUTDOWN"
)

// Outcome classifications.
const (
	OutcomeProfit    = "PROFIT"
	OutcomeLoss      = "LOSS"
	OutcomeBreakeven = "BREAKEVEN"
)

// breakevenEpsilon absorbs float noise when classifying an outcome.
const breakevenEpsilon = 1e-9

// ClassifyOutcome maps a net P&L to its outcome class.
func ClassifyOutcome(netPnL float64) string {
	switch {
	case netPnL > breakevenEpsilon:
		return OutcomeProfit
	case netPnL < -breakevenEpsilon:
		return OutcomeLoss
	default:
		return OutcomeBreakeven
	}
}

// PriceTick is one price observation recorded by a monitoring loop.
// Archived for analysis; never read back by the engine.
type PriceTick struct {
	PositionID string
	Mint       string
	Price      float64
	PeakPrice  float64
	ObservedAt time.Time
}
