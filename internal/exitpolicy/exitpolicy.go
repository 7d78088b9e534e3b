// Package exitpolicy decides when an open position should be closed.
// The evaluator is a pure function of a position snapshot and the current
// time; it holds no shared state.
//
// Conditions are evaluated in a fixed priority order and the first that
// fires wins:
//
//  1. absolute loss cap (bypasses the minimum hold time)
//  2. minimum hold time gate (suppresses every later condition)
//  3. profit target
//  4. trailing stop (armed only once a gain has been recorded)
//  5. stop loss
//  6. time limit
package exitpolicy

import (
	"time"

	"pump-sniper/internal/config"
	"pump-sniper/internal/domain"
)

// Decision is a fired exit condition.
type Decision struct {
	Reason string
	Price  float64 // price at which the condition fired
}

// Evaluator applies the configured exit rules.
type Evaluator struct {
	profitTarget float64
	stopLoss     float64
	trailingStop float64
	minHold      time.Duration
	maxHold      time.Duration
	lossCapSOL   float64
	feeRate      float64

	highProfitScale float64
	highStopScale   float64
	lowProfitScale  float64
	lowStopScale    float64
}

// New creates an evaluator from validated configuration.
func New(strategy config.StrategyConfig, risk config.RiskConfig) *Evaluator {
	return &Evaluator{
		profitTarget:    strategy.ProfitTargetRatio,
		stopLoss:        strategy.StopLossRatio,
		trailingStop:    strategy.TrailingStopRatio,
		minHold:         strategy.MinHoldTime,
		maxHold:         strategy.MaxHoldTime,
		lossCapSOL:      risk.MaxLossPerTradeSOL,
		feeRate:         strategy.TradingFeePct,
		highProfitScale: strategy.HighProfitScale,
		highStopScale:   strategy.HighStopScale,
		lowProfitScale:  strategy.LowProfitScale,
		lowStopScale:    strategy.LowStopScale,
	}
}

// Evaluate returns the first exit condition that fires for the snapshot,
// or nil when the position should be held.
func (e *Evaluator) Evaluate(pos *domain.Position, now time.Time) *Decision {
	profitScale, stopScale := e.tierScales(pos.Tier)
	price := pos.CurrentPrice
	hold := pos.HoldDuration(now)

	// 1. Absolute loss cap. Checked before the minimum hold gate: a
	// position bleeding past its per-trade cap exits immediately.
	if pnl := pos.UnrealizedPnL(e.feeRate); pnl < 0 && -pnl >= e.lossCapSOL {
		return &Decision{Reason: domain.ExitReasonLossCap, Price: price}
	}

	// 2. Minimum hold gate: suppress all remaining conditions while the
	// position settles through entry noise.
	if hold < e.minHold {
		return nil
	}

	// 3. Profit target.
	if price >= pos.EntryPrice*(1+e.profitTarget*profitScale) {
		return &Decision{Reason: domain.ExitReasonProfitTarget, Price: price}
	}

	// 4. Trailing stop. Never armed before any gain has been recorded.
	if pos.PeakPrice > pos.EntryPrice && price <= pos.PeakPrice*(1-e.trailingStop) {
		return &Decision{Reason: domain.ExitReasonTrailingStop, Price: price}
	}

	// 5. Stop loss.
	if price <= pos.EntryPrice*(1-e.stopLoss*stopScale) {
		return &Decision{Reason: domain.ExitReasonStopLoss, Price: price}
	}

	// 6. Time limit.
	if hold >= e.maxHold {
		return &Decision{Reason: domain.ExitReasonTimeLimit, Price: price}
	}

	return nil
}

// tierScales resolves the profit-target and stop-loss multipliers fixed at
// entry by the position's quality tier.
func (e *Evaluator) tierScales(tier domain.QualityTier) (profit, stop float64) {
	switch tier {
	case domain.TierHigh:
		return e.highProfitScale, e.highStopScale
	case domain.TierLow:
		return e.lowProfitScale, e.lowStopScale
	default:
		return 1, 1
	}
}
