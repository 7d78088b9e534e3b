package domain

import "time"

// TokenCandidate represents a freshly launched bonding-curve token observed
// on the launch feed. Immutable once observed; discarded after the entry
// decision is made.
type TokenCandidate struct {
	Mint         string  // token mint address
	Name         string  // display name (used for keyword filtering)
	Symbol       string  // ticker symbol (used for keyword filtering)
	Creator      string  // creator wallet address
	BondingCurve string  // bonding curve account address
	CurveFillPct float64 // percentage of the bonding curve already filled, 0..100
	InitialPrice float64 // price at launch, in SOL per token

	CreatedAt   time.Time // on-chain creation time
	TxSignature string    // launch transaction signature
}

// ActivitySample aggregates early trading activity for a candidate over the
// observation window. Built once by the intake, consumed once by the
// momentum evaluator.
type ActivitySample struct {
	BuyCount       int
	SellCount      int
	UniqueBuyers   int
	VolumeSOL      float64
	PriceChangePct float64 // percent change across the window, negative on decline
	CurveFillPct   float64 // curve fill at the end of the window
	LastPrice      float64 // last traded price in the window, 0 when no trades
	WindowStart    time.Time
	WindowEnd      time.Time
}

// BuySellRatio returns buys per sell. With no sells the buy count itself is
// used so a one-sided window still scores high.
func (a ActivitySample) BuySellRatio() float64 {
	if a.SellCount == 0 {
		return float64(a.BuyCount)
	}
	return float64(a.BuyCount) / float64(a.SellCount)
}
