package domain

import "time"

// LedgerSummary is a read-only snapshot of the capital ledger.
type LedgerSummary struct {
	TotalCapital    float64
	ReservedCapital float64
	Available       float64
	RealizedPnL     float64
	PeakCapital     float64
	DayStartCapital float64
	DayStart        time.Time
}

// BotMetrics is derived state, recomputed on demand from the trade history
// and the ledger snapshot. It is never authoritative on its own.
type BotMetrics struct {
	StartedAt time.Time

	InitialCapital float64
	CurrentCapital float64
	PeakCapital    float64
	ROIPct         float64

	TotalTrades     int
	WinningTrades   int
	LosingTrades    int
	BreakevenTrades int
	WinRatePct      float64

	TotalNetPnL   float64
	TotalFeesPaid float64
	AvgNetPnL     float64
	BestTradePnL  float64
	WorstTradePnL float64

	MaxDrawdown    float64
	MaxDrawdownPct float64

	TokensEvaluated int
	TokensSkipped   int
	OpenPositions   int
	FatalPositions  int
}
