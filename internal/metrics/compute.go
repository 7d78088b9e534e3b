// Package metrics derives bot-level statistics from the trade history and
// the capital ledger. Everything here is recomputed on demand; nothing is
// authoritative state.
package metrics

import (
	"sort"
	"time"

	"pump-sniper/internal/domain"
)

// Input is everything a metrics computation reads.
type Input struct {
	Trades         []*domain.Trade
	Ledger         domain.LedgerSummary
	InitialCapital float64
	StartedAt      time.Time

	TokensEvaluated int
	TokensSkipped   int
	OpenPositions   int
	FatalPositions  int
}

// Compute derives the full metrics set. Trades are sorted by close time
// (ties broken by trade id) before the order-dependent drawdown walk.
func Compute(in Input) domain.BotMetrics {
	m := domain.BotMetrics{
		StartedAt:       in.StartedAt,
		InitialCapital:  in.InitialCapital,
		CurrentCapital:  in.Ledger.TotalCapital,
		PeakCapital:     in.Ledger.PeakCapital,
		TokensEvaluated: in.TokensEvaluated,
		TokensSkipped:   in.TokensSkipped,
		OpenPositions:   in.OpenPositions,
		FatalPositions:  in.FatalPositions,
	}
	if in.InitialCapital > 0 {
		m.ROIPct = (in.Ledger.TotalCapital - in.InitialCapital) / in.InitialCapital * 100
	}

	n := len(in.Trades)
	m.TotalTrades = n
	if n == 0 {
		return m
	}

	sorted := make([]*domain.Trade, n)
	copy(sorted, in.Trades)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].ClosedAt.Equal(sorted[j].ClosedAt) {
			return sorted[i].ClosedAt.Before(sorted[j].ClosedAt)
		}
		return sorted[i].TradeID < sorted[j].TradeID
	})

	m.BestTradePnL = sorted[0].NetPnL
	m.WorstTradePnL = sorted[0].NetPnL

	equity := in.InitialCapital
	peak := in.InitialCapital
	for _, t := range sorted {
		switch t.Outcome {
		case domain.OutcomeProfit:
			m.WinningTrades++
		case domain.OutcomeLoss:
			m.LosingTrades++
		default:
			m.BreakevenTrades++
		}

		m.TotalNetPnL += t.NetPnL
		m.TotalFeesPaid += t.EntryFee + t.ExitFee
		if t.NetPnL > m.BestTradePnL {
			m.BestTradePnL = t.NetPnL
		}
		if t.NetPnL < m.WorstTradePnL {
			m.WorstTradePnL = t.NetPnL
		}

		equity += t.NetPnL
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > m.MaxDrawdown {
			m.MaxDrawdown = dd
			if peak > 0 {
				m.MaxDrawdownPct = dd / peak * 100
			}
		}
	}

	m.WinRatePct = float64(m.WinningTrades) / float64(n) * 100
	m.AvgNetPnL = m.TotalNetPnL / float64(n)
	return m
}
