// Package reporter renders a periodic console status table: open positions
// with live P&L and a one-line capital summary.
package reporter

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"pump-sniper/internal/domain"
)

// StatusSource is the read-only view of the engine the reporter renders.
type StatusSource interface {
	Positions() []domain.Position
	LedgerSummary() domain.LedgerSummary
	Halted() bool
}

// Reporter prints the status table at a fixed interval.
type Reporter struct {
	source   StatusSource
	out      io.Writer
	interval time.Duration
	feeRate  float64
	now      func() time.Time
}

// New creates a reporter writing to out every interval.
func New(source StatusSource, feeRate float64, interval time.Duration, out io.Writer) *Reporter {
	return &Reporter{
		source:   source,
		out:      out,
		interval: interval,
		feeRate:  feeRate,
		now:      time.Now,
	}
}

// Run renders until the context is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Render()
		}
	}
}

// Render writes one status table.
func (r *Reporter) Render() {
	now := r.now()
	positions := r.source.Positions()
	summary := r.source.LedgerSummary()

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.SetTitle("open positions")
	t.AppendHeader(table.Row{"ID", "SYMBOL", "TIER", "STATE", "ENTRY", "CURRENT", "PEAK", "PNL (SOL)", "HELD"})

	for _, pos := range positions {
		t.AppendRow(table.Row{
			shortID(pos.PositionID),
			pos.Candidate.Symbol,
			pos.Tier,
			pos.State,
			fmt.Sprintf("%.9f", pos.EntryPrice),
			fmt.Sprintf("%.9f", pos.CurrentPrice),
			fmt.Sprintf("%.9f", pos.PeakPrice),
			fmt.Sprintf("%+.4f", pos.UnrealizedPnL(r.feeRate)),
			pos.HoldDuration(now).Round(time.Second),
		})
	}
	t.AppendFooter(table.Row{
		"", "", "", "",
		fmt.Sprintf("total %.4f", summary.TotalCapital),
		fmt.Sprintf("reserved %.4f", summary.ReservedCapital),
		fmt.Sprintf("realized %+.4f", summary.RealizedPnL),
		state(r.source.Halted()),
		"",
	})
	t.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func state(halted bool) string {
	if halted {
		return "HALTED"
	}
	return "RUNNING"
}
