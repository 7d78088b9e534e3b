package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pump-sniper/internal/domain"
	"pump-sniper/internal/storage/memory"
)

type fakeEngine struct {
	positions []domain.Position
	summary   domain.LedgerSummary
	halted    bool
	fatal     int
	startedAt time.Time
}

func (f *fakeEngine) Positions() []domain.Position        { return f.positions }
func (f *fakeEngine) LedgerSummary() domain.LedgerSummary { return f.summary }
func (f *fakeEngine) Halted() bool                        { return f.halted }
func (f *fakeEngine) Halt()                               { f.halted = true }
func (f *fakeEngine) Resume()                             { f.halted = false }
func (f *fakeEngine) StartedAt() time.Time                { return f.startedAt }
func (f *fakeEngine) FatalCount() int                     { return f.fatal }

type fakeIntake struct {
	evaluated, skipped int64
}

func (f *fakeIntake) Stats() (int64, int64) { return f.evaluated, f.skipped }

func newTestServer(t *testing.T, engine *fakeEngine, trades *memory.TradeStore) *httptest.Server {
	t.Helper()
	if trades == nil {
		trades = memory.NewTradeStore()
	}
	s := New(Options{
		Addr:           "127.0.0.1:0",
		Mode:           "dry_run",
		FeeRate:        0.0125,
		InitialCapital: 10,
		Engine:         engine,
		Intake:         &fakeIntake{evaluated: 7, skipped: 3},
		Trades:         trades,
		Log:            zap.NewNop(),
	})
	server := httptest.NewServer(s.Handler())
	t.Cleanup(server.Close)
	return server
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestStatusEndpoint(t *testing.T) {
	engine := &fakeEngine{
		summary: domain.LedgerSummary{
			TotalCapital:    10.4,
			ReservedCapital: 1.8,
			Available:       8.6,
			RealizedPnL:     0.4,
		},
		startedAt: time.Now().Add(-time.Minute),
		positions: []domain.Position{{PositionID: "p1"}},
	}
	server := newTestServer(t, engine, nil)

	var status StatusResponse
	getJSON(t, server.URL+"/api/status", &status)

	assert.Equal(t, "dry_run", status.Mode)
	assert.Equal(t, "running", status.State)
	assert.Equal(t, 10.4, status.TotalCapital)
	assert.Equal(t, 1, status.OpenPositions)
	assert.EqualValues(t, 7, status.TokensEvaluated)
	assert.EqualValues(t, 3, status.TokensSkipped)
}

func TestPositionsEndpointIncludesUnrealizedPnL(t *testing.T) {
	engine := &fakeEngine{
		positions: []domain.Position{{
			PositionID:   "p1",
			Candidate:    domain.TokenCandidate{Mint: "m1", Symbol: "TST"},
			Tier:         domain.TierMedium,
			State:        domain.StateOpen,
			EntryPrice:   0.0001,
			CurrentPrice: 0.00012,
			PeakPrice:    0.00012,
			Quantity:     10000,
			Committed:    1.0,
			OpenedAt:     time.Now().Add(-10 * time.Second),
		}},
	}
	server := newTestServer(t, engine, nil)

	var positions []PositionResponse
	getJSON(t, server.URL+"/api/positions", &positions)

	require.Len(t, positions, 1)
	pos := positions[0]
	assert.Equal(t, "TST", pos.Symbol)
	// 0.00012 * 10000 * (1 - 0.0125) - 1.0
	assert.InDelta(t, 0.185, pos.UnrealizedPnL, 1e-9)
	assert.Greater(t, pos.HeldSeconds, 9.0)
}

func TestTradesEndpointPaginatesNewestFirst(t *testing.T) {
	trades := memory.NewTradeStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, trades.Insert(ctx, &domain.Trade{
			TradeID:  string(rune('a' + i)),
			Mint:     "m1",
			ClosedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	server := newTestServer(t, &fakeEngine{}, trades)

	var page TradesResponse
	getJSON(t, server.URL+"/api/trades?limit=2&offset=1", &page)

	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Trades, 2)
	// Newest first: e d c b a, offset 1 limit 2 -> d, c.
	assert.Equal(t, "d", page.Trades[0].TradeID)
	assert.Equal(t, "c", page.Trades[1].TradeID)
}

func TestStartStopIdempotent(t *testing.T) {
	engine := &fakeEngine{}
	server := newTestServer(t, engine, nil)

	for i := 0; i < 2; i++ {
		resp, err := http.Post(server.URL+"/api/stop", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, engine.halted)
	}

	for i := 0; i < 2; i++ {
		resp, err := http.Post(server.URL+"/api/start", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.False(t, engine.halted)
	}

	// Control endpoints refuse GET.
	resp, err := http.Get(server.URL + "/api/stop")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	trades := memory.NewTradeStore()
	ctx := context.Background()
	require.NoError(t, trades.Insert(ctx, &domain.Trade{
		TradeID: "t1", NetPnL: 0.5, Outcome: domain.OutcomeProfit,
		ClosedAt: time.Now(),
	}))
	engine := &fakeEngine{summary: domain.LedgerSummary{TotalCapital: 10.5}}
	server := newTestServer(t, engine, trades)

	var m domain.BotMetrics
	getJSON(t, server.URL+"/api/metrics", &m)

	assert.Equal(t, 1, m.TotalTrades)
	assert.Equal(t, 1, m.WinningTrades)
	assert.InDelta(t, 5, m.ROIPct, 1e-9)
	assert.Equal(t, 7, m.TokensEvaluated)
}
