package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pump-sniper/internal/config"
	"pump-sniper/internal/domain"
	"pump-sniper/internal/exitpolicy"
	"pump-sniper/internal/ledger"
	"pump-sniper/internal/momentum"
	"pump-sniper/internal/observability"
	"pump-sniper/internal/registry"
	"pump-sniper/internal/settlement"
	"pump-sniper/internal/storage"
	"pump-sniper/internal/storage/memory"
)

const (
	testMint    = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	testMint2   = "So11111111111111111111111111111111111111112"
	testCreator = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
)

// fakeSettle is a controllable settlement client: fills at the reference
// price, charges the configured fee, and fails on demand.
type fakeSettle struct {
	mu           sync.Mutex
	feeRate      float64
	prices       map[string]float64
	buyDelay     time.Duration
	buyErr       error
	sellFailures int // fail this many sells, then succeed
	sellErr      error
	sells        int
}

func newFakeSettle() *fakeSettle {
	return &fakeSettle{feeRate: 0.0125, prices: make(map[string]float64)}
}

func (f *fakeSettle) SubmitBuy(_ context.Context, mint string, solBudget, refPrice float64) (*settlement.Fill, error) {
	f.mu.Lock()
	delay, buyErr := f.buyDelay, f.buyErr
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if buyErr != nil {
		return nil, buyErr
	}
	fee := solBudget * f.feeRate
	return &settlement.Fill{
		Signature:     "buy-" + mint,
		Price:         refPrice,
		SolAmount:     solBudget,
		TokenQuantity: (solBudget - fee) / refPrice,
		FeeSOL:        fee,
		ExecutedAt:    time.Now(),
	}, nil
}

func (f *fakeSettle) SubmitSell(_ context.Context, mint string, quantity, refPrice float64) (*settlement.Fill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sells++
	if f.sellFailures > 0 {
		f.sellFailures--
		return nil, errors.New("transaction failed")
	}
	if f.sellErr != nil {
		return nil, f.sellErr
	}
	gross := quantity * refPrice
	fee := gross * f.feeRate
	return &settlement.Fill{
		Signature:     "sell-" + mint,
		Price:         refPrice,
		SolAmount:     gross - fee,
		TokenQuantity: quantity,
		FeeSOL:        fee,
		ExecutedAt:    time.Now(),
	}, nil
}

func (f *fakeSettle) CurrentPrice(_ context.Context, mint string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	price, ok := f.prices[mint]
	if !ok {
		return 0, settlement.ErrPriceUnavailable
	}
	return price, nil
}

func (f *fakeSettle) setPrice(mint string, price float64) {
	f.mu.Lock()
	f.prices[mint] = price
	f.mu.Unlock()
}

func (f *fakeSettle) sellCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sells
}

func testConfig() *config.Config {
	return &config.Config{
		Mode: config.ModeDryRun,
		Wallet: config.WalletConfig{
			InitialCapitalSOL: 10,
			MinReserveSOL:     1,
		},
		Strategy: config.StrategyConfig{
			ObservationWindow: 50 * time.Millisecond,
			PricePollInterval: 10 * time.Millisecond,
			MaxPositionPct:    0.2,
			MaxSlippagePct:    0.05,
			TradingFeePct:     0.0125,
			ProfitTargetRatio: 0.5,
			StopLossRatio:     0.1,
			TrailingStopRatio: 0.1,
			MinHoldTime:       0,
			MaxHoldTime:       time.Minute,
			MinCurveFillPct:   0,
			MaxCurveFillPct:   50,
			TierHighScore:     0.75,
			TierMediumScore:   0.5,
			HighProfitScale:   1,
			HighStopScale:     1,
			LowProfitScale:    1,
			LowStopScale:      1,
			SettlementTimeout: time.Second,
			ExitRetryLimit:    2,
		},
		Momentum: config.MomentumConfig{
			VolumeWeight:  0.3,
			PriceWeight:   0.3,
			RatioWeight:   0.2,
			BuyersWeight:  0.2,
			MinVolumeSOL:  1,
			MinPricePct:   10,
			MinRatio:      2,
			MinBuyers:     3,
			EntryScore:    0.5,
			VolumeFloorOK: 0.5,
		},
		Risk: config.RiskConfig{
			MaxConcurrentTrades: 3,
			MaxDailyLossPct:     20,
			MaxLossPerTradeSOL:  1,
			BlacklistCreators:   []string{"BadCreator111111111111111111111111111111111"},
			BlacklistKeywords:   []string{"rug"},
		},
	}
}

type testEngine struct {
	engine  *Engine
	settle  *fakeSettle
	trades  *memory.TradeStore
	ledger  *ledger.Ledger
	ledgers *memory.LedgerSnapshotStore
}

func newTestEngine(t *testing.T, cfg *config.Config) *testEngine {
	t.Helper()

	settle := newFakeSettle()
	trades := memory.NewTradeStore()
	ledgers := memory.NewLedgerSnapshotStore()
	led := ledger.New(cfg.Wallet.InitialCapitalSOL, cfg.Wallet.MinReserveSOL, cfg.Risk.MaxDailyLossPct, time.Now())

	eng := New(Options{
		Config:   cfg,
		Log:      zap.NewNop(),
		Registry: registry.New(),
		Ledger:   led,
		Momentum: momentum.New(cfg.Momentum),
		Exits:    exitpolicy.New(cfg.Strategy, cfg.Risk),
		Settle:   settle,
		Trades:   trades,
		Ticks:    memory.NewTickStore(),
		Ledgers:  ledgers,
		Metrics:  observability.New(prometheus.NewRegistry(), "test"),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = eng.Shutdown(ctx)
	})

	return &testEngine{engine: eng, settle: settle, trades: trades, ledger: led, ledgers: ledgers}
}

func goodCandidate(mint string) domain.TokenCandidate {
	return domain.TokenCandidate{
		Mint:         mint,
		Name:         "Test Token",
		Symbol:       "TST",
		Creator:      testCreator,
		CurveFillPct: 5,
		InitialPrice: 0.0001,
	}
}

// goodSample passes every gate: all momentum components at full score.
func goodSample() domain.ActivitySample {
	return domain.ActivitySample{
		BuyCount:       10,
		SellCount:      1,
		UniqueBuyers:   6,
		VolumeSOL:      2,
		PriceChangePct: 20,
		CurveFillPct:   5,
		LastPrice:      0.0001,
	}
}

func waitForTrades(t *testing.T, trades *memory.TradeStore, n int) []*domain.Trade {
	t.Helper()
	var got []*domain.Trade
	require.Eventually(t, func() bool {
		all, err := trades.GetAll(context.Background())
		if err != nil || len(all) != n {
			return false
		}
		got = all
		return true
	}, 3*time.Second, 5*time.Millisecond)
	return got
}

func TestEntryToProfitTarget(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	decision := te.engine.RequestEntry(ctx, goodCandidate(testMint), goodSample())
	require.True(t, decision.Accepted, "rejected: %s", decision.Reason)
	require.NotEmpty(t, decision.PositionID)

	positions := te.engine.Positions()
	require.Len(t, positions, 1)
	pos := positions[0]
	assert.Equal(t, domain.StateOpen, pos.State)
	assert.Equal(t, domain.TierHigh, pos.Tier)
	assert.Equal(t, 0.0001, pos.EntryPrice)
	// size = tradeable 9 * max position 0.2 * full-score fraction 1
	assert.InDelta(t, 1.8, pos.Committed, 1e-9)
	assert.InDelta(t, 1.8, te.ledger.Summary().ReservedCapital, 1e-9)

	// Price path from entry: 0.00012 holds, 0.00016 crosses the +50% target.
	te.settle.setPrice(testMint, 0.00012)
	time.Sleep(40 * time.Millisecond)
	require.Len(t, te.engine.Positions(), 1, "position exited early")

	te.settle.setPrice(testMint, 0.00016)
	trades := waitForTrades(t, te.trades, 1)

	trade := trades[0]
	assert.Equal(t, domain.ExitReasonProfitTarget, trade.ExitReason)
	assert.Equal(t, domain.OutcomeProfit, trade.Outcome)
	assert.Positive(t, trade.NetPnL)
	assert.InDelta(t, trade.Returned-trade.Committed, trade.NetPnL, 1e-9)

	summary := te.ledger.Summary()
	assert.InDelta(t, 0, summary.ReservedCapital, 1e-9)
	assert.InDelta(t, 10+trade.NetPnL, summary.TotalCapital, 1e-9)
	assert.Empty(t, te.engine.Positions())
}

func TestEntryRejectionGates(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(te *testEngine, cfg *config.Config)
		candidate  func() domain.TokenCandidate
		sample     func() domain.ActivitySample
		wantReason string
	}{
		{
			name:       "halted engine",
			setup:      func(te *testEngine, _ *config.Config) { te.engine.Halt() },
			wantReason: domain.RejectHalted,
		},
		{
			name: "daily loss limit",
			setup: func(te *testEngine, _ *config.Config) {
				// Realize a 30% loss against a 20% daily cap.
				te.ledger.Settle(3, 0, time.Now())
			},
			wantReason: domain.RejectDailyLoss,
		},
		{
			name: "blacklisted creator",
			candidate: func() domain.TokenCandidate {
				c := goodCandidate(testMint)
				c.Creator = "BadCreator111111111111111111111111111111111"
				return c
			},
			wantReason: domain.RejectCreatorBlacklist,
		},
		{
			name: "blacklisted keyword",
			candidate: func() domain.TokenCandidate {
				c := goodCandidate(testMint)
				c.Name = "Definitely Not A RugPull"
				return c
			},
			wantReason: domain.RejectKeywordBlacklist,
		},
		{
			name: "curve fill above band",
			sample: func() domain.ActivitySample {
				s := goodSample()
				s.CurveFillPct = 80
				return s
			},
			wantReason: domain.RejectCurveBand,
		},
		{
			name: "negative momentum",
			sample: func() domain.ActivitySample {
				s := goodSample()
				s.PriceChangePct = -5
				return s
			},
			wantReason: momentum.ReasonNegativeMomentum,
		},
		{
			name: "position cap",
			setup: func(te *testEngine, cfg *config.Config) {
				cfg.Risk.MaxConcurrentTrades = 0
			},
			wantReason: domain.RejectPositionCap,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			te := newTestEngine(t, cfg)
			if tt.setup != nil {
				tt.setup(te, cfg)
			}
			candidate := goodCandidate(testMint)
			if tt.candidate != nil {
				candidate = tt.candidate()
			}
			sample := goodSample()
			if tt.sample != nil {
				sample = tt.sample()
			}

			decision := te.engine.RequestEntry(context.Background(), candidate, sample)
			require.False(t, decision.Accepted)
			assert.Equal(t, tt.wantReason, decision.Reason)
			assert.InDelta(t, 0, te.ledger.Summary().ReservedCapital, 1e-9)
		})
	}
}

func TestBuyFailureReleasesReservation(t *testing.T) {
	te := newTestEngine(t, testConfig())
	te.settle.buyErr = errors.New("rpc timeout")

	decision := te.engine.RequestEntry(context.Background(), goodCandidate(testMint), goodSample())
	require.False(t, decision.Accepted)
	assert.InDelta(t, 0, te.ledger.Summary().ReservedCapital, 1e-9)
	assert.Empty(t, te.engine.Positions())
}

func TestRequestExitIdempotent(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy.PricePollInterval = 200 * time.Millisecond
	te := newTestEngine(t, cfg)
	ctx := context.Background()

	decision := te.engine.RequestEntry(ctx, goodCandidate(testMint), goodSample())
	require.True(t, decision.Accepted)
	id := decision.PositionID

	// Fail the first settlement so the position stays alive in EXIT_FAILED
	// long enough for a concurrent trigger to arrive.
	te.settle.mu.Lock()
	te.settle.sellFailures = 1
	te.settle.mu.Unlock()

	require.NoError(t, te.engine.RequestExit(ctx, id, domain.ExitReasonStopLoss, 0.00009))
	// Second trigger for a position already past OPEN: no-op, not an error,
	// and no second settlement submission.
	require.NoError(t, te.engine.RequestExit(ctx, id, domain.ExitReasonTimeLimit, 0.00009))
	assert.Equal(t, 1, te.settle.sellCount())

	// The monitor retries with the frozen snapshot: one trade, first reason.
	trades := waitForTrades(t, te.trades, 1)
	assert.Equal(t, domain.ExitReasonStopLoss, trades[0].ExitReason)

	// Once closed and removed, further requests report NotFound.
	err := te.engine.RequestExit(ctx, id, domain.ExitReasonStopLoss, 0.00009)
	assert.ErrorIs(t, err, ErrPositionNotFound)
}

func TestExitRetrySucceeds(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	decision := te.engine.RequestEntry(ctx, goodCandidate(testMint), goodSample())
	require.True(t, decision.Accepted)

	te.settle.mu.Lock()
	te.settle.sellFailures = 1
	te.settle.mu.Unlock()

	require.NoError(t, te.engine.RequestExit(ctx, decision.PositionID, domain.ExitReasonTimeLimit, 0.0001))

	// First attempt failed; the monitor retries with the frozen snapshot.
	trades := waitForTrades(t, te.trades, 1)
	assert.Equal(t, domain.ExitReasonTimeLimit, trades[0].ExitReason)
	assert.GreaterOrEqual(t, te.settle.sellCount(), 2)
	assert.False(t, te.engine.Halted())
}

func TestExitRetryExhaustionGoesFatal(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy.ExitRetryLimit = 1
	te := newTestEngine(t, cfg)
	ctx := context.Background()

	decision := te.engine.RequestEntry(ctx, goodCandidate(testMint), goodSample())
	require.True(t, decision.Accepted)
	committed := te.engine.Positions()[0].Committed

	te.settle.mu.Lock()
	te.settle.sellErr = errors.New("transaction failed")
	te.settle.mu.Unlock()

	require.NoError(t, te.engine.RequestExit(ctx, decision.PositionID, domain.ExitReasonStopLoss, 0.00009))

	require.Eventually(t, func() bool {
		positions := te.engine.Positions()
		return len(positions) == 1 && positions[0].State == domain.StateFatal
	}, 3*time.Second, 5*time.Millisecond)

	assert.True(t, te.engine.Halted(), "fatal position must halt new entries")
	assert.Equal(t, 1, te.engine.FatalCount())

	// The committed capital is realized as a loss, never silently dropped.
	summary := te.ledger.Summary()
	assert.InDelta(t, 0, summary.ReservedCapital, 1e-9)
	assert.InDelta(t, 10-committed, summary.TotalCapital, 1e-9)

	// Fatal positions stay visible but free their concurrency slot.
	assert.Len(t, te.engine.Positions(), 1)

	trades, err := te.trades.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, trades, "no trade record for an unsettled position")
}

func TestShutdownClosesAllPositions(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	d1 := te.engine.RequestEntry(ctx, goodCandidate(testMint), goodSample())
	require.True(t, d1.Accepted)
	d2 := te.engine.RequestEntry(ctx, goodCandidate(testMint2), goodSample())
	require.True(t, d2.Accepted)

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, te.engine.Shutdown(shutdownCtx))

	trades, err := te.trades.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	for _, trade := range trades {
		assert.Equal(t, domain.ExitReasonShutdown, trade.ExitReason)
	}
	assert.Empty(t, te.engine.Positions())
	assert.InDelta(t, 0, te.ledger.Summary().ReservedCapital, 1e-9)

	// Shutdown refuses further entries.
	d3 := te.engine.RequestEntry(ctx, goodCandidate(testMint), goodSample())
	assert.Equal(t, domain.RejectHalted, d3.Reason)
}

func TestConcurrentEntriesNeverOverReserve(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.MaxConcurrentTrades = 100
	cfg.Strategy.PricePollInterval = time.Hour
	te := newTestEngine(t, cfg)

	mints := []string{
		testMint,
		testMint2,
		"4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R",
		"7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYmW2hr",
		"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	}
	var wg sync.WaitGroup
	for _, mint := range mints {
		wg.Add(1)
		go func(m string) {
			defer wg.Done()
			te.engine.RequestEntry(context.Background(), goodCandidate(m), goodSample())
		}(mint)
	}
	wg.Wait()

	summary := te.ledger.Summary()
	maxReservable := summary.TotalCapital - 1 // min reserve
	assert.LessOrEqual(t, summary.ReservedCapital, maxReservable+1e-9)
}

func TestSnapshotLedgerRoundTrip(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	// Move the ledger off its initial state so the snapshot carries data.
	te.ledger.Settle(2, 2.5, time.Now())
	require.NoError(t, te.engine.SnapshotLedger(ctx))

	got, at, err := te.ledgers.Latest(ctx)
	require.NoError(t, err)
	assert.False(t, at.IsZero())
	assert.Equal(t, te.ledger.Summary(), got)
	assert.InDelta(t, 10.5, got.TotalCapital, 1e-9)
}

func TestConcurrentEntriesRespectPositionCap(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.MaxConcurrentTrades = 1
	cfg.Strategy.PricePollInterval = time.Hour
	te := newTestEngine(t, cfg)

	// A slow fill keeps the first entry in flight while the rest arrive,
	// so the cap must hold before any position reaches the registry.
	te.settle.mu.Lock()
	te.settle.buyDelay = 50 * time.Millisecond
	te.settle.mu.Unlock()

	mints := []string{
		testMint,
		testMint2,
		"4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R",
		"7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYmW2hr",
		"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		"JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN",
	}
	var accepted, capRejected atomic.Int64
	var wg sync.WaitGroup
	for _, mint := range mints {
		wg.Add(1)
		go func(m string) {
			defer wg.Done()
			decision := te.engine.RequestEntry(context.Background(), goodCandidate(m), goodSample())
			switch {
			case decision.Accepted:
				accepted.Add(1)
			case decision.Reason == domain.RejectPositionCap:
				capRejected.Add(1)
			}
		}(mint)
	}
	wg.Wait()

	assert.Equal(t, int64(1), accepted.Load())
	assert.Equal(t, int64(len(mints)-1), capRejected.Load())
	assert.Len(t, te.engine.Positions(), 1)
}

var _ settlement.Client = (*fakeSettle)(nil)
var _ storage.TradeStore = (*memory.TradeStore)(nil)
