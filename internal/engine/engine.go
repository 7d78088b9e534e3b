// Package engine is the trading orchestrator: the single writer of the
// capital ledger and the only component that brings positions into or out
// of existence. Entry requests pass a fixed gate sequence; accepted
// candidates get a position, a capital reservation and a monitoring
// goroutine. Exits are idempotent and settle with bounded retries.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pump-sniper/internal/config"
	"pump-sniper/internal/domain"
	"pump-sniper/internal/exitpolicy"
	"pump-sniper/internal/idhash"
	"pump-sniper/internal/ledger"
	"pump-sniper/internal/momentum"
	"pump-sniper/internal/observability"
	"pump-sniper/internal/registry"
	"pump-sniper/internal/settlement"
	"pump-sniper/internal/storage"
)

// Options wires the orchestrator's collaborators.
type Options struct {
	Config   *config.Config
	Log      *zap.Logger
	Registry *registry.Registry
	Ledger   *ledger.Ledger
	Momentum *momentum.Evaluator
	Exits    *exitpolicy.Evaluator
	Settle   settlement.Client
	Trades   storage.TradeStore
	Ticks    storage.TickStore
	Ledgers  storage.LedgerSnapshotStore
	Metrics  *observability.Metrics

	// Clock overrides time.Now in tests. Nil means wall clock.
	Clock func() time.Time
}

// Engine orchestrates the position lifecycle.
type Engine struct {
	cfg      *config.Config
	log      *zap.Logger
	registry *registry.Registry
	ledger   *ledger.Ledger
	momentum *momentum.Evaluator
	exits    *exitpolicy.Evaluator
	settle   settlement.Client
	trades   storage.TradeStore
	ticks    storage.TickStore
	ledgers  storage.LedgerSnapshotStore
	metrics  *observability.Metrics
	now      func() time.Time

	startedAt time.Time

	halted     atomic.Bool
	fatalCount atomic.Int64

	// settling holds position ids with a settlement attempt in flight, so
	// a monitor tick and a shutdown request never double-submit a sell.
	settling sync.Map

	monitorCtx    context.Context
	monitorCancel context.CancelFunc
	monitors      sync.WaitGroup

	blacklistCreators map[string]struct{}
	blacklistKeywords []string
}

// New creates an engine ready to accept entry requests.
func New(opts Options) *Engine {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())

	creators := make(map[string]struct{}, len(opts.Config.Risk.BlacklistCreators))
	for _, c := range opts.Config.Risk.BlacklistCreators {
		creators[c] = struct{}{}
	}
	keywords := make([]string, 0, len(opts.Config.Risk.BlacklistKeywords))
	for _, k := range opts.Config.Risk.BlacklistKeywords {
		keywords = append(keywords, strings.ToLower(k))
	}

	return &Engine{
		cfg:               opts.Config,
		log:               opts.Log,
		registry:          opts.Registry,
		ledger:            opts.Ledger,
		momentum:          opts.Momentum,
		exits:             opts.Exits,
		settle:            opts.Settle,
		trades:            opts.Trades,
		ticks:             opts.Ticks,
		ledgers:           opts.Ledgers,
		metrics:           opts.Metrics,
		now:               now,
		startedAt:         now(),
		monitorCtx:        ctx,
		monitorCancel:     cancel,
		blacklistCreators: creators,
		blacklistKeywords: keywords,
	}
}

// RequestEntry runs the entry gates for a candidate and, on acceptance,
// opens the position and starts its monitor. Rejections are expected and
// logged at debug only.
func (e *Engine) RequestEntry(ctx context.Context, candidate domain.TokenCandidate, sample domain.ActivitySample) domain.EntryDecision {
	e.metrics.CandidatesEvaluated.Inc()

	positionID, err := e.tryEnter(ctx, candidate, sample)
	if err == nil {
		e.metrics.EntriesOpened.Inc()
		e.metrics.OpenPositions.Set(float64(e.registry.ActiveCount()))
		e.metrics.ObserveLedger(e.ledger.Summary())
		return domain.EntryDecision{Accepted: true, PositionID: positionID}
	}

	var rej *RejectionError
	if errors.As(err, &rej) {
		e.metrics.EntriesRejected.WithLabelValues(rej.Reason).Inc()
		return domain.EntryDecision{Reason: rej.Reason}
	}

	// Not a gate rejection: settlement or bookkeeping failed after the
	// gates passed. Worth an error-level record.
	e.log.Error("entry failed past the gates",
		zap.String("mint", candidate.Mint), zap.Error(err))
	e.metrics.EntriesRejected.WithLabelValues("entry error").Inc()
	return domain.EntryDecision{Reason: err.Error()}
}

// tryEnter applies the gates in their fixed order. The order matters:
// the global risk gates short-circuit everything else, and capital is
// only reserved once every cheaper gate has passed.
func (e *Engine) tryEnter(ctx context.Context, candidate domain.TokenCandidate, sample domain.ActivitySample) (string, error) {
	now := e.now()

	if e.halted.Load() {
		return "", reject(domain.RejectHalted)
	}
	if e.ledger.DailyLossLimitReached(now) {
		return "", reject(domain.RejectDailyLoss)
	}
	if _, banned := e.blacklistCreators[candidate.Creator]; banned {
		return "", reject(domain.RejectCreatorBlacklist)
	}
	if e.matchesKeywordBlacklist(candidate) {
		return "", reject(domain.RejectKeywordBlacklist)
	}
	if sample.CurveFillPct < e.cfg.Strategy.MinCurveFillPct || sample.CurveFillPct > e.cfg.Strategy.MaxCurveFillPct {
		return "", reject(domain.RejectCurveBand)
	}

	signal := e.momentum.Evaluate(sample)
	if !signal.Enter {
		return "", reject(signal.Reason)
	}

	// The slot is claimed before the buy goes out, so concurrent entries
	// with fills still in flight already count against the cap.
	if !e.registry.AcquireSlot(e.cfg.Risk.MaxConcurrentTrades) {
		return "", reject(domain.RejectPositionCap)
	}

	size := e.ledger.Tradeable() * e.cfg.Strategy.MaxPositionPct * signal.SizeFraction
	if size <= 0 {
		e.registry.ReleaseSlot()
		return "", reject(domain.RejectCapital)
	}
	if err := e.ledger.Reserve(size); err != nil {
		e.registry.ReleaseSlot()
		return "", reject(domain.RejectCapital)
	}

	refPrice := sample.LastPrice
	if refPrice <= 0 {
		refPrice = candidate.InitialPrice
	}

	buyCtx, cancel := context.WithTimeout(ctx, e.cfg.Strategy.SettlementTimeout)
	started := e.now()
	fill, err := e.settle.SubmitBuy(buyCtx, candidate.Mint, size, refPrice)
	cancel()
	e.metrics.SettlementLatency.WithLabelValues("buy").Observe(e.now().Sub(started).Seconds())
	if err != nil {
		e.ledger.ReleaseReservation(size)
		e.registry.ReleaseSlot()
		e.metrics.SettlementFailures.WithLabelValues("buy").Inc()
		return "", fmt.Errorf("buy settlement for %s: %w", candidate.Mint, err)
	}

	now = e.now()
	pos := &domain.Position{
		PositionID:   idhash.ComputePositionID(candidate.Mint, candidate.Creator, now.UnixMilli()),
		Candidate:    candidate,
		Tier:         e.tierFor(signal.Score),
		EntryPrice:   fill.Price,
		CurrentPrice: fill.Price,
		PeakPrice:    fill.Price,
		Quantity:     fill.TokenQuantity,
		Committed:    size,
		EntryFee:     fill.FeeSOL,
		OpenedAt:     now,
	}
	if err := e.registry.Open(pos); err != nil {
		e.ledger.ReleaseReservation(size)
		e.registry.ReleaseSlot()
		return "", fmt.Errorf("register position for %s: %w", candidate.Mint, err)
	}

	e.monitors.Add(1)
	go e.monitor(e.monitorCtx, pos.PositionID, candidate.Mint)

	e.log.Info("position opened",
		zap.String("position_id", pos.PositionID),
		zap.String("mint", candidate.Mint),
		zap.String("symbol", candidate.Symbol),
		zap.String("tier", string(pos.Tier)),
		zap.Float64("entry_price", fill.Price),
		zap.Float64("quantity", fill.TokenQuantity),
		zap.Float64("committed_sol", size),
		zap.Float64("momentum_score", signal.Score))

	return pos.PositionID, nil
}

func (e *Engine) matchesKeywordBlacklist(candidate domain.TokenCandidate) bool {
	name := strings.ToLower(candidate.Name)
	symbol := strings.ToLower(candidate.Symbol)
	for _, kw := range e.blacklistKeywords {
		if strings.Contains(name, kw) || strings.Contains(symbol, kw) {
			return true
		}
	}
	return false
}

// tierFor maps a momentum score onto a quality tier. Thresholds are
// inclusive, mirroring the entry threshold.
func (e *Engine) tierFor(score float64) domain.QualityTier {
	switch {
	case score >= e.cfg.Strategy.TierHighScore:
		return domain.TierHigh
	case score >= e.cfg.Strategy.TierMediumScore:
		return domain.TierMedium
	default:
		return domain.TierLow
	}
}

// Halt stops accepting new entries. Open positions keep monitoring.
func (e *Engine) Halt() { e.halted.Store(true) }

// Resume re-enables entries after a Halt.
func (e *Engine) Resume() { e.halted.Store(false) }

// Halted reports whether new entries are currently refused.
func (e *Engine) Halted() bool { return e.halted.Load() }

// StartedAt returns when this engine instance was created.
func (e *Engine) StartedAt() time.Time { return e.startedAt }

// Positions returns copies of every live position.
func (e *Engine) Positions() []domain.Position { return e.registry.Snapshot() }

// LedgerSummary returns the current capital snapshot.
func (e *Engine) LedgerSummary() domain.LedgerSummary { return e.ledger.Summary() }

// FatalCount returns how many positions have been abandoned as fatal.
func (e *Engine) FatalCount() int { return int(e.fatalCount.Load()) }

// SnapshotLedger persists the current capital snapshot. A snapshot
// ticker calls this periodically; the latest one seeds the starting
// capital on the next run.
func (e *Engine) SnapshotLedger(ctx context.Context) error {
	return e.ledgers.Insert(ctx, e.now(), e.ledger.Summary())
}
