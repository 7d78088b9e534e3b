// Package intake consumes the launch feed and turns raw launches into
// entry requests. Each candidate gets its own bounded evaluation
// goroutine: observe early trading for the configured window, aggregate
// an activity sample, and hand the result to the orchestrator.
package intake

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"pump-sniper/internal/domain"
	"pump-sniper/internal/feed"
	"pump-sniper/internal/observability"
	"pump-sniper/internal/solana"
)

// EntryRequester is the orchestrator side of the intake handoff.
type EntryRequester interface {
	RequestEntry(ctx context.Context, candidate domain.TokenCandidate, sample domain.ActivitySample) domain.EntryDecision
}

// PriceObserver receives prices seen during observation windows. Paper
// settlement uses them to quote a fill before its own price tracking
// delivers a first event.
type PriceObserver interface {
	ObservePrice(mint string, price float64)
}

// Options configures the intake pipeline.
type Options struct {
	Source  feed.LaunchSource
	Engine  EntryRequester
	Log     *zap.Logger
	Metrics *observability.Metrics

	// Prices, when set, is fed every priced trade event seen during
	// observation windows.
	Prices PriceObserver

	// ObservationWindow is how long each candidate's early trading is
	// sampled before the entry decision.
	ObservationWindow time.Duration

	// MaxConcurrentEvals bounds the number of candidates observed at once.
	MaxConcurrentEvals int64
}

// Intake drains the launch feed and evaluates candidates concurrently.
type Intake struct {
	source  feed.LaunchSource
	engine  EntryRequester
	log     *zap.Logger
	metrics *observability.Metrics
	prices  PriceObserver
	window  time.Duration
	sem     *semaphore.Weighted

	evaluated atomic.Int64
	skipped   atomic.Int64

	wg sync.WaitGroup
}

// New creates an intake pipeline.
func New(opts Options) *Intake {
	return &Intake{
		source:  opts.Source,
		engine:  opts.Engine,
		log:     opts.Log,
		metrics: opts.Metrics,
		prices:  opts.Prices,
		window:  opts.ObservationWindow,
		sem:     semaphore.NewWeighted(opts.MaxConcurrentEvals),
	}
}

// Run consumes launches until the context is cancelled or the feed closes.
// It blocks, so callers run it in its own goroutine; in-flight evaluations
// are drained before it returns.
func (i *Intake) Run(ctx context.Context) error {
	defer i.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case candidate, ok := <-i.source.Launches():
			if !ok {
				return nil
			}
			i.dispatch(ctx, candidate)
		}
	}
}

// Stats returns how many candidates reached the momentum gate and how many
// were dropped before it.
func (i *Intake) Stats() (evaluated, skipped int64) {
	return i.evaluated.Load(), i.skipped.Load()
}

// dispatch starts one bounded evaluation goroutine for a candidate.
// Candidates arriving while the evaluation pool is saturated are dropped:
// a stale launch is worth less than keeping up with the feed.
func (i *Intake) dispatch(ctx context.Context, candidate domain.TokenCandidate) {
	if !solana.IsValidAddress(candidate.Mint) {
		i.skipped.Add(1)
		i.metrics.CandidatesSkipped.Inc()
		i.log.Debug("dropping launch with invalid mint", zap.String("mint", candidate.Mint))
		return
	}

	if !i.sem.TryAcquire(1) {
		i.skipped.Add(1)
		i.metrics.CandidatesSkipped.Inc()
		i.log.Warn("evaluation pool saturated, dropping launch",
			zap.String("mint", candidate.Mint),
			zap.String("symbol", candidate.Symbol))
		return
	}

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		defer i.sem.Release(1)
		i.evaluate(ctx, candidate)
	}()
}

// evaluate observes the candidate's early trading and requests entry.
func (i *Intake) evaluate(ctx context.Context, candidate domain.TokenCandidate) {
	sample := i.observe(ctx, candidate)
	if ctx.Err() != nil {
		return
	}

	i.evaluated.Add(1)
	decision := i.engine.RequestEntry(ctx, candidate, sample)
	if decision.Accepted {
		i.log.Info("entry accepted",
			zap.String("mint", candidate.Mint),
			zap.String("symbol", candidate.Symbol),
			zap.String("position_id", decision.PositionID))
		return
	}
	i.log.Debug("entry rejected",
		zap.String("mint", candidate.Mint),
		zap.String("symbol", candidate.Symbol),
		zap.String("reason", decision.Reason))
}

// observe aggregates trade events for the observation window. A failed
// subscription yields a zero sample: no information is never treated as
// good information, and the momentum gate rejects it downstream.
func (i *Intake) observe(ctx context.Context, candidate domain.TokenCandidate) domain.ActivitySample {
	start := time.Now()
	sample := domain.ActivitySample{
		CurveFillPct: candidate.CurveFillPct,
		WindowStart:  start,
	}

	events, err := i.source.SubscribeTrades(ctx, candidate.Mint)
	if err != nil {
		i.log.Warn("trade subscription failed, scoring zero activity",
			zap.String("mint", candidate.Mint), zap.Error(err))
		sample.WindowEnd = start
		return sample
	}
	defer i.source.UnsubscribeTrades(candidate.Mint)

	buyers := make(map[string]struct{})
	basePrice := candidate.InitialPrice

	timer := time.NewTimer(i.window)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			sample.WindowEnd = time.Now()
			sample.UniqueBuyers = len(buyers)
			return sample
		case <-timer.C:
			sample.WindowEnd = time.Now()
			sample.UniqueBuyers = len(buyers)
			return sample
		case event, ok := <-events:
			if !ok {
				sample.WindowEnd = time.Now()
				sample.UniqueBuyers = len(buyers)
				return sample
			}
			if event.IsBuy {
				sample.BuyCount++
				if event.Trader != "" {
					buyers[event.Trader] = struct{}{}
				}
			} else {
				sample.SellCount++
			}
			sample.VolumeSOL += event.SolAmount
			if event.CurveFillPct > 0 {
				sample.CurveFillPct = event.CurveFillPct
			}
			if event.Price > 0 {
				if basePrice <= 0 {
					basePrice = event.Price
				}
				sample.LastPrice = event.Price
				sample.PriceChangePct = (event.Price - basePrice) / basePrice * 100
				if i.prices != nil {
					i.prices.ObservePrice(candidate.Mint, event.Price)
				}
			}
		}
	}
}
