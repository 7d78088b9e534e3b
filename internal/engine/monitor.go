package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"pump-sniper/internal/domain"
	"pump-sniper/internal/settlement"
)

// tickFlushSize is how many price observations a monitor buffers before
// writing a batch to the tick archive.
const tickFlushSize = 16

// monitor is one position's monitoring loop. It polls the price at the
// configured interval, advances the peak, archives ticks and drives the
// exit state machine until the position leaves the registry.
func (e *Engine) monitor(ctx context.Context, positionID, mint string) {
	defer e.monitors.Done()

	ticker := time.NewTicker(e.cfg.Strategy.PricePollInterval)
	defer ticker.Stop()

	var batch []*domain.PriceTick
	defer func() { e.flushTicks(batch) }()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pos, err := e.registry.Get(positionID)
			if err != nil {
				// Closed and removed.
				return
			}

			switch pos.State {
			case domain.StateOpen:
				batch = e.observeAndEvaluate(ctx, pos, mint, batch)
			case domain.StateExitRequested:
				// A prior settlement attempt is either in flight or was
				// interrupted; attemptSettlement sorts out which.
				e.attemptSettlement(ctx, positionID)
			case domain.StateExitFailed:
				if pos.ExitAttempts > e.cfg.Strategy.ExitRetryLimit {
					return
				}
				if _, err := e.registry.RetryExit(positionID, e.now()); err == nil {
					e.attemptSettlement(ctx, positionID)
				}
			case domain.StateFatal:
				return
			}

			if len(batch) >= tickFlushSize {
				e.flushTicks(batch)
				batch = nil
			}
		}
	}
}

// observeAndEvaluate handles one tick of an OPEN position: poll, record,
// evaluate the exit policy. An unavailable price is no information, the
// position simply waits for the next tick.
func (e *Engine) observeAndEvaluate(ctx context.Context, pos domain.Position, mint string, batch []*domain.PriceTick) []*domain.PriceTick {
	price, err := e.settle.CurrentPrice(ctx, mint)
	if err != nil {
		if !errors.Is(err, settlement.ErrPriceUnavailable) {
			e.log.Debug("price poll failed",
				zap.String("position_id", pos.PositionID), zap.Error(err))
		}
		return batch
	}

	now := e.now()
	updated, err := e.registry.UpdatePrice(pos.PositionID, price, now)
	if err != nil {
		return batch
	}
	batch = append(batch, &domain.PriceTick{
		PositionID: pos.PositionID,
		Mint:       mint,
		Price:      price,
		PeakPrice:  updated.PeakPrice,
		ObservedAt: now,
	})

	if decision := e.exits.Evaluate(&updated, now); decision != nil {
		started, err := e.registry.BeginExit(pos.PositionID, decision.Reason, decision.Price, now)
		if err == nil && started {
			e.log.Info("exit condition fired",
				zap.String("position_id", pos.PositionID),
				zap.String("reason", decision.Reason),
				zap.Float64("price", decision.Price),
				zap.Float64("peak_price", updated.PeakPrice))
			e.attemptSettlement(ctx, pos.PositionID)
		}
	}
	return batch
}

// flushTicks writes a batch to the archive. Archive failures never affect
// the position lifecycle.
func (e *Engine) flushTicks(batch []*domain.PriceTick) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.ticks.InsertBulk(ctx, batch); err != nil {
		e.log.Warn("tick archive write failed", zap.Int("ticks", len(batch)), zap.Error(err))
		return
	}
	e.metrics.TicksArchived.Add(float64(len(batch)))
}
