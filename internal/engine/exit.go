package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"pump-sniper/internal/domain"
	"pump-sniper/internal/idhash"
	"pump-sniper/internal/registry"
	"pump-sniper/internal/storage"
)

// RequestExit asks for the position to be closed at the given price for
// the given reason. Concurrent requests collapse to one settlement: only
// the caller that wins the OPEN -> EXIT_REQUESTED transition settles, every
// other call is a no-op returning nil. Unknown positions (already closed
// and removed) return ErrPositionNotFound.
func (e *Engine) RequestExit(ctx context.Context, positionID, reason string, price float64) error {
	started, err := e.registry.BeginExit(positionID, reason, price, e.now())
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return ErrPositionNotFound
		}
		return err
	}
	if !started {
		return nil
	}

	e.log.Info("exit requested",
		zap.String("position_id", positionID),
		zap.String("reason", reason),
		zap.Float64("price", price))

	e.attemptSettlement(ctx, positionID)
	return nil
}

// attemptSettlement submits one sell for a position in EXIT_REQUESTED and
// applies the outcome. At most one attempt runs per position at a time;
// a concurrent caller returns immediately and the position progresses on
// its monitor's next tick.
func (e *Engine) attemptSettlement(ctx context.Context, positionID string) {
	if _, inFlight := e.settling.LoadOrStore(positionID, struct{}{}); inFlight {
		return
	}
	defer e.settling.Delete(positionID)

	pos, err := e.registry.Get(positionID)
	if err != nil || pos.State != domain.StateExitRequested {
		return
	}

	sellCtx, cancel := context.WithTimeout(ctx, e.cfg.Strategy.SettlementTimeout)
	started := e.now()
	fill, err := e.settle.SubmitSell(sellCtx, pos.Candidate.Mint, pos.Quantity, pos.ExitPrice)
	cancel()
	e.metrics.SettlementLatency.WithLabelValues("sell").Observe(e.now().Sub(started).Seconds())

	if err != nil {
		e.metrics.SettlementFailures.WithLabelValues("sell").Inc()
		attempts, ferr := e.registry.MarkExitFailed(positionID, e.now())
		if ferr != nil {
			e.log.Error("exit failure could not be recorded",
				zap.String("position_id", positionID), zap.Error(ferr))
			return
		}
		e.log.Warn("exit settlement failed",
			zap.String("position_id", positionID),
			zap.Int("attempts", attempts),
			zap.Error(err))
		if attempts > e.cfg.Strategy.ExitRetryLimit {
			e.abandonPosition(positionID, pos.Committed)
		}
		return
	}

	e.finalizeExit(ctx, pos, fill.Price, fill.SolAmount, fill.FeeSOL)
}

// finalizeExit closes the position, records the trade and settles the
// ledger. Close and Settle are the atomic pair: the reservation is
// released in the same ledger mutation that applies the realized P&L.
func (e *Engine) finalizeExit(ctx context.Context, pos domain.Position, exitPrice, returned, exitFee float64) {
	now := e.now()
	closed, err := e.registry.Close(pos.PositionID, exitPrice, now)
	if err != nil {
		e.log.Error("close transition rejected",
			zap.String("position_id", pos.PositionID), zap.Error(err))
		return
	}

	entryValue := closed.Committed - closed.EntryFee
	gross := exitPrice*closed.Quantity - entryValue
	net := returned - closed.Committed

	trade := &domain.Trade{
		TradeID:      idhash.ComputeTradeID(closed.PositionID, closed.ExitReason, now.UnixMilli()),
		PositionID:   closed.PositionID,
		Mint:         closed.Candidate.Mint,
		Symbol:       closed.Candidate.Symbol,
		Tier:         closed.Tier,
		EntryPrice:   closed.EntryPrice,
		ExitPrice:    exitPrice,
		Quantity:     closed.Quantity,
		Committed:    closed.Committed,
		Returned:     returned,
		GrossPnL:     gross,
		NetPnL:       net,
		EntryFee:     closed.EntryFee,
		ExitFee:      exitFee,
		ExitReason:   closed.ExitReason,
		Outcome:      domain.ClassifyOutcome(net),
		OpenedAt:     closed.OpenedAt,
		ClosedAt:     now,
		HoldDuration: now.Sub(closed.OpenedAt),
	}
	if err := e.trades.Insert(ctx, trade); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		e.log.Error("trade record not persisted",
			zap.String("trade_id", trade.TradeID), zap.Error(err))
	}

	e.ledger.Settle(closed.Committed, returned, now)

	e.metrics.ExitsCompleted.Inc()
	e.metrics.ExitReasons.WithLabelValues(closed.ExitReason).Inc()
	e.metrics.OpenPositions.Set(float64(e.registry.ActiveCount()))
	e.metrics.ObserveLedger(e.ledger.Summary())

	e.log.Info("position closed",
		zap.String("position_id", closed.PositionID),
		zap.String("mint", closed.Candidate.Mint),
		zap.String("reason", closed.ExitReason),
		zap.String("outcome", trade.Outcome),
		zap.Float64("entry_price", closed.EntryPrice),
		zap.Float64("exit_price", exitPrice),
		zap.Float64("net_pnl_sol", net),
		zap.Duration("held", trade.HoldDuration))
}

// abandonPosition marks a position fatal after its retry budget ran out.
// The committed capital is realized as a full loss so the ledger keeps
// adding up, and new entries stop until an operator intervenes.
func (e *Engine) abandonPosition(positionID string, committed float64) {
	now := e.now()
	if _, err := e.registry.MarkFatal(positionID, now); err != nil {
		e.log.Error("fatal transition rejected",
			zap.String("position_id", positionID), zap.Error(err))
		return
	}
	e.ledger.Settle(committed, 0, now)
	e.fatalCount.Add(1)
	e.halted.Store(true)

	e.metrics.FatalPositions.Set(float64(e.fatalCount.Load()))
	e.metrics.OpenPositions.Set(float64(e.registry.ActiveCount()))
	e.metrics.ObserveLedger(e.ledger.Summary())

	e.log.Error("position abandoned after exhausting exit retries, halting new entries",
		zap.String("position_id", positionID),
		zap.Float64("committed_sol", committed))
}

// Shutdown requests an exit for every live position, waits for in-flight
// settlements up to the context deadline, and persists a final ledger
// snapshot. New entries are refused from the first call onward.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.halted.Store(true)

	for _, pos := range e.registry.Snapshot() {
		if pos.State.Terminal() {
			continue
		}
		if err := e.RequestExit(ctx, pos.PositionID, domain.ExitReasonShutdown, pos.CurrentPrice); err != nil {
			e.log.Warn("shutdown exit request failed",
				zap.String("position_id", pos.PositionID), zap.Error(err))
		}
	}

	// One more pass for positions that were already in the failed state
	// when shutdown arrived: their monitors may never tick again.
	for _, pos := range e.registry.Snapshot() {
		if pos.State != domain.StateExitFailed {
			continue
		}
		if _, err := e.registry.RetryExit(pos.PositionID, e.now()); err == nil {
			e.attemptSettlement(ctx, pos.PositionID)
		}
	}

	e.monitorCancel()

	done := make(chan struct{})
	go func() {
		e.monitors.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		e.log.Warn("shutdown timed out waiting for monitors")
	}

	snapCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.SnapshotLedger(snapCtx); err != nil {
		return err
	}
	return ctx.Err()
}
