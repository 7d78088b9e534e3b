// Package feed defines the launch and trade event sources the intake
// pipeline consumes. Implementations: pumpws (live websocket) and stub
// (deterministic generator for dry runs).
package feed

import (
	"context"
	"errors"
	"time"

	"pump-sniper/internal/domain"
)

// ErrSubscriptionClosed is returned by SubscribeTrades after the source
// has shut down.
var ErrSubscriptionClosed = errors.New("subscription source closed")

// TradeEvent is one buy or sell observed on a token's bonding curve.
type TradeEvent struct {
	Mint         string
	Signature    string
	Trader       string
	IsBuy        bool
	SolAmount    float64
	TokenAmount  float64
	Price        float64 // SOL per token after the trade
	CurveFillPct float64
	Timestamp    time.Time
}

// LaunchSource streams newly launched tokens and their early trades.
type LaunchSource interface {
	// Launches returns the channel of new token candidates. The channel is
	// closed when the source shuts down.
	Launches() <-chan domain.TokenCandidate

	// SubscribeTrades starts streaming trade events for a mint. The
	// returned channel is closed on UnsubscribeTrades or source shutdown.
	SubscribeTrades(ctx context.Context, mint string) (<-chan TradeEvent, error)

	// UnsubscribeTrades stops the trade stream for a mint.
	UnsubscribeTrades(mint string)

	// Close shuts the source down and closes all channels.
	Close() error
}
