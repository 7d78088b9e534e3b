// Package settlement executes entry and exit swaps and serves price reads
// for open positions. Implementations: rpc (live trading) and paper
// (simulated fills for dry runs).
package settlement

import (
	"context"
	"errors"
	"time"
)

// ErrPriceUnavailable is returned by CurrentPrice when the source has no
// fresh quote for the mint. Monitoring treats it as no information, never
// as a zero price.
var ErrPriceUnavailable = errors.New("price unavailable")

// Fill is the result of an executed swap.
type Fill struct {
	Signature     string
	Price         float64 // SOL per token actually filled
	SolAmount     float64 // SOL paid in (buy) or received after fees (sell)
	TokenQuantity float64
	FeeSOL        float64
	ExecutedAt    time.Time
}

// Client executes swaps against a token bonding curve.
type Client interface {
	// SubmitBuy spends solBudget (fee included) on the mint. refPrice is
	// the price the decision was made at, used for slippage control.
	SubmitBuy(ctx context.Context, mint string, solBudget, refPrice float64) (*Fill, error)

	// SubmitSell sells quantity tokens of the mint.
	SubmitSell(ctx context.Context, mint string, quantity, refPrice float64) (*Fill, error)

	// CurrentPrice returns the latest SOL-per-token quote for the mint.
	CurrentPrice(ctx context.Context, mint string) (float64, error)
}
