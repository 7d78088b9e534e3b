// Package paper simulates settlement for dry runs. Fills are computed
// from the live (or stub) trade stream with configurable slippage and
// fees; no transaction ever leaves the process.
package paper

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pump-sniper/internal/feed"
	"pump-sniper/internal/settlement"
)

// Client is a simulated settlement engine. On a buy it subscribes to the
// mint's trade stream and tracks the last traded price, which then backs
// CurrentPrice for the monitoring loop. The subscription ends on sell.
type Client struct {
	source   feed.LaunchSource
	feeRate  float64
	slippage float64
	log      *zap.Logger

	mu     sync.Mutex
	prices map[string]float64
	stops  map[string]chan struct{}

	fillSeq atomic.Uint64
}

var _ settlement.Client = (*Client)(nil)

// New creates a paper settlement client.
func New(source feed.LaunchSource, feeRate, slippage float64, log *zap.Logger) *Client {
	return &Client{
		source:   source,
		feeRate:  feeRate,
		slippage: slippage,
		log:      log,
		prices:   make(map[string]float64),
		stops:    make(map[string]chan struct{}),
	}
}

// SubmitBuy simulates an entry fill at refPrice plus slippage.
func (c *Client) SubmitBuy(ctx context.Context, mint string, solBudget, refPrice float64) (*settlement.Fill, error) {
	if refPrice <= 0 {
		return nil, fmt.Errorf("buy %s: no reference price", mint)
	}
	if solBudget <= 0 {
		return nil, fmt.Errorf("buy %s: non-positive budget %v", mint, solBudget)
	}

	fillPrice := refPrice * (1 + c.slippage)
	fee := solBudget * c.feeRate
	quantity := (solBudget - fee) / fillPrice

	c.mu.Lock()
	c.prices[mint] = fillPrice
	if _, tracking := c.stops[mint]; !tracking {
		stop := make(chan struct{})
		c.stops[mint] = stop
		if events, err := c.source.SubscribeTrades(ctx, mint); err != nil {
			// No live stream for this mint. Observed prices and the fill
			// price keep serving CurrentPrice.
			c.log.Debug("paper price tracking unavailable", zap.String("mint", mint), zap.Error(err))
			delete(c.stops, mint)
		} else {
			go c.trackPrices(mint, events, stop)
		}
	}
	c.mu.Unlock()

	return &settlement.Fill{
		Signature:     c.nextSignature("buy", mint),
		Price:         fillPrice,
		SolAmount:     solBudget,
		TokenQuantity: quantity,
		FeeSOL:        fee,
		ExecutedAt:    time.Now(),
	}, nil
}

// SubmitSell simulates an exit fill at refPrice minus slippage.
func (c *Client) SubmitSell(_ context.Context, mint string, quantity, refPrice float64) (*settlement.Fill, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("sell %s: non-positive quantity %v", mint, quantity)
	}
	price := refPrice
	if price <= 0 {
		var err error
		price, err = c.lastPrice(mint)
		if err != nil {
			return nil, fmt.Errorf("sell %s: %w", mint, err)
		}
	}

	fillPrice := price * (1 - c.slippage)
	gross := quantity * fillPrice
	fee := gross * c.feeRate

	c.stopTracking(mint)

	return &settlement.Fill{
		Signature:     c.nextSignature("sell", mint),
		Price:         fillPrice,
		SolAmount:     gross - fee,
		TokenQuantity: quantity,
		FeeSOL:        fee,
		ExecutedAt:    time.Now(),
	}, nil
}

// CurrentPrice returns the last traded price observed for the mint.
func (c *Client) CurrentPrice(_ context.Context, mint string) (float64, error) {
	return c.lastPrice(mint)
}

// ObservePrice seeds or refreshes the quote for a mint. Intake calls this
// with prices seen during the observation window so a fill can settle
// before the tracking subscription delivers its first event.
func (c *Client) ObservePrice(mint string, price float64) {
	if price <= 0 {
		return
	}
	c.mu.Lock()
	c.prices[mint] = price
	c.mu.Unlock()
}

// Close stops all price tracking.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for mint, stop := range c.stops {
		close(stop)
		delete(c.stops, mint)
	}
}

func (c *Client) lastPrice(mint string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	price, ok := c.prices[mint]
	if !ok || price <= 0 {
		return 0, settlement.ErrPriceUnavailable
	}
	return price, nil
}

func (c *Client) trackPrices(mint string, events <-chan feed.TradeEvent, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Price > 0 {
				c.mu.Lock()
				c.prices[mint] = event.Price
				c.mu.Unlock()
			}
		}
	}
}

func (c *Client) stopTracking(mint string) {
	c.mu.Lock()
	stop, ok := c.stops[mint]
	if ok {
		delete(c.stops, mint)
	}
	c.mu.Unlock()

	if ok {
		close(stop)
		c.source.UnsubscribeTrades(mint)
	}
}

func (c *Client) nextSignature(side, mint string) string {
	n := c.fillSeq.Add(1)
	suffix := mint
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("paper-%s-%s-%d", side, suffix, n)
}
