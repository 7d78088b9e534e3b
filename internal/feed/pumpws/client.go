// Package pumpws streams token launches and bonding-curve trades over the
// pump websocket feed.
package pumpws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pump-sniper/internal/domain"
	"pump-sniper/internal/feed"
	"pump-sniper/internal/solana"
)

// Bonding-curve reserve constants. A fresh curve starts with the virtual
// SOL reserve and completes when the real deposit reaches the graduation
// threshold.
const (
	virtualSolReserve = 30.0
	curveCompleteSOL  = 85.0
)

// ClientConfig configures websocket client behavior.
type ClientConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the backoff between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultConfig returns default websocket configuration.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Client implements feed.LaunchSource over a pump websocket endpoint.
type Client struct {
	endpoint string
	config   ClientConfig
	log      *zap.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	launches chan domain.TokenCandidate

	// tradeSubs maps mint to its event channel. The set doubles as the
	// resubscription list after a reconnect.
	tradeSubs   map[string]chan feed.TradeEvent
	tradeSubsMu sync.RWMutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

var _ feed.LaunchSource = (*Client)(nil)

// NewClient connects to the endpoint and subscribes to the new-token
// stream.
func NewClient(ctx context.Context, endpoint string, config *ClientConfig, log *zap.Logger) (*Client, error) {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}

	c := &Client{
		endpoint:  endpoint,
		config:    cfg,
		log:       log,
		launches:  make(chan domain.TokenCandidate, 256),
		tradeSubs: make(map[string]chan feed.TradeEvent),
		done:      make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	if err := c.send(wsMethod{Method: "subscribeNewToken"}); err != nil {
		c.Close()
		return nil, fmt.Errorf("subscribe new tokens: %w", err)
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// connect establishes the websocket connection.
func (c *Client) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// Launches returns the new-token channel.
func (c *Client) Launches() <-chan domain.TokenCandidate {
	return c.launches
}

// SubscribeTrades starts streaming trade events for a mint.
func (c *Client) SubscribeTrades(_ context.Context, mint string) (<-chan feed.TradeEvent, error) {
	if c.closed.Load() {
		return nil, feed.ErrSubscriptionClosed
	}

	c.tradeSubsMu.Lock()
	if ch, ok := c.tradeSubs[mint]; ok {
		c.tradeSubsMu.Unlock()
		return ch, nil
	}
	ch := make(chan feed.TradeEvent, 1024)
	c.tradeSubs[mint] = ch
	c.tradeSubsMu.Unlock()

	if err := c.send(wsMethod{Method: "subscribeTokenTrade", Keys: []string{mint}}); err != nil {
		c.tradeSubsMu.Lock()
		delete(c.tradeSubs, mint)
		c.tradeSubsMu.Unlock()
		close(ch)
		return nil, fmt.Errorf("subscribe token trades: %w", err)
	}

	return ch, nil
}

// UnsubscribeTrades stops the trade stream for a mint.
func (c *Client) UnsubscribeTrades(mint string) {
	c.tradeSubsMu.Lock()
	ch, ok := c.tradeSubs[mint]
	if ok {
		delete(c.tradeSubs, mint)
	}
	c.tradeSubsMu.Unlock()

	if !ok {
		return
	}

	if err := c.send(wsMethod{Method: "unsubscribeTokenTrade", Keys: []string{mint}}); err != nil {
		c.log.Warn("unsubscribe token trades failed", zap.String("mint", mint), zap.Error(err))
	}
	close(ch)
}

// Close closes the connection and all subscription channels.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.tradeSubsMu.Lock()
	for mint, ch := range c.tradeSubs {
		close(ch)
		delete(c.tradeSubs, mint)
	}
	c.tradeSubsMu.Unlock()

	c.wg.Wait()
	close(c.launches)
	return nil
}

// send writes a JSON payload under the connection mutex.
func (c *Client) send(payload any) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(payload)
}

// readLoop reads messages and dispatches them to subscribers.
func (c *Client) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = c.config.ReconnectDelay

		c.handleMessage(message)
	}
}

// reconnect attempts to reconnect and resubscribe.
func (c *Client) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		c.log.Warn("websocket reconnect failed", zap.Error(err))
		return
	}

	c.resubscribeAll()
	c.log.Info("websocket reconnected")
}

// resubscribeAll restores the new-token stream and every live trade
// subscription after a reconnect.
func (c *Client) resubscribeAll() {
	if err := c.send(wsMethod{Method: "subscribeNewToken"}); err != nil {
		c.log.Warn("resubscribe new tokens failed", zap.Error(err))
	}

	c.tradeSubsMu.RLock()
	mints := make([]string, 0, len(c.tradeSubs))
	for mint := range c.tradeSubs {
		mints = append(mints, mint)
	}
	c.tradeSubsMu.RUnlock()

	if len(mints) == 0 {
		return
	}
	if err := c.send(wsMethod{Method: "subscribeTokenTrade", Keys: mints}); err != nil {
		c.log.Warn("resubscribe token trades failed", zap.Int("mints", len(mints)), zap.Error(err))
	}
}

// handleMessage parses and routes one feed message.
func (c *Client) handleMessage(message []byte) {
	var msg feedMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.log.Debug("unparseable feed message", zap.Error(err))
		return
	}

	switch msg.TxType {
	case "create":
		c.handleCreate(&msg)
	case "buy", "sell":
		c.handleTrade(&msg)
	}
}

// handleCreate turns a token creation message into a candidate.
func (c *Client) handleCreate(msg *feedMessage) {
	if !solana.IsValidAddress(msg.Mint) {
		c.log.Debug("create with invalid mint", zap.String("mint", msg.Mint))
		return
	}

	curve := msg.BondingCurveKey
	if curve == "" {
		curve = solana.DeriveBondingCurve(msg.Mint)
	}

	candidate := domain.TokenCandidate{
		Mint:         msg.Mint,
		Name:         msg.Name,
		Symbol:       msg.Symbol,
		Creator:      msg.TraderPublicKey,
		BondingCurve: curve,
		CurveFillPct: curveFillPct(msg.VSolInBondingCurve),
		InitialPrice: curvePrice(msg.VSolInBondingCurve, msg.VTokensInBondingCurve),
		CreatedAt:    time.Now(),
		TxSignature:  msg.Signature,
	}

	// Block rather than drop: a lost launch is a lost trade opportunity,
	// and intake drains this channel continuously.
	select {
	case c.launches <- candidate:
	case <-c.done:
	}
}

// handleTrade routes a buy or sell to its mint's subscriber.
func (c *Client) handleTrade(msg *feedMessage) {
	c.tradeSubsMu.RLock()
	ch, ok := c.tradeSubs[msg.Mint]
	c.tradeSubsMu.RUnlock()

	if !ok {
		return
	}

	event := feed.TradeEvent{
		Mint:         msg.Mint,
		Signature:    msg.Signature,
		Trader:       msg.TraderPublicKey,
		IsBuy:        msg.TxType == "buy",
		SolAmount:    msg.SolAmount,
		TokenAmount:  msg.TokenAmount,
		Price:        curvePrice(msg.VSolInBondingCurve, msg.VTokensInBondingCurve),
		CurveFillPct: curveFillPct(msg.VSolInBondingCurve),
		Timestamp:    time.Now(),
	}

	select {
	case ch <- event:
	case <-c.done:
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
					c.log.Debug("ping failed", zap.Error(err))
				}
			}
			c.connMu.Unlock()
		}
	}
}

// curvePrice computes SOL per token from the virtual reserves.
func curvePrice(vSol, vTokens float64) float64 {
	if vTokens <= 0 {
		return 0
	}
	return vSol / vTokens
}

// curveFillPct estimates graduation progress from the SOL deposited past
// the initial virtual reserve.
func curveFillPct(vSol float64) float64 {
	fill := (vSol - virtualSolReserve) / curveCompleteSOL * 100
	if fill < 0 {
		return 0
	}
	if fill > 100 {
		return 100
	}
	return fill
}

// Feed wire types.

type wsMethod struct {
	Method string   `json:"method"`
	Keys   []string `json:"keys,omitempty"`
}

type feedMessage struct {
	Signature             string  `json:"signature"`
	Mint                  string  `json:"mint"`
	TraderPublicKey       string  `json:"traderPublicKey"`
	TxType                string  `json:"txType"`
	SolAmount             float64 `json:"solAmount"`
	TokenAmount           float64 `json:"tokenAmount"`
	BondingCurveKey       string  `json:"bondingCurveKey"`
	VTokensInBondingCurve float64 `json:"vTokensInBondingCurve"`
	VSolInBondingCurve    float64 `json:"vSolInBondingCurve"`
	MarketCapSol          float64 `json:"marketCapSol"`
	Name                  string  `json:"name"`
	Symbol                string  `json:"symbol"`
}
