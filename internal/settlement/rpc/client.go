// Package rpc is the live settlement client. Swaps are submitted through
// a trade relay endpoint; price reads decode the bonding-curve account
// over Solana JSON-RPC.
package rpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"pump-sniper/internal/settlement"
	"pump-sniper/internal/solana"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// Token decimal bases on the bonding curve.
const (
	lamportsPerSOL = 1e9
	tokenBase      = 1e6
)

// Client implements settlement.Client against live endpoints.
type Client struct {
	rpcEndpoint   string
	tradeEndpoint string
	slippagePct   float64
	feeRate       float64

	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

var _ settlement.Client = (*Client)(nil)

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a live settlement client. rpcEndpoint serves JSON-RPC
// price reads; tradeEndpoint accepts swap orders.
func NewClient(rpcEndpoint, tradeEndpoint string, slippagePct, feeRate float64, opts ...ClientOption) *Client {
	c := &Client{
		rpcEndpoint:   rpcEndpoint,
		tradeEndpoint: tradeEndpoint,
		slippagePct:   slippagePct,
		feeRate:       feeRate,
		client:        &http.Client{Timeout: DefaultTimeout},
		maxRetries:    DefaultMaxRetries,
		retryDelay:    DefaultRetryDelay,
		maxDelay:      DefaultMaxDelay,
		backoffMult:   DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitBuy spends solBudget on the mint through the trade relay.
func (c *Client) SubmitBuy(ctx context.Context, mint string, solBudget, refPrice float64) (*settlement.Fill, error) {
	sig, err := c.trade(ctx, tradeOrder{
		Action:           "buy",
		Mint:             mint,
		Amount:           solBudget,
		DenominatedInSol: true,
		SlippagePct:      c.slippagePct * 100,
	})
	if err != nil {
		return nil, fmt.Errorf("submit buy %s: %w", mint, err)
	}

	fillPrice, err := c.CurrentPrice(ctx, mint)
	if err != nil {
		// The swap landed; fall back to the decision price for the fill
		// record rather than failing the entry.
		fillPrice = refPrice
	}
	if fillPrice <= 0 {
		return nil, fmt.Errorf("submit buy %s: no fill price", mint)
	}

	fee := solBudget * c.feeRate
	return &settlement.Fill{
		Signature:     sig,
		Price:         fillPrice,
		SolAmount:     solBudget,
		TokenQuantity: (solBudget - fee) / fillPrice,
		FeeSOL:        fee,
		ExecutedAt:    time.Now(),
	}, nil
}

// SubmitSell sells quantity tokens of the mint through the trade relay.
func (c *Client) SubmitSell(ctx context.Context, mint string, quantity, refPrice float64) (*settlement.Fill, error) {
	sig, err := c.trade(ctx, tradeOrder{
		Action:           "sell",
		Mint:             mint,
		Amount:           quantity,
		DenominatedInSol: false,
		SlippagePct:      c.slippagePct * 100,
	})
	if err != nil {
		return nil, fmt.Errorf("submit sell %s: %w", mint, err)
	}

	fillPrice, err := c.CurrentPrice(ctx, mint)
	if err != nil {
		fillPrice = refPrice
	}
	if fillPrice <= 0 {
		return nil, fmt.Errorf("submit sell %s: no fill price", mint)
	}

	gross := quantity * fillPrice
	fee := gross * c.feeRate
	return &settlement.Fill{
		Signature:     sig,
		Price:         fillPrice,
		SolAmount:     gross - fee,
		TokenQuantity: quantity,
		FeeSOL:        fee,
		ExecutedAt:    time.Now(),
	}, nil
}

// CurrentPrice reads the bonding-curve account and computes SOL per token
// from its virtual reserves.
func (c *Client) CurrentPrice(ctx context.Context, mint string) (float64, error) {
	curve := solana.DeriveBondingCurve(mint)
	if curve == "" {
		return 0, fmt.Errorf("derive bonding curve for %s: invalid mint", mint)
	}

	params := []interface{}{
		curve,
		map[string]interface{}{
			"encoding": "base64",
		},
	}

	var result getAccountInfoResult
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return 0, err
	}
	if result.Value == nil || len(result.Value.Data) < 1 {
		return 0, settlement.ErrPriceUnavailable
	}

	state, err := parseCurveState(result.Value.Data[0])
	if err != nil {
		return 0, fmt.Errorf("parse curve state for %s: %w", mint, err)
	}
	if state.VirtualTokenReserves == 0 {
		return 0, settlement.ErrPriceUnavailable
	}

	vSol := float64(state.VirtualSolReserves) / lamportsPerSOL
	vTokens := float64(state.VirtualTokenReserves) / tokenBase
	return vSol / vTokens, nil
}

type getAccountInfoResult struct {
	Value *getAccountInfoValue `json:"value"`
}

type getAccountInfoValue struct {
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	Data       []string `json:"data"` // [base64_data, encoding]
	Executable bool     `json:"executable"`
	RentEpoch  uint64   `json:"rentEpoch"`
}

// curveState is the decoded bonding-curve account.
// Layout: discriminator(8) | virtual_token_reserves u64 | virtual_sol_reserves u64 |
// real_token_reserves u64 | real_sol_reserves u64 | token_total_supply u64 | complete u8
type curveState struct {
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
}

func parseCurveState(data string) (*curveState, error) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	if len(decoded) < 49 {
		return nil, fmt.Errorf("account data too short: %d", len(decoded))
	}

	return &curveState{
		VirtualTokenReserves: binary.LittleEndian.Uint64(decoded[8:16]),
		VirtualSolReserves:   binary.LittleEndian.Uint64(decoded[16:24]),
		RealTokenReserves:    binary.LittleEndian.Uint64(decoded[24:32]),
		RealSolReserves:      binary.LittleEndian.Uint64(decoded[32:40]),
		TokenTotalSupply:     binary.LittleEndian.Uint64(decoded[40:48]),
		Complete:             decoded[48] != 0,
	}, nil
}

// tradeOrder is the payload posted to the trade relay.
type tradeOrder struct {
	Action           string  `json:"action"`
	Mint             string  `json:"mint"`
	Amount           float64 `json:"amount"`
	DenominatedInSol bool    `json:"denominatedInSol"`
	SlippagePct      float64 `json:"slippage"`
}

type tradeResponse struct {
	Signature string   `json:"signature"`
	Errors    []string `json:"errors"`
}

// trade posts an order to the trade relay with retries.
func (c *Client) trade(ctx context.Context, order tradeOrder) (string, error) {
	body, err := json.Marshal(order)
	if err != nil {
		return "", fmt.Errorf("marshal order: %w", err)
	}

	respBody, err := c.post(ctx, c.tradeEndpoint, body)
	if err != nil {
		return "", err
	}

	var resp tradeResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("unmarshal trade response: %w", err)
	}
	if len(resp.Errors) > 0 {
		return "", fmt.Errorf("trade rejected: %v", resp.Errors)
	}
	if resp.Signature == "" {
		return "", fmt.Errorf("trade response missing signature")
	}
	return resp.Signature, nil
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := c.post(ctx, c.rpcEndpoint, body)
	if err != nil {
		return err
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}

	return nil
}

// post sends a JSON body with retries and exponential backoff.
func (c *Client) post(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		return respBody, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
