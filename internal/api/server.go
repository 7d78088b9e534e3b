// Package api serves the bot's JSON status surface: ledger and engine
// state, open positions with live P&L, closed trade history and derived
// metrics, plus idempotent start/stop controls.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"pump-sniper/internal/domain"
	"pump-sniper/internal/metrics"
	"pump-sniper/internal/storage"
)

// defaultTradePageSize bounds /api/trades responses when no limit is given.
const defaultTradePageSize = 50

// Engine is the orchestrator surface the API reads and controls.
type Engine interface {
	Positions() []domain.Position
	LedgerSummary() domain.LedgerSummary
	Halted() bool
	Halt()
	Resume()
	StartedAt() time.Time
	FatalCount() int
}

// IntakeStats reports intake throughput counters.
type IntakeStats interface {
	Stats() (evaluated, skipped int64)
}

// Server is the JSON API server.
type Server struct {
	engine         Engine
	intake         IntakeStats
	trades         storage.TradeStore
	log            *zap.Logger
	mode           string
	feeRate        float64
	initialCapital float64

	httpServer *http.Server
}

// Options configures the API server.
type Options struct {
	Addr           string
	Mode           string
	FeeRate        float64
	InitialCapital float64
	Engine         Engine
	Intake         IntakeStats
	Trades         storage.TradeStore
	Log            *zap.Logger
}

// New creates an API server listening on opts.Addr once Run is called.
func New(opts Options) *Server {
	s := &Server{
		engine:         opts.Engine,
		intake:         opts.Intake,
		trades:         opts.Trades,
		log:            opts.Log,
		mode:           opts.Mode,
		feeRate:        opts.FeeRate,
		initialCapital: opts.InitialCapital,
	}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the route multiplexer. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/positions", s.handlePositions)
	mux.HandleFunc("/api/trades", s.handleTrades)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	mux.HandleFunc("/api/start", s.handleStart)
	mux.HandleFunc("/api/stop", s.handleStop)
	return mux
}

// Run serves until the context is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// StatusResponse is the JSON body for /api/status.
type StatusResponse struct {
	Mode            string    `json:"mode"`
	State           string    `json:"state"`
	StartedAt       time.Time `json:"started_at"`
	Uptime          string    `json:"uptime"`
	TotalCapital    float64   `json:"total_capital_sol"`
	ReservedCapital float64   `json:"reserved_capital_sol"`
	Available       float64   `json:"available_sol"`
	RealizedPnL     float64   `json:"realized_pnl_sol"`
	OpenPositions   int       `json:"open_positions"`
	FatalPositions  int       `json:"fatal_positions"`
	TokensEvaluated int64     `json:"tokens_evaluated"`
	TokensSkipped   int64     `json:"tokens_skipped"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	summary := s.engine.LedgerSummary()
	evaluated, skipped := s.intake.Stats()

	state := "running"
	if s.engine.Halted() {
		state = "halted"
	}

	writeJSON(w, StatusResponse{
		Mode:            s.mode,
		State:           state,
		StartedAt:       s.engine.StartedAt(),
		Uptime:          time.Since(s.engine.StartedAt()).Round(time.Second).String(),
		TotalCapital:    summary.TotalCapital,
		ReservedCapital: summary.ReservedCapital,
		Available:       summary.Available,
		RealizedPnL:     summary.RealizedPnL,
		OpenPositions:   len(s.engine.Positions()),
		FatalPositions:  s.engine.FatalCount(),
		TokensEvaluated: evaluated,
		TokensSkipped:   skipped,
	})
}

// PositionResponse is one open position in /api/positions.
type PositionResponse struct {
	PositionID    string    `json:"position_id"`
	Mint          string    `json:"mint"`
	Symbol        string    `json:"symbol"`
	Tier          string    `json:"tier"`
	State         string    `json:"state"`
	EntryPrice    float64   `json:"entry_price"`
	CurrentPrice  float64   `json:"current_price"`
	PeakPrice     float64   `json:"peak_price"`
	Quantity      float64   `json:"quantity"`
	CommittedSOL  float64   `json:"committed_sol"`
	UnrealizedPnL float64   `json:"unrealized_pnl_sol"`
	OpenedAt      time.Time `json:"opened_at"`
	HeldSeconds   float64   `json:"held_seconds"`
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	now := time.Now()
	positions := s.engine.Positions()
	out := make([]PositionResponse, 0, len(positions))
	for _, pos := range positions {
		out = append(out, PositionResponse{
			PositionID:    pos.PositionID,
			Mint:          pos.Candidate.Mint,
			Symbol:        pos.Candidate.Symbol,
			Tier:          string(pos.Tier),
			State:         string(pos.State),
			EntryPrice:    pos.EntryPrice,
			CurrentPrice:  pos.CurrentPrice,
			PeakPrice:     pos.PeakPrice,
			Quantity:      pos.Quantity,
			CommittedSOL:  pos.Committed,
			UnrealizedPnL: pos.UnrealizedPnL(s.feeRate),
			OpenedAt:      pos.OpenedAt,
			HeldSeconds:   pos.HoldDuration(now).Seconds(),
		})
	}
	writeJSON(w, out)
}

// TradesResponse is the paginated body for /api/trades.
type TradesResponse struct {
	Total  int             `json:"total"`
	Offset int             `json:"offset"`
	Limit  int             `json:"limit"`
	Trades []*domain.Trade `json:"trades"`
}

// handleTrades serves closed trades newest first, paginated with limit and
// offset query parameters.
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	all, err := s.trades.GetAll(r.Context())
	if err != nil {
		s.log.Error("trade history read failed", zap.Error(err))
		http.Error(w, "trade history unavailable", http.StatusInternalServerError)
		return
	}

	// GetAll is close-time ascending; serve newest first.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}

	limit := queryInt(r, "limit", defaultTradePageSize)
	offset := queryInt(r, "offset", 0)
	if limit < 0 {
		limit = defaultTradePageSize
	}
	if offset < 0 {
		offset = 0
	}

	page := []*domain.Trade{}
	if offset < len(all) {
		end := offset + limit
		if end > len(all) {
			end = len(all)
		}
		page = all[offset:end]
	}

	writeJSON(w, TradesResponse{
		Total:  len(all),
		Offset: offset,
		Limit:  limit,
		Trades: page,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	trades, err := s.trades.GetAll(r.Context())
	if err != nil {
		s.log.Error("trade history read failed", zap.Error(err))
		http.Error(w, "trade history unavailable", http.StatusInternalServerError)
		return
	}
	evaluated, skipped := s.intake.Stats()

	writeJSON(w, metrics.Compute(metrics.Input{
		Trades:          trades,
		Ledger:          s.engine.LedgerSummary(),
		InitialCapital:  s.initialCapital,
		StartedAt:       s.engine.StartedAt(),
		TokensEvaluated: int(evaluated),
		TokensSkipped:   int(skipped),
		OpenPositions:   len(s.engine.Positions()),
		FatalPositions:  s.engine.FatalCount(),
	}))
}

// handleStart resumes entries. Idempotent: starting a running engine is OK.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.engine.Resume()
	s.log.Info("entries resumed via api")
	writeJSON(w, map[string]string{"state": "running"})
}

// handleStop halts new entries. Open positions keep monitoring for exit.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.engine.Halt()
	s.log.Info("entries halted via api")
	writeJSON(w, map[string]string{"state": "halted"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
