// Package main runs the pump-sniper bot: launch feed intake, entry gating,
// position monitoring and settlement, with a JSON status API and a
// Prometheus metrics endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"pump-sniper/internal/api"
	"pump-sniper/internal/config"
	"pump-sniper/internal/engine"
	"pump-sniper/internal/exitpolicy"
	"pump-sniper/internal/feed"
	"pump-sniper/internal/feed/pumpws"
	"pump-sniper/internal/feed/stub"
	"pump-sniper/internal/intake"
	"pump-sniper/internal/ledger"
	"pump-sniper/internal/logging"
	"pump-sniper/internal/metrics"
	"pump-sniper/internal/momentum"
	"pump-sniper/internal/observability"
	"pump-sniper/internal/registry"
	"pump-sniper/internal/reporter"
	"pump-sniper/internal/settlement"
	"pump-sniper/internal/settlement/paper"
	rpcsettle "pump-sniper/internal/settlement/rpc"
	"pump-sniper/internal/storage"
	chstore "pump-sniper/internal/storage/clickhouse"
	"pump-sniper/internal/storage/memory"
	"pump-sniper/internal/storage/migrations"
	pgstore "pump-sniper/internal/storage/postgres"
)

// stub feed cadence for dry runs.
const (
	stubLaunchInterval = 2 * time.Second
	stubTradeTick      = 250 * time.Millisecond
	reportInterval     = 30 * time.Second
	shutdownGrace      = 30 * time.Second
)

type stores struct {
	trades  storage.TradeStore
	ticks   storage.TickStore
	ledgers storage.LedgerSnapshotStore
}

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("sniper exited with error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("starting pump-sniper",
		zap.String("mode", cfg.Mode),
		zap.Float64("initial_capital_sol", cfg.Wallet.InitialCapitalSOL))

	st, cleanup, err := createStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	source, err := createFeed(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer source.Close()

	settle := createSettlement(cfg, source, logger)
	obs := observability.New(prometheus.DefaultRegisterer, "")

	capital, err := startingCapital(ctx, cfg, st.ledgers, logger)
	if err != nil {
		return err
	}
	led := ledger.New(capital, cfg.Wallet.MinReserveSOL, cfg.Risk.MaxDailyLossPct, time.Now())
	eng := engine.New(engine.Options{
		Config:   cfg,
		Log:      logger,
		Registry: registry.New(),
		Ledger:   led,
		Momentum: momentum.New(cfg.Momentum),
		Exits:    exitpolicy.New(cfg.Strategy, cfg.Risk),
		Settle:   settle,
		Trades:   st.trades,
		Ticks:    st.ticks,
		Ledgers:  st.ledgers,
		Metrics:  obs,
	})

	var prices intake.PriceObserver
	if paperClient, ok := settle.(*paper.Client); ok {
		prices = paperClient
	}
	in := intake.New(intake.Options{
		Source:             source,
		Engine:             eng,
		Log:                logger,
		Metrics:            obs,
		Prices:             prices,
		ObservationWindow:  cfg.Strategy.ObservationWindow,
		MaxConcurrentEvals: cfg.Strategy.MaxConcurrentEvals,
	})

	apiServer := api.New(api.Options{
		Addr:           cfg.Server.APIAddr,
		Mode:           cfg.Mode,
		FeeRate:        cfg.Strategy.TradingFeePct,
		InitialCapital: cfg.Wallet.InitialCapitalSOL,
		Engine:         eng,
		Intake:         in,
		Trades:         st.trades,
		Log:            logger,
	})

	errCh := make(chan error, 3)
	go func() {
		if err := in.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("intake: %w", err)
		}
	}()
	go func() {
		logger.Info("api listening", zap.String("addr", cfg.Server.APIAddr))
		if err := apiServer.Run(ctx); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	go serveMetrics(cfg.Server.MetricsAddr, logger)
	go reporter.New(eng, cfg.Strategy.TradingFeePct, reportInterval, os.Stdout).Run(ctx)
	go snapshotLedger(ctx, eng, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("signal received, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("component failed, shutting down", zap.Error(err))
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := eng.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("engine shutdown: %w", err)
	}
	logFinalMetrics(shutdownCtx, cfg, eng, in, st.trades, logger)
	return nil
}

// createStores wires persistence: PostgreSQL for trades and ledger
// snapshots, ClickHouse for the tick archive. Empty DSNs select the
// in-memory stores, which is the normal dry-run setup.
func createStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, func(), error) {
	st := &stores{
		trades:  memory.NewTradeStore(),
		ticks:   memory.NewTickStore(),
		ledgers: memory.NewLedgerSnapshotStore(),
	}
	cleanups := []func(){}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if cfg.Storage.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		cleanups = append(cleanups, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		st.trades = pgstore.NewTradeStore(pool)
		st.ledgers = pgstore.NewLedgerSnapshotStore(pool)
		logger.Info("postgres storage enabled")
	}

	if cfg.Storage.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		cleanups = append(cleanups, func() { conn.Close() })
		st.ticks = chstore.NewTickStore(conn)
		logger.Info("clickhouse tick archive enabled")
	}

	return st, cleanup, nil
}

// createFeed picks the launch source for the trading mode: the live
// websocket feed, or the deterministic stub generator for dry runs without
// a websocket endpoint.
func createFeed(ctx context.Context, cfg *config.Config, logger *zap.Logger) (feed.LaunchSource, error) {
	if cfg.IsDryRun() && cfg.Solana.WSEndpoint == "" {
		logger.Info("using stub launch feed")
		source := stub.NewSource(stubLaunchInterval, stubTradeTick, time.Now().UnixNano())
		source.Start(ctx)
		return source, nil
	}

	logger.Info("connecting to launch feed", zap.String("endpoint", cfg.Solana.WSEndpoint))
	client, err := pumpws.NewClient(ctx, cfg.Solana.WSEndpoint, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to launch feed: %w", err)
	}
	return client, nil
}

func createSettlement(cfg *config.Config, source feed.LaunchSource, logger *zap.Logger) settlement.Client {
	if cfg.IsDryRun() {
		logger.Info("using paper settlement")
		return paper.New(source, cfg.Strategy.TradingFeePct, cfg.Strategy.MaxSlippagePct, logger)
	}
	return rpcsettle.NewClient(
		cfg.Solana.RPCEndpoint,
		cfg.Solana.TradeEndpoint,
		cfg.Strategy.MaxSlippagePct,
		cfg.Strategy.TradingFeePct,
	)
}

// startingCapital restores the ledger balance from the latest persisted
// snapshot so capital carries across restarts; the configured initial
// capital only seeds the very first run.
func startingCapital(ctx context.Context, cfg *config.Config, ledgers storage.LedgerSnapshotStore, logger *zap.Logger) (float64, error) {
	prior, at, err := ledgers.Latest(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return cfg.Wallet.InitialCapitalSOL, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load ledger snapshot: %w", err)
	}
	if prior.TotalCapital <= 0 {
		return cfg.Wallet.InitialCapitalSOL, nil
	}
	logger.Info("resuming capital from last ledger snapshot",
		zap.Float64("capital_sol", prior.TotalCapital),
		zap.Time("snapshot_at", at))
	return prior.TotalCapital, nil
}

// snapshotLedger persists the capital ledger on the reporting cadence.
func snapshotLedger(ctx context.Context, eng *engine.Engine, logger *zap.Logger) {
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := eng.SnapshotLedger(snapCtx); err != nil {
				logger.Warn("ledger snapshot failed", zap.Error(err))
			}
			cancel()
		}
	}
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	logger.Info("metrics listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server error", zap.Error(err))
	}
}

// logFinalMetrics prints the session summary after shutdown.
func logFinalMetrics(ctx context.Context, cfg *config.Config, eng *engine.Engine, in *intake.Intake, trades storage.TradeStore, logger *zap.Logger) {
	history, err := trades.GetAll(ctx)
	if err != nil {
		logger.Warn("final metrics unavailable", zap.Error(err))
		return
	}
	evaluated, skipped := in.Stats()
	m := metrics.Compute(metrics.Input{
		Trades:          history,
		Ledger:          eng.LedgerSummary(),
		InitialCapital:  cfg.Wallet.InitialCapitalSOL,
		StartedAt:       eng.StartedAt(),
		TokensEvaluated: int(evaluated),
		TokensSkipped:   int(skipped),
		FatalPositions:  eng.FatalCount(),
	})
	logger.Info("session summary",
		zap.Int("trades", m.TotalTrades),
		zap.Float64("win_rate_pct", m.WinRatePct),
		zap.Float64("net_pnl_sol", m.TotalNetPnL),
		zap.Float64("roi_pct", m.ROIPct),
		zap.Float64("max_drawdown_sol", m.MaxDrawdown),
		zap.Int("tokens_evaluated", m.TokensEvaluated),
		zap.Int("fatal_positions", m.FatalPositions))
}
