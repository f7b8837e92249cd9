package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"paperTrader/config"
	"paperTrader/internal/domain"
	"paperTrader/internal/engine"
	"paperTrader/internal/ports"
	"paperTrader/internal/stats"
)

// SnapshotHandler receives post-commit account snapshots. Handlers run on
// the service's tick goroutine and must not block.
type SnapshotHandler func(snapshot *domain.AccountSnapshot)

// Repositories bundles the persistence ports the service writes through.
type Repositories struct {
	Accounts     ports.AccountRepository
	Trades       ports.TradeRepository
	Liquidations ports.LiquidationRepository
	Positions    ports.PositionRepository
}

// SimulatorService connects the price feed to the paper-trading engine and
// persists committed state. It is the control surface the embedding process
// (UI, API server, replay runner) calls into; the engine itself never sees
// transport or storage.
type SimulatorService struct {
	cfg    *config.Config
	logger ports.Logger
	feed   ports.PriceFeed
	engine *engine.Engine
	repos  Repositories

	tracked map[string]bool // symbols we apply ticks for

	mu          sync.Mutex // protects subscribers
	subscribers []SnapshotHandler
}

// NewSimulatorService creates a new application service instance.
func NewSimulatorService(cfg *config.Config, logger ports.Logger, feed ports.PriceFeed, eng *engine.Engine, repos Repositories) (*SimulatorService, error) {
	if cfg == nil || logger == nil || feed == nil || eng == nil {
		return nil, fmt.Errorf("missing required dependencies for SimulatorService")
	}
	if repos.Accounts == nil || repos.Trades == nil || repos.Liquidations == nil || repos.Positions == nil {
		return nil, fmt.Errorf("all repositories are required for SimulatorService")
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("configuration must list at least one symbol")
	}

	tracked := make(map[string]bool, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		tracked[s] = true
	}

	return &SimulatorService{
		cfg:     cfg,
		logger:  logger,
		feed:    feed,
		engine:  eng,
		repos:   repos,
		tracked: tracked,
	}, nil
}

// Subscribe registers a handler for post-commit account snapshots.
func (s *SimulatorService) Subscribe(handler SnapshotHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, handler)
}

// Start initializes (or reloads) the account, subscribes to the mark-price
// stream and blocks until the context is cancelled or the stream gives up.
func (s *SimulatorService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting paper trading simulator...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		cancel()
	}()

	if err := s.ensureAccount(ctx); err != nil {
		return fmt.Errorf("failed to prepare account: %w", err)
	}

	doneCh, stopCh, err := s.feed.StreamMarkPrices(ctx, s.handlePriceBatch, s.handleFeedError)
	if err != nil {
		return fmt.Errorf("failed to start mark price stream: %w", err)
	}
	s.logger.Info(ctx, "Mark price stream started", map[string]interface{}{"symbols": s.cfg.Symbols})

	select {
	case <-ctx.Done():
		s.logger.Info(ctx, "Context cancelled, stopping simulator...")
		close(stopCh)
		<-doneCh
	case <-doneCh:
		s.logger.Warn(ctx, "Mark price stream terminated")
	}

	s.logger.Info(ctx, "Simulator stopped")
	return nil
}

// ensureAccount reloads a persisted account and its book, or initializes a
// fresh one with the configured capital.
func (s *SimulatorService) ensureAccount(ctx context.Context) error {
	stored, err := s.repos.Accounts.LoadAccount(ctx)
	if err != nil {
		return err
	}
	if stored == nil {
		acc, err := s.engine.InitAccount(s.cfg.InitialCapital)
		if err != nil {
			return err
		}
		if err := s.repos.Accounts.SaveAccount(ctx, acc); err != nil {
			return err
		}
		s.logger.Info(ctx, "Account initialized", map[string]interface{}{"accountID": acc.ID, "initialCapital": acc.InitialCapital})
		return nil
	}

	positions, err := s.repos.Positions.FindOpenByAccount(ctx, stored.ID)
	if err != nil {
		return err
	}
	trades, err := s.repos.Trades.FindByAccount(ctx, stored.ID, 0)
	if err != nil {
		return err
	}
	liquidations, err := s.repos.Liquidations.FindLiquidationsByAccount(ctx, stored.ID)
	if err != nil {
		return err
	}
	if err := s.engine.Restore(*stored, positions, trades, liquidations); err != nil {
		return err
	}
	s.logger.Info(ctx, "Account restored", map[string]interface{}{
		"accountID": stored.ID,
		"positions": len(positions),
		"trades":    len(trades),
	})
	return nil
}

// handlePriceBatch applies one stream batch to the engine and persists what
// the tick committed. Stale or untracked entries are dropped before the
// engine sees them.
func (s *SimulatorService) handlePriceBatch(prices []ports.MarkPrice) {
	ctx := context.Background()
	now := time.Now()

	byCoin := make(map[string]float64)
	for _, p := range prices {
		if !s.tracked[p.Symbol] {
			continue
		}
		if !p.Timestamp.IsZero() && now.Sub(p.Timestamp) > s.cfg.PriceStalenessBound {
			s.logger.Warn(ctx, "Dropping stale price update", map[string]interface{}{
				"symbol": p.Symbol,
				"age":    now.Sub(p.Timestamp).String(),
			})
			continue
		}
		byCoin[p.Coin] = p.Price
	}
	if len(byCoin) == 0 {
		return
	}

	result, err := s.engine.UpdateAllPrices(byCoin)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to apply price tick")
		return
	}
	s.persistTick(ctx, result)
	s.broadcast(ctx)
}

// persistTick writes the forced closes a tick committed.
func (s *SimulatorService) persistTick(ctx context.Context, result *engine.TickResult) {
	for _, trade := range result.Trades {
		if err := s.repos.Trades.CreateTrade(ctx, trade); err != nil {
			s.logger.Error(ctx, err, "Failed to persist trade", map[string]interface{}{"tradeID": trade.ID})
		}
		if err := s.repos.Positions.Delete(ctx, trade.PositionID); err != nil {
			s.logger.Error(ctx, err, "Failed to delete closed position snapshot", map[string]interface{}{"positionID": trade.PositionID})
		}
	}
	for _, liq := range result.Liquidations {
		if err := s.repos.Liquidations.CreateLiquidation(ctx, liq); err != nil {
			s.logger.Error(ctx, err, "Failed to persist liquidation", map[string]interface{}{"liquidationID": liq.ID})
		}
	}
	if len(result.Trades) > 0 {
		s.saveAccount(ctx)
	}
}

func (s *SimulatorService) handleFeedError(err error) {
	s.logger.Warn(context.Background(), "Price feed error", map[string]interface{}{"error": err.Error()})
}

// broadcast hands a fresh snapshot to every subscriber.
func (s *SimulatorService) broadcast(ctx context.Context) {
	snapshot, err := s.engine.Snapshot()
	if err != nil {
		s.logger.Error(ctx, err, "Failed to take account snapshot")
		return
	}
	s.mu.Lock()
	subscribers := append([]SnapshotHandler(nil), s.subscribers...)
	s.mu.Unlock()
	for _, handler := range subscribers {
		handler(snapshot)
	}
}

func (s *SimulatorService) saveAccount(ctx context.Context) {
	snapshot, err := s.engine.Snapshot()
	if err != nil {
		s.logger.Error(ctx, err, "Failed to snapshot account for persistence")
		return
	}
	if err := s.repos.Accounts.SaveAccount(ctx, &snapshot.Account); err != nil {
		s.logger.Error(ctx, err, "Failed to persist account")
	}
}

// --- Control surface ---
// Thin adapters over the engine operations that also persist the committed
// outcome. Validation and state transitions live in the engine.

// OpenPosition opens a new leveraged position.
func (s *SimulatorService) OpenPosition(ctx context.Context, params engine.OpenParams) (*engine.OpenResult, error) {
	res, err := s.engine.OpenPosition(params)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Trades.CreateTrade(ctx, res.Trade); err != nil {
		s.logger.Error(ctx, err, "Failed to persist open trade", map[string]interface{}{"tradeID": res.Trade.ID})
	}
	if err := s.repos.Positions.Upsert(ctx, res.Position); err != nil {
		s.logger.Error(ctx, err, "Failed to persist position snapshot", map[string]interface{}{"positionID": res.Position.ID})
	}
	s.saveAccount(ctx)
	s.broadcast(ctx)
	return res, nil
}

// AddToPosition increases an open position.
func (s *SimulatorService) AddToPosition(ctx context.Context, positionID string, size, price float64) (*engine.OpenResult, error) {
	res, err := s.engine.AddToPosition(positionID, size, price)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Trades.CreateTrade(ctx, res.Trade); err != nil {
		s.logger.Error(ctx, err, "Failed to persist add trade", map[string]interface{}{"tradeID": res.Trade.ID})
	}
	if err := s.repos.Positions.Upsert(ctx, res.Position); err != nil {
		s.logger.Error(ctx, err, "Failed to persist position snapshot", map[string]interface{}{"positionID": res.Position.ID})
	}
	s.saveAccount(ctx)
	s.broadcast(ctx)
	return res, nil
}

// ReducePosition realizes P&L on part of a position.
func (s *SimulatorService) ReducePosition(ctx context.Context, positionID string, size, price float64) (*engine.CloseResult, error) {
	res, err := s.engine.ReducePosition(positionID, size, price)
	if err != nil {
		return nil, err
	}
	s.persistCloseResult(ctx, positionID, res)
	return res, nil
}

// ClosePosition fully closes a position.
func (s *SimulatorService) ClosePosition(ctx context.Context, positionID string, price float64) (*engine.CloseResult, error) {
	res, err := s.engine.ClosePosition(positionID, price)
	if err != nil {
		return nil, err
	}
	s.persistCloseResult(ctx, positionID, res)
	return res, nil
}

func (s *SimulatorService) persistCloseResult(ctx context.Context, positionID string, res *engine.CloseResult) {
	if err := s.repos.Trades.CreateTrade(ctx, res.Trade); err != nil {
		s.logger.Error(ctx, err, "Failed to persist close trade", map[string]interface{}{"tradeID": res.Trade.ID})
	}
	if res.Position != nil {
		if err := s.repos.Positions.Upsert(ctx, res.Position); err != nil {
			s.logger.Error(ctx, err, "Failed to persist position snapshot", map[string]interface{}{"positionID": positionID})
		}
	} else {
		if err := s.repos.Positions.Delete(ctx, positionID); err != nil {
			s.logger.Error(ctx, err, "Failed to delete closed position snapshot", map[string]interface{}{"positionID": positionID})
		}
	}
	s.saveAccount(ctx)
	s.broadcast(ctx)
}

// AdjustLeverage changes a position's leverage.
func (s *SimulatorService) AdjustLeverage(ctx context.Context, positionID string, newLeverage int) (*domain.Position, error) {
	pos, err := s.engine.AdjustLeverage(positionID, newLeverage)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Positions.Upsert(ctx, pos); err != nil {
		s.logger.Error(ctx, err, "Failed to persist position snapshot", map[string]interface{}{"positionID": pos.ID})
	}
	s.broadcast(ctx)
	return pos, nil
}

// SetTpSl sets or clears a position's trigger prices.
func (s *SimulatorService) SetTpSl(ctx context.Context, positionID string, takeProfit, stopLoss *float64) (*domain.Position, error) {
	pos, err := s.engine.SetTpSl(positionID, takeProfit, stopLoss)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Positions.Upsert(ctx, pos); err != nil {
		s.logger.Error(ctx, err, "Failed to persist position snapshot", map[string]interface{}{"positionID": pos.ID})
	}
	s.broadcast(ctx)
	return pos, nil
}

// ResetAccount clears all state and restores the initial capital.
func (s *SimulatorService) ResetAccount(ctx context.Context) (*domain.Account, error) {
	acc, err := s.engine.ResetAccount()
	if err != nil {
		return nil, err
	}
	if err := s.repos.Trades.DeleteByAccount(ctx, acc.ID); err != nil {
		s.logger.Error(ctx, err, "Failed to clear persisted trades", map[string]interface{}{"accountID": acc.ID})
	}
	if err := s.repos.Liquidations.DeleteLiquidationsByAccount(ctx, acc.ID); err != nil {
		s.logger.Error(ctx, err, "Failed to clear persisted liquidations", map[string]interface{}{"accountID": acc.ID})
	}
	if err := s.repos.Positions.DeletePositionsByAccount(ctx, acc.ID); err != nil {
		s.logger.Error(ctx, err, "Failed to clear persisted positions", map[string]interface{}{"accountID": acc.ID})
	}
	if err := s.repos.Accounts.SaveAccount(ctx, acc); err != nil {
		s.logger.Error(ctx, err, "Failed to persist reset account", map[string]interface{}{"accountID": acc.ID})
	}
	s.broadcast(ctx)
	return acc, nil
}

// Snapshot returns a consistent view of the account and open positions.
func (s *SimulatorService) Snapshot() (*domain.AccountSnapshot, error) {
	return s.engine.Snapshot()
}

// AccountStats derives the aggregate statistics from the ledgers.
func (s *SimulatorService) AccountStats() (*stats.AccountStats, error) {
	return s.engine.AccountStats()
}
