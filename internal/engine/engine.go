// Package engine implements the leveraged paper-trading simulation core: a
// virtual margin account, a ledger of open positions revalued on every mark
// price tick, a liquidation monitor, and immutable trade/liquidation
// histories. All mutating operations on one engine are serialized behind a
// single mutex; a price tick and the forced closes it triggers commit as one
// unit, so readers never observe a partially revalued account.
package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
	"paperTrader/internal/stats"
	"paperTrader/internal/valuation"
)

// Config holds the engine's injected parameters.
type Config struct {
	Coins          valuation.CoinConfig
	RiskThresholds valuation.RiskThresholds
	FeeRate        float64 // taker fee as a fraction of notional, e.g. 0.0004
	Logger         ports.Logger
	Now            func() time.Time // clock override for tests; defaults to time.Now
}

// Engine owns the state of one virtual trading account. Multiple accounts
// are independent engines and may be driven in parallel.
type Engine struct {
	mu  sync.Mutex
	cfg Config
	now func() time.Time

	account      *domain.Account
	book         *positionBook
	trades       []*domain.Trade
	liquidations []*domain.Liquidation
}

// New creates an engine. The account does not exist until InitAccount is called.
func New(cfg Config) (*Engine, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for the engine")
	}
	if cfg.Coins == nil {
		cfg.Coins = valuation.DefaultCoinConfig()
	}
	if err := cfg.Coins.Validate(); err != nil {
		return nil, fmt.Errorf("invalid coin config: %w", err)
	}
	if cfg.RiskThresholds == (valuation.RiskThresholds{}) {
		cfg.RiskThresholds = valuation.DefaultRiskThresholds()
	}
	if err := cfg.RiskThresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid risk thresholds: %w", err)
	}
	if cfg.FeeRate < 0 || cfg.FeeRate >= 1 {
		return nil, fmt.Errorf("fee rate %f must be in [0,1)", cfg.FeeRate)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:  cfg,
		now:  now,
		book: newPositionBook(),
	}, nil
}

// InitAccount creates the virtual account with the given starting capital.
// Calling it on an already-initialized engine is rejected; use ResetAccount
// to start over.
func (e *Engine) InitAccount(initialCapital float64) (*domain.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.account != nil {
		return nil, fmt.Errorf("account %s already initialized: %w", e.account.ID, ports.ErrInvalidRequest)
	}
	if initialCapital <= 0 {
		return nil, fmt.Errorf("initial capital %f must be positive: %w", initialCapital, ports.ErrInvalidRequest)
	}

	now := e.now()
	e.account = &domain.Account{
		ID:             uuid.NewString(),
		InitialCapital: initialCapital,
		WalletBalance:  initialCapital,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	e.recomputeAccount()
	return e.accountCopy(), nil
}

// Restore rebuilds engine state from persisted records, for process
// restarts. Positions are revalued at their stored mark prices; the next
// price tick brings them current. Rejected once the engine holds an account.
func (e *Engine) Restore(acc domain.Account, positions []*domain.Position, trades []*domain.Trade, liquidations []*domain.Liquidation) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.account != nil {
		return fmt.Errorf("account %s already initialized: %w", e.account.ID, ports.ErrInvalidRequest)
	}
	if acc.ID == "" || acc.InitialCapital <= 0 {
		return fmt.Errorf("restored account must carry an ID and positive initial capital: %w", ports.ErrInvalidRequest)
	}

	restored := acc
	e.account = &restored
	for _, pos := range positions {
		if pos.AccountID != acc.ID {
			e.account = nil
			e.book = newPositionBook()
			return fmt.Errorf("position %s belongs to account %s, not %s: %w", pos.ID, pos.AccountID, acc.ID, ports.ErrInvalidRequest)
		}
		clone := pos.Clone()
		e.revaluePosition(clone, clone.MarkPrice)
		e.book.add(clone)
	}
	e.trades = append([]*domain.Trade(nil), trades...)
	e.liquidations = append([]*domain.Liquidation(nil), liquidations...)
	e.recomputeAccount()
	return nil
}

// ResetAccount clears all positions, trades and liquidations and restores
// the wallet to the initial capital. Explicit and irreversible.
func (e *Engine) ResetAccount() (*domain.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.account == nil {
		return nil, ports.ErrAccountNotInitialized
	}

	e.book = newPositionBook()
	e.trades = nil
	e.liquidations = nil
	e.account.WalletBalance = e.account.InitialCapital
	e.account.UpdatedAt = e.now()
	e.recomputeAccount()
	return e.accountCopy(), nil
}

// OpenParams are the inputs to OpenPosition.
type OpenParams struct {
	Symbol     string
	Coin       string
	Side       domain.PositionSide
	Size       float64
	Price      float64
	Leverage   int
	MarginMode domain.MarginMode
	TakeProfit *float64
	StopLoss   *float64
}

// OpenResult is the committed outcome of OpenPosition.
type OpenResult struct {
	Position *domain.Position
	Trade    *domain.Trade
}

// OpenPosition validates and opens a new leveraged position. On any
// validation failure the account is left untouched.
func (e *Engine) OpenPosition(p OpenParams) (*OpenResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.account == nil {
		return nil, ports.ErrAccountNotInitialized
	}
	pos, trade, err := e.openPosition(p)
	if err != nil {
		return nil, err
	}
	e.recomputeAccount()
	return &OpenResult{Position: pos.Clone(), Trade: trade.Clone()}, nil
}

// AddToPosition increases an open position's size at the given price,
// re-averaging the entry price. The margin-sufficiency check matches
// OpenPosition.
func (e *Engine) AddToPosition(positionID string, size, price float64) (*OpenResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.account == nil {
		return nil, ports.ErrAccountNotInitialized
	}
	pos, trade, err := e.addToPosition(positionID, size, price)
	if err != nil {
		return nil, err
	}
	e.recomputeAccount()
	return &OpenResult{Position: pos.Clone(), Trade: trade.Clone()}, nil
}

// CloseResult is the committed outcome of a reduce or close.
type CloseResult struct {
	Trade       *domain.Trade
	RealizedPnl float64
	// Position is the surviving position after a partial reduce, nil when
	// the position was fully closed.
	Position *domain.Position
}

// ReducePosition realizes P&L on part of a position at the given price.
// Reducing by the full open size closes the position.
func (e *Engine) ReducePosition(positionID string, size, price float64) (*CloseResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.account == nil {
		return nil, ports.ErrAccountNotInitialized
	}
	res, err := e.reducePosition(positionID, size, price, domain.ActionReduce, domain.CloseReasonManual)
	if err != nil {
		return nil, err
	}
	e.recomputeAccount()
	res.Trade = res.Trade.Clone()
	return res, nil
}

// ClosePosition fully closes a position at the given price.
func (e *Engine) ClosePosition(positionID string, price float64) (*CloseResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.account == nil {
		return nil, ports.ErrAccountNotInitialized
	}
	pos, ok := e.book.get(positionID)
	if !ok {
		return nil, fmt.Errorf("position %s: %w", positionID, ports.ErrPositionNotFound)
	}
	res, err := e.reducePosition(pos.ID, pos.Size, price, domain.ActionClose, domain.CloseReasonManual)
	if err != nil {
		return nil, err
	}
	e.recomputeAccount()
	res.Trade = res.Trade.Clone()
	return res, nil
}

// AdjustLeverage changes a position's leverage, re-deriving its initial
// margin and liquidation price. Rejected if the new margin requirement does
// not fit the account's equity.
func (e *Engine) AdjustLeverage(positionID string, newLeverage int) (*domain.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.account == nil {
		return nil, ports.ErrAccountNotInitialized
	}
	pos, ok := e.book.get(positionID)
	if !ok {
		return nil, fmt.Errorf("position %s: %w", positionID, ports.ErrPositionNotFound)
	}

	params := e.cfg.Coins.Params(pos.Coin)
	if newLeverage < 1 || newLeverage > params.MaxLeverage {
		return nil, fmt.Errorf("leverage %d outside [1,%d] for %s: %w", newLeverage, params.MaxLeverage, pos.Coin, ports.ErrInvalidLeverage)
	}
	if err := valuation.ValidateLiquidationBand(newLeverage, params.MaintenanceMarginRate); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ports.ErrInvalidLeverage)
	}

	// Check the re-margined book still fits within equity before committing.
	entryNotional := pos.Size * pos.EntryPrice
	newInitialMargin := valuation.InitialMargin(entryNotional, newLeverage)
	otherMargin := e.usedMarginExcluding(pos.ID)
	if otherMargin+newInitialMargin > e.totalEquity() {
		return nil, fmt.Errorf("adjusting %s to %dx needs %.2f margin with %.2f equity: %w",
			positionID, newLeverage, otherMargin+newInitialMargin, e.totalEquity(), ports.ErrInsufficientMargin)
	}

	pos.Leverage = newLeverage
	pos.InitialMargin = newInitialMargin
	pos.LiquidationPrice = valuation.LiquidationPrice(pos.Side, pos.EntryPrice, newLeverage, params.MaintenanceMarginRate)
	pos.UpdatedAt = e.now()
	e.revaluePosition(pos, pos.MarkPrice)
	e.recomputeAccount()
	return pos.Clone(), nil
}

// SetTpSl sets or clears the take-profit and stop-loss trigger prices on a
// position. Passing nil clears the corresponding trigger.
func (e *Engine) SetTpSl(positionID string, takeProfit, stopLoss *float64) (*domain.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.account == nil {
		return nil, ports.ErrAccountNotInitialized
	}
	pos, ok := e.book.get(positionID)
	if !ok {
		return nil, fmt.Errorf("position %s: %w", positionID, ports.ErrPositionNotFound)
	}
	if takeProfit != nil && *takeProfit <= 0 {
		return nil, fmt.Errorf("take profit %f: %w", *takeProfit, ports.ErrInvalidPrice)
	}
	if stopLoss != nil && *stopLoss <= 0 {
		return nil, fmt.Errorf("stop loss %f: %w", *stopLoss, ports.ErrInvalidPrice)
	}

	pos.TakeProfitPrice = takeProfit
	pos.StopLossPrice = stopLoss
	pos.UpdatedAt = e.now()
	return pos.Clone(), nil
}

// TickResult reports everything a single price tick committed: the forced
// closes (liquidations, TP/SL hits) and their trades.
type TickResult struct {
	Liquidations []*domain.Liquidation
	Trades       []*domain.Trade
}

// UpdateAllPrices applies a batch of mark prices, revalues every affected
// position, runs the liquidation and TP/SL sweep, and recomputes the
// account, all as one atomic unit with respect to the tick.
func (e *Engine) UpdateAllPrices(prices map[string]float64) (*TickResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.account == nil {
		return nil, ports.ErrAccountNotInitialized
	}

	affected := make([]*domain.Position, 0)
	for coin, price := range prices {
		if price <= 0 {
			continue
		}
		for _, pos := range e.book.onCoin(coin) {
			e.revaluePosition(pos, price)
			affected = append(affected, pos)
		}
	}

	result := e.sweep(affected)
	e.recomputeAccount()
	for i, trade := range result.Trades {
		result.Trades[i] = trade.Clone()
	}
	for i, liq := range result.Liquidations {
		result.Liquidations[i] = liq.Clone()
	}
	return result, nil
}

// Snapshot returns a consistent copy of the account and its open positions.
func (e *Engine) Snapshot() (*domain.AccountSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.account == nil {
		return nil, ports.ErrAccountNotInitialized
	}
	positions := e.book.all()
	sort.Slice(positions, func(i, j int) bool { return positions[i].OpenedAt.Before(positions[j].OpenedAt) })
	copies := make([]*domain.Position, len(positions))
	for i, pos := range positions {
		copies[i] = pos.Clone()
	}
	return &domain.AccountSnapshot{
		Account:   *e.account,
		Positions: copies,
		TakenAt:   e.now(),
	}, nil
}

// Trades returns a copy of the trade ledger in commit order.
func (e *Engine) Trades() []*domain.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*domain.Trade, len(e.trades))
	for i, trade := range e.trades {
		out[i] = trade.Clone()
	}
	return out
}

// Liquidations returns a copy of the liquidation ledger in commit order.
func (e *Engine) Liquidations() []*domain.Liquidation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*domain.Liquidation, len(e.liquidations))
	for i, liq := range e.liquidations {
		out[i] = liq.Clone()
	}
	return out
}

// AccountStats derives the aggregate statistics for the account from the
// trade and liquidation ledgers. Read-only; calling it twice with no
// intervening mutation returns identical results.
func (e *Engine) AccountStats() (*stats.AccountStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.account == nil {
		return nil, ports.ErrAccountNotInitialized
	}
	return stats.Compute(e.trades, e.liquidations, e.account.InitialCapital), nil
}

// accountCopy returns a copy of the account for handing out of the lock.
func (e *Engine) accountCopy() *domain.Account {
	acc := *e.account
	return &acc
}
