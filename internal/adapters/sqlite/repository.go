package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.TradeRepository, ports.LiquidationRepository
// and ports.PositionRepository interfaces using SQLite. The engine's state
// stays in memory; this adapter persists the ledgers and open-position
// snapshots so a restarted process can reload its book.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/paper_trader.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from limiting connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite repository ready", map[string]interface{}{"path": dbPath})

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		initial_capital REAL NOT NULL,
		wallet_balance REAL NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		position_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		coin TEXT NOT NULL,
		side TEXT NOT NULL,
		position_side TEXT NOT NULL,
		order_type TEXT NOT NULL,
		action TEXT NOT NULL,
		size REAL NOT NULL,
		price REAL NOT NULL,
		notional_value REAL NOT NULL,
		leverage INTEGER NOT NULL,
		fee REAL NOT NULL,
		realized_pnl REAL DEFAULT NULL,
		close_reason TEXT NOT NULL DEFAULT '',
		timestamp TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS liquidations (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		position_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		coin TEXT NOT NULL,
		side TEXT NOT NULL,
		size REAL NOT NULL,
		entry_price REAL NOT NULL,
		liquidation_price REAL NOT NULL,
		mark_price REAL NOT NULL,
		loss_amount REAL NOT NULL,
		timestamp TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		coin TEXT NOT NULL,
		side TEXT NOT NULL,
		size REAL NOT NULL,
		entry_price REAL NOT NULL,
		mark_price REAL NOT NULL,
		leverage INTEGER NOT NULL,
		margin_mode TEXT NOT NULL,
		initial_margin REAL NOT NULL,
		maintenance_margin REAL NOT NULL,
		liquidation_price REAL NOT NULL,
		take_profit_price REAL DEFAULT NULL,
		stop_loss_price REAL DEFAULT NULL,
		opened_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trades_account_timestamp ON trades (account_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_liquidations_account_timestamp ON liquidations (account_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_positions_account ON positions (account_id);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- AccountRepository Implementation ---

// SaveAccount inserts or replaces the stored account. Only durable fields
// are persisted; the derived balances are recomputed on reload.
func (r *Repository) SaveAccount(ctx context.Context, acc *domain.Account) error {
	const query = `
	INSERT OR REPLACE INTO accounts (id, initial_capital, wallet_balance, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		acc.ID, acc.InitialCapital, acc.WalletBalance, acc.CreatedAt, acc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save account %s: %w", acc.ID, err)
	}
	return nil
}

// LoadAccount retrieves the stored account, or nil, nil when none exists.
func (r *Repository) LoadAccount(ctx context.Context) (*domain.Account, error) {
	const query = `
	SELECT id, initial_capital, wallet_balance, created_at, updated_at
	FROM accounts LIMIT 1`

	acc := &domain.Account{}
	err := r.db.QueryRowContext(ctx, query).Scan(
		&acc.ID, &acc.InitialCapital, &acc.WalletBalance, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return acc, nil
}

// DeleteAccount removes the stored account.
func (r *Repository) DeleteAccount(ctx context.Context, accountID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, accountID); err != nil {
		return fmt.Errorf("failed to delete account %s: %w", accountID, err)
	}
	return nil
}

// --- TradeRepository Implementation ---

// CreateTrade saves a new trade record.
func (r *Repository) CreateTrade(ctx context.Context, trade *domain.Trade) error {
	const query = `
	INSERT INTO trades (id, account_id, position_id, symbol, coin, side, position_side,
	                    order_type, action, size, price, notional_value, leverage, fee,
	                    realized_pnl, close_reason, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var realized sql.NullFloat64
	if trade.RealizedPnl != nil {
		realized = sql.NullFloat64{Float64: *trade.RealizedPnl, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		trade.ID, trade.AccountID, trade.PositionID, trade.Symbol, trade.Coin,
		trade.Side, trade.PositionSide, trade.OrderType, trade.Action,
		trade.Size, trade.Price, trade.NotionalValue, trade.Leverage, trade.Fee,
		realized, string(trade.CloseReason), trade.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert trade %s: %w", trade.ID, err)
	}
	r.logger.Debug(ctx, "Trade persisted", map[string]interface{}{"tradeID": trade.ID, "action": trade.Action, "symbol": trade.Symbol})
	return nil
}

// FindByAccount retrieves the trades for an account ordered by timestamp ascending.
func (r *Repository) FindByAccount(ctx context.Context, accountID string, limit int) ([]*domain.Trade, error) {
	query := `
	SELECT id, account_id, position_id, symbol, coin, side, position_side, order_type,
	       action, size, price, notional_value, leverage, fee, realized_pnl, close_reason, timestamp
	FROM trades
	WHERE account_id = ? ORDER BY timestamp ASC`
	args := []interface{}{accountID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for account %s: %w", accountID, err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade during FindByAccount: %w", err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// DeleteByAccount removes all trades for an account (account reset).
func (r *Repository) DeleteByAccount(ctx context.Context, accountID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM trades WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("failed to delete trades for account %s: %w", accountID, err)
	}
	return nil
}

// --- LiquidationRepository Implementation ---

// CreateLiquidation saves a new liquidation record.
func (r *Repository) CreateLiquidation(ctx context.Context, liq *domain.Liquidation) error {
	const query = `
	INSERT INTO liquidations (id, account_id, position_id, symbol, coin, side, size,
	                          entry_price, liquidation_price, mark_price, loss_amount, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		liq.ID, liq.AccountID, liq.PositionID, liq.Symbol, liq.Coin, liq.Side,
		liq.Size, liq.EntryPrice, liq.LiquidationPrice, liq.MarkPriceAtLiquidation,
		liq.LossAmount, liq.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert liquidation %s: %w", liq.ID, err)
	}
	r.logger.Debug(ctx, "Liquidation persisted", map[string]interface{}{"liquidationID": liq.ID, "symbol": liq.Symbol, "loss": liq.LossAmount})
	return nil
}

// FindLiquidationsByAccount retrieves the liquidations for an account ordered by timestamp ascending.
func (r *Repository) FindLiquidationsByAccount(ctx context.Context, accountID string) ([]*domain.Liquidation, error) {
	const query = `
	SELECT id, account_id, position_id, symbol, coin, side, size, entry_price,
	       liquidation_price, mark_price, loss_amount, timestamp
	FROM liquidations
	WHERE account_id = ? ORDER BY timestamp ASC`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query liquidations for account %s: %w", accountID, err)
	}
	defer rows.Close()

	liquidations := make([]*domain.Liquidation, 0)
	for rows.Next() {
		liq := &domain.Liquidation{}
		err := rows.Scan(
			&liq.ID, &liq.AccountID, &liq.PositionID, &liq.Symbol, &liq.Coin, &liq.Side,
			&liq.Size, &liq.EntryPrice, &liq.LiquidationPrice, &liq.MarkPriceAtLiquidation,
			&liq.LossAmount, &liq.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan liquidation: %w", err)
		}
		liquidations = append(liquidations, liq)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating liquidation rows: %w", err)
	}
	return liquidations, nil
}

// DeleteLiquidationsByAccount removes all liquidations for an account (account reset).
func (r *Repository) DeleteLiquidationsByAccount(ctx context.Context, accountID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM liquidations WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("failed to delete liquidations for account %s: %w", accountID, err)
	}
	return nil
}

// --- PositionRepository Implementation ---

// Upsert inserts or replaces the stored snapshot of a position.
func (r *Repository) Upsert(ctx context.Context, pos *domain.Position) error {
	const query = `
	INSERT OR REPLACE INTO positions (id, account_id, symbol, coin, side, size, entry_price,
	                                  mark_price, leverage, margin_mode, initial_margin,
	                                  maintenance_margin, liquidation_price, take_profit_price,
	                                  stop_loss_price, opened_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var tp, sl sql.NullFloat64
	if pos.TakeProfitPrice != nil {
		tp = sql.NullFloat64{Float64: *pos.TakeProfitPrice, Valid: true}
	}
	if pos.StopLossPrice != nil {
		sl = sql.NullFloat64{Float64: *pos.StopLossPrice, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		pos.ID, pos.AccountID, pos.Symbol, pos.Coin, pos.Side, pos.Size, pos.EntryPrice,
		pos.MarkPrice, pos.Leverage, pos.MarginMode, pos.InitialMargin,
		pos.MaintenanceMargin, pos.LiquidationPrice, tp, sl, pos.OpenedAt, pos.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert position %s: %w", pos.ID, err)
	}
	return nil
}

// Delete removes a position snapshot (full close or liquidation).
func (r *Repository) Delete(ctx context.Context, positionID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM positions WHERE id = ?`, positionID)
	if err != nil {
		return fmt.Errorf("failed to delete position %s: %w", positionID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("position %s not found for delete: %w", positionID, ports.ErrNotFound)
	}
	return nil
}

// FindOpenByAccount retrieves all stored open positions for an account.
func (r *Repository) FindOpenByAccount(ctx context.Context, accountID string) ([]*domain.Position, error) {
	const query = `
	SELECT id, account_id, symbol, coin, side, size, entry_price, mark_price, leverage,
	       margin_mode, initial_margin, maintenance_margin, liquidation_price,
	       take_profit_price, stop_loss_price, opened_at, updated_at
	FROM positions
	WHERE account_id = ? ORDER BY opened_at ASC`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions for account %s: %w", accountID, err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position during FindOpenByAccount: %w", err)
		}
		positions = append(positions, pos)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

// DeletePositionsByAccount removes all position snapshots for an account.
func (r *Repository) DeletePositionsByAccount(ctx context.Context, accountID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM positions WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("failed to delete positions for account %s: %w", accountID, err)
	}
	return nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var realized sql.NullFloat64
	var side, positionSide, action, closeReason string
	err := s.Scan(
		&t.ID, &t.AccountID, &t.PositionID, &t.Symbol, &t.Coin, &side, &positionSide,
		&t.OrderType, &action, &t.Size, &t.Price, &t.NotionalValue, &t.Leverage, &t.Fee,
		&realized, &closeReason, &t.Timestamp)
	if err != nil {
		return nil, err
	}
	t.Side = domain.OrderSide(side)
	t.PositionSide = domain.PositionSide(positionSide)
	t.Action = domain.TradeAction(action)
	t.CloseReason = domain.CloseReason(closeReason)
	if realized.Valid {
		v := realized.Float64
		t.RealizedPnl = &v
	}
	return t, nil
}

// scanPosition scans a row into a domain.Position struct. Derived valuation
// fields not stored in the table are left zero; the engine revalues reloaded
// positions before using them.
func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var tp, sl sql.NullFloat64
	var side, marginMode string
	err := s.Scan(
		&p.ID, &p.AccountID, &p.Symbol, &p.Coin, &side, &p.Size, &p.EntryPrice,
		&p.MarkPrice, &p.Leverage, &marginMode, &p.InitialMargin,
		&p.MaintenanceMargin, &p.LiquidationPrice, &tp, &sl, &p.OpenedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Side = domain.PositionSide(side)
	p.MarginMode = domain.MarginMode(marginMode)
	if tp.Valid {
		v := tp.Float64
		p.TakeProfitPrice = &v
	}
	if sl.Valid {
		v := sl.Float64
		p.StopLossPrice = &v
	}
	return p, nil
}
