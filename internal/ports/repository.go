package ports

import (
	"context"

	"paperTrader/internal/domain"
)

// AccountRepository defines the interface for persisting the account row.
// The simulator runs one account per database.
type AccountRepository interface {
	// SaveAccount inserts or replaces the stored account.
	SaveAccount(ctx context.Context, acc *domain.Account) error
	// LoadAccount retrieves the stored account. Returns nil, nil when no
	// account has been persisted yet.
	LoadAccount(ctx context.Context) (*domain.Account, error)
	// DeleteAccount removes the stored account.
	DeleteAccount(ctx context.Context, accountID string) error
}

// TradeRepository defines the interface for the persistent trade ledger.
// Rows are append-only; Reset is the one explicit destructive operation.
type TradeRepository interface {
	// CreateTrade saves a new trade record.
	CreateTrade(ctx context.Context, trade *domain.Trade) error
	// FindByAccount retrieves the trades for an account ordered by timestamp
	// ascending. limit <= 0 means no limit.
	FindByAccount(ctx context.Context, accountID string, limit int) ([]*domain.Trade, error)
	// DeleteByAccount removes all trades for an account (account reset).
	DeleteByAccount(ctx context.Context, accountID string) error
}

// LiquidationRepository defines the interface for the persistent liquidation ledger.
type LiquidationRepository interface {
	// CreateLiquidation saves a new liquidation record.
	CreateLiquidation(ctx context.Context, liq *domain.Liquidation) error
	// FindLiquidationsByAccount retrieves the liquidations for an account
	// ordered by timestamp ascending.
	FindLiquidationsByAccount(ctx context.Context, accountID string) ([]*domain.Liquidation, error)
	// DeleteLiquidationsByAccount removes all liquidations for an account (account reset).
	DeleteLiquidationsByAccount(ctx context.Context, accountID string) error
}

// PositionRepository defines the interface for persisting open-position
// snapshots so a restarted process can reload its book.
type PositionRepository interface {
	// Upsert inserts or replaces the stored snapshot of a position.
	Upsert(ctx context.Context, pos *domain.Position) error
	// Delete removes a position snapshot (full close or liquidation).
	Delete(ctx context.Context, positionID string) error
	// FindOpenByAccount retrieves all stored open positions for an account.
	FindOpenByAccount(ctx context.Context, accountID string) ([]*domain.Position, error)
	// DeletePositionsByAccount removes all position snapshots for an account.
	DeletePositionsByAccount(ctx context.Context, accountID string) error
}
