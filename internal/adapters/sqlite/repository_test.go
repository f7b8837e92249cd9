package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "paper-trader-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	repo, err := NewRepository(Config{
		DBPath: dbPath,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}
	return repo, cleanup
}

func testAccount() *domain.Account {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Account{
		ID:             uuid.NewString(),
		InitialCapital: 10000,
		WalletBalance:  9500,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func testTrade(accountID string) *domain.Trade {
	realized := 500.0
	return &domain.Trade{
		ID:            uuid.NewString(),
		AccountID:     accountID,
		PositionID:    uuid.NewString(),
		Symbol:        "BTCUSDT",
		Coin:          "BTC",
		Side:          domain.Sell,
		PositionSide:  domain.Long,
		OrderType:     "market",
		Action:        domain.ActionClose,
		Size:          0.1,
		Price:         55000,
		NotionalValue: 5500,
		Leverage:      10,
		Fee:           2.2,
		RealizedPnl:   &realized,
		CloseReason:   domain.CloseReasonManual,
		Timestamp:     time.Now().UTC().Truncate(time.Second),
	}
}

func testPosition(accountID string) *domain.Position {
	now := time.Now().UTC().Truncate(time.Second)
	tp := 60000.0
	return &domain.Position{
		ID:                uuid.NewString(),
		AccountID:         accountID,
		Symbol:            "BTCUSDT",
		Coin:              "BTC",
		Side:              domain.Long,
		Size:              0.1,
		EntryPrice:        50000,
		MarkPrice:         51000,
		Leverage:          10,
		MarginMode:        domain.MarginCross,
		InitialMargin:     500,
		MaintenanceMargin: 25.5,
		LiquidationPrice:  45250,
		TakeProfitPrice:   &tp,
		OpenedAt:          now,
		UpdatedAt:         now,
	}
}

func TestRepository_AccountRoundTrip(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	loaded, err := repo.LoadAccount(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded, "empty database must load nil, nil")

	acc := testAccount()
	require.NoError(t, repo.SaveAccount(ctx, acc))

	loaded, err = repo.LoadAccount(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, acc.ID, loaded.ID)
	assert.Equal(t, acc.InitialCapital, loaded.InitialCapital)
	assert.Equal(t, acc.WalletBalance, loaded.WalletBalance)

	// Saving again replaces the row instead of inserting a second account.
	acc.WalletBalance = 8000
	require.NoError(t, repo.SaveAccount(ctx, acc))
	loaded, err = repo.LoadAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8000.0, loaded.WalletBalance)

	require.NoError(t, repo.DeleteAccount(ctx, acc.ID))
	loaded, err = repo.LoadAccount(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestRepository_TradeRoundTrip(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	accountID := uuid.NewString()
	trade := testTrade(accountID)
	require.NoError(t, repo.CreateTrade(ctx, trade))

	// An opening trade with no realized PnL and no close reason.
	open := testTrade(accountID)
	open.Action = domain.ActionOpen
	open.Side = domain.Buy
	open.RealizedPnl = nil
	open.CloseReason = ""
	open.Timestamp = trade.Timestamp.Add(-time.Minute)
	require.NoError(t, repo.CreateTrade(ctx, open))

	trades, err := repo.FindByAccount(ctx, accountID, 0)
	require.NoError(t, err)
	require.Len(t, trades, 2)

	// Ordered by timestamp ascending: the open first.
	assert.Equal(t, open.ID, trades[0].ID)
	assert.Nil(t, trades[0].RealizedPnl)
	assert.Empty(t, trades[0].CloseReason)

	got := trades[1]
	assert.Equal(t, trade.ID, got.ID)
	assert.Equal(t, trade.Symbol, got.Symbol)
	assert.Equal(t, domain.ActionClose, got.Action)
	assert.Equal(t, domain.CloseReasonManual, got.CloseReason)
	require.NotNil(t, got.RealizedPnl)
	assert.InDelta(t, 500.0, *got.RealizedPnl, 1e-9)

	// Limit applies.
	trades, err = repo.FindByAccount(ctx, accountID, 1)
	require.NoError(t, err)
	assert.Len(t, trades, 1)

	// Other accounts see nothing.
	trades, err = repo.FindByAccount(ctx, uuid.NewString(), 0)
	require.NoError(t, err)
	assert.Empty(t, trades)

	require.NoError(t, repo.DeleteByAccount(ctx, accountID))
	trades, err = repo.FindByAccount(ctx, accountID, 0)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestRepository_LiquidationRoundTrip(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	accountID := uuid.NewString()
	liq := &domain.Liquidation{
		ID:                     uuid.NewString(),
		AccountID:              accountID,
		PositionID:             uuid.NewString(),
		Symbol:                 "BTCUSDT",
		Coin:                   "BTC",
		Side:                   domain.Long,
		Size:                   0.1,
		EntryPrice:             50000,
		LiquidationPrice:       45250,
		MarkPriceAtLiquidation: 45000,
		LossAmount:             500,
		Timestamp:              time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, repo.CreateLiquidation(ctx, liq))

	liquidations, err := repo.FindLiquidationsByAccount(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, liquidations, 1)
	got := liquidations[0]
	assert.Equal(t, liq.ID, got.ID)
	assert.InDelta(t, 45000.0, got.MarkPriceAtLiquidation, 1e-9)
	assert.InDelta(t, 500.0, got.LossAmount, 1e-9)

	require.NoError(t, repo.DeleteLiquidationsByAccount(ctx, accountID))
	liquidations, err = repo.FindLiquidationsByAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Empty(t, liquidations)
}

func TestRepository_PositionRoundTrip(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	accountID := uuid.NewString()
	pos := testPosition(accountID)
	require.NoError(t, repo.Upsert(ctx, pos))

	positions, err := repo.FindOpenByAccount(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	got := positions[0]
	assert.Equal(t, pos.ID, got.ID)
	assert.InDelta(t, 50000.0, got.EntryPrice, 1e-9)
	assert.Equal(t, domain.MarginCross, got.MarginMode)
	require.NotNil(t, got.TakeProfitPrice)
	assert.InDelta(t, 60000.0, *got.TakeProfitPrice, 1e-9)
	assert.Nil(t, got.StopLossPrice)

	// Upsert replaces the stored snapshot.
	pos.Size = 0.05
	pos.TakeProfitPrice = nil
	require.NoError(t, repo.Upsert(ctx, pos))
	positions, err = repo.FindOpenByAccount(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.InDelta(t, 0.05, positions[0].Size, 1e-9)
	assert.Nil(t, positions[0].TakeProfitPrice)

	require.NoError(t, repo.Delete(ctx, pos.ID))
	err = repo.Delete(ctx, pos.ID)
	assert.ErrorIs(t, err, ports.ErrNotFound, "deleting a missing position reports not found")

	// DeletePositionsByAccount clears the remaining snapshots.
	require.NoError(t, repo.Upsert(ctx, testPosition(accountID)))
	require.NoError(t, repo.Upsert(ctx, testPosition(accountID)))
	require.NoError(t, repo.DeletePositionsByAccount(ctx, accountID))
	positions, err = repo.FindOpenByAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Empty(t, positions)
}
