package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperTrader/config"
	"paperTrader/internal/domain"
	"paperTrader/internal/engine"
	"paperTrader/internal/ports"
	"paperTrader/internal/valuation"
)

// --- Mocks ---

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockFeed struct {
	handler func(prices []ports.MarkPrice)
}

func (m *mockFeed) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	return 50000, nil
}

func (m *mockFeed) StreamMarkPrices(ctx context.Context, handler func(prices []ports.MarkPrice), errHandler func(err error)) (chan struct{}, chan struct{}, error) {
	m.handler = handler
	return make(chan struct{}), make(chan struct{}), nil
}

// mockStore implements all four repository ports in memory with call
// recording, the way the engine's adapters are exercised without SQLite.
type mockStore struct {
	mu           sync.Mutex
	account      *domain.Account
	trades       map[string][]*domain.Trade
	liquidations map[string][]*domain.Liquidation
	positions    map[string]*domain.Position

	savedAccountCalls int
}

func newMockStore() *mockStore {
	return &mockStore{
		trades:       make(map[string][]*domain.Trade),
		liquidations: make(map[string][]*domain.Liquidation),
		positions:    make(map[string]*domain.Position),
	}
}

func (m *mockStore) SaveAccount(ctx context.Context, acc *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *acc
	m.account = &copied
	m.savedAccountCalls++
	return nil
}

func (m *mockStore) LoadAccount(ctx context.Context) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.account == nil {
		return nil, nil
	}
	copied := *m.account
	return &copied, nil
}

func (m *mockStore) DeleteAccount(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account = nil
	return nil
}

func (m *mockStore) CreateTrade(ctx context.Context, trade *domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades[trade.AccountID] = append(m.trades[trade.AccountID], trade)
	return nil
}

func (m *mockStore) FindByAccount(ctx context.Context, accountID string, limit int) ([]*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Trade(nil), m.trades[accountID]...), nil
}

func (m *mockStore) DeleteByAccount(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.trades, accountID)
	return nil
}

func (m *mockStore) CreateLiquidation(ctx context.Context, liq *domain.Liquidation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.liquidations[liq.AccountID] = append(m.liquidations[liq.AccountID], liq)
	return nil
}

func (m *mockStore) FindLiquidationsByAccount(ctx context.Context, accountID string) ([]*domain.Liquidation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Liquidation(nil), m.liquidations[accountID]...), nil
}

func (m *mockStore) DeleteLiquidationsByAccount(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.liquidations, accountID)
	return nil
}

func (m *mockStore) Upsert(ctx context.Context, pos *domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[pos.ID] = pos.Clone()
	return nil
}

func (m *mockStore) Delete(ctx context.Context, positionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, positionID)
	return nil
}

func (m *mockStore) FindOpenByAccount(ctx context.Context, accountID string) ([]*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Position, 0, len(m.positions))
	for _, pos := range m.positions {
		if pos.AccountID == accountID {
			out = append(out, pos.Clone())
		}
	}
	return out, nil
}

func (m *mockStore) DeletePositionsByAccount(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, pos := range m.positions {
		if pos.AccountID == accountID {
			delete(m.positions, id)
		}
	}
	return nil
}

func (m *mockStore) positionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions)
}

// --- Helpers ---

func testConfig() *config.Config {
	return &config.Config{
		InitialCapital:      10000,
		FeeRate:             0,
		Symbols:             []string{"BTCUSDT"},
		Coins:               valuation.DefaultCoinConfig(),
		RiskThresholds:      valuation.DefaultRiskThresholds(),
		PriceStalenessBound: 30 * time.Second,
	}
}

func newTestService(t *testing.T) (*SimulatorService, *mockStore, *mockFeed) {
	t.Helper()
	cfg := testConfig()
	store := newMockStore()
	feed := &mockFeed{}
	eng, err := engine.New(engine.Config{
		Coins:          cfg.Coins,
		RiskThresholds: cfg.RiskThresholds,
		FeeRate:        cfg.FeeRate,
		Logger:         &mockLogger{},
	})
	require.NoError(t, err)

	svc, err := NewSimulatorService(cfg, &mockLogger{}, feed, eng, Repositories{
		Accounts:     store,
		Trades:       store,
		Liquidations: store,
		Positions:    store,
	})
	require.NoError(t, err)
	return svc, store, feed
}

func openTestPosition(t *testing.T, svc *SimulatorService) *engine.OpenResult {
	t.Helper()
	res, err := svc.OpenPosition(context.Background(), engine.OpenParams{
		Symbol:   "BTCUSDT",
		Coin:     "BTC",
		Side:     domain.Long,
		Size:     0.1,
		Price:    50000,
		Leverage: 10,
	})
	require.NoError(t, err)
	return res
}

// --- Tests ---

func TestNewSimulatorServiceValidation(t *testing.T) {
	cfg := testConfig()
	store := newMockStore()
	eng, err := engine.New(engine.Config{Coins: cfg.Coins, Logger: &mockLogger{}})
	require.NoError(t, err)
	repos := Repositories{Accounts: store, Trades: store, Liquidations: store, Positions: store}

	_, err = NewSimulatorService(nil, &mockLogger{}, &mockFeed{}, eng, repos)
	assert.Error(t, err)
	_, err = NewSimulatorService(cfg, &mockLogger{}, nil, eng, repos)
	assert.Error(t, err)
	_, err = NewSimulatorService(cfg, &mockLogger{}, &mockFeed{}, eng, Repositories{})
	assert.Error(t, err)

	empty := testConfig()
	empty.Symbols = nil
	_, err = NewSimulatorService(empty, &mockLogger{}, &mockFeed{}, eng, repos)
	assert.Error(t, err)
}

func TestEnsureAccountInitializesFresh(t *testing.T) {
	svc, store, _ := newTestService(t)

	require.NoError(t, svc.ensureAccount(context.Background()))

	require.NotNil(t, store.account, "a fresh account must be persisted")
	assert.Equal(t, 10000.0, store.account.InitialCapital)

	snap, err := svc.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, store.account.ID, snap.Account.ID)
}

func TestEnsureAccountRestoresPersistedState(t *testing.T) {
	// First service run: open a position and let the store capture it.
	svc, store, _ := newTestService(t)
	require.NoError(t, svc.ensureAccount(context.Background()))
	res := openTestPosition(t, svc)

	// Second service over the same store, fresh engine.
	svc2, _, _ := newTestService(t)
	svc2.repos = Repositories{Accounts: store, Trades: store, Liquidations: store, Positions: store}
	require.NoError(t, svc2.ensureAccount(context.Background()))

	snap, err := svc2.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, store.account.ID, snap.Account.ID)
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, res.Position.ID, snap.Positions[0].ID)
	assert.InDelta(t, res.Position.InitialMargin, snap.Positions[0].InitialMargin, 1e-9)
}

func TestHandlePriceBatchFiltersAndPersists(t *testing.T) {
	svc, store, _ := newTestService(t)
	require.NoError(t, svc.ensureAccount(context.Background()))
	openTestPosition(t, svc)

	var notified []*domain.AccountSnapshot
	svc.Subscribe(func(snapshot *domain.AccountSnapshot) {
		notified = append(notified, snapshot)
	})

	now := time.Now()
	svc.handlePriceBatch([]ports.MarkPrice{
		{Symbol: "ETHUSDT", Coin: "ETH", Price: 3000, Timestamp: now},   // untracked symbol
		{Symbol: "BTCUSDT", Coin: "BTC", Price: 40000, Timestamp: now.Add(-time.Hour)}, // stale
		{Symbol: "BTCUSDT", Coin: "BTC", Price: 55000, Timestamp: now},
	})

	snap, err := svc.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Positions, 1)
	assert.InDelta(t, 55000.0, snap.Positions[0].MarkPrice, 1e-9, "only the fresh tracked price applies")

	require.Len(t, notified, 1, "subscribers see one snapshot per applied batch")
	assert.InDelta(t, 10500.0, notified[0].Account.TotalEquity, 1e-9)

	// A batch with nothing usable does not reach the engine or subscribers.
	svc.handlePriceBatch([]ports.MarkPrice{
		{Symbol: "ETHUSDT", Coin: "ETH", Price: 3000, Timestamp: now},
	})
	assert.Len(t, notified, 1)

	// A liquidating tick persists the forced close.
	svc.handlePriceBatch([]ports.MarkPrice{
		{Symbol: "BTCUSDT", Coin: "BTC", Price: 40000, Timestamp: time.Now()},
	})
	trades, err := store.FindByAccount(context.Background(), store.account.ID, 0)
	require.NoError(t, err)
	require.Len(t, trades, 2, "open trade plus the liquidation close")
	liqs, err := store.FindLiquidationsByAccount(context.Background(), store.account.ID)
	require.NoError(t, err)
	assert.Len(t, liqs, 1)
	assert.Equal(t, 0, store.positionCount(), "liquidated position snapshot removed")
}

func TestOpenAndClosePersist(t *testing.T) {
	svc, store, _ := newTestService(t)
	require.NoError(t, svc.ensureAccount(context.Background()))

	res := openTestPosition(t, svc)
	assert.Equal(t, 1, store.positionCount())
	trades, err := store.FindByAccount(context.Background(), store.account.ID, 0)
	require.NoError(t, err)
	assert.Len(t, trades, 1)

	closed, err := svc.ClosePosition(context.Background(), res.Position.ID, 55000)
	require.NoError(t, err)
	assert.InDelta(t, 500.0, closed.RealizedPnl, 1e-9)
	assert.Equal(t, 0, store.positionCount(), "a full close removes the snapshot row")
	assert.InDelta(t, 10500.0, store.account.WalletBalance, 1e-9, "the committed wallet is persisted")
}

func TestReducePersistsSurvivor(t *testing.T) {
	svc, store, _ := newTestService(t)
	require.NoError(t, svc.ensureAccount(context.Background()))
	res := openTestPosition(t, svc)

	reduced, err := svc.ReducePosition(context.Background(), res.Position.ID, 0.04, 55000)
	require.NoError(t, err)
	require.NotNil(t, reduced.Position)
	assert.Equal(t, 1, store.positionCount(), "partial reduce keeps the snapshot row")

	positions, err := store.FindOpenByAccount(context.Background(), store.account.ID)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.InDelta(t, 0.06, positions[0].Size, 1e-9)
}

func TestSetTpSlAndAdjustLeveragePersist(t *testing.T) {
	svc, store, _ := newTestService(t)
	require.NoError(t, svc.ensureAccount(context.Background()))
	res := openTestPosition(t, svc)

	tp := 60000.0
	_, err := svc.SetTpSl(context.Background(), res.Position.ID, &tp, nil)
	require.NoError(t, err)
	positions, err := store.FindOpenByAccount(context.Background(), store.account.ID)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.NotNil(t, positions[0].TakeProfitPrice)
	assert.InDelta(t, 60000.0, *positions[0].TakeProfitPrice, 1e-9)

	_, err = svc.AdjustLeverage(context.Background(), res.Position.ID, 20)
	require.NoError(t, err)
	positions, err = store.FindOpenByAccount(context.Background(), store.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, positions[0].Leverage)
}

func TestResetAccountClearsStore(t *testing.T) {
	svc, store, _ := newTestService(t)
	require.NoError(t, svc.ensureAccount(context.Background()))
	res := openTestPosition(t, svc)
	_, err := svc.ClosePosition(context.Background(), res.Position.ID, 55000)
	require.NoError(t, err)

	acc, err := svc.ResetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10000.0, acc.WalletBalance)

	trades, err := store.FindByAccount(context.Background(), acc.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Equal(t, 0, store.positionCount())
	assert.InDelta(t, 10000.0, store.account.WalletBalance, 1e-9)
}

func TestAccountStatsPassthrough(t *testing.T) {
	svc, _, _ := newTestService(t)
	require.NoError(t, svc.ensureAccount(context.Background()))
	res := openTestPosition(t, svc)
	_, err := svc.ClosePosition(context.Background(), res.Position.ID, 55000)
	require.NoError(t, err)

	stats, err := svc.AccountStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalClosedTrades)
	assert.InDelta(t, 500.0, stats.TotalRealizedPnl, 1e-9)
}
