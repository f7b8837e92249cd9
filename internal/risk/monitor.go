package risk

import (
	"context"
	"fmt"
	"math"
	"sync"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
	"paperTrader/internal/valuation"
)

// Config holds configuration for the risk monitor.
type Config struct {
	Thresholds valuation.RiskThresholds
	// WarnProximityPercent warns when a position's mark price is within this
	// percentage of its liquidation price. Zero disables proximity warnings.
	WarnProximityPercent float64
	Logger               ports.Logger
}

// Monitor watches committed account snapshots and raises log warnings when
// the account changes risk level or a position drifts toward its liquidation
// price. It never blocks or alters the simulation; it only observes.
type Monitor struct {
	cfg Config

	mu        sync.Mutex
	lastLevel domain.RiskLevel
	warned    map[string]bool // position IDs already warned for proximity
}

// NewMonitor creates a new risk monitor instance.
func NewMonitor(cfg Config) (*Monitor, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for risk monitor")
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if cfg.WarnProximityPercent < 0 || cfg.WarnProximityPercent >= 100 {
		return nil, fmt.Errorf("warn proximity percent %f must be in [0,100)", cfg.WarnProximityPercent)
	}
	return &Monitor{
		cfg:    cfg,
		warned: make(map[string]bool),
	}, nil
}

// Observe inspects one committed snapshot. Intended to be registered as a
// snapshot subscriber on the application service.
func (m *Monitor) Observe(snapshot *domain.AccountSnapshot) {
	if snapshot == nil {
		return
	}
	ctx := context.Background()

	m.mu.Lock()
	defer m.mu.Unlock()

	level := snapshot.Account.RiskLevel
	if level != m.lastLevel && m.lastLevel != "" {
		fields := map[string]interface{}{
			"from":        m.lastLevel,
			"to":          level,
			"marginRatio": snapshot.Account.MarginRatio,
			"totalEquity": snapshot.Account.TotalEquity,
		}
		switch level {
		case domain.RiskDanger, domain.RiskLiquidation:
			m.cfg.Logger.Warn(ctx, "Account risk level changed", fields)
		default:
			m.cfg.Logger.Info(ctx, "Account risk level changed", fields)
		}
	}
	m.lastLevel = level

	open := make(map[string]bool, len(snapshot.Positions))
	for _, pos := range snapshot.Positions {
		open[pos.ID] = true
		m.checkProximity(ctx, pos)
	}
	// Forget closed positions so a reopened book warns fresh.
	for id := range m.warned {
		if !open[id] {
			delete(m.warned, id)
		}
	}
}

// checkProximity warns once per position when the mark price is within the
// configured band of the liquidation price.
func (m *Monitor) checkProximity(ctx context.Context, pos *domain.Position) {
	if m.cfg.WarnProximityPercent <= 0 || pos.LiquidationPrice <= 0 {
		return
	}
	distance := math.Abs(pos.MarkPrice-pos.LiquidationPrice) / pos.MarkPrice * 100
	if distance > m.cfg.WarnProximityPercent {
		delete(m.warned, pos.ID) // recovered, re-arm the warning
		return
	}
	if m.warned[pos.ID] {
		return
	}
	m.warned[pos.ID] = true
	m.cfg.Logger.Warn(ctx, "Position approaching liquidation price", map[string]interface{}{
		"positionID":      pos.ID,
		"symbol":          pos.Symbol,
		"side":            pos.Side,
		"markPrice":       pos.MarkPrice,
		"liqPrice":        pos.LiquidationPrice,
		"distancePercent": distance,
	})
}
