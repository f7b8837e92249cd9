package valuation

import (
	"math"
	"testing"

	"paperTrader/internal/domain"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestUnrealizedPnl(t *testing.T) {
	tests := []struct {
		name       string
		side       domain.PositionSide
		entryPrice float64
		markPrice  float64
		size       float64
		want       float64
	}{
		{"long profit", domain.Long, 50000, 55000, 0.1, 500},
		{"long loss", domain.Long, 50000, 45000, 0.1, -500},
		{"short profit", domain.Short, 50000, 45000, 0.1, 500},
		{"short loss", domain.Short, 50000, 55000, 0.1, -500},
		{"flat", domain.Long, 50000, 50000, 0.1, 0},
		{"zero size", domain.Long, 50000, 60000, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UnrealizedPnl(tt.side, tt.entryPrice, tt.markPrice, tt.size)
			if !almostEqual(got, tt.want) {
				t.Errorf("UnrealizedPnl() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestUnrealizedPnlPercent(t *testing.T) {
	// 500 profit on a 5000 notional is 10%.
	got := UnrealizedPnlPercent(500, 50000, 0.1)
	if !almostEqual(got, 10) {
		t.Errorf("UnrealizedPnlPercent() = %f, want 10", got)
	}
	// Zero notional must not divide by zero.
	if got := UnrealizedPnlPercent(500, 0, 0.1); got != 0 {
		t.Errorf("UnrealizedPnlPercent() with zero entry = %f, want 0", got)
	}
	if got := UnrealizedPnlPercent(500, 50000, 0); got != 0 {
		t.Errorf("UnrealizedPnlPercent() with zero size = %f, want 0", got)
	}
}

func TestReturnOnEquity(t *testing.T) {
	// 500 profit on 500 committed margin is 100%.
	if got := ReturnOnEquity(500, 500); !almostEqual(got, 100) {
		t.Errorf("ReturnOnEquity() = %f, want 100", got)
	}
	if got := ReturnOnEquity(500, 0); got != 0 {
		t.Errorf("ReturnOnEquity() with zero margin = %f, want 0", got)
	}
}

func TestLiquidationPrice(t *testing.T) {
	tests := []struct {
		name       string
		side       domain.PositionSide
		entryPrice float64
		leverage   int
		mmr        float64
		want       float64
	}{
		{"long 10x", domain.Long, 50000, 10, 0.005, 45250},
		{"short 10x", domain.Short, 50000, 10, 0.005, 54750},
		{"long 20x", domain.Long, 3000, 20, 0.01, 2880},
		{"short 20x", domain.Short, 3000, 20, 0.01, 3120},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LiquidationPrice(tt.side, tt.entryPrice, tt.leverage, tt.mmr)
			if !almostEqual(got, tt.want) {
				t.Errorf("LiquidationPrice() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestLiquidationPriceSidesOfEntry(t *testing.T) {
	// For every valid parameter combination the long liquidation price sits
	// below the entry and the short one above it.
	for _, leverage := range []int{2, 5, 10, 50, 125} {
		for _, mmr := range []float64{0.004, 0.005, 0.01} {
			if err := ValidateLiquidationBand(leverage, mmr); err != nil {
				continue
			}
			long := LiquidationPrice(domain.Long, 50000, leverage, mmr)
			short := LiquidationPrice(domain.Short, 50000, leverage, mmr)
			if long >= 50000 {
				t.Errorf("long liq price %f at %dx mmr %f not below entry", long, leverage, mmr)
			}
			if short <= 50000 {
				t.Errorf("short liq price %f at %dx mmr %f not above entry", short, leverage, mmr)
			}
		}
	}
}

func TestValidateLiquidationBand(t *testing.T) {
	tests := []struct {
		name     string
		leverage int
		mmr      float64
		wantErr  bool
	}{
		{"valid 10x", 10, 0.005, false},
		{"valid 1x small mmr", 1, 0.01, false},
		{"leverage zero", 0, 0.005, true},
		{"mmr zero", 10, 0, true},
		{"mmr one", 10, 1, true},
		{"band collapses", 100, 0.01, true},  // 0.01 >= 1/100
		{"band exactly closed", 200, 0.005, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLiquidationBand(tt.leverage, tt.mmr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLiquidationBand(%d, %f) error = %v, wantErr %v", tt.leverage, tt.mmr, err, tt.wantErr)
			}
		})
	}
}

func TestMargins(t *testing.T) {
	if got := InitialMargin(5000, 10); !almostEqual(got, 500) {
		t.Errorf("InitialMargin() = %f, want 500", got)
	}
	if got := MaintenanceMargin(5000, 0.005); !almostEqual(got, 25) {
		t.Errorf("MaintenanceMargin() = %f, want 25", got)
	}
}

func TestMarginRatio(t *testing.T) {
	if got := MarginRatio(10000, 25); !almostEqual(got, 40000) {
		t.Errorf("MarginRatio() = %f, want 40000", got)
	}
	if got := MarginRatio(10000, 0); got != MarginRatioNoRisk {
		t.Errorf("MarginRatio() with no maintenance margin = %f, want sentinel %f", got, MarginRatioNoRisk)
	}
}

func TestCoinConfigFallback(t *testing.T) {
	coins := DefaultCoinConfig()
	if got := coins.MaintenanceMarginRate("BTC"); !almostEqual(got, 0.004) {
		t.Errorf("BTC mmr = %f, want 0.004", got)
	}
	// Unknown coins resolve to the DEFAULT entry.
	if got := coins.Params("DOGE"); got != coins[DefaultCoinKey] {
		t.Errorf("unknown coin resolved to %+v, want DEFAULT %+v", got, coins[DefaultCoinKey])
	}
	if got := coins.MaxLeverage("DOGE"); got != 20 {
		t.Errorf("unknown coin max leverage = %d, want 20", got)
	}
}

func TestCoinConfigValidate(t *testing.T) {
	missingDefault := CoinConfig{"BTC": {MaintenanceMarginRate: 0.004, MaxLeverage: 125}}
	if err := missingDefault.Validate(); err == nil {
		t.Error("expected error for config without DEFAULT entry")
	}
	badRate := CoinConfig{DefaultCoinKey: {MaintenanceMarginRate: 1.5, MaxLeverage: 20}}
	if err := badRate.Validate(); err == nil {
		t.Error("expected error for mmr outside (0,1)")
	}
	badLeverage := CoinConfig{DefaultCoinKey: {MaintenanceMarginRate: 0.01, MaxLeverage: 0}}
	if err := badLeverage.Validate(); err == nil {
		t.Error("expected error for max leverage below 1")
	}
}

func TestRiskThresholdsClassify(t *testing.T) {
	thresholds := DefaultRiskThresholds()
	tests := []struct {
		marginRatio float64
		want        domain.RiskLevel
	}{
		{MarginRatioNoRisk, domain.RiskSafe},
		{150, domain.RiskSafe},
		{149.9, domain.RiskWarning},
		{120, domain.RiskWarning},
		{119.9, domain.RiskDanger},
		{110, domain.RiskDanger},
		{109.9, domain.RiskLiquidation},
		{0, domain.RiskLiquidation},
	}
	for _, tt := range tests {
		if got := thresholds.Classify(tt.marginRatio); got != tt.want {
			t.Errorf("Classify(%f) = %s, want %s", tt.marginRatio, got, tt.want)
		}
	}
}

func TestRiskThresholdsValidate(t *testing.T) {
	if err := DefaultRiskThresholds().Validate(); err != nil {
		t.Errorf("default thresholds should validate, got %v", err)
	}
	unordered := RiskThresholds{Safe: 100, Warning: 120, Danger: 110}
	if err := unordered.Validate(); err == nil {
		t.Error("expected error for unordered thresholds")
	}
}
