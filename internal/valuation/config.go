package valuation

import (
	"fmt"

	"paperTrader/internal/domain"
)

// DefaultCoinKey is the lookup key for the fallback entry in a CoinConfig
// table. Unknown coins resolve to this entry rather than a zero rate.
const DefaultCoinKey = "DEFAULT"

// CoinParams holds the per-coin risk parameters.
type CoinParams struct {
	MaintenanceMarginRate float64 // e.g. 0.005 for 0.5%
	MaxLeverage           int     // e.g. 125
}

// CoinConfig maps coin (base asset, e.g. "BTC") to its risk parameters.
// A DEFAULT entry is mandatory; Validate enforces it.
type CoinConfig map[string]CoinParams

// DefaultCoinConfig returns the built-in parameter table. Deployments load
// their own table from configuration; this is only the fallback profile.
func DefaultCoinConfig() CoinConfig {
	return CoinConfig{
		"BTC":          {MaintenanceMarginRate: 0.004, MaxLeverage: 125},
		"ETH":          {MaintenanceMarginRate: 0.005, MaxLeverage: 100},
		"SOL":          {MaintenanceMarginRate: 0.01, MaxLeverage: 50},
		"BNB":          {MaintenanceMarginRate: 0.01, MaxLeverage: 50},
		DefaultCoinKey: {MaintenanceMarginRate: 0.01, MaxLeverage: 20},
	}
}

// Validate checks the table is usable: a DEFAULT entry exists and every
// entry carries a maintenance margin rate in (0,1) and a positive max leverage.
func (c CoinConfig) Validate() error {
	if _, ok := c[DefaultCoinKey]; !ok {
		return fmt.Errorf("coin config must contain a %q entry", DefaultCoinKey)
	}
	for coin, p := range c {
		if p.MaintenanceMarginRate <= 0 || p.MaintenanceMarginRate >= 1 {
			return fmt.Errorf("coin %s: maintenance margin rate %f must be in (0,1)", coin, p.MaintenanceMarginRate)
		}
		if p.MaxLeverage < 1 {
			return fmt.Errorf("coin %s: max leverage %d must be at least 1", coin, p.MaxLeverage)
		}
	}
	return nil
}

// Params resolves the parameters for a coin, falling back to the DEFAULT entry.
func (c CoinConfig) Params(coin string) CoinParams {
	if p, ok := c[coin]; ok {
		return p
	}
	return c[DefaultCoinKey]
}

// MaintenanceMarginRate resolves the maintenance margin rate for a coin.
func (c CoinConfig) MaintenanceMarginRate(coin string) float64 {
	return c.Params(coin).MaintenanceMarginRate
}

// MaxLeverage resolves the maximum allowed leverage for a coin.
func (c CoinConfig) MaxLeverage(coin string) int {
	return c.Params(coin).MaxLeverage
}

// RiskThresholds holds the margin-ratio boundaries for risk classification.
// Values are percentages, compared in descending order: safe, warning,
// danger, anything below Danger classifies as liquidation risk.
type RiskThresholds struct {
	Safe    float64
	Warning float64
	Danger  float64
}

// DefaultRiskThresholds returns the standard 150/120/110 profile.
func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{Safe: 150, Warning: 120, Danger: 110}
}

// Validate checks the thresholds are strictly ordered.
func (t RiskThresholds) Validate() error {
	if !(t.Safe > t.Warning && t.Warning > t.Danger && t.Danger > 0) {
		return fmt.Errorf("risk thresholds must satisfy safe > warning > danger > 0, got %+v", t)
	}
	return nil
}

// Classify maps a margin ratio to its risk level.
func (t RiskThresholds) Classify(marginRatio float64) domain.RiskLevel {
	switch {
	case marginRatio >= t.Safe:
		return domain.RiskSafe
	case marginRatio >= t.Warning:
		return domain.RiskWarning
	case marginRatio >= t.Danger:
		return domain.RiskDanger
	default:
		return domain.RiskLiquidation
	}
}
