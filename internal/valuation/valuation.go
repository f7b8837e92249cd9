// Package valuation holds the pure numeric functions every other engine
// component is built on: unrealized P&L, liquidation price, margin
// requirements and risk classification. Nothing here has state or I/O.
package valuation

import (
	"fmt"

	"paperTrader/internal/domain"
)

// MarginRatioNoRisk is the margin ratio reported when an account has no open
// positions (maintenance margin of zero means nothing can be liquidated).
// The value is above any sane Safe threshold, so classification is unaffected
// by its exact magnitude.
const MarginRatioNoRisk = 999.0

// UnrealizedPnl computes the unrealized profit of a position at the given
// mark price. Long profits when the mark rises, short when it falls.
func UnrealizedPnl(side domain.PositionSide, entryPrice, markPrice, size float64) float64 {
	if side == domain.Long {
		return (markPrice - entryPrice) * size
	}
	return (entryPrice - markPrice) * size
}

// UnrealizedPnlPercent computes the P&L as a percentage of entry notional.
// Returns 0 when the entry notional is zero.
func UnrealizedPnlPercent(pnl, entryPrice, size float64) float64 {
	notional := entryPrice * size
	if notional == 0 {
		return 0
	}
	return pnl / notional * 100
}

// ReturnOnEquity computes the P&L relative to the margin committed, as a
// percentage. Returns 0 when no margin is committed.
func ReturnOnEquity(unrealizedPnl, initialMargin float64) float64 {
	if initialMargin == 0 {
		return 0
	}
	return unrealizedPnl / initialMargin * 100
}

// LiquidationPrice computes the price at which the position's margin is
// exhausted. For any leverage >= 1 and 0 < mmr < 1 the long result must sit
// below the entry price and the short result above it; ValidateLiquidationBand
// rejects parameter combinations that break this before a position is opened.
func LiquidationPrice(side domain.PositionSide, entryPrice float64, leverage int, maintenanceMarginRate float64) float64 {
	if side == domain.Long {
		return entryPrice * (1 - 1/float64(leverage) + maintenanceMarginRate)
	}
	return entryPrice * (1 + 1/float64(leverage) - maintenanceMarginRate)
}

// ValidateLiquidationBand rejects leverage/mmr combinations for which the
// liquidation price would not sit on the losing side of the entry price
// (e.g. leverage 1 with a high maintenance margin rate). Such a combination
// is a configuration error, not something to silently miscompute.
func ValidateLiquidationBand(leverage int, maintenanceMarginRate float64) error {
	if leverage < 1 {
		return fmt.Errorf("leverage %d must be at least 1", leverage)
	}
	if maintenanceMarginRate <= 0 || maintenanceMarginRate >= 1 {
		return fmt.Errorf("maintenance margin rate %f must be in (0,1)", maintenanceMarginRate)
	}
	if maintenanceMarginRate >= 1/float64(leverage) {
		return fmt.Errorf("maintenance margin rate %f leaves no liquidation band at leverage %d", maintenanceMarginRate, leverage)
	}
	return nil
}

// InitialMargin computes the capital reserved to open a position.
func InitialMargin(notionalValue float64, leverage int) float64 {
	return notionalValue / float64(leverage)
}

// MaintenanceMargin computes the minimum equity required to keep a position open.
func MaintenanceMargin(notionalValue, maintenanceMarginRate float64) float64 {
	return notionalValue * maintenanceMarginRate
}

// MarginRatio computes account equity relative to maintenance margin, as a
// percentage. With no maintenance margin the account carries no liquidation
// risk and the MarginRatioNoRisk sentinel is returned.
func MarginRatio(totalEquity, maintenanceMargin float64) float64 {
	if maintenanceMargin == 0 {
		return MarginRatioNoRisk
	}
	return totalEquity / maintenanceMargin * 100
}
