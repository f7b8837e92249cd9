// Package stats derives aggregate account metrics from the immutable trade
// and liquidation ledgers. Everything is computed on demand from the full
// history rather than maintained incrementally, so repeated calls with the
// same ledgers always agree and floating-point drift cannot compound.
package stats

import (
	"math"
	"sort"
	"time"

	"paperTrader/internal/domain"
)

// ProfitFactorNoLosses is reported when the ledger has winning trades but no
// losing ones, where the profit factor has no finite value. Kept finite so
// snapshots stay JSON-encodable.
const ProfitFactorNoLosses = 999.0

// AccountStats holds the aggregate metrics for one account.
type AccountStats struct {
	TotalTrades       int     `json:"totalTrades"`       // executions of any action
	TotalClosedTrades int     `json:"totalClosedTrades"` // executions that realized P&L
	WinningTrades     int     `json:"winningTrades"`
	LosingTrades      int     `json:"losingTrades"`
	WinRate           float64 `json:"winRate"` // percent, 0 with no closed trades
	ProfitFactor      float64 `json:"profitFactor"`
	TotalRealizedPnl  float64 `json:"totalRealizedPnl"`
	AverageWin        float64 `json:"averageWin"`
	AverageLoss       float64 `json:"averageLoss"` // negative or zero
	Expectancy        float64 `json:"expectancy"`
	TotalFees         float64 `json:"totalFees"`

	LiquidationCount     int     `json:"liquidationCount"`
	TotalLiquidationLoss float64 `json:"totalLiquidationLoss"`

	MaxDrawdownPercent   float64 `json:"maxDrawdownPercent"` // peak-to-trough equity decline
	ReturnOnCapital      float64 `json:"returnOnCapital"`    // percent of initial capital
	MaxConsecutiveWins   int     `json:"maxConsecutiveWins"`
	MaxConsecutiveLosses int     `json:"maxConsecutiveLosses"`

	EquityCurve []EquityPoint `json:"equityCurve"`
}

// EquityPoint is one point on the realized equity curve.
type EquityPoint struct {
	Time     time.Time `json:"time"`
	Value    float64   `json:"value"`
	Drawdown float64   `json:"drawdown"` // percent below the running peak
}

// Compute derives the full metric set from the ledgers. trades and
// liquidations are not mutated; the trade slice is copied before sorting.
func Compute(trades []*domain.Trade, liquidations []*domain.Liquidation, initialCapital float64) *AccountStats {
	s := &AccountStats{}

	ordered := make([]*domain.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	var grossProfit, grossLoss float64 // grossLoss accumulated as a positive magnitude
	var consecutiveWins, consecutiveLosses int

	equity := initialCapital
	peak := initialCapital

	for _, trade := range ordered {
		s.TotalTrades++
		s.TotalFees += trade.Fee
		equity -= trade.Fee

		if trade.RealizedPnl != nil {
			pnl := *trade.RealizedPnl
			s.TotalClosedTrades++
			s.TotalRealizedPnl += pnl
			equity += pnl

			if pnl > 0 {
				s.WinningTrades++
				grossProfit += pnl
				consecutiveWins++
				consecutiveLosses = 0
			} else {
				s.LosingTrades++
				grossLoss += -pnl
				consecutiveLosses++
				consecutiveWins = 0
			}
			if consecutiveWins > s.MaxConsecutiveWins {
				s.MaxConsecutiveWins = consecutiveWins
			}
			if consecutiveLosses > s.MaxConsecutiveLosses {
				s.MaxConsecutiveLosses = consecutiveLosses
			}
		}

		if equity > peak {
			peak = equity
		}
		var drawdown float64
		if peak > 0 {
			drawdown = (peak - equity) / peak * 100
		}
		if drawdown > s.MaxDrawdownPercent {
			s.MaxDrawdownPercent = drawdown
		}
		s.EquityCurve = append(s.EquityCurve, EquityPoint{
			Time:     trade.Timestamp,
			Value:    equity,
			Drawdown: drawdown,
		})
	}

	if s.TotalClosedTrades > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(s.TotalClosedTrades) * 100
	}
	if s.WinningTrades > 0 {
		s.AverageWin = grossProfit / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AverageLoss = -grossLoss / float64(s.LosingTrades)
	}
	switch {
	case grossLoss > 0:
		s.ProfitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		s.ProfitFactor = ProfitFactorNoLosses
	}
	if s.TotalClosedTrades > 0 {
		winRate := float64(s.WinningTrades) / float64(s.TotalClosedTrades)
		s.Expectancy = winRate*s.AverageWin + (1-winRate)*s.AverageLoss
	}
	if initialCapital > 0 {
		s.ReturnOnCapital = (equity - initialCapital) / initialCapital * 100
	}

	for _, liq := range liquidations {
		s.LiquidationCount++
		s.TotalLiquidationLoss += liq.LossAmount
	}

	// Guard against NaN leaking out of degenerate float inputs.
	if math.IsNaN(s.MaxDrawdownPercent) {
		s.MaxDrawdownPercent = 0
	}
	return s
}
