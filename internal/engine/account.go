package engine

import "paperTrader/internal/valuation"

// recomputeAccount re-derives every account-level figure from the open
// positions. The account never stores its own copies of per-position values;
// this runs after each committed mutation and each price tick so the derived
// fields cannot drift from the book. Caller holds the lock.
func (e *Engine) recomputeAccount() {
	var unrealized, usedMargin, maintMargin float64
	for _, pos := range e.book.all() {
		unrealized += pos.UnrealizedPnl
		usedMargin += pos.InitialMargin
		maintMargin += pos.MaintenanceMargin
	}

	acc := e.account
	acc.TotalEquity = acc.WalletBalance + unrealized
	acc.UsedMargin = usedMargin
	acc.AvailableMargin = acc.TotalEquity - usedMargin
	acc.MaintenanceMargin = maintMargin
	acc.MarginRatio = valuation.MarginRatio(acc.TotalEquity, maintMargin)
	acc.RiskLevel = e.cfg.RiskThresholds.Classify(acc.MarginRatio)
	acc.UpdatedAt = e.now()
}

// totalEquity computes wallet balance plus unrealized P&L from the live book.
func (e *Engine) totalEquity() float64 {
	equity := e.account.WalletBalance
	for _, pos := range e.book.all() {
		equity += pos.UnrealizedPnl
	}
	return equity
}

// availableMargin computes equity not yet reserved as initial margin.
func (e *Engine) availableMargin() float64 {
	available := e.totalEquity()
	for _, pos := range e.book.all() {
		available -= pos.InitialMargin
	}
	return available
}

// usedMarginExcluding sums the reserved margin of every position except one.
func (e *Engine) usedMarginExcluding(positionID string) float64 {
	var used float64
	for _, pos := range e.book.all() {
		if pos.ID != positionID {
			used += pos.InitialMargin
		}
	}
	return used
}
