package domain

import "time"

// Trade is an immutable record of one executed action (open/add/reduce/
// close/liquidation) on a position. Trades are append-only: once committed
// they are never mutated or deleted, except by an explicit account reset.
type Trade struct {
	ID           string       `json:"id"`
	AccountID    string       `json:"accountId"`
	PositionID   string       `json:"positionId"` // retained after the position is deleted
	Symbol       string       `json:"symbol"`
	Coin         string       `json:"coin"`
	Side         OrderSide    `json:"side"` // BUY or SELL as executed
	PositionSide PositionSide `json:"positionSide"`
	OrderType    string       `json:"orderType"` // always "market" in the simulator
	Action       TradeAction  `json:"action"`

	Size          float64     `json:"size"`
	Price         float64     `json:"price"`
	NotionalValue float64     `json:"notionalValue"`
	Leverage      int         `json:"leverage"`
	Fee           float64     `json:"fee"`
	RealizedPnl   *float64    `json:"realizedPnl,omitempty"` // present only on reducing/closing actions
	CloseReason   CloseReason `json:"closeReason,omitempty"` // empty on opening actions

	Timestamp time.Time `json:"timestamp"`
}

// Clone returns an independent copy so callers cannot mutate the ledger's
// committed record through a returned pointer.
func (t *Trade) Clone() *Trade {
	c := *t
	if t.RealizedPnl != nil {
		pnl := *t.RealizedPnl
		c.RealizedPnl = &pnl
	}
	return &c
}
