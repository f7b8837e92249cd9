package domain

import "time"

// Liquidation is an immutable record of a forced close. Exactly one is
// written when the monitor force-closes a breaching position.
type Liquidation struct {
	ID                     string       `json:"id"`
	AccountID              string       `json:"accountId"`
	PositionID             string       `json:"positionId"`
	Symbol                 string       `json:"symbol"`
	Coin                   string       `json:"coin"`
	Side                   PositionSide `json:"side"`
	Size                   float64      `json:"size"`
	EntryPrice             float64      `json:"entryPrice"`
	LiquidationPrice       float64      `json:"liquidationPrice"`
	MarkPriceAtLiquidation float64      `json:"markPriceAtLiquidation"`
	LossAmount             float64      `json:"lossAmount"` // magnitude, capped by the position's margin
	Timestamp              time.Time    `json:"timestamp"`
}

// Clone returns an independent copy of the record.
func (l *Liquidation) Clone() *Liquidation {
	c := *l
	return &c
}
