package domain

import "time"

// Position represents one open leveraged exposure in one coin, one side,
// owned by a single account. Derived fields are recomputed on every mark
// price update; identity and size only change through ledger mutations.
type Position struct {
	ID        string       `json:"id"`
	AccountID string       `json:"accountId"`
	Symbol    string       `json:"symbol"` // e.g. "BTCUSDT"
	Coin      string       `json:"coin"`   // e.g. "BTC"
	Side      PositionSide `json:"side"`

	Size       float64    `json:"size"`       // units of coin, > 0 while open
	EntryPrice float64    `json:"entryPrice"` // volume-weighted average across adds
	MarkPrice  float64    `json:"markPrice"`  // latest feed value
	Leverage   int        `json:"leverage"`
	MarginMode MarginMode `json:"marginMode"`

	// Derived, cached for snapshot readers.
	NotionalValue        float64 `json:"notionalValue"` // size * markPrice
	InitialMargin        float64 `json:"initialMargin"`
	MaintenanceMargin    float64 `json:"maintenanceMargin"`
	LiquidationPrice     float64 `json:"liquidationPrice"`
	UnrealizedPnl        float64 `json:"unrealizedPnl"`
	UnrealizedPnlPercent float64 `json:"unrealizedPnlPercent"`
	ReturnOnEquity       float64 `json:"returnOnEquity"`

	// Optional trigger prices; nil when not set.
	TakeProfitPrice *float64 `json:"takeProfitPrice,omitempty"`
	StopLossPrice   *float64 `json:"stopLossPrice,omitempty"`

	OpenedAt  time.Time `json:"openedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsLong reports whether the position is on the long side.
func (p *Position) IsLong() bool {
	return p.Side == Long
}

// Clone returns a deep copy, safe to hand to snapshot readers.
func (p *Position) Clone() *Position {
	c := *p
	if p.TakeProfitPrice != nil {
		tp := *p.TakeProfitPrice
		c.TakeProfitPrice = &tp
	}
	if p.StopLossPrice != nil {
		sl := *p.StopLossPrice
		c.StopLossPrice = &sl
	}
	return &c
}
