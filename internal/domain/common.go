package domain

// OrderSide represents the side of an executed order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// PositionSide represents the direction of a leveraged position.
type PositionSide string

const (
	Long  PositionSide = "long"
	Short PositionSide = "short"
)

// IsValid reports whether the side is one of the two known directions.
func (s PositionSide) IsValid() bool {
	return s == Long || s == Short
}

// MarginMode represents how margin is committed to a position.
type MarginMode string

const (
	MarginCross    MarginMode = "cross"
	MarginIsolated MarginMode = "isolated"
)

// TradeAction describes what an execution did to its position.
type TradeAction string

const (
	ActionOpen        TradeAction = "open"
	ActionAdd         TradeAction = "add"
	ActionReduce      TradeAction = "reduce"
	ActionClose       TradeAction = "close"
	ActionLiquidation TradeAction = "liquidation"
)

// CloseReason indicates why a position was fully closed.
type CloseReason string

const (
	CloseReasonManual      CloseReason = "manual"
	CloseReasonTakeProfit  CloseReason = "take_profit"
	CloseReasonStopLoss    CloseReason = "stop_loss"
	CloseReasonLiquidation CloseReason = "liquidation"
)

// RiskLevel classifies the account's margin ratio against configured thresholds.
type RiskLevel string

const (
	RiskSafe        RiskLevel = "safe"
	RiskWarning     RiskLevel = "warning"
	RiskDanger      RiskLevel = "danger"
	RiskLiquidation RiskLevel = "liquidation"
)
