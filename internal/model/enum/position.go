package enum

// PositionSide BUY, SELL, or BOTH while flat.
type PositionSide string

const (
	PositionSideBuy  PositionSide = "BUY"
	PositionSideSell PositionSide = "SELL"
	PositionSideBoth PositionSide = "BOTH"
)

// PositionImpact tells whether an order grew or reduced its position.
type PositionImpact string

const (
	PositionImpactUnknown PositionImpact = ""
	PositionImpactOpen    PositionImpact = "OPEN"
	PositionImpactClose   PositionImpact = "CLOSE"
)

// TradeType classifies an order price against the position entry.
type TradeType string

const (
	TradeTypeOpen       TradeType = "OPEN"
	TradeTypeTakeProfit TradeType = "TAKE_PROFIT"
	TradeTypeStopLoss   TradeType = "STOP_LOSS"
)
