package enum

// OrderSide BUY, SELL
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

func (s OrderSide) IsAvailable() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType as named by the venue.
type OrderType string

const (
	OrderTypeMarket           OrderType = "MARKET"
	OrderTypeLimit            OrderType = "LIMIT"
	OrderTypeStop             OrderType = "STOP"
	OrderTypeStopMarket       OrderType = "STOP_MARKET"
	OrderTypeTakeProfit       OrderType = "TAKE_PROFIT"
	OrderTypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
	OrderTypeStopLossMarket   OrderType = "STOP_LOSS_MARKET"
	OrderTypeStopLossLimit    OrderType = "STOP_LOSS_LIMIT"
	OrderTypeTakeProfitLimit  OrderType = "TAKE_PROFIT_LIMIT"
	OrderTypeLiquidation      OrderType = "LIQUIDATION"
)

func (t OrderType) IsAvailable() bool {
	switch t {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStop, OrderTypeStopMarket,
		OrderTypeTakeProfit, OrderTypeTakeProfitMarket, OrderTypeStopLossMarket,
		OrderTypeStopLossLimit, OrderTypeTakeProfitLimit, OrderTypeLiquidation:
		return true
	}
	return false
}

// IsStopMarket reports types that execute at market once the stop price triggers.
func (t OrderType) IsStopMarket() bool {
	return t == OrderTypeStopMarket || t == OrderTypeTakeProfitMarket || t == OrderTypeStopLossMarket
}

// IsMarket reports types that take no limit price and no time in force.
func (t OrderType) IsMarket() bool {
	return t == OrderTypeMarket || t.IsStopMarket()
}

// OrderStatus as named by the venue.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
	OrderStatusNewInsurance    OrderStatus = "NEW_INSURANCE"
	OrderStatusNewADL          OrderStatus = "NEW_ADL"
)

func (s OrderStatus) IsAvailable() bool {
	switch s {
	case OrderStatusNew, OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCanceled,
		OrderStatusExpired, OrderStatusNewInsurance, OrderStatusNewADL:
		return true
	}
	return false
}

// IsTerminal reports statuses after which an order never changes.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCanceled || s == OrderStatusExpired
}

// IsFilled reports statuses with executed quantity.
func (s OrderStatus) IsFilled() bool {
	return s == OrderStatusFilled || s == OrderStatusPartiallyFilled
}

// Rank orders statuses along the lifecycle; a later update never lowers it.
func (s OrderStatus) Rank() int {
	switch {
	case s.IsTerminal():
		return 2
	case s == OrderStatusPartiallyFilled:
		return 1
	default:
		return 0
	}
}

// TimeInForce GTC, IOC, FOK
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
)

// SideEffectType applies to margin orders.
type SideEffectType string

const (
	SideEffectNone       SideEffectType = "NO_SIDE_EFFECT"
	SideEffectMarginBuy  SideEffectType = "MARGIN_BUY"
	SideEffectAutoRepay  SideEffectType = "AUTO_REPAY"
	SideEffectAutoBorrow SideEffectType = "AUTO_BORROW_REPAY"
)
