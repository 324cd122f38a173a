package model

import (
	"time"

	"connector/internal/model/enum"

	"github.com/shopspring/decimal"
)

// Order is the latest known state of one venue order.
type Order struct {
	ID               int64
	ClientID         string
	Symbol           string
	Side             enum.OrderSide
	Type             enum.OrderType
	Status           enum.OrderStatus
	Price            decimal.Decimal
	AvgPrice         decimal.Decimal
	StopPrice        decimal.Decimal
	Quantity         decimal.Decimal
	ExecutedQuantity decimal.Decimal
	Commission       decimal.Decimal
	// Time is the order transaction or update time reported by the venue.
	Time time.Time
	// TradeUpdateTime is the stream event time, matched against position updates.
	TradeUpdateTime time.Time
	IsIsolated      *bool
}

// IsFilled reports whether the order has executed quantity.
func (o Order) IsFilled() bool {
	return o.Status.IsFilled()
}

// Merge returns next applied over o. A terminal order never changes, the
// status never moves back along its lifecycle and quantities never shrink.
func (o Order) Merge(next Order) Order {
	if o.Status.IsTerminal() {
		return o
	}
	if next.Status.Rank() < o.Status.Rank() {
		next.Status = o.Status
	}
	if o.Quantity.GreaterThan(next.Quantity) {
		next.Quantity = o.Quantity
	}
	if o.ExecutedQuantity.GreaterThan(next.ExecutedQuantity) {
		next.ExecutedQuantity = o.ExecutedQuantity
	}
	if next.ClientID == "" {
		next.ClientID = o.ClientID
	}
	if next.IsIsolated == nil {
		next.IsIsolated = o.IsIsolated
	}
	if next.TradeUpdateTime.IsZero() {
		next.TradeUpdateTime = o.TradeUpdateTime
	}
	return next
}

// AvgPrice is the executed-quantity weighted price over filled orders.
// Without any executed quantity it falls back to the mean of prices, and an
// empty list yields zero.
func AvgPrice(orders []Order) decimal.Decimal {
	if len(orders) == 0 {
		return decimal.Zero
	}

	weighted, executed, prices := decimal.Zero, decimal.Zero, decimal.Zero
	for _, o := range orders {
		if o.IsFilled() {
			weighted = weighted.Add(o.ExecutedQuantity.Mul(o.Price))
		}
		executed = executed.Add(o.ExecutedQuantity)
		prices = prices.Add(o.Price)
	}

	if executed.IsZero() {
		return prices.Div(decimal.NewFromInt(int64(len(orders))))
	}
	return weighted.Div(executed)
}
