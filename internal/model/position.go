package model

import (
	"time"

	"connector/internal/model/enum"

	"github.com/shopspring/decimal"
)

// PositionOrder is an order annotated relative to the position it belongs to.
type PositionOrder struct {
	Order
	Impact    enum.PositionImpact
	TradeType enum.TradeType
}

// PositionUpdate is one entry of an account update.
type PositionUpdate struct {
	Symbol        string
	Amount        decimal.Decimal
	EntryPrice    decimal.Decimal
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	MarginType    string
}

// Position is the live state of one futures position and the orders that
// moved it.
type Position struct {
	Symbol         string
	Amount         decimal.Decimal
	AmountBefore   decimal.Decimal
	Side           enum.PositionSide
	EntryPrice     decimal.Decimal
	RealizedPnL    decimal.Decimal
	UnrealizedPnL  decimal.Decimal
	MarginType     string
	OpenTime       time.Time
	CloseTime      time.Time
	LastUpdateTime time.Time
	Closed         bool
	Orders         map[int64]*PositionOrder

	lastSide enum.PositionSide
}

// NewPosition returns a flat position that was never opened.
func NewPosition(symbol string) *Position {
	return &Position{
		Symbol:   symbol,
		Side:     enum.PositionSideBoth,
		Orders:   make(map[int64]*PositionOrder),
		lastSide: enum.PositionSideBoth,
	}
}

func sideOfAmount(amount decimal.Decimal) enum.PositionSide {
	switch amount.Sign() {
	case 1:
		return enum.PositionSideBuy
	case -1:
		return enum.PositionSideSell
	}
	return enum.PositionSideBoth
}

// SideByAmount is BUY while long and SELL while short. A flat position reports
// BOTH until it is opened once and its last direction afterwards.
func (p *Position) SideByAmount() enum.PositionSide {
	if side := sideOfAmount(p.Amount); side != enum.PositionSideBoth {
		return side
	}
	return p.lastSide
}

// UpdateFromAccount applies an account update received at eventTime.
func (p *Position) UpdateFromAccount(u PositionUpdate, eventTime time.Time) {
	p.AmountBefore = p.Amount
	p.Amount = u.Amount
	p.RealizedPnL = u.RealizedPnL
	p.UnrealizedPnL = u.UnrealizedPnL
	if u.MarginType != "" {
		p.MarginType = u.MarginType
	}
	p.LastUpdateTime = eventTime

	if p.OpenTime.IsZero() {
		p.OpenTime = eventTime
	}

	if p.Amount.IsZero() {
		if !p.AmountBefore.IsZero() {
			p.CloseTime = eventTime
		}
		return
	}

	p.EntryPrice = u.EntryPrice
	p.Side = sideOfAmount(p.Amount)
	p.lastSide = p.Side
}

// UpdateOrder records an order against the position and re-evaluates whether
// the position just closed.
func (p *Position) UpdateOrder(o Order) *PositionOrder {
	if p.Side == enum.PositionSideBoth {
		p.Side = enum.PositionSide(o.Side)
	}

	po, ok := p.Orders[o.ID]
	if ok {
		po.Order = po.Order.Merge(o)
	} else {
		po = &PositionOrder{Order: o}
		p.Orders[o.ID] = po
	}

	po.TradeType = p.tradeType(po.Price)
	if !po.TradeUpdateTime.IsZero() && po.TradeUpdateTime.Equal(p.LastUpdateTime) {
		if p.Amount.Abs().GreaterThan(p.AmountBefore.Abs()) {
			po.Impact = enum.PositionImpactOpen
		} else {
			po.Impact = enum.PositionImpactClose
		}
	}

	if !p.hasImpact(enum.PositionImpactOpen) {
		for id, order := range p.Orders {
			if order.Status == enum.OrderStatusCanceled || order.Status == enum.OrderStatusExpired {
				delete(p.Orders, id)
			}
		}
	}

	if !p.Closed && !p.AmountBefore.IsZero() && p.Amount.IsZero() {
		for _, order := range p.Orders {
			if order.Status == enum.OrderStatusFilled && order.TradeUpdateTime.Equal(p.LastUpdateTime) {
				p.Closed = true
				break
			}
		}
	}

	return po
}

// tradeType compares price with the entry. Equal prices count as OPEN.
func (p *Position) tradeType(price decimal.Decimal) enum.TradeType {
	cmp := price.Cmp(p.EntryPrice)
	if cmp == 0 {
		return enum.TradeTypeOpen
	}

	favourable := cmp > 0
	if p.Side == enum.PositionSideSell {
		favourable = cmp < 0
	}
	if favourable {
		return enum.TradeTypeTakeProfit
	}
	return enum.TradeTypeStopLoss
}

func (p *Position) hasImpact(impact enum.PositionImpact) bool {
	for _, o := range p.Orders {
		if o.Impact == impact {
			return true
		}
	}
	return false
}

func (p *Position) filter(keep func(*PositionOrder) bool) []Order {
	orders := make([]Order, 0, len(p.Orders))
	for _, o := range p.Orders {
		if keep(o) {
			orders = append(orders, o.Order)
		}
	}
	return orders
}

// OpenPrice is the average price of orders that grew the position.
func (p *Position) OpenPrice() decimal.Decimal {
	return AvgPrice(p.filter(func(o *PositionOrder) bool { return o.Impact == enum.PositionImpactOpen }))
}

// ClosePrice is the average price of orders that reduced the position.
func (p *Position) ClosePrice() decimal.Decimal {
	return AvgPrice(p.filter(func(o *PositionOrder) bool { return o.Impact == enum.PositionImpactClose }))
}

// TakeProfitPrice is the average price of take-profit orders.
func (p *Position) TakeProfitPrice() decimal.Decimal {
	return AvgPrice(p.filter(func(o *PositionOrder) bool { return o.TradeType == enum.TradeTypeTakeProfit }))
}

// StopLossPrice is the average price of stop-loss orders.
func (p *Position) StopLossPrice() decimal.Decimal {
	return AvgPrice(p.filter(func(o *PositionOrder) bool { return o.TradeType == enum.TradeTypeStopLoss }))
}

// Commissions sums commissions over every order.
func (p *Position) Commissions() decimal.Decimal {
	total := decimal.Zero
	for _, o := range p.Orders {
		total = total.Add(o.Commission)
	}
	return total
}

// ClosedAmount sums executed quantity of closing orders.
func (p *Position) ClosedAmount() decimal.Decimal {
	total := decimal.Zero
	for _, o := range p.Orders {
		if o.Impact == enum.PositionImpactClose {
			total = total.Add(o.ExecutedQuantity)
		}
	}
	return total
}

// Duration is the time between opening and closing, zero while open.
func (p *Position) Duration() time.Duration {
	if p.CloseTime.IsZero() || p.OpenTime.IsZero() {
		return 0
	}
	return p.CloseTime.Sub(p.OpenTime)
}

// Clone returns a deep copy safe to hand to other goroutines.
func (p *Position) Clone() *Position {
	c := *p
	c.Orders = make(map[int64]*PositionOrder, len(p.Orders))
	for id, o := range p.Orders {
		cp := *o
		c.Orders[id] = &cp
	}
	return &c
}
