package model

import (
	"testing"
	"time"

	"connector/internal/model/enum"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAvgPrice(t *testing.T) {
	testCases := []struct {
		desc   string
		orders []Order
		want   string
	}{
		{desc: "empty", orders: nil, want: "0"},
		{
			desc: "weighted by executed quantity",
			orders: []Order{
				{Status: enum.OrderStatusFilled, Price: d("100"), ExecutedQuantity: d("1")},
				{Status: enum.OrderStatusFilled, Price: d("110"), ExecutedQuantity: d("3")},
			},
			want: "107.5",
		},
		{
			desc: "nothing executed falls back to mean",
			orders: []Order{
				{Status: enum.OrderStatusNew, Price: d("100")},
				{Status: enum.OrderStatusCanceled, Price: d("120")},
			},
			want: "110",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got := AvgPrice(tc.orders)
			if !got.Equal(d(tc.want)) {
				t.Fatalf("avg price mismatch: got %s want %s", got, tc.want)
			}
		})
	}
}

func TestOrderMergeIsMonotonic(t *testing.T) {
	filled := Order{ID: 1, Status: enum.OrderStatusFilled, Quantity: d("2"), ExecutedQuantity: d("2"), Price: d("10")}

	testCases := []struct {
		desc string
		prev Order
		next Order
		want Order
	}{
		{
			desc: "terminal order ignores later updates",
			prev: filled,
			next: Order{ID: 1, Status: enum.OrderStatusNew, Quantity: d("2"), Price: d("11")},
			want: filled,
		},
		{
			desc: "status does not move back",
			prev: Order{ID: 1, Status: enum.OrderStatusPartiallyFilled, Quantity: d("2"), ExecutedQuantity: d("1")},
			next: Order{ID: 1, Status: enum.OrderStatusNew, Quantity: d("2"), ExecutedQuantity: d("0")},
			want: Order{ID: 1, Status: enum.OrderStatusPartiallyFilled, Quantity: d("2"), ExecutedQuantity: d("1")},
		},
		{
			desc: "progress is applied",
			prev: Order{ID: 1, Status: enum.OrderStatusNew, ClientID: "c1", Quantity: d("2")},
			next: Order{ID: 1, Status: enum.OrderStatusFilled, Quantity: d("2"), ExecutedQuantity: d("2")},
			want: Order{ID: 1, Status: enum.OrderStatusFilled, ClientID: "c1", Quantity: d("2"), ExecutedQuantity: d("2")},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got := tc.prev.Merge(tc.next)
			assert.Equal(t, tc.want.Status, got.Status)
			assert.True(t, tc.want.ExecutedQuantity.Equal(got.ExecutedQuantity), "executed: %s", got.ExecutedQuantity)
			assert.True(t, tc.want.Quantity.Equal(got.Quantity))
			assert.Equal(t, tc.want.ClientID, got.ClientID)
			assert.True(t, tc.want.Price.Equal(got.Price))
		})
	}
}

func TestPositionSideByAmount(t *testing.T) {
	p := NewPosition("BTCUSDT")
	assert.Equal(t, enum.PositionSideBoth, p.SideByAmount())

	t0 := time.UnixMilli(1000)
	p.UpdateFromAccount(PositionUpdate{Amount: d("-2"), EntryPrice: d("100")}, t0)
	assert.Equal(t, enum.PositionSideSell, p.SideByAmount())

	p.UpdateFromAccount(PositionUpdate{Amount: d("3"), EntryPrice: d("90")}, t0.Add(time.Second))
	assert.Equal(t, enum.PositionSideBuy, p.SideByAmount())

	p.UpdateFromAccount(PositionUpdate{Amount: d("0"), EntryPrice: d("0")}, t0.Add(2*time.Second))
	assert.NotEqual(t, enum.PositionSideBoth, p.SideByAmount())
	assert.Equal(t, t0.Add(2*time.Second), p.CloseTime)
	assert.True(t, p.EntryPrice.Equal(d("90")), "entry price kept for closed analysis")
	assert.Equal(t, 2*time.Second, p.Duration())
}

func TestPositionCloses(t *testing.T) {
	p := NewPosition("BTCUSDT")
	t1, t2, t3 := time.UnixMilli(1000), time.UnixMilli(2000), time.UnixMilli(3000)

	p.UpdateFromAccount(PositionUpdate{Amount: d("5"), EntryPrice: d("100")}, t1)
	open := p.UpdateOrder(Order{ID: 1, Side: enum.OrderSideBuy, Status: enum.OrderStatusFilled, Price: d("100"), ExecutedQuantity: d("5"), TradeUpdateTime: t1})
	assert.Equal(t, enum.PositionImpactOpen, open.Impact)
	assert.Equal(t, enum.TradeTypeOpen, open.TradeType)

	p.UpdateFromAccount(PositionUpdate{Amount: d("5"), EntryPrice: d("100")}, t2)
	assert.False(t, p.Closed)

	p.UpdateFromAccount(PositionUpdate{Amount: d("0")}, t3)
	assert.False(t, p.Closed, "closing needs a filled order at the same event time")

	closing := p.UpdateOrder(Order{ID: 2, Side: enum.OrderSideSell, Status: enum.OrderStatusFilled, Price: d("120"), ExecutedQuantity: d("5"), TradeUpdateTime: t3})
	assert.True(t, p.Closed)
	assert.Equal(t, enum.PositionImpactClose, closing.Impact)
	assert.Equal(t, enum.TradeTypeTakeProfit, closing.TradeType)
	assert.True(t, p.ClosePrice().Equal(d("120")))
	assert.True(t, p.TakeProfitPrice().Equal(d("120")))
	assert.True(t, p.ClosedAmount().Equal(d("5")))
}

func TestPositionTradeType(t *testing.T) {
	testCases := []struct {
		desc   string
		amount string
		price  string
		want   enum.TradeType
	}{
		{desc: "long above entry", amount: "1", price: "110", want: enum.TradeTypeTakeProfit},
		{desc: "long below entry", amount: "1", price: "90", want: enum.TradeTypeStopLoss},
		{desc: "short below entry", amount: "-1", price: "90", want: enum.TradeTypeTakeProfit},
		{desc: "short above entry", amount: "-1", price: "110", want: enum.TradeTypeStopLoss},
		{desc: "tie", amount: "-1", price: "100", want: enum.TradeTypeOpen},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			p := NewPosition("ETHUSDT")
			p.UpdateFromAccount(PositionUpdate{Amount: d(tc.amount), EntryPrice: d("100")}, time.UnixMilli(1))
			po := p.UpdateOrder(Order{ID: 7, Status: enum.OrderStatusNew, Price: d(tc.price)})
			if po.TradeType != tc.want {
				t.Fatalf("trade type mismatch: got %v want %v", po.TradeType, tc.want)
			}
		})
	}
}

func TestPositionPrunesNoiseOrders(t *testing.T) {
	p := NewPosition("BTCUSDT")
	p.UpdateOrder(Order{ID: 1, Side: enum.OrderSideBuy, Status: enum.OrderStatusNew, Price: d("100")})
	p.UpdateOrder(Order{ID: 1, Side: enum.OrderSideBuy, Status: enum.OrderStatusCanceled, Price: d("100")})
	assert.Empty(t, p.Orders)
	assert.Equal(t, enum.PositionSideBuy, p.Side, "flat position takes the order side")

	at := time.UnixMilli(5000)
	p.UpdateFromAccount(PositionUpdate{Amount: d("1"), EntryPrice: d("100")}, at)
	p.UpdateOrder(Order{ID: 2, Side: enum.OrderSideBuy, Status: enum.OrderStatusFilled, Price: d("100"), ExecutedQuantity: d("1"), TradeUpdateTime: at})
	p.UpdateOrder(Order{ID: 3, Side: enum.OrderSideSell, Status: enum.OrderStatusCanceled, Price: d("150")})
	require.Len(t, p.Orders, 2, "noise is kept once the position is open")
}

func TestPositionOrderUpdatedInPlace(t *testing.T) {
	p := NewPosition("BTCUSDT")
	first := p.UpdateOrder(Order{ID: 1, Side: enum.OrderSideBuy, Status: enum.OrderStatusNew, Price: d("100"), Quantity: d("1")})
	second := p.UpdateOrder(Order{ID: 1, Side: enum.OrderSideBuy, Status: enum.OrderStatusPartiallyFilled, Price: d("100"), Quantity: d("1"), ExecutedQuantity: d("0.4")})
	assert.Same(t, first, second)
	assert.Equal(t, enum.OrderStatusPartiallyFilled, second.Status)
}

func TestAssetQuantity(t *testing.T) {
	info := SymbolInfo{LotSize: d("0.001"), AmountPrecision: 3}
	assert.Equal(t, "0.333", info.AssetQuantity(d("100"), d("300")).String())
	assert.True(t, info.AssetQuantity(d("100"), decimal.Zero).IsZero())
}
