package model

import (
	"time"

	"connector/internal/model/enum"

	"github.com/shopspring/decimal"
)

// SymbolInfo holds the trading constraints of one symbol. It is replaced as a
// whole on refresh and never mutated.
type SymbolInfo struct {
	Symbol                 string
	BaseAsset              string
	QuoteAsset             string
	UnderlyingType         string
	TickSize               decimal.Decimal
	LotSize                decimal.Decimal
	MinNotional            decimal.Decimal
	PricePrecision         int32
	AmountPrecision        int32
	IsMarginTradingAllowed bool
}

// AssetQuantity converts a quote amount at price into a base quantity rounded
// down to the lot size.
func (s SymbolInfo) AssetQuantity(quoteAmount, price decimal.Decimal) decimal.Decimal {
	if price.IsZero() {
		return decimal.Zero
	}
	qty := quoteAmount.Div(price)
	if s.LotSize.IsPositive() {
		qty = qty.Div(s.LotSize).Floor().Mul(s.LotSize)
	}
	return qty.Truncate(s.AmountPrecision)
}

// FormatPrice renders price with the symbol's price precision.
func (s SymbolInfo) FormatPrice(price decimal.Decimal) string {
	return price.Truncate(s.PricePrecision).String()
}

// FormatAmount renders a quantity with the symbol's amount precision.
func (s SymbolInfo) FormatAmount(amount decimal.Decimal) string {
	return amount.Truncate(s.AmountPrecision).String()
}

// Trade is one public trade print.
type Trade struct {
	ID       int64
	Symbol   string
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Side     enum.OrderSide
	Time     time.Time
}
