package model

import "github.com/shopspring/decimal"

// PriceLevel is one order book level. A zero quantity removes the level.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}
