package exception

import "errors"

var (
	ErrOrderInvalidRequest = errors.New("order: invalid request")
	ErrOrderTradingHalted  = errors.New("order: trading halted")
	ErrOrderUnknownSymbol  = errors.New("order: unknown symbol")
)
