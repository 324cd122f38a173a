package exception

import "errors"

var (
	ErrUnknownSymbol        = errors.New("market data: unknown symbol")
	ErrUnsupportedTimeframe = errors.New("market data: unsupported timeframe")
	ErrEmptyListenKey       = errors.New("market data: empty listen key")
)

var (
	ErrCandleNilStore  = errors.New("candle: nil store")
	ErrCandleNilSource = errors.New("candle: nil source")
)
