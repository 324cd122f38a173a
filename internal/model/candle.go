package model

import (
	"slices"
	"strconv"
	"time"

	"connector/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// Timeframe is a candle interval in the venue notation, e.g. "1m", "4h", "1d".
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// ParseTimeframe validates s. Only minute, hour and day units are supported.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if tf.Duration() <= 0 {
		return "", errors.Wrapf(exception.ErrUnsupportedTimeframe, "timeframe: %q", s)
	}
	return tf, nil
}

// Duration returns the interval length, or 0 when tf is malformed.
func (tf Timeframe) Duration() time.Duration {
	if len(tf) < 2 {
		return 0
	}
	n, err := strconv.Atoi(string(tf[:len(tf)-1]))
	if err != nil || n <= 0 {
		return 0
	}
	switch tf[len(tf)-1] {
	case 'm':
		return time.Duration(n) * time.Minute
	case 'h':
		return time.Duration(n) * time.Hour
	case 'd':
		return time.Duration(n) * 24 * time.Hour
	}
	return 0
}

// Minutes returns the interval length in minutes.
func (tf Timeframe) Minutes() int {
	return int(tf.Duration() / time.Minute)
}

// Truncate rounds t down to the start of its interval in UTC.
func (tf Timeframe) Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(tf.Duration())
}

// Candle is one OHLCV interval, keyed by its open time.
type Candle struct {
	Time   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// Notional is the dollar value traded at the close price.
func (c Candle) Notional() decimal.Decimal {
	return c.Close.Mul(c.Volume)
}

// NormalizeCandles sorts by open time and keeps the last candle per timestamp.
func NormalizeCandles(candles []Candle) []Candle {
	if len(candles) == 0 {
		return candles
	}
	sorted := slices.Clone(candles)
	slices.SortStableFunc(sorted, func(a, b Candle) int {
		return a.Time.Compare(b.Time)
	})

	result := sorted[:0]
	for _, c := range sorted {
		if n := len(result); n > 0 && result[n-1].Time.Equal(c.Time) {
			result[n-1] = c
			continue
		}
		result = append(result, c)
	}
	return result
}

// ClipCandles keeps candles whose open time lies in [from, to].
func ClipCandles(candles []Candle, from, to time.Time) []Candle {
	result := make([]Candle, 0, len(candles))
	for _, c := range candles {
		if c.Time.Before(from) || c.Time.After(to) {
			continue
		}
		result = append(result, c)
	}
	return result
}
