// Package candle keeps per symbol and timeframe candle series backed by a
// persistent store and gap-filled from the venue.
package candle

import (
	"context"
	"time"

	"connector/internal/model"
)

// Store persists closed candles. SaveCandles must be idempotent on
// overlapping ranges and LoadCandles must return ascending candles. Zero
// bounds are open.
type Store interface {
	Init(ctx context.Context) error
	SaveCandles(ctx context.Context, symbol string, tf model.Timeframe, candles []model.Candle) error
	LoadCandles(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) ([]model.Candle, error)
}

// Source fetches closed candles from the venue, at most limit candles with
// open time not after end. A zero start leaves the batch open to the left.
type Source interface {
	FetchCandles(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time, limit int) ([]model.Candle, error)
}

// PreloadWindow is how much history is loaded for a timeframe before
// streaming starts.
func PreloadWindow(tf model.Timeframe, maxCandles int) time.Duration {
	switch tf {
	case model.Timeframe1d:
		return 5 * 365 * 24 * time.Hour
	case model.Timeframe4h:
		return 2000 * 4 * time.Hour
	case model.Timeframe1h:
		return 2000 * time.Hour
	case model.Timeframe15m:
		return 500 * time.Hour
	case model.Timeframe1m:
		return 2000 * time.Minute
	}
	return time.Duration(maxCandles) * tf.Duration()
}

// gap is an inclusive range of missing open times.
type gap struct {
	lo, hi time.Time
}

// gaps lists the ranges of [start, end] not covered by the ascending,
// duplicate-free candles.
func gaps(candles []model.Candle, tf model.Timeframe, start, end time.Time) []gap {
	step := tf.Duration()
	if len(candles) == 0 {
		return []gap{{lo: start, hi: end}}
	}

	var result []gap
	if first := candles[0].Time; first.After(start) {
		result = append(result, gap{lo: start, hi: first.Add(-step)})
	}
	for i := 1; i < len(candles); i++ {
		prev, next := candles[i-1].Time, candles[i].Time
		if next.Sub(prev) > step {
			result = append(result, gap{lo: prev.Add(step), hi: next.Add(-step)})
		}
	}
	if last := candles[len(candles)-1].Time; last.Before(end) {
		result = append(result, gap{lo: last.Add(step), hi: end})
	}
	return result
}
