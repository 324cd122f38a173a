package pebble

import (
	"context"
	"testing"
	"time"

	"connector/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(base time.Time, n int, step time.Duration) []model.Candle {
	result := make([]model.Candle, 0, n)
	for i := range n {
		price := decimal.NewFromInt(int64(100 + i))
		result = append(result, model.Candle{
			Time:   base.Add(time.Duration(i) * step),
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: decimal.RequireFromString("0.5"),
		})
	}
	return result
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Init(ctx))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := series(base, 10, time.Hour)
	require.NoError(t, s.SaveCandles(ctx, "BTCUSDT", model.Timeframe1h, candles))
	require.NoError(t, s.SaveCandles(ctx, "ETHUSDT", model.Timeframe1h, series(base, 3, time.Hour)))
	require.NoError(t, s.SaveCandles(ctx, "BTCUSDT", model.Timeframe4h, series(base, 2, 4*time.Hour)))

	all, err := s.LoadCandles(ctx, "BTCUSDT", model.Timeframe1h, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 10)
	for i, c := range all {
		assert.True(t, c.Time.Equal(candles[i].Time))
		assert.True(t, c.Close.Equal(candles[i].Close))
		assert.True(t, c.Volume.Equal(candles[i].Volume))
	}

	ranged, err := s.LoadCandles(ctx, "BTCUSDT", model.Timeframe1h, base.Add(2*time.Hour), base.Add(5*time.Hour))
	require.NoError(t, err)
	require.Len(t, ranged, 4)
	assert.True(t, ranged[0].Time.Equal(base.Add(2*time.Hour)))
	assert.True(t, ranged[3].Time.Equal(base.Add(5*time.Hour)), "end is inclusive")

	updated := candles[9]
	updated.Close = decimal.NewFromInt(1)
	require.NoError(t, s.SaveCandles(ctx, "BTCUSDT", model.Timeframe1h, []model.Candle{updated}))
	tail, err := s.LoadCandles(ctx, "BTCUSDT", model.Timeframe1h, updated.Time, time.Time{})
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.True(t, tail[0].Close.Equal(decimal.NewFromInt(1)))

	none, err := s.LoadCandles(ctx, "SOLUSDT", model.Timeframe1h, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStoreReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.SaveCandles(ctx, "BTCUSDT", model.Timeframe1d, series(base, 3, 24*time.Hour)))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.LoadCandles(ctx, "BTCUSDT", model.Timeframe1d, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}
