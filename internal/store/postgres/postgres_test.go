package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"connector/internal/model"
	"connector/pkg/conn"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowConversion(t *testing.T) {
	c := model.Candle{
		Time:   time.Date(2024, 1, 1, 8, 0, 0, 0, time.FixedZone("UTC+8", 8*3600)),
		Open:   decimal.RequireFromString("42000.1"),
		High:   decimal.RequireFromString("42100"),
		Low:    decimal.RequireFromString("41900.5"),
		Close:  decimal.RequireFromString("42050"),
		Volume: decimal.RequireFromString("12.345"),
	}

	row := toRow("BTCUSDT", model.Timeframe1h, c)
	assert.Equal(t, "BTCUSDT", row.Symbol)
	assert.Equal(t, "1h", row.Timeframe)
	assert.Equal(t, time.UTC, row.OpenTime.Location())

	back := row.candle()
	assert.True(t, back.Time.Equal(c.Time))
	assert.True(t, back.Close.Equal(c.Close))
	assert.True(t, back.Volume.Equal(c.Volume))
	assert.Equal(t, "candles", candleRow{}.TableName())
}

// TestStore runs against a live database when CONNECTOR_TEST_POSTGRES_DSN is set.
func TestStore(t *testing.T) {
	dsn := os.Getenv("CONNECTOR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CONNECTOR_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	db, err := conn.OpenPostgres(ctx, conn.PostgresOption{DSN: dsn})
	require.NoError(t, err)
	defer conn.ClosePostgres(db)

	s := New(db, 2)
	require.NoError(t, s.Init(ctx))

	symbol := "TEST" + time.Now().Format("150405.000")
	defer db.Where("symbol = ?", symbol).Delete(&candleRow{})

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]model.Candle, 0, 5)
	for i := range 5 {
		candles = append(candles, model.Candle{
			Time:   base.Add(time.Duration(i) * time.Minute),
			Close:  decimal.NewFromInt(int64(i)),
			Volume: decimal.NewFromInt(1),
		})
	}
	require.NoError(t, s.SaveCandles(ctx, symbol, model.Timeframe1m, candles))

	candles[4].Close = decimal.NewFromInt(40)
	require.NoError(t, s.SaveCandles(ctx, symbol, model.Timeframe1m, candles[3:]))

	got, err := s.LoadCandles(ctx, symbol, model.Timeframe1m, base.Add(time.Minute), time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.True(t, got[0].Time.Equal(base.Add(time.Minute)))
	assert.True(t, got[3].Close.Equal(decimal.NewFromInt(40)))
}
