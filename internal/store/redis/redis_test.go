package redis

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

func TestMemberCodec(t *testing.T) {
	c := model.Candle{
		Time:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Open:   decimal.RequireFromString("1.25"),
		High:   decimal.RequireFromString("1.5"),
		Low:    decimal.RequireFromString("1"),
		Close:  decimal.RequireFromString("1.4"),
		Volume: decimal.RequireFromString("1000"),
	}

	z, err := encode(c)
	require.NoError(t, err)
	assert.Equal(t, float64(c.Time.UnixMilli()), z.Score)

	got, err := decode(z.Member.(string))
	require.NoError(t, err)
	assert.True(t, got.Time.Equal(c.Time))
	assert.True(t, got.Open.Equal(c.Open))
	assert.True(t, got.Close.Equal(c.Close))

	_, err = decode("not json")
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "candle:BTCUSDT:1m", New(nil, "").key("BTCUSDT", model.Timeframe1m))
	assert.Equal(t, "spot:ETHUSDT:4h", New(nil, "spot").key("ETHUSDT", model.Timeframe4h))
}

// TestStore runs against a live server when CONNECTOR_TEST_REDIS_ADDR is set.
func TestStore(t *testing.T) {
	addr := os.Getenv("CONNECTOR_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CONNECTOR_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	client, err := conn.OpenRedis(ctx, conn.RedisOption{Addr: addr})
	require.NoError(t, err)
	defer client.Close()

	s := New(client, "test-"+time.Now().Format("150405.000"))
	require.NoError(t, s.Init(ctx))
	defer client.Del(ctx, s.key("BTCUSDT", model.Timeframe1m))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]model.Candle, 0, 4)
	for i := range 4 {
		candles = append(candles, model.Candle{
			Time:   base.Add(time.Duration(i) * time.Minute),
			Close:  decimal.NewFromInt(int64(i)),
			Volume: decimal.NewFromInt(1),
		})
	}
	require.NoError(t, s.SaveCandles(ctx, "BTCUSDT", model.Timeframe1m, candles))

	candles[3].Close = decimal.NewFromInt(30)
	require.NoError(t, s.SaveCandles(ctx, "BTCUSDT", model.Timeframe1m, candles[2:]))

	got, err := s.LoadCandles(ctx, "BTCUSDT", model.Timeframe1m, base.Add(time.Minute), time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[2].Close.Equal(decimal.NewFromInt(30)))
}
