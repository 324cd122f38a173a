package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"connector/internal/model"
	"connector/internal/model/enum"
	"connector/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, enum.MarketFutures, cfg.Market)
	assert.Equal(t, 15*time.Second, cfg.Rest.Timeout)
	assert.Equal(t, uint(3), cfg.Rest.MaxTries)
	assert.Equal(t, []model.Timeframe{model.Timeframe1m}, cfg.Timeframes)
	assert.Equal(t, []enum.Feed{enum.FeedTrade, enum.FeedDepth, enum.FeedKline1m}, cfg.Feeds)
	assert.Equal(t, 1000, cfg.MaxCandles)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Empty(t, cfg.Symbols)
	assert.False(t, cfg.Private)
	assert.Equal(t, time.Minute, cfg.MetricsInterval)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
venue:
  market: spot
  api_key: key
  secret: secret
  rest: http://localhost:8080/api/v3
  timeout: 5s
stream:
  symbols: [btcusdt, " ethusdt", BTCUSDT]
  feeds: [aggTrade]
  private: true
  keep_alive: 10m
candle:
  timeframes: [1h, 4h]
  max_candles: 5000
store:
  driver: pebble
  pebble:
    dir: /tmp/candles
profiling:
  address: http://localhost:4040
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, enum.MarketSpot, cfg.Market)
	assert.Equal(t, "key", cfg.Rest.APIKey)
	assert.Equal(t, 5*time.Second, cfg.Rest.Timeout)
	assert.Equal(t, "http://localhost:8080/api/v3", cfg.Endpoints.REST)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Symbols)
	assert.Equal(t, []enum.Feed{enum.FeedAggTrade, "kline_1h", "kline_4h"}, cfg.Feeds)
	assert.True(t, cfg.Private)
	assert.Equal(t, 10*time.Minute, cfg.KeepAlive)
	assert.Equal(t, 1000, cfg.MaxCandles, "batches are capped at the venue maximum")
	assert.Equal(t, StorePebble, cfg.Store.Driver)
	assert.Equal(t, "/tmp/candles", cfg.Store.PebbleDir)
	assert.Equal(t, "http://localhost:4040", cfg.Profiling.Address)
	assert.Equal(t, "connector", cfg.Profiling.AppName)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONNECTOR_VENUE_MARKET", "spot")
	t.Setenv("CONNECTOR_STREAM_SYMBOLS", "solusdt,xrpusdt")
	t.Setenv("CONNECTOR_STORE_DRIVER", "redis")
	t.Setenv("CONNECTOR_STORE_REDIS_ADDR", "cache:6379")

	cfg, err := Load(writeConfig(t, "venue:\n  market: futures\n"))
	require.NoError(t, err)
	assert.Equal(t, enum.MarketSpot, cfg.Market)
	assert.Equal(t, []string{"SOLUSDT", "XRPUSDT"}, cfg.Symbols)
	assert.Equal(t, StoreRedis, cfg.Store.Driver)
	assert.Equal(t, "cache:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, "candle", cfg.Store.RedisPrefix)
}

func TestLoadInvalid(t *testing.T) {
	testCases := []struct {
		desc    string
		content string
		want    error
	}{
		{desc: "market", content: "venue:\n  market: options\n", want: exception.ErrArgumentUnsupported},
		{desc: "private without key", content: "stream:\n  private: true\n", want: exception.ErrInvalidArgument},
		{desc: "timeframe", content: "candle:\n  timeframes: [1w]\n", want: exception.ErrUnsupportedTimeframe},
		{desc: "store driver", content: "store:\n  driver: mongo\n", want: exception.ErrArgumentUnsupported},
		{desc: "postgres dsn", content: "store:\n  driver: postgres\n", want: exception.ErrInvalidArgument},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			require.ErrorIs(t, err, tc.want)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
