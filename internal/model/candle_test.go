package model

import (
	"testing"
	"time"

	"connector/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeframe(t *testing.T) {
	testCases := []struct {
		desc     string
		tf       string
		duration time.Duration
		valid    bool
	}{
		{desc: "minute", tf: "1m", duration: time.Minute, valid: true},
		{desc: "quarter", tf: "15m", duration: 15 * time.Minute, valid: true},
		{desc: "four hours", tf: "4h", duration: 4 * time.Hour, valid: true},
		{desc: "day", tf: "1d", duration: 24 * time.Hour, valid: true},
		{desc: "week unsupported", tf: "1w"},
		{desc: "empty", tf: ""},
		{desc: "no count", tf: "m"},
		{desc: "zero", tf: "0m"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			tf, err := ParseTimeframe(tc.tf)
			if !tc.valid {
				require.ErrorIs(t, err, exception.ErrUnsupportedTimeframe)
				return
			}
			require.NoError(t, err)
			if got := tf.Duration(); got != tc.duration {
				t.Fatalf("duration mismatch: got %v want %v", got, tc.duration)
			}
		})
	}
}

func TestTimeframeTruncate(t *testing.T) {
	at := time.Date(2024, 3, 5, 13, 47, 12, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 5, 13, 45, 0, 0, time.UTC), Timeframe15m.Truncate(at))
	assert.Equal(t, time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC), Timeframe4h.Truncate(at))
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), Timeframe1d.Truncate(at))
	assert.Equal(t, 240, Timeframe4h.Minutes())
}

func TestNormalizeCandles(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := func(minute int, close int64) Candle {
		return Candle{Time: base.Add(time.Duration(minute) * time.Minute), Close: decimal.NewFromInt(close)}
	}

	got := NormalizeCandles([]Candle{c(2, 1), c(0, 1), c(1, 1), c(2, 9)})
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].Time.After(got[i-1].Time))
	}
	assert.True(t, got[2].Close.Equal(decimal.NewFromInt(9)))

	clipped := ClipCandles(got, base.Add(time.Minute), base.Add(time.Minute))
	require.Len(t, clipped, 1)
	assert.Equal(t, base.Add(time.Minute), clipped[0].Time)
}
