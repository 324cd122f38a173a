// Package redis stores closed candles in sorted sets scored by open time.
package redis

import (
	"context"
	"strconv"
	"time"

	"connector/internal/model"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

type member struct {
	Time   int64           `json:"t"`
	Open   decimal.Decimal `json:"o"`
	High   decimal.Decimal `json:"h"`
	Low    decimal.Decimal `json:"l"`
	Close  decimal.Decimal `json:"c"`
	Volume decimal.Decimal `json:"v"`
}

func encode(c model.Candle) (redis.Z, error) {
	ms := c.Time.UnixMilli()
	b, err := sonic.Marshal(member{Time: ms, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume})
	if err != nil {
		return redis.Z{}, err
	}
	return redis.Z{Score: float64(ms), Member: string(b)}, nil
}

func decode(s string) (model.Candle, error) {
	var m member
	if err := sonic.UnmarshalString(s, &m); err != nil {
		return model.Candle{}, err
	}
	return model.Candle{
		Time:   time.UnixMilli(m.Time).UTC(),
		Open:   m.Open,
		High:   m.High,
		Low:    m.Low,
		Close:  m.Close,
		Volume: m.Volume,
	}, nil
}

// Store keeps one sorted set per symbol and timeframe. Redis holds one member
// per open time; a save replaces the member at that score.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// New uses prefix for every key, "candle" when empty.
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "candle"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(symbol string, tf model.Timeframe) string {
	return s.prefix + ":" + symbol + ":" + string(tf)
}

func (s *Store) Init(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "ping redis")
	}
	return nil
}

// SaveCandles replaces the members at the candles' open times in one transaction.
func (s *Store) SaveCandles(ctx context.Context, symbol string, tf model.Timeframe, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	key := s.key(symbol, tf)
	members := make([]redis.Z, 0, len(candles))
	for _, c := range model.NormalizeCandles(candles) {
		z, err := encode(c)
		if err != nil {
			return errors.Wrap(err, "encode candle")
		}
		members = append(members, z)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, z := range members {
			score := strconv.FormatFloat(z.Score, 'f', 0, 64)
			pipe.ZRemRangeByScore(ctx, key, score, score)
		}
		pipe.ZAdd(ctx, key, members...)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "save candles").With("key", key).With("count", len(members))
	}
	return nil
}

// LoadCandles returns candles with open time in [start, end] ascending. Zero
// bounds are open.
func (s *Store) LoadCandles(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) ([]model.Candle, error) {
	by := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if !start.IsZero() {
		by.Min = strconv.FormatInt(start.UnixMilli(), 10)
	}
	if !end.IsZero() {
		by.Max = strconv.FormatInt(end.UnixMilli(), 10)
	}

	key := s.key(symbol, tf)
	values, err := s.client.ZRangeByScore(ctx, key, by).Result()
	if err != nil {
		return nil, errors.Wrap(err, "range candles").With("key", key)
	}

	result := make([]model.Candle, 0, len(values))
	for _, v := range values {
		c, err := decode(v)
		if err != nil {
			return nil, errors.Wrap(err, "decode candle").With("key", key)
		}
		result = append(result, c)
	}
	return result, nil
}
