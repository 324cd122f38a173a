// Package pebble stores closed candles in an embedded pebble database.
//
// Keys are candle/{symbol}/{timeframe}/{open time ms, 16 hex digits} so one
// pair is a contiguous, time ordered key range.
package pebble

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"connector/internal/model"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/pebble"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

type record struct {
	Open   decimal.Decimal `json:"o"`
	High   decimal.Decimal `json:"h"`
	Low    decimal.Decimal `json:"l"`
	Close  decimal.Decimal `json:"c"`
	Volume decimal.Decimal `json:"v"`
}

type Store struct {
	db *pebble.DB
}

// Open opens or creates the database in dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "open pebble").With("dir", dir)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Init(context.Context) error {
	return nil
}

// SaveCandles writes candles in one synced batch. Existing keys are overwritten.
func (s *Store) SaveCandles(_ context.Context, symbol string, tf model.Timeframe, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	b := s.db.NewBatch()
	defer b.Close()

	for _, c := range candles {
		value, err := sonic.Marshal(record{Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume})
		if err != nil {
			return errors.Wrap(err, "encode candle")
		}
		if err := b.Set(key(symbol, tf, c.Time), value, nil); err != nil {
			return errors.Wrap(err, "batch set")
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return errors.Wrap(err, "commit candles").With("symbol", symbol).With("timeframe", tf)
	}
	return nil
}

// LoadCandles returns candles with open time in [start, end] ascending. Zero
// bounds are open.
func (s *Store) LoadCandles(_ context.Context, symbol string, tf model.Timeframe, start, end time.Time) ([]model.Candle, error) {
	p := prefix(symbol, tf)
	opts := &pebble.IterOptions{
		LowerBound: []byte(p),
		UpperBound: []byte(p + "~"),
	}
	if !start.IsZero() {
		opts.LowerBound = key(symbol, tf, start)
	}
	if !end.IsZero() {
		opts.UpperBound = key(symbol, tf, end.Add(time.Millisecond))
	}

	iter, err := s.db.NewIter(opts)
	if err != nil {
		return nil, errors.Wrap(err, "new iter")
	}
	defer iter.Close()

	var result []model.Candle
	for iter.First(); iter.Valid(); iter.Next() {
		ms, err := strconv.ParseInt(string(iter.Key()[len(p):]), 16, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parse key %q", iter.Key())
		}
		var r record
		if err := sonic.Unmarshal(iter.Value(), &r); err != nil {
			return nil, errors.Wrapf(err, "decode candle %q", iter.Key())
		}
		result = append(result, model.Candle{
			Time:   time.UnixMilli(ms).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "iterate candles")
	}
	return result, nil
}

func prefix(symbol string, tf model.Timeframe) string {
	return "candle/" + symbol + "/" + string(tf) + "/"
}

func key(symbol string, tf model.Timeframe, t time.Time) []byte {
	return fmt.Appendf(nil, "%s%016x", prefix(symbol, tf), t.UnixMilli())
}
