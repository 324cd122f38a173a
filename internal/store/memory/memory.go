// Package memory is an in-process candle store.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"connector/internal/model"
)

type key struct {
	symbol string
	tf     model.Timeframe
}

// Store keeps candles per symbol and timeframe, sorted by open time.
type Store struct {
	mu     sync.RWMutex
	series map[key][]model.Candle
	saves  int
}

func New() *Store {
	return &Store{series: make(map[key][]model.Candle)}
}

func (s *Store) Init(context.Context) error {
	return nil
}

// SaveCandles upserts candles by open time.
func (s *Store) SaveCandles(_ context.Context, symbol string, tf model.Timeframe, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{symbol: symbol, tf: tf}
	merged := append(slices.Clone(s.series[k]), candles...)
	s.series[k] = model.NormalizeCandles(merged)
	s.saves++
	return nil
}

// LoadCandles returns candles with open time in [start, end]. Zero bounds are open.
func (s *Store) LoadCandles(_ context.Context, symbol string, tf model.Timeframe, start, end time.Time) ([]model.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candles := s.series[key{symbol: symbol, tf: tf}]
	result := make([]model.Candle, 0, len(candles))
	for _, c := range candles {
		if !start.IsZero() && c.Time.Before(start) {
			continue
		}
		if !end.IsZero() && c.Time.After(end) {
			break
		}
		result = append(result, c)
	}
	return result, nil
}

// Saves counts SaveCandles calls that wrote something.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
