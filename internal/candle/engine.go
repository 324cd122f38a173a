package candle

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"connector/internal/binance"
	"connector/internal/model"
	"connector/internal/model/enum"
	"connector/internal/registry"
	"connector/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	_defaultMaxIterations = 500
	_defaultRetain        = 10000
)

type Option struct {
	Store  Store
	Source Source
	// MaxCandles caps one venue batch.
	MaxCandles int
	// MaxIterations caps venue batches per LoadCandles call.
	MaxIterations int
	// Retain caps the candles kept in memory per series.
	Retain int
	Now    func() time.Time
}

type seriesKey struct {
	symbol string
	tf     model.Timeframe
}

// series is written by one goroutine at a time under mu. Readers load the
// immutable snapshot without locking.
type series struct {
	mu       sync.Mutex
	candles  atomic.Pointer[[]model.Candle]
	unclosed atomic.Pointer[model.Candle]
}

func (s *series) snapshot() []model.Candle {
	if p := s.candles.Load(); p != nil {
		return *p
	}
	return nil
}

// Engine exclusively owns the candle series and the unclosed candle slots.
type Engine struct {
	store  Store
	source Source
	opt    Option

	mu     sync.Mutex
	series map[seriesKey]*series

	dnvMu sync.RWMutex
	dnv   map[string]decimal.Decimal

	handlers *registry.Registry[model.Candle]
	fills    sync.WaitGroup
}

func New(opt Option) (*Engine, error) {
	if opt.Store == nil {
		return nil, exception.ErrCandleNilStore
	}
	if opt.Source == nil {
		return nil, exception.ErrCandleNilSource
	}
	if opt.MaxCandles <= 0 {
		opt.MaxCandles = binance.MaxCandles
	}
	if opt.MaxIterations <= 0 {
		opt.MaxIterations = _defaultMaxIterations
	}
	if opt.Retain <= 0 {
		opt.Retain = _defaultRetain
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Engine{
		store:    opt.Store,
		source:   opt.Source,
		opt:      opt,
		series:   make(map[seriesKey]*series),
		dnv:      make(map[string]decimal.Decimal),
		handlers: registry.New[model.Candle](),
	}, nil
}

func (e *Engine) get(symbol string, tf model.Timeframe) *series {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := seriesKey{symbol: symbol, tf: tf}
	s, ok := e.series[k]
	if !ok {
		s = &series{}
		e.series[k] = s
	}
	return s
}

// window resolves the requested range. end moves to the last closed interval
// and start defaults to MaxCandles intervals before it.
func (e *Engine) window(tf model.Timeframe, start, end time.Time) (time.Time, time.Time) {
	if end.IsZero() {
		end = e.opt.Now()
	}
	end = tf.Truncate(end).Add(-time.Minute)
	end = tf.Truncate(end)

	if start.IsZero() {
		start = end.Add(-time.Duration(e.opt.MaxCandles) * tf.Duration())
	}
	if aligned := tf.Truncate(start); aligned.Before(start) {
		start = aligned.Add(tf.Duration())
	} else {
		start = aligned
	}
	return start, end
}

// LoadCandles returns the contiguous ascending series of [start, end] from
// the store, fetching and persisting whatever the store misses. A zero end
// means now, and the result then becomes the live series of the pair.
// History the venue does not have shortens the result.
func (e *Engine) LoadCandles(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) ([]model.Candle, error) {
	if tf.Duration() <= 0 {
		return nil, errors.Wrapf(exception.ErrUnsupportedTimeframe, "timeframe: %q", tf)
	}
	live := end.IsZero()
	start, end = e.window(tf, start, end)
	if end.Before(start) {
		return nil, nil
	}

	s := e.get(symbol, tf)
	s.mu.Lock()
	defer s.mu.Unlock()

	cached, err := e.store.LoadCandles(ctx, symbol, tf, start, end)
	if err != nil {
		return nil, errors.Wrap(err, "load cached candles").With("symbol", symbol).With("timeframe", tf)
	}
	cached = model.ClipCandles(model.NormalizeCandles(cached), start, end)

	missing := gaps(cached, tf, start, end)
	fetched := make([]model.Candle, 0)
	budget := e.opt.MaxIterations
	for i := len(missing) - 1; i >= 0; i-- {
		if budget <= 0 {
			logs.Warnf("candle backfill iteration cap reached, symbol: %s, timeframe: %s, unfilled gaps: %d", symbol, tf, i+1)
			break
		}
		batch, used, done, err := e.backfill(ctx, symbol, tf, missing[i], budget)
		budget -= used
		if err != nil {
			return nil, err
		}
		fetched = append(fetched, batch...)
		if !done {
			logs.Warnf("candle backfill iteration cap reached, symbol: %s, timeframe: %s, unfilled gaps: %d", symbol, tf, i+1)
			break
		}
	}

	result := model.ClipCandles(model.NormalizeCandles(append(cached, fetched...)), start, end)
	if len(result) != 0 {
		e.setDollarNotional(symbol, result[len(result)-1])
	}
	if live {
		e.publish(s, result)
	}
	logs.Debugf("candles loaded, symbol: %s, timeframe: %s, cached: %d, fetched: %d", symbol, tf, len(cached), len(fetched))
	return slices.Clone(result), nil
}

// backfill walks g backward from its upper bound in venue batches, saving
// each batch, until the venue runs dry or the lower bound is covered. done is
// false only when budget ran out first.
// The lower bound of what is covered only ever decreases.
func (e *Engine) backfill(ctx context.Context, symbol string, tf model.Timeframe, g gap, budget int) (result []model.Candle, used int, done bool, err error) {
	step := tf.Duration()
	hi := g.hi
	for !hi.Before(g.lo) {
		if used >= budget {
			return result, used, false, nil
		}
		used++
		limit := min(int(hi.Sub(g.lo)/step)+1, e.opt.MaxCandles)
		batch, err := e.source.FetchCandles(ctx, symbol, tf, time.Time{}, hi, limit)
		if err != nil {
			return nil, used, false, errors.Wrap(err, "backfill candles").With("symbol", symbol).With("timeframe", tf)
		}
		batch = model.ClipCandles(model.NormalizeCandles(batch), g.lo, hi)
		if len(batch) == 0 {
			break
		}
		if err := e.store.SaveCandles(ctx, symbol, tf, batch); err != nil {
			return nil, used, false, errors.Wrap(err, "save candles").With("symbol", symbol).With("timeframe", tf)
		}
		result = append(slices.Clone(batch), result...)

		earliest := batch[0].Time
		if !earliest.After(g.lo) {
			break
		}
		hi = earliest.Add(-step)
	}
	return result, used, true, nil
}

func (e *Engine) publish(s *series, candles []model.Candle) {
	if len(candles) > e.opt.Retain {
		candles = candles[len(candles)-e.opt.Retain:]
	}
	snapshot := slices.Clone(candles)
	s.candles.Store(&snapshot)
}

// Preload loads the preload window of the pair as its live series.
func (e *Engine) Preload(ctx context.Context, symbol string, tf model.Timeframe) error {
	start := e.opt.Now().Add(-PreloadWindow(tf, e.opt.MaxCandles))
	_, err := e.LoadCandles(ctx, symbol, tf, start, time.Time{})
	return err
}

// HandleKline takes a streamed candle. An open interval only replaces the
// unclosed slot; a closed one is appended to the live series and persisted.
// Intervals skipped since the previous closed candle, e.g. across a
// reconnect, are fetched from the venue in the background.
func (e *Engine) HandleKline(ctx context.Context, symbol string, tf model.Timeframe, c model.Candle, closed bool) error {
	s := e.get(symbol, tf)
	if !closed {
		s.unclosed.Store(&c)
		return nil
	}

	s.mu.Lock()
	candles := s.snapshot()
	if n := len(candles); n != 0 && c.Time.Sub(candles[n-1].Time) > tf.Duration() {
		e.fillGap(ctx, s, symbol, tf, gap{lo: candles[n-1].Time.Add(tf.Duration()), hi: c.Time.Add(-tf.Duration())})
	}
	if n := len(candles); n == 0 || c.Time.After(candles[n-1].Time) {
		next := make([]model.Candle, 0, len(candles)+1)
		next = append(append(next, candles...), c)
		e.publish(s, next)
	} else if candles[n-1].Time.Equal(c.Time) {
		next := slices.Clone(candles)
		next[n-1] = c
		e.publish(s, next)
	}
	if u := s.unclosed.Load(); u != nil && !u.Time.After(c.Time) {
		s.unclosed.Store(nil)
	}
	err := e.store.SaveCandles(ctx, symbol, tf, []model.Candle{c})
	s.mu.Unlock()

	e.setDollarNotional(symbol, c)
	e.handlers.Dispatch(ctx, enum.KlineFeed(string(tf)), symbol, c)
	if err != nil {
		return errors.Wrap(err, "save closed candle").With("symbol", symbol).With("timeframe", tf)
	}
	return nil
}

// fillGap backfills g outside the series lock and merges the result into the
// live series. Candles already received from the stream win.
func (e *Engine) fillGap(ctx context.Context, s *series, symbol string, tf model.Timeframe, g gap) {
	logs.Infof("candle gap detected, symbol: %s, timeframe: %s, from: %s, to: %s", symbol, tf, g.lo, g.hi)
	e.fills.Add(1)
	go func() {
		defer e.fills.Done()
		batch, _, _, err := e.backfill(ctx, symbol, tf, g, e.opt.MaxIterations)
		if err != nil {
			logs.Errorf("fill candle gap, symbol: %s, timeframe: %s, err: %+v", symbol, tf, err)
			return
		}
		if len(batch) == 0 {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		e.publish(s, model.NormalizeCandles(append(batch, s.snapshot()...)))
	}()
}

// Candles returns the live closed series of the pair.
func (e *Engine) Candles(symbol string, tf model.Timeframe) []model.Candle {
	return slices.Clone(e.get(symbol, tf).snapshot())
}

// Current returns the live series with the unclosed candle appended.
func (e *Engine) Current(symbol string, tf model.Timeframe) []model.Candle {
	s := e.get(symbol, tf)
	candles := slices.Clone(s.snapshot())
	if u := s.unclosed.Load(); u != nil {
		if n := len(candles); n == 0 || u.Time.After(candles[n-1].Time) {
			candles = append(candles, *u)
		}
	}
	return candles
}

// Unclosed returns the in-progress candle of the pair.
func (e *Engine) Unclosed(symbol string, tf model.Timeframe) (model.Candle, bool) {
	u := e.get(symbol, tf).unclosed.Load()
	if u == nil {
		return model.Candle{}, false
	}
	return *u, true
}

// Forget drops the in-memory series of symbol. Persisted candles stay.
func (e *Engine) Forget(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k := range e.series {
		if k.symbol == symbol {
			delete(e.series, k)
		}
	}
}

// DollarNotional is close times volume of the latest candle seen for symbol.
func (e *Engine) DollarNotional(symbol string) decimal.Decimal {
	e.dnvMu.RLock()
	defer e.dnvMu.RUnlock()
	return e.dnv[symbol]
}

func (e *Engine) setDollarNotional(symbol string, c model.Candle) {
	e.dnvMu.Lock()
	e.dnv[symbol] = c.Notional()
	e.dnvMu.Unlock()
}

// OnCandle registers handler for closed candles of symbol on tf.
func (e *Engine) OnCandle(subscriber, symbol string, tf model.Timeframe, handler registry.Handler[model.Candle]) {
	e.handlers.Add(subscriber, enum.KlineFeed(string(tf)), symbol, handler)
}

// Unsubscribe removes every candle handler of subscriber.
func (e *Engine) Unsubscribe(subscriber string) {
	e.handlers.Remove(subscriber)
}

// Wait blocks until in-flight candle handlers and gap fills returned.
func (e *Engine) Wait() {
	e.fills.Wait()
	e.handlers.Wait()
}
