// Package stream wires websocket sessions to the catalog, the candle engine
// and the reconciliation engine.
package stream

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"connector/internal/binance"
	"connector/internal/candle"
	"connector/internal/catalog"
	"connector/internal/model"
	"connector/internal/model/enum"
	"connector/internal/obs"
	"connector/internal/registry"
	"connector/pkg/exception"
	"connector/pkg/websocket"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/sync/errgroup"
)

const (
	_defaultSymbolsPerFrame = 10
	_defaultConcurrency     = 4
	_defaultReadLimit       = 16 << 20
)

type PublicOption struct {
	Catalog *catalog.Catalog
	Candles *candle.Engine
	// Connect overrides the default gorilla dialer.
	Connect         func(ctx context.Context) (websocket.Conn, error)
	IdleTimeout     time.Duration
	MessageInterval time.Duration
	// SymbolsPerFrame caps the symbols of one subscribe frame.
	SymbolsPerFrame int
	// Concurrency caps REST preloads in flight.
	Concurrency int
	Metrics     *obs.Metrics
}

// Public keeps the market data session of one venue.
type Public struct {
	opt     PublicOption
	session *websocket.Session
	trades  *registry.Registry[model.Trade]

	mu       sync.RWMutex
	lastSeen map[string]time.Time
}

func NewPublic(opt PublicOption) (*Public, error) {
	if opt.Catalog == nil || opt.Candles == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "public stream needs a catalog and a candle engine")
	}
	if opt.SymbolsPerFrame <= 0 {
		opt.SymbolsPerFrame = _defaultSymbolsPerFrame
	}
	if opt.Concurrency <= 0 {
		opt.Concurrency = _defaultConcurrency
	}
	if opt.Connect == nil {
		opt.Connect = websocket.Dialer{
			URL:       opt.Catalog.Venue().WebsocketURL(),
			ReadLimit: _defaultReadLimit,
		}.Dial
	}

	p := &Public{
		opt:      opt,
		trades:   registry.New[model.Trade](),
		lastSeen: make(map[string]time.Time),
	}
	session, err := websocket.NewSession(websocket.Option{
		Name: "public " + string(opt.Catalog.Venue().Market()),
		Hooks: websocket.Hooks{
			Connect:   opt.Connect,
			OnMessage: p.HandleMessage,
		},
		IdleTimeout:     opt.IdleTimeout,
		MessageInterval: opt.MessageInterval,
	})
	if err != nil {
		return nil, err
	}
	p.session = session
	return p, nil
}

// Run keeps the session alive until ctx is done.
func (p *Public) Run(ctx context.Context) error {
	return p.session.Run(ctx)
}

func (p *Public) Session() *websocket.Session {
	return p.session
}

// Subscribe preloads books, trades and candles of the symbols, then
// subscribes their feeds a page of symbols per frame.
func (p *Public) Subscribe(ctx context.Context, symbols []string, feeds []enum.Feed) error {
	for _, s := range symbols {
		if _, err := p.opt.Catalog.SymbolInfo(s); err != nil {
			return err
		}
	}
	if err := p.preload(ctx, symbols, feeds); err != nil {
		return err
	}

	for _, page := range websocket.Paginate(symbols, p.opt.SymbolsPerFrame) {
		if err := p.session.Subscribe(ctx, streamNames(page, feeds)...); err != nil {
			return errors.Wrap(err, "subscribe").With("symbols", page)
		}
	}
	logs.Infof("public subscribed, symbols: %v, feeds: %v", symbols, feeds)
	return nil
}

func (p *Public) preload(ctx context.Context, symbols []string, feeds []enum.Feed) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(p.opt.Concurrency)
	for _, symbol := range symbols {
		for _, feed := range feeds {
			switch {
			case feed == enum.FeedDepth:
				eg.Go(func() error { return p.opt.Catalog.LoadOrderBook(ctx, symbol) })
			case feed == enum.FeedTrade || feed == enum.FeedAggTrade:
				eg.Go(func() error { return p.opt.Catalog.LoadTrades(ctx, symbol) })
			default:
				tf, ok := timeframe(feed)
				if !ok {
					continue
				}
				eg.Go(func() error { return p.opt.Candles.Preload(ctx, symbol, tf) })
			}
		}
	}
	if err := eg.Wait(); err != nil {
		return errors.Wrap(err, "preload")
	}
	return nil
}

// Unsubscribe drops the feeds of the symbols. A symbol left with no stream
// loses its books, trades and in-memory candles.
func (p *Public) Unsubscribe(ctx context.Context, symbols []string, feeds []enum.Feed) error {
	for _, page := range websocket.Paginate(symbols, p.opt.SymbolsPerFrame) {
		if err := p.session.Unsubscribe(ctx, streamNames(page, feeds)...); err != nil {
			return errors.Wrap(err, "unsubscribe").With("symbols", page)
		}
	}

	remaining := p.session.Streams()
	for _, symbol := range symbols {
		prefix := strings.ToLower(symbol) + "@"
		if slices.ContainsFunc(remaining, func(name string) bool { return strings.HasPrefix(name, prefix) }) {
			continue
		}
		p.opt.Catalog.Forget(symbol)
		p.opt.Candles.Forget(symbol)
		p.mu.Lock()
		for name := range p.lastSeen {
			if strings.HasPrefix(name, prefix) {
				delete(p.lastSeen, name)
			}
		}
		p.mu.Unlock()
	}
	return nil
}

// OnTrade registers handler for streamed trades of symbol.
func (p *Public) OnTrade(subscriber, symbol string, handler registry.Handler[model.Trade]) {
	p.trades.Add(subscriber, enum.FeedTrade, symbol, handler)
}

// RemoveSubscriber drops every trade and candle handler of subscriber.
func (p *Public) RemoveSubscriber(subscriber string) {
	p.trades.Remove(subscriber)
	p.opt.Candles.Unsubscribe(subscriber)
}

// Wait blocks until in-flight trade handlers returned.
func (p *Public) Wait() {
	p.trades.Wait()
}

// LastSeen returns the arrival time of the latest message of a stream.
func (p *Public) LastSeen(stream string) time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSeen[stream]
}

func (p *Public) seen(symbol string, feed enum.Feed) {
	p.mu.Lock()
	p.lastSeen[binance.StreamName(symbol, feed)] = time.Now()
	p.mu.Unlock()
}

// HandleMessage routes one market data message. It fits websocket.Hooks.OnMessage.
func (p *Public) HandleMessage(ctx context.Context, msg []byte) error {
	if err := p.handle(ctx, msg); err != nil {
		p.opt.Metrics.IncDropped()
		return err
	}
	return nil
}

func (p *Public) handle(ctx context.Context, msg []byte) error {
	ev, err := binance.Peek(msg)
	if err != nil {
		return err
	}
	if ev.Type != "" {
		p.opt.Metrics.ObserveEvent(ev.Type, eventTime(ev.Time))
	}

	switch ev.Type {
	case binance.EventKline:
		e, err := binance.Unmarshal[binance.KlineEvent](msg)
		if err != nil {
			return err
		}
		tf, err := model.ParseTimeframe(e.Kline.Interval)
		if err != nil {
			return err
		}
		p.seen(e.Symbol, enum.KlineFeed(string(tf)))
		c, closed := e.Candle()
		p.opt.Catalog.SetMarkPrice(e.Symbol, c.Close)
		return p.opt.Candles.HandleKline(ctx, e.Symbol, tf, c, closed)
	case binance.EventTrade, binance.EventAggTrade:
		e, err := binance.Unmarshal[binance.TradeEvent](msg)
		if err != nil {
			return err
		}
		p.seen(e.Symbol, enum.Feed(ev.Type))
		t := e.Trade()
		p.opt.Catalog.AddTrade(t)
		p.trades.Dispatch(ctx, enum.FeedTrade, t.Symbol, t)
	case binance.EventDepthUpdate:
		e, err := binance.Unmarshal[binance.DepthEvent](msg)
		if err != nil {
			return err
		}
		p.seen(e.Symbol, enum.FeedDepth)
		bids, asks := e.Levels()
		if !p.opt.Catalog.Book(e.Symbol).Merge(e.FinalUpdateID, bids, asks) {
			logs.Debugf("stale depth update dropped, symbol: %s, final update id: %d", e.Symbol, e.FinalUpdateID)
		}
	case binance.EventMarkPriceUpdate:
		e, err := binance.Unmarshal[binance.MarkPriceEvent](msg)
		if err != nil {
			return err
		}
		p.seen(e.Symbol, enum.FeedMarkPrice)
		p.opt.Catalog.SetMarkPrice(e.Symbol, e.MarkPrice)
	case "":
	default:
		p.opt.Metrics.IncSkipped()
		logs.Debugf("public stream: skip event %s", ev.Type)
	}
	return nil
}

func streamNames(symbols []string, feeds []enum.Feed) []string {
	names := make([]string, 0, len(symbols)*len(feeds))
	for _, s := range symbols {
		for _, f := range feeds {
			names = append(names, binance.StreamName(s, f))
		}
	}
	return names
}

func timeframe(feed enum.Feed) (model.Timeframe, bool) {
	s, ok := strings.CutPrefix(string(feed), "kline_")
	if !ok {
		return "", false
	}
	tf, err := model.ParseTimeframe(s)
	return tf, err == nil
}

func eventTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
