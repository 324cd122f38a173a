// Package catalog holds the venue metadata and public market state shared by
// the engines: symbol constraints, mark prices, order books and recent trades.
package catalog

import (
	"context"
	"sync"
	"sync/atomic"

	"connector/internal/binance"
	"connector/internal/model"
	"connector/pkg/exception"
	"connector/pkg/rest"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	DepthLimit  = 1000
	TradesLimit = 500
)

// Catalog is built once per venue and passed to the components using it.
type Catalog struct {
	venue  binance.Venue
	client *rest.Client

	symbols atomic.Pointer[map[string]model.SymbolInfo]

	mu         sync.RWMutex
	markPrices map[string]decimal.Decimal
	books      map[string]*OrderBook
	trades     map[string]*tradeRing
}

func New(v binance.Venue, c *rest.Client) *Catalog {
	cat := &Catalog{
		venue:      v,
		client:     c,
		markPrices: make(map[string]decimal.Decimal),
		books:      make(map[string]*OrderBook),
		trades:     make(map[string]*tradeRing),
	}
	empty := map[string]model.SymbolInfo{}
	cat.symbols.Store(&empty)
	return cat
}

// Venue returns the venue the catalog was loaded from.
func (c *Catalog) Venue() binance.Venue {
	return c.venue
}

// Init loads exchange info, sets the throttler limits from it and loads mark
// prices. Calling it again refreshes everything wholesale.
func (c *Catalog) Init(ctx context.Context) error {
	info, err := c.venue.LoadExchangeInfo(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "init catalog")
	}
	c.client.Throttler().Init(info.WeightLimit, info.RawRequestLimit)
	c.ReplaceSymbols(info.Symbols)

	prices, err := c.venue.LoadMarkPrices(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "init catalog")
	}
	c.mu.Lock()
	c.markPrices = prices
	c.mu.Unlock()

	logs.Infof("catalog loaded, market: %s, symbols: %d, mark prices: %d", c.venue.Market(), len(info.Symbols), len(prices))
	return nil
}

// ReplaceSymbols swaps the symbol set. Entries are never mutated in place.
func (c *Catalog) ReplaceSymbols(symbols map[string]model.SymbolInfo) {
	cp := make(map[string]model.SymbolInfo, len(symbols))
	for k, v := range symbols {
		cp[k] = v
	}
	c.symbols.Store(&cp)
}

// SymbolInfo returns the constraints of symbol.
func (c *Catalog) SymbolInfo(symbol string) (model.SymbolInfo, error) {
	info, ok := (*c.symbols.Load())[symbol]
	if !ok {
		return model.SymbolInfo{}, errors.Wrapf(exception.ErrUnknownSymbol, "symbol: %s", symbol)
	}
	return info, nil
}

// Symbols lists every loaded symbol.
func (c *Catalog) Symbols() []string {
	symbols := *c.symbols.Load()
	result := make([]string, 0, len(symbols))
	for s := range symbols {
		result = append(result, s)
	}
	return result
}

func (c *Catalog) MarkPrice(symbol string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	price, ok := c.markPrices[symbol]
	return price, ok
}

func (c *Catalog) SetMarkPrice(symbol string, price decimal.Decimal) {
	if !price.IsPositive() {
		return
	}
	c.mu.Lock()
	c.markPrices[symbol] = price
	c.mu.Unlock()
}

// AssetQuantity converts a quote amount into a lot-rounded base quantity.
// A zero price uses the mark price.
func (c *Catalog) AssetQuantity(symbol string, quoteAmount, price decimal.Decimal) (decimal.Decimal, error) {
	info, err := c.SymbolInfo(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if price.IsZero() {
		price, _ = c.MarkPrice(symbol)
	}
	return info.AssetQuantity(quoteAmount, price), nil
}

// Book returns the order book of symbol, creating it on first use.
func (c *Catalog) Book(symbol string) *OrderBook {
	c.mu.RLock()
	book, ok := c.books[symbol]
	c.mu.RUnlock()
	if ok {
		return book
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if book, ok = c.books[symbol]; !ok {
		book = NewOrderBook()
		c.books[symbol] = book
	}
	return book
}

// LoadOrderBook replaces the book of symbol with a REST snapshot.
func (c *Catalog) LoadOrderBook(ctx context.Context, symbol string) error {
	depth, err := binance.LoadDepth(ctx, c.venue, c.client, symbol, DepthLimit)
	if err != nil {
		return err
	}
	c.Book(symbol).Replace(depth.LastUpdateID, depth.Bids, depth.Asks)
	return nil
}

// LoadTrades seeds the recent trades of symbol over REST.
func (c *Catalog) LoadTrades(ctx context.Context, symbol string) error {
	trades, err := binance.LoadTrades(ctx, c.venue, c.client, symbol, TradesLimit)
	if err != nil {
		return err
	}
	ring := c.ring(symbol)
	for _, t := range trades {
		ring.add(t)
	}
	return nil
}

// AddTrade appends a streamed trade, dropping the oldest beyond TradesLimit.
func (c *Catalog) AddTrade(t model.Trade) {
	c.ring(t.Symbol).add(t)
}

// Trades returns recent trades of symbol, oldest first.
func (c *Catalog) Trades(symbol string) []model.Trade {
	c.mu.RLock()
	ring, ok := c.trades[symbol]
	c.mu.RUnlock()
	if !ok {
		return nil
	}
	return ring.list()
}

// Forget drops the public state of symbol after it is unsubscribed.
func (c *Catalog) Forget(symbol string) {
	c.mu.Lock()
	delete(c.books, symbol)
	delete(c.trades, symbol)
	c.mu.Unlock()
}

func (c *Catalog) ring(symbol string) *tradeRing {
	c.mu.Lock()
	defer c.mu.Unlock()
	ring, ok := c.trades[symbol]
	if !ok {
		ring = newTradeRing(TradesLimit)
		c.trades[symbol] = ring
	}
	return ring
}

type tradeRing struct {
	mu     sync.Mutex
	trades []model.Trade
	next   int
	full   bool
}

func newTradeRing(size int) *tradeRing {
	return &tradeRing{trades: make([]model.Trade, size)}
}

func (r *tradeRing) add(t model.Trade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades[r.next] = t
	r.next = (r.next + 1) % len(r.trades)
	if r.next == 0 {
		r.full = true
	}
}

func (r *tradeRing) list() []model.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]model.Trade(nil), r.trades[:r.next]...)
	}
	result := make([]model.Trade, 0, len(r.trades))
	result = append(result, r.trades[r.next:]...)
	return append(result, r.trades[:r.next]...)
}
