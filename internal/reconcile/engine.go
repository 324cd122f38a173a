// Package reconcile derives order and position state from REST results and
// the private user data stream.
package reconcile

import (
	"context"
	stderrors "errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"connector/internal/binance"
	"connector/internal/catalog"
	"connector/internal/model"
	"connector/internal/model/enum"
	"connector/internal/registry"
	"connector/pkg/exception"
	"connector/pkg/rest"

	"github.com/yanun0323/logs"
)

const _defaultLoadLimit = 100

type Option struct {
	Client  *rest.Client
	Catalog *catalog.Catalog
	// LoadLimit is the page size of order history loads.
	LoadLimit int
	// Concurrency bounds LoadAllOrders.
	Concurrency int
}

// book is the state of one symbol. Its mutex serializes the stream and REST
// result paths.
type book struct {
	mu       sync.Mutex
	orders   map[int64]model.Order
	position *model.Position
}

// Engine exclusively owns the order and position maps. Readers get copies.
type Engine struct {
	venue   binance.Venue
	client  *rest.Client
	catalog *catalog.Catalog
	opt     Option

	halted atomic.Bool

	mu    sync.Mutex
	books map[string]*book

	orderHandlers    *registry.Registry[model.Order]
	positionHandlers *registry.Registry[*model.Position]

	seenMu   sync.RWMutex
	lastSeen map[string]time.Time

	expiredMu sync.RWMutex
	onExpired func()
}

func New(opt Option) *Engine {
	if opt.LoadLimit <= 0 {
		opt.LoadLimit = _defaultLoadLimit
	}
	if opt.Concurrency <= 0 {
		opt.Concurrency = 4
	}
	return &Engine{
		venue:            opt.Catalog.Venue(),
		client:           opt.Client,
		catalog:          opt.Catalog,
		opt:              opt,
		books:            make(map[string]*book),
		orderHandlers:    registry.New[model.Order](),
		positionHandlers: registry.NewCloning((*model.Position).Clone),
		lastSeen:         make(map[string]time.Time),
	}
}

func (e *Engine) book(symbol string) *book {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.books[symbol]
	if !ok {
		b = &book{orders: make(map[int64]model.Order)}
		e.books[symbol] = b
	}
	return b
}

// lookup returns the book of symbol without creating one.
func (e *Engine) lookup(symbol string) (*book, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.books[symbol]
	return b, ok
}

// Halted reports whether a halt-worthy venue error stopped trading.
func (e *Engine) Halted() bool {
	return e.halted.Load()
}

// ResetHalt allows mutating requests again.
func (e *Engine) ResetHalt() {
	if e.halted.Swap(false) {
		logs.Warnf("reconcile: trading halt reset")
	}
}

// observe halts trading when err carries a halt-worthy venue code.
func (e *Engine) observe(err error) error {
	var apiErr *exception.APIError
	if stderrors.As(err, &apiErr) && apiErr.Halt() && !e.halted.Swap(true) {
		logs.Errorf("reconcile: trading halted by venue, code: %d, msg: %s", apiErr.Code, apiErr.Message)
	}
	return err
}

// OnOrder registers handler for order updates of symbol, or of every symbol
// with registry.AllSymbols.
func (e *Engine) OnOrder(subscriber, symbol string, handler registry.Handler[model.Order]) {
	e.orderHandlers.Add(subscriber, enum.FeedOrder, symbol, handler)
}

// OnPosition registers handler for position updates. Every handler receives
// its own copy.
func (e *Engine) OnPosition(subscriber, symbol string, handler registry.Handler[*model.Position]) {
	e.positionHandlers.Add(subscriber, enum.FeedPosition, symbol, handler)
}

// Unsubscribe removes every handler of subscriber.
func (e *Engine) Unsubscribe(subscriber string) {
	e.orderHandlers.Remove(subscriber)
	e.positionHandlers.Remove(subscriber)
}

// OnListenKeyExpired sets the hook run when the user data stream expires.
func (e *Engine) OnListenKeyExpired(fn func()) {
	e.expiredMu.Lock()
	e.onExpired = fn
	e.expiredMu.Unlock()
}

// Wait blocks until in-flight handlers returned.
func (e *Engine) Wait() {
	e.orderHandlers.Wait()
	e.positionHandlers.Wait()
}

// Order returns the latest state of one order.
func (e *Engine) Order(symbol string, id int64) (model.Order, bool) {
	b, ok := e.lookup(symbol)
	if !ok {
		return model.Order{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	return o, ok
}

// Orders returns the orders of symbol ordered by id.
func (e *Engine) Orders(symbol string) []model.Order {
	b, ok := e.lookup(symbol)
	if !ok {
		return []model.Order{}
	}
	b.mu.Lock()
	orders := make([]model.Order, 0, len(b.orders))
	for _, o := range b.orders {
		orders = append(orders, o)
	}
	b.mu.Unlock()

	slices.SortFunc(orders, func(a, b model.Order) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return orders
}

// Position returns a copy of the live position of symbol.
func (e *Engine) Position(symbol string) (*model.Position, bool) {
	b, ok := e.lookup(symbol)
	if !ok {
		return nil, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.position == nil {
		return nil, false
	}
	return b.position.Clone(), true
}

// Positions returns copies of every live position.
func (e *Engine) Positions() []*model.Position {
	e.mu.Lock()
	books := make([]*book, 0, len(e.books))
	for _, b := range e.books {
		books = append(books, b)
	}
	e.mu.Unlock()

	positions := make([]*model.Position, 0, len(books))
	for _, b := range books {
		b.mu.Lock()
		if b.position != nil {
			positions = append(positions, b.position.Clone())
		}
		b.mu.Unlock()
	}
	slices.SortFunc(positions, func(a, b *model.Position) int {
		switch {
		case a.Symbol < b.Symbol:
			return -1
		case a.Symbol > b.Symbol:
			return 1
		}
		return 0
	})
	return positions
}

// LastSeen returns when an event of the given type was last received.
func (e *Engine) LastSeen(eventType string) time.Time {
	e.seenMu.RLock()
	defer e.seenMu.RUnlock()
	return e.lastSeen[eventType]
}

func (e *Engine) seen(eventType string) {
	e.seenMu.Lock()
	e.lastSeen[eventType] = time.Now()
	e.seenMu.Unlock()
}

// applyOrder merges o into the order map and notifies order handlers.
func (e *Engine) applyOrder(ctx context.Context, o model.Order) model.Order {
	b := e.book(o.Symbol)
	b.mu.Lock()
	merged := b.apply(o)
	b.mu.Unlock()

	e.orderHandlers.Dispatch(ctx, enum.FeedOrder, merged.Symbol, merged)
	return merged
}

func (b *book) apply(o model.Order) model.Order {
	if prev, ok := b.orders[o.ID]; ok {
		o = prev.Merge(o)
	}
	b.orders[o.ID] = o
	return o
}

// livePosition returns the position of b, creating it when missing.
func (b *book) livePosition(symbol string) *model.Position {
	if b.position == nil {
		b.position = model.NewPosition(symbol)
	}
	return b.position
}

// settle evicts a closed position and returns the copy to publish.
func (b *book) settle() *model.Position {
	snapshot := b.position.Clone()
	if b.position.Closed {
		logs.Infof("reconcile: position closed, symbol: %s, close price: %s, duration: %s",
			snapshot.Symbol, snapshot.ClosePrice(), snapshot.Duration())
		b.position = nil
	}
	return snapshot
}
