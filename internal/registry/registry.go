// Package registry dispatches events to handlers registered by feed and
// symbol.
package registry

import (
	"context"
	"sync"

	"connector/internal/model/enum"

	"github.com/yanun0323/logs"
)

// AllSymbols scopes a registration to every symbol of its feed.
const AllSymbols = ""

// Handler receives one event. It runs on its own goroutine.
type Handler[E any] func(ctx context.Context, event E)

type key struct {
	feed   enum.Feed
	symbol string
}

type registration[E any] struct {
	subscriber string
	handler    Handler[E]
}

// Registry maps (feed, symbol) to handlers.
type Registry[E any] struct {
	mu      sync.RWMutex
	entries map[key][]registration[E]
	clone   func(E) E
	wg      sync.WaitGroup
}

// New returns a registry that hands the same event value to every handler.
// Events of reference type must be treated as read-only by handlers.
func New[E any]() *Registry[E] {
	return &Registry[E]{entries: make(map[key][]registration[E])}
}

// NewCloning returns a registry that hands every handler its own clone of the
// event, so handlers may mutate what they receive.
func NewCloning[E any](clone func(E) E) *Registry[E] {
	r := New[E]()
	r.clone = clone
	return r
}

// Add registers handler for feed events of symbol, or of every symbol when
// symbol is AllSymbols. A subscriber may hold several registrations.
func (r *Registry[E]) Add(subscriber string, feed enum.Feed, symbol string, handler Handler[E]) {
	if handler == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{feed: feed, symbol: symbol}
	r.entries[k] = append(r.entries[k], registration[E]{subscriber: subscriber, handler: handler})
}

// Remove drops every registration of subscriber and reports how many there were.
func (r *Registry[E]) Remove(subscriber string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for k, regs := range r.entries {
		kept := regs[:0:0]
		for _, reg := range regs {
			if reg.subscriber == subscriber {
				removed++
				continue
			}
			kept = append(kept, reg)
		}
		if len(kept) == 0 {
			delete(r.entries, k)
		} else {
			r.entries[k] = kept
		}
	}
	return removed
}

// Handlers returns the handlers matching feed and symbol, symbol scoped first.
func (r *Registry[E]) Handlers(feed enum.Feed, symbol string) []Handler[E] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	scoped := r.entries[key{feed: feed, symbol: symbol}]
	var all []registration[E]
	if symbol != AllSymbols {
		all = r.entries[key{feed: feed, symbol: AllSymbols}]
	}

	handlers := make([]Handler[E], 0, len(scoped)+len(all))
	for _, reg := range scoped {
		handlers = append(handlers, reg.handler)
	}
	for _, reg := range all {
		handlers = append(handlers, reg.handler)
	}
	return handlers
}

// Dispatch starts every matching handler on its own goroutine and returns the
// number started without waiting for them.
func (r *Registry[E]) Dispatch(ctx context.Context, feed enum.Feed, symbol string, event E) int {
	handlers := r.Handlers(feed, symbol)
	for _, h := range handlers {
		ev := event
		if r.clone != nil {
			ev = r.clone(event)
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					logs.Errorf("registry handler panic, feed: %s, symbol: %s, err: %v", feed, symbol, rec)
				}
			}()
			h(ctx, ev)
		}()
	}
	return len(handlers)
}

// Wait blocks until every dispatched handler returned. It must not race with
// Dispatch: call it only once dispatching has stopped, as on shutdown or in
// tests.
func (r *Registry[E]) Wait() {
	r.wg.Wait()
}

// Len counts registrations.
func (r *Registry[E]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, regs := range r.entries {
		n += len(regs)
	}
	return n
}
