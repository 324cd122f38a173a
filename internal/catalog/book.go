package catalog

import (
	"slices"
	"sync"

	"connector/internal/model"

	"github.com/shopspring/decimal"
)

// OrderBook keeps bids in descending and asks in ascending price order.
type OrderBook struct {
	mu           sync.RWMutex
	lastUpdateID int64
	bids         []model.PriceLevel
	asks         []model.PriceLevel
}

func NewOrderBook() *OrderBook {
	return &OrderBook{}
}

// Replace swaps both sides for a snapshot.
func (b *OrderBook) Replace(lastUpdateID int64, bids, asks []model.PriceLevel) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastUpdateID = lastUpdateID
	b.bids = b.bids[:0]
	b.asks = b.asks[:0]
	for _, l := range bids {
		b.bids = setLevel(b.bids, l, descending)
	}
	for _, l := range asks {
		b.asks = setLevel(b.asks, l, ascending)
	}
}

// Merge applies an incremental update. Updates older than the loaded snapshot
// are ignored; a zero quantity removes the level.
func (b *OrderBook) Merge(finalUpdateID int64, bids, asks []model.PriceLevel) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if finalUpdateID != 0 && finalUpdateID <= b.lastUpdateID {
		return false
	}
	if finalUpdateID != 0 {
		b.lastUpdateID = finalUpdateID
	}
	for _, l := range bids {
		b.bids = setLevel(b.bids, l, descending)
	}
	for _, l := range asks {
		b.asks = setLevel(b.asks, l, ascending)
	}
	return true
}

// Bids returns a copy of the bid side, best first.
func (b *OrderBook) Bids() []model.PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.bids)
}

// Asks returns a copy of the ask side, best first.
func (b *OrderBook) Asks() []model.PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.asks)
}

// Best returns the top of book. ok is false while either side is empty.
func (b *OrderBook) Best() (bid, ask model.PriceLevel, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.bids) == 0 || len(b.asks) == 0 {
		return model.PriceLevel{}, model.PriceLevel{}, false
	}
	return b.bids[0], b.asks[0], true
}

// LastUpdateID is the id of the latest applied snapshot or update.
func (b *OrderBook) LastUpdateID() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdateID
}

func ascending(a, b decimal.Decimal) int  { return a.Cmp(b) }
func descending(a, b decimal.Decimal) int { return b.Cmp(a) }

func setLevel(levels []model.PriceLevel, l model.PriceLevel, cmp func(a, b decimal.Decimal) int) []model.PriceLevel {
	i, found := slices.BinarySearchFunc(levels, l.Price, func(e model.PriceLevel, price decimal.Decimal) int {
		return cmp(e.Price, price)
	})
	switch {
	case !l.Quantity.IsPositive():
		if found {
			levels = slices.Delete(levels, i, i+1)
		}
	case found:
		levels[i].Quantity = l.Quantity
	default:
		levels = slices.Insert(levels, i, l)
	}
	return levels
}
