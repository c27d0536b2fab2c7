package order

import (
	"sync"
)

// NoLevel marks an order that is not tied to any grid level, such as the
// initial purchase or a take profit / stop loss exit.
const NoLevel = -1

// Book is the in-memory registry of every order the bot has placed,
// partitioned by side and optionally tied to a grid level index.
type Book struct {
	mu     sync.RWMutex
	orders map[string]*Order
	levels map[string]int // order id -> grid level index, NoLevel if unpinned
	buys   []*Order
	sells  []*Order
}

// NewBook creates an empty order book.
func NewBook() *Book {
	return &Book{
		orders: make(map[string]*Order),
		levels: make(map[string]int),
	}
}

// Add registers an order. Level is the grid level index the order serves,
// or NoLevel for non-grid orders. Re-adding an existing id replaces it.
func (b *Book) Add(o *Order, level int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.orders[o.ID]; !exists {
		switch o.Side {
		case SideBuy:
			b.buys = append(b.buys, o)
		case SideSell:
			b.sells = append(b.sells, o)
		}
	}
	b.orders[o.ID] = o
	b.levels[o.ID] = level
}

// Get returns the order with the given id.
func (b *Book) Get(id string) (*Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.orders[id]
	return o, ok
}

// LevelFor returns the grid level index an order is pinned to.
func (b *Book) LevelFor(id string) (int, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	level, ok := b.levels[id]
	if !ok || level == NoLevel {
		return NoLevel, false
	}
	return level, true
}

// UpdateStatus overwrites the stored order's fill state from a fresher
// snapshot of the same order.
func (b *Book) UpdateStatus(fresh *Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing, ok := b.orders[fresh.ID]
	if !ok {
		return
	}
	existing.Status = fresh.Status
	existing.Filled = fresh.Filled
	existing.Remaining = fresh.Remaining
	existing.Average = fresh.Average
	existing.Fee = fresh.Fee
}

// OpenOrders returns all orders that can still fill, buys first, each
// side in placement order. The ordering is deterministic so backtest
// fills replay identically run to run.
func (b *Book) OpenOrders() []*Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var open []*Order
	for _, o := range b.buys {
		if o.IsOpen() {
			open = append(open, o)
		}
	}
	for _, o := range b.sells {
		if o.IsOpen() {
			open = append(open, o)
		}
	}
	return open
}

// CompletedOrders returns all fully filled orders, buys first, each
// side in placement order.
func (b *Book) CompletedOrders() []*Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var done []*Order
	for _, o := range b.buys {
		if o.IsFilled() {
			done = append(done, o)
		}
	}
	for _, o := range b.sells {
		if o.IsFilled() {
			done = append(done, o)
		}
	}
	return done
}

// BuyOrders returns every buy order in insertion order.
func (b *Book) BuyOrders() []*Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Order, len(b.buys))
	copy(out, b.buys)
	return out
}

// SellOrders returns every sell order in insertion order.
func (b *Book) SellOrders() []*Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Order, len(b.sells))
	copy(out, b.sells)
	return out
}

// AllOrders returns buys then sells, each in insertion order.
func (b *Book) AllOrders() []*Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Order, 0, len(b.buys)+len(b.sells))
	out = append(out, b.buys...)
	out = append(out, b.sells...)
	return out
}
