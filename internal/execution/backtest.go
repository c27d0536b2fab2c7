package execution

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/core"
	"gridbot/internal/order"
)

// Backtest synthesizes orders without touching any exchange. Limit
// orders start open and are filled later by the bar simulator; market
// orders fill immediately at the given price.
type Backtest struct {
	mu      sync.Mutex
	orders  map[string]*order.Order
	counter atomic.Int64
	nowMs   atomic.Int64

	logger core.ILogger
}

// NewBacktest creates a backtest execution strategy.
func NewBacktest(logger core.ILogger) *Backtest {
	b := &Backtest{
		orders: make(map[string]*order.Order),
		logger: logger.WithField("component", "backtest_execution"),
	}
	b.nowMs.Store(time.Now().UnixMilli())
	return b
}

// SetTimestamp sets the simulated clock to the current bar's timestamp.
func (b *Backtest) SetTimestamp(tsMs int64) {
	b.nowMs.Store(tsMs)
}

// ExecuteMarketOrder fills immediately at the given price.
func (b *Backtest) ExecuteMarketOrder(ctx context.Context, side order.Side, pair string, qty, price decimal.Decimal) (*order.Order, error) {
	o := &order.Order{
		ID:        b.nextID(),
		Symbol:    pair,
		Side:      side,
		Type:      order.TypeMarket,
		Status:    order.StatusClosed,
		Price:     price,
		Average:   price,
		Amount:    qty,
		Filled:    qty,
		Remaining: decimal.Zero,
		Timestamp: b.nowMs.Load(),
	}
	b.store(o)
	return o, nil
}

// ExecuteLimitOrder creates a resting open order at the given price.
func (b *Backtest) ExecuteLimitOrder(ctx context.Context, side order.Side, pair string, qty, price decimal.Decimal) (*order.Order, error) {
	o := &order.Order{
		ID:        b.nextID(),
		Symbol:    pair,
		Side:      side,
		Type:      order.TypeLimit,
		Status:    order.StatusOpen,
		Price:     price,
		Amount:    qty,
		Filled:    decimal.Zero,
		Remaining: qty,
		Timestamp: b.nowMs.Load(),
	}
	b.store(o)
	return o, nil
}

// GetOrder returns the tracked order state.
func (b *Backtest) GetOrder(ctx context.Context, orderID, pair string) (*order.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok {
		return nil, &core.DataFetchError{
			Message: fmt.Sprintf("unknown simulated order %s", orderID),
		}
	}
	return o, nil
}

func (b *Backtest) nextID() string {
	return fmt.Sprintf("backtest-%d", b.counter.Add(1))
}

func (b *Backtest) store(o *order.Order) {
	b.mu.Lock()
	b.orders[o.ID] = o
	b.mu.Unlock()
}
