// Package execution provides the exchange-facing order execution layer
// with a live implementation and a deterministic backtest simulator.
package execution

import (
	"context"

	"github.com/shopspring/decimal"

	"gridbot/internal/order"
)

// Strategy executes orders and retrieves their state. Implementations
// return fully populated orders whose status reflects the exchange
// response.
type Strategy interface {
	ExecuteMarketOrder(ctx context.Context, side order.Side, pair string, qty, price decimal.Decimal) (*order.Order, error)
	ExecuteLimitOrder(ctx context.Context, side order.Side, pair string, qty, price decimal.Decimal) (*order.Order, error)
	GetOrder(ctx context.Context, orderID, pair string) (*order.Order, error)
}
