package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"gridbot/internal/core"
	"gridbot/internal/order"
)

// LiveOptions tunes the live execution strategy.
type LiveOptions struct {
	MaxRetries         int
	RetryDelay         time.Duration
	MaxSlippage        decimal.Decimal // fractional, e.g. 0.005
	RateLimitPerSecond float64
}

// Live submits orders to a real exchange with rate limiting, market
// order retries under slippage adjustment, and resilient cancels.
type Live struct {
	exchange core.ExchangeService
	limiter  *rate.Limiter
	cancels  failsafe.Executor[core.CancelResult]
	opts     LiveOptions
	logger   core.ILogger
}

// NewLive creates a live execution strategy.
func NewLive(exchange core.ExchangeService, opts LiveOptions, logger core.ILogger) *Live {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 3
	}
	if opts.RateLimitPerSecond <= 0 {
		opts.RateLimitPerSecond = 5
	}

	cancelPolicy := retrypolicy.NewBuilder[core.CancelResult]().
		HandleIf(func(_ core.CancelResult, err error) bool { return err != nil }).
		WithBackoff(100*time.Millisecond, 2*time.Second).
		WithMaxRetries(2).
		Build()

	return &Live{
		exchange: exchange,
		limiter:  rate.NewLimiter(rate.Limit(opts.RateLimitPerSecond), 1),
		cancels:  failsafe.With[core.CancelResult](cancelPolicy),
		opts:     opts,
		logger:   logger.WithField("component", "live_execution"),
	}
}

// ExecuteMarketOrder submits a market order, retrying partial and
// failed attempts at progressively adjusted prices. The price moves up
// for buys and down for sells so later attempts cross the spread.
func (l *Live) ExecuteMarketOrder(ctx context.Context, side order.Side, pair string, qty, price decimal.Decimal) (*order.Order, error) {
	remaining := qty
	var lastOrder *order.Order
	var lastErr error

	for attempt := 0; attempt < l.opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		adjusted := l.adjustPrice(side, price, attempt)
		placed, err := l.submit(ctx, order.TypeMarket, side, pair, remaining, adjusted)
		if err != nil {
			lastErr = err
			l.logger.Warn("market order attempt failed",
				"attempt", attempt+1, "pair", pair, "side", side, "error", err)
			l.sleep(ctx)
			continue
		}
		lastOrder = placed

		if placed.IsFilled() {
			return placed, nil
		}

		if placed.IsOpen() {
			if placed.Filled.IsPositive() {
				l.logger.Info("partial fill on market order, retrying residual",
					"order_id", placed.ID, "filled", placed.Filled.String(),
					"remaining", placed.Remaining.String())
				remaining = placed.Remaining
			}
			l.cancel(ctx, placed.ID, pair)
		}
		l.sleep(ctx)
	}

	var last string
	if lastOrder != nil {
		last = lastOrder.ID
	}
	return nil, &core.OrderExecutionFailedError{
		Side:    string(side),
		Type:    string(order.TypeMarket),
		Pair:    pair,
		Message: fmt.Sprintf("no complete fill after %d attempts (last order %q)", l.opts.MaxRetries, last),
		Err:     lastErr,
	}
}

// ExecuteLimitOrder submits a limit order once and returns its state.
func (l *Live) ExecuteLimitOrder(ctx context.Context, side order.Side, pair string, qty, price decimal.Decimal) (*order.Order, error) {
	placed, err := l.submit(ctx, order.TypeLimit, side, pair, qty, price)
	if err != nil {
		return nil, &core.OrderExecutionFailedError{
			Side:    string(side),
			Type:    string(order.TypeLimit),
			Pair:    pair,
			Message: "limit order submission failed",
			Err:     err,
		}
	}
	return placed, nil
}

// GetOrder fetches the current state of an order.
func (l *Live) GetOrder(ctx context.Context, orderID, pair string) (*order.Order, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	raw, err := l.exchange.FetchOrder(ctx, orderID, pair)
	if err != nil {
		return nil, &core.DataFetchError{
			Message: fmt.Sprintf("failed to fetch order %s", orderID),
			Err:     err,
		}
	}
	o, err := order.FromExchange(raw)
	if err != nil {
		return nil, &core.DataFetchError{
			Message: fmt.Sprintf("malformed order response for %s", orderID),
			Err:     err,
		}
	}
	return o, nil
}

func (l *Live) submit(ctx context.Context, typ order.Type, side order.Side, pair string, qty, price decimal.Decimal) (*order.Order, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	raw, err := l.exchange.PlaceOrder(ctx, pair, string(typ), string(side), qty, price)
	if err != nil {
		return nil, err
	}
	return order.FromExchange(raw)
}

// adjustPrice applies the slippage schedule: attempt/max_retries of the
// configured maximum, upward for buys and downward for sells.
func (l *Live) adjustPrice(side order.Side, price decimal.Decimal, attempt int) decimal.Decimal {
	if attempt == 0 || l.opts.MaxSlippage.IsZero() {
		return price
	}
	fraction := l.opts.MaxSlippage.
		Mul(decimal.NewFromInt(int64(attempt))).
		Div(decimal.NewFromInt(int64(l.opts.MaxRetries)))
	if side == order.SideBuy {
		return price.Mul(decimal.NewFromInt(1).Add(fraction))
	}
	return price.Mul(decimal.NewFromInt(1).Sub(fraction))
}

// cancel retries transient cancel failures; a final failure is logged
// and the retry loop proceeds regardless.
func (l *Live) cancel(ctx context.Context, orderID, pair string) {
	_, err := l.cancels.GetWithExecution(func(exec failsafe.Execution[core.CancelResult]) (core.CancelResult, error) {
		return l.exchange.CancelOrder(ctx, orderID, pair)
	})
	if err != nil {
		l.logger.Warn("failed to cancel order before retry",
			"order_id", orderID, "pair", pair, "error", err)
	}
}

func (l *Live) sleep(ctx context.Context) {
	if l.opts.RetryDelay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(l.opts.RetryDelay):
	}
}
