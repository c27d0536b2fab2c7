package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbot/internal/core"
	"gridbot/internal/logging"
	"gridbot/internal/order"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// scriptedExchange replays a canned sequence of PlaceOrder responses.
type scriptedExchange struct {
	core.ExchangeService

	placed    []core.ExchangeOrder // captured requests as orders
	prices    []decimal.Decimal    // captured submitted prices
	responses []placeResponse
	cancels   []string
	cancelErr error
	fetched   map[string]core.ExchangeOrder
	fetchErr  error
}

type placeResponse struct {
	order core.ExchangeOrder
	err   error
}

func (s *scriptedExchange) PlaceOrder(ctx context.Context, symbol, orderType, side string, qty, price decimal.Decimal) (core.ExchangeOrder, error) {
	s.prices = append(s.prices, price)
	if len(s.responses) == 0 {
		return core.ExchangeOrder{}, errors.New("no scripted response")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp.order, resp.err
}

func (s *scriptedExchange) CancelOrder(ctx context.Context, orderID, symbol string) (core.CancelResult, error) {
	s.cancels = append(s.cancels, orderID)
	if s.cancelErr != nil {
		return core.CancelResult{}, s.cancelErr
	}
	return core.CancelResult{Status: "canceled"}, nil
}

func (s *scriptedExchange) FetchOrder(ctx context.Context, orderID, symbol string) (core.ExchangeOrder, error) {
	if s.fetchErr != nil {
		return core.ExchangeOrder{}, s.fetchErr
	}
	return s.fetched[orderID], nil
}

func newLive(ex core.ExchangeService) *Live {
	return NewLive(ex, LiveOptions{
		MaxRetries:         3,
		RetryDelay:         time.Millisecond,
		MaxSlippage:        d("0.003"),
		RateLimitPerSecond: 1000,
	}, logging.NewNop())
}

func filledOrder(id, side string, qty, price decimal.Decimal) core.ExchangeOrder {
	return core.ExchangeOrder{
		ID: id, Symbol: "BTCUSDT", Side: side, Type: "MARKET", Status: "FILLED",
		Price: price, Average: price, Amount: qty, Filled: qty, Remaining: decimal.Zero,
	}
}

func TestMarketOrderFillsFirstAttempt(t *testing.T) {
	ex := &scriptedExchange{responses: []placeResponse{
		{order: filledOrder("1", "BUY", d("1"), d("100"))},
	}}

	o, err := newLive(ex).ExecuteMarketOrder(context.Background(), order.SideBuy, "BTCUSDT", d("1"), d("100"))
	require.NoError(t, err)
	assert.True(t, o.IsFilled())
	// First attempt submits at the unadjusted price.
	assert.True(t, ex.prices[0].Equal(d("100")))
}

func TestMarketOrderPartialFillRetriesResidual(t *testing.T) {
	// Attempt 1: OPEN with 0.3 filled. Cancel, then attempt 2 fills the
	// remaining 0.7 at the slippage-adjusted price.
	ex := &scriptedExchange{responses: []placeResponse{
		{order: core.ExchangeOrder{
			ID: "1", Symbol: "BTCUSDT", Side: "BUY", Type: "MARKET", Status: "NEW",
			Price: d("100"), Amount: d("1"), Filled: d("0.3"), Remaining: d("0.7"),
		}},
		{order: filledOrder("2", "BUY", d("0.7"), d("100.1"))},
	}}

	o, err := newLive(ex).ExecuteMarketOrder(context.Background(), order.SideBuy, "BTCUSDT", d("1"), d("100"))
	require.NoError(t, err)
	assert.Equal(t, "2", o.ID)
	assert.True(t, o.Filled.Equal(d("0.7")))
	assert.Equal(t, []string{"1"}, ex.cancels)

	// Second attempt price = 100 * (1 + 0.003 * 1/3) = 100.1.
	require.Len(t, ex.prices, 2)
	assert.True(t, ex.prices[1].Equal(d("100.1")), ex.prices[1].String())
}

func TestMarketSellAdjustsPriceDownward(t *testing.T) {
	ex := &scriptedExchange{responses: []placeResponse{
		{err: errors.New("rejected")},
		{order: filledOrder("1", "SELL", d("1"), d("99.9"))},
	}}

	_, err := newLive(ex).ExecuteMarketOrder(context.Background(), order.SideSell, "BTCUSDT", d("1"), d("100"))
	require.NoError(t, err)
	// 100 * (1 - 0.003 * 1/3) = 99.9.
	assert.True(t, ex.prices[1].Equal(d("99.9")), ex.prices[1].String())
}

func TestMarketOrderFailsAfterRetries(t *testing.T) {
	ex := &scriptedExchange{responses: []placeResponse{
		{err: errors.New("down")},
		{err: errors.New("down")},
		{err: errors.New("down")},
	}}

	_, err := newLive(ex).ExecuteMarketOrder(context.Background(), order.SideBuy, "BTCUSDT", d("1"), d("100"))
	require.Error(t, err)
	var failed *core.OrderExecutionFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "BUY", failed.Side)
	assert.Len(t, ex.prices, 3)
}

func TestCancelFailureDoesNotAbortRetries(t *testing.T) {
	ex := &scriptedExchange{
		cancelErr: errors.New("cancel rejected"),
		responses: []placeResponse{
			{order: core.ExchangeOrder{
				ID: "1", Symbol: "BTCUSDT", Side: "BUY", Type: "MARKET", Status: "NEW",
				Price: d("100"), Amount: d("1"), Filled: decimal.Zero, Remaining: d("1"),
			}},
			{order: filledOrder("2", "BUY", d("1"), d("100.1"))},
		},
	}

	o, err := newLive(ex).ExecuteMarketOrder(context.Background(), order.SideBuy, "BTCUSDT", d("1"), d("100"))
	require.NoError(t, err)
	assert.Equal(t, "2", o.ID)
	// Cancel was retried before giving up.
	assert.GreaterOrEqual(t, len(ex.cancels), 1)
}

func TestLimitOrderSingleAttempt(t *testing.T) {
	ex := &scriptedExchange{responses: []placeResponse{
		{order: core.ExchangeOrder{
			ID: "1", Symbol: "BTCUSDT", Side: "SELL", Type: "LIMIT", Status: "NEW",
			Price: d("106"), Amount: d("1"), Remaining: d("1"),
		}},
	}}

	o, err := newLive(ex).ExecuteLimitOrder(context.Background(), order.SideSell, "BTCUSDT", d("1"), d("106"))
	require.NoError(t, err)
	assert.True(t, o.IsOpen())
	assert.Len(t, ex.prices, 1)
}

func TestGetOrderWrapsFetchFailure(t *testing.T) {
	ex := &scriptedExchange{fetchErr: errors.New("timeout")}

	_, err := newLive(ex).GetOrder(context.Background(), "1", "BTCUSDT")
	require.Error(t, err)
	var fetch *core.DataFetchError
	assert.ErrorAs(t, err, &fetch)
}

func TestBacktestMarketOrderFillsImmediately(t *testing.T) {
	b := NewBacktest(logging.NewNop())
	b.SetTimestamp(1700000000000)

	o, err := b.ExecuteMarketOrder(context.Background(), order.SideBuy, "BTCUSDT", d("1"), d("100"))
	require.NoError(t, err)
	assert.True(t, o.IsFilled())
	assert.True(t, o.Filled.Equal(d("1")))
	assert.True(t, o.Remaining.IsZero())
	assert.Equal(t, int64(1700000000000), o.Timestamp)
}

func TestBacktestLimitOrderRestsOpen(t *testing.T) {
	b := NewBacktest(logging.NewNop())

	o, err := b.ExecuteLimitOrder(context.Background(), order.SideSell, "BTCUSDT", d("1"), d("106"))
	require.NoError(t, err)
	assert.True(t, o.IsOpen())
	assert.True(t, o.Remaining.Equal(d("1")))

	got, err := b.GetOrder(context.Background(), o.ID, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, o, got)
}

func TestBacktestIDsAreUnique(t *testing.T) {
	b := NewBacktest(logging.NewNop())
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		o, err := b.ExecuteLimitOrder(context.Background(), order.SideBuy, "BTCUSDT", d("1"), d("100"))
		require.NoError(t, err)
		assert.False(t, seen[o.ID], o.ID)
		seen[o.ID] = true
	}

	_, err := b.GetOrder(context.Background(), "backtest-999", "BTCUSDT")
	assert.Error(t, err)
}
