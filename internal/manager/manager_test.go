package manager

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbot/internal/balance"
	"gridbot/internal/config"
	"gridbot/internal/core"
	"gridbot/internal/events"
	"gridbot/internal/execution"
	"gridbot/internal/grid"
	"gridbot/internal/logging"
	"gridbot/internal/notification"
	"gridbot/internal/order"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	grid     *grid.Manager
	book     *order.Book
	balances *balance.Tracker
	executor *execution.Backtest
	bus      *events.Bus
	manager  *OrderManager

	mu    sync.Mutex
	fills []order.Side
}

// newFixture wires a backtest stack over an 11-level 100..110 grid with
// 1000 quote and no fees.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	g, err := grid.NewManager(grid.Geometry{
		Bottom:   d("100"),
		Top:      d("110"),
		NumGrids: 11,
		Spacing:  config.SpacingArithmetic,
	}, config.StrategySimpleGrid, logging.NewNop())
	require.NoError(t, err)

	f := &fixture{
		grid:     g,
		book:     order.NewBook(),
		bus:      events.NewBus(logging.NewNop()),
		executor: execution.NewBacktest(logging.NewNop()),
	}
	f.bus.SubscribeSync(events.TopicOrderFilled, func(ctx context.Context, e events.Event) error {
		f.mu.Lock()
		f.fills = append(f.fills, e.Order.Side)
		f.mu.Unlock()
		return nil
	})

	f.balances = balance.NewTracker(f.bus, decimal.Zero, logging.NewNop())
	require.NoError(t, f.balances.SetupBalances(
		context.Background(), config.ModeBacktest, d("1000"), decimal.Zero, nil, "BTC", "USDT"))

	validator := order.NewValidator(d("1"), d("0.000001"))
	f.manager = New(
		g, f.book, f.balances, f.executor, f.bus,
		notification.NewManager(logging.NewNop()),
		SpotSizing{Grid: g},
		SpotValidation{Validator: validator},
		"BTCUSDT", config.ModeBacktest, logging.NewNop(),
	)
	t.Cleanup(f.bus.Close)
	return f
}

func (f *fixture) fillSides() []order.Side {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]order.Side, len(f.fills))
	copy(out, f.fills)
	return out
}

func TestInitializeGridOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Seed some base so the sell side can be funded.
	f.balances.ApplyFill(&order.Order{
		ID: "seed", Side: order.SideBuy, Status: order.StatusClosed,
		Average: d("105"), Filled: d("5"),
	})

	f.manager.InitializeGridOrders(ctx, d("105"))

	// Buys rest at 100..104, sells at 106..110.
	buys := f.book.BuyOrders()
	sells := f.book.SellOrders()
	assert.Len(t, buys, 5)
	assert.Len(t, sells, 5)

	for _, o := range buys {
		assert.True(t, o.Price.LessThan(d("105")))
		assert.True(t, o.IsOpen())
	}
	for _, o := range sells {
		assert.True(t, o.Price.GreaterThan(d("105")))
	}

	// Each placed level is waiting and funds are reserved.
	level, _ := f.grid.Level(0)
	assert.Equal(t, grid.StateWaitingForBuyFill, level.State)
	assert.True(t, f.balances.ReservedQuote().IsPositive())
	assert.True(t, f.balances.ReservedBase().IsPositive())
}

func TestBuyFillPlacesPairedSell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.manager.InitializeGridOrders(ctx, d("105"))
	require.Len(t, f.book.BuyOrders(), 5)

	// Fill the buy at 104 (level 4).
	f.manager.SimulateOrderFills(ctx, d("104.5"), d("103.5"), 1)

	// Level 4 cycles to READY_TO_SELL and a paired sell rests at the
	// smallest placeable level above, 106.
	level, _ := f.grid.Level(4)
	assert.Equal(t, grid.StateReadyToSell, level.State)

	var pairedSell *order.Order
	for _, o := range f.book.SellOrders() {
		if o.IsOpen() && o.Price.Equal(d("106")) {
			pairedSell = o
		}
	}
	require.NotNil(t, pairedSell)

	level6, _ := f.grid.Level(6)
	assert.Equal(t, grid.StateWaitingForSellFill, level6.State)
	assert.Equal(t, pairedSell.ID, level6.PendingOrderID)
}

func TestSellFillPlacesPairedBuyBelow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.manager.InitializeGridOrders(ctx, d("105"))
	f.manager.SimulateOrderFills(ctx, d("104.5"), d("103.5"), 1) // buy 104 -> sell at 106

	// Now fill that paired sell at 106.
	f.manager.SimulateOrderFills(ctx, d("106.5"), d("105.5"), 2)

	// The stored pairing points at level 4, but that level has cycled
	// to the sell side, so the buy falls back to the greatest placeable
	// level below: 105.
	level6, _ := f.grid.Level(6)
	assert.Equal(t, grid.StateReadyToBuy, level6.State)
	level5, _ := f.grid.Level(5)
	assert.Equal(t, grid.StateWaitingForBuyFill, level5.State)

	var pairedBuy *order.Order
	for _, o := range f.book.BuyOrders() {
		if o.IsOpen() && o.Price.Equal(d("105")) {
			pairedBuy = o
		}
	}
	require.NotNil(t, pairedBuy)
}

func TestSimulateFillsBuysBeforeSells(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.balances.ApplyFill(&order.Order{
		ID: "seed", Side: order.SideBuy, Status: order.StatusClosed,
		Average: d("105"), Filled: d("1"),
	})
	f.manager.InitializeGridOrders(ctx, d("105"))

	// One bar spanning both a resting buy (104) and a resting sell (106).
	f.manager.SimulateOrderFills(ctx, d("106.2"), d("103.8"), 1)

	sides := f.fillSides()
	require.GreaterOrEqual(t, len(sides), 2)
	sawSell := false
	for _, side := range sides {
		if side == order.SideSell {
			sawSell = true
		}
		if sawSell {
			assert.Equal(t, order.SideSell, side, "buy observed after a sell in the same bar")
		}
	}
}

func TestPerformInitialPurchaseBacktest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.PerformInitialPurchase(ctx, d("100")))

	// Half of 1000 quote converts to 5 base at price 100.
	assert.True(t, f.balances.BaseBalance().Equal(d("5")), f.balances.BaseBalance().String())
	assert.True(t, f.balances.QuoteBalance().Equal(d("500")), f.balances.QuoteBalance().String())
	assert.Len(t, f.book.CompletedOrders(), 1)

	// Balanced position: a second call is a no-op.
	require.NoError(t, f.manager.PerformInitialPurchase(ctx, d("100")))
	assert.Len(t, f.book.CompletedOrders(), 1)
}

func TestTakeProfitLiquidatesPosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.PerformInitialPurchase(ctx, d("100")))
	require.NoError(t, f.manager.ExecuteTakeProfitOrStopLoss(ctx, d("120"), true, false))

	assert.True(t, f.balances.BaseBalance().IsZero())
	// 500 quote + 5 base * 120.
	assert.True(t, f.balances.QuoteBalance().Equal(d("1100")), f.balances.QuoteBalance().String())
}

func TestTakeProfitAndStopLossMutuallyExclusive(t *testing.T) {
	f := newFixture(t)
	assert.Error(t, f.manager.ExecuteTakeProfitOrStopLoss(context.Background(), d("120"), true, true))
	assert.Error(t, f.manager.ExecuteTakeProfitOrStopLoss(context.Background(), d("120"), false, false))
}

func TestCancelRevertsLevelAndReleasesFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.manager.InitializeGridOrders(ctx, d("105"))
	reservedBefore := f.balances.ReservedQuote()
	require.True(t, reservedBefore.IsPositive())

	buy := f.book.BuyOrders()[0]
	buy.Status = order.StatusCanceled
	f.bus.Publish(ctx, events.Event{Topic: events.TopicOrderCancelled, Order: buy})

	level, ok := f.book.LevelFor(buy.ID)
	require.True(t, ok)
	snapshot, _ := f.grid.Level(level)
	assert.Equal(t, grid.StateReadyToBuy, snapshot.State)
	assert.True(t, f.balances.ReservedQuote().LessThan(reservedBefore))
}

// failingExecutor rejects every placement.
type failingExecutor struct{}

func (failingExecutor) ExecuteMarketOrder(ctx context.Context, side order.Side, pair string, qty, price decimal.Decimal) (*order.Order, error) {
	return nil, errors.New("exchange rejected")
}

func (failingExecutor) ExecuteLimitOrder(ctx context.Context, side order.Side, pair string, qty, price decimal.Decimal) (*order.Order, error) {
	return nil, errors.New("exchange rejected")
}

func (failingExecutor) GetOrder(ctx context.Context, orderID, pair string) (*order.Order, error) {
	return nil, errors.New("exchange rejected")
}

func TestPlacementFailuresAreIsolatedAndReleaseReservations(t *testing.T) {
	f := newFixture(t)
	broken := New(
		f.grid, f.book, f.balances, failingExecutor{}, f.bus,
		notification.NewManager(logging.NewNop()),
		SpotSizing{Grid: f.grid},
		SpotValidation{Validator: order.NewValidator(d("1"), d("0.000001"))},
		"BTCUSDT", config.ModeBacktest, logging.NewNop(),
	)

	assert.NotPanics(t, func() {
		broken.InitializeGridOrders(context.Background(), d("105"))
	})
	assert.Empty(t, f.book.AllOrders())
	assert.True(t, f.balances.ReservedQuote().IsZero())
	assert.True(t, f.balances.QuoteBalance().Equal(d("1000")))
}

// newPerpetualFixture wires the same backtest stack with leveraged
// sizing over a shared position book.
func newPerpetualFixture(t *testing.T, leverage int) (*fixture, *grid.PositionBook) {
	t.Helper()

	g, err := grid.NewManager(grid.Geometry{
		Bottom:   d("100"),
		Top:      d("110"),
		NumGrids: 11,
		Spacing:  config.SpacingArithmetic,
	}, config.StrategySimpleGrid, logging.NewNop())
	require.NoError(t, err)

	f := &fixture{
		grid:     g,
		book:     order.NewBook(),
		bus:      events.NewBus(logging.NewNop()),
		executor: execution.NewBacktest(logging.NewNop()),
	}
	f.balances = balance.NewTracker(f.bus, decimal.Zero, logging.NewNop())
	require.NoError(t, f.balances.SetupBalances(
		context.Background(), config.ModeBacktest, d("1000"), decimal.Zero, nil, "BTC", "USDT"))

	positions := grid.NewPositionBook(leverage)
	validator := order.NewValidator(d("1"), d("0.000001"))
	f.manager = New(
		g, f.book, f.balances, f.executor, f.bus,
		notification.NewManager(logging.NewNop()),
		PerpetualSizing{Grid: g, Positions: positions},
		PerpetualValidation{Validator: validator, Positions: positions},
		"BTCUSDT", config.ModeBacktest, logging.NewNop(),
	)
	t.Cleanup(f.bus.Close)
	return f, positions
}

func TestPerpetualFillsRecordPositions(t *testing.T) {
	f, positions := newPerpetualFixture(t, 2)
	ctx := context.Background()

	f.manager.InitializeGridOrders(ctx, d("105"))
	require.NotEmpty(t, f.book.BuyOrders())
	require.True(t, positions.TotalContracts(grid.PositionLong).IsZero())

	// The buy at 104 fills and opens long contracts at that level.
	f.manager.SimulateOrderFills(ctx, d("104.5"), d("103.5"), 1)
	opened := positions.PositionAt(d("104"), grid.PositionLong)
	require.True(t, opened.IsPositive())
	assert.True(t, positions.TotalContracts(grid.PositionLong).Equal(opened))

	// The paired sell at 106 fills and closes the position again.
	f.manager.SimulateOrderFills(ctx, d("106.5"), d("105.5"), 2)
	assert.True(t, positions.TotalContracts(grid.PositionLong).IsZero())
}

func TestPerpetualValidationEnforcesMarginSafety(t *testing.T) {
	positions := grid.NewPositionBook(10)
	positions.UpdatePosition(d("100"), d("999"), grid.PositionLong)
	validation := PerpetualValidation{
		Validator: order.NewValidator(d("1"), d("0.000001")),
		Positions: positions,
	}

	// Exposure of 100000 against 100 margin sits far below the 1%
	// maintenance requirement.
	_, err := validation.AdjustBuy(d("100"), d("1"), d("100"))
	var insufficient *core.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)

	// The same order passes with the margin ratio at 2%.
	adjusted, err := validation.AdjustBuy(d("2000"), d("1"), d("100"))
	require.NoError(t, err)
	assert.True(t, adjusted.Equal(d("1")))
}

func TestPerpetualSizing(t *testing.T) {
	g, err := grid.NewManager(grid.Geometry{
		Bottom: d("100"), Top: d("110"), NumGrids: 10,
		Spacing: config.SpacingArithmetic, Leverage: 5,
	}, config.StrategySimpleGrid, logging.NewNop())
	require.NoError(t, err)

	positions := grid.NewPositionBook(5)
	sizing := PerpetualSizing{Grid: g, Positions: positions}

	// margin per grid 100, x5 leverage at price 100 -> 5 contracts, less
	// the 1% maintenance margin buffer.
	size := sizing.OrderSize(d("1000"), d("100"))
	assert.True(t, size.Equal(d("4.95")), size.String())

	// Target contract value is margin*leverage/2 = 2500 -> 25 contracts.
	qty := sizing.InitialQuantity(d("1000"), decimal.Zero, d("100"))
	assert.True(t, qty.Equal(d("25")), qty.String())

	// Fully positioned already: nothing to open.
	qty = sizing.InitialQuantity(d("1000"), d("25"), d("100"))
	assert.True(t, qty.IsZero())
}
