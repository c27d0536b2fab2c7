package manager

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"gridbot/internal/balance"
	"gridbot/internal/config"
	"gridbot/internal/core"
	"gridbot/internal/events"
	"gridbot/internal/execution"
	"gridbot/internal/grid"
	"gridbot/internal/infrastructure/metrics"
	"gridbot/internal/notification"
	"gridbot/internal/order"
)

// OrderManager drives order placement for the grid: the initial ladder,
// the initial market purchase, paired orders after fills, and the take
// profit / stop loss exit. It consumes fill and cancel events from the
// bus.
type OrderManager struct {
	grid      *grid.Manager
	book      *order.Book
	balances  *balance.Tracker
	executor  execution.Strategy
	bus       *events.Bus
	notifier  *notification.Manager
	sizing    SizingPolicy
	validate  ValidationPolicy
	pair      string
	mode      config.TradingMode
	logger    core.ILogger
}

// New creates an order manager and subscribes it to order events.
func New(
	g *grid.Manager,
	book *order.Book,
	balances *balance.Tracker,
	executor execution.Strategy,
	bus *events.Bus,
	notifier *notification.Manager,
	sizing SizingPolicy,
	validate ValidationPolicy,
	pair string,
	mode config.TradingMode,
	logger core.ILogger,
) *OrderManager {
	m := &OrderManager{
		grid:     g,
		book:     book,
		balances: balances,
		executor: executor,
		bus:      bus,
		notifier: notifier,
		sizing:   sizing,
		validate: validate,
		pair:     pair,
		mode:     mode,
		logger:   logger.WithField("component", "order_manager"),
	}
	bus.Subscribe(events.TopicOrderFilled, m.onOrderFilled)
	bus.Subscribe(events.TopicOrderCancelled, m.onOrderCancelled)
	return m
}

// InitializeGridOrders places the initial ladder of limit orders: buys
// below the current price, sells above it. A failure on one level is
// reported and does not stop the rest.
func (m *OrderManager) InitializeGridOrders(ctx context.Context, currentPrice decimal.Decimal) {
	totalQuote := m.balances.TotalValue(currentPrice)

	for _, i := range m.grid.BuyLevelIndexes() {
		price := m.grid.LevelPrice(i)
		if price.GreaterThanOrEqual(currentPrice) || !m.grid.CanPlaceOrder(i, order.SideBuy) {
			continue
		}
		size := m.sizing.OrderSize(totalQuote, currentPrice)
		if err := m.placeBuy(ctx, i, size, price); err != nil {
			m.reportPlacementFailure(ctx, order.SideBuy, i, price, err)
		}
	}

	for _, i := range m.grid.SellLevelIndexes() {
		price := m.grid.LevelPrice(i)
		if price.LessThanOrEqual(currentPrice) || !m.grid.CanPlaceOrder(i, order.SideSell) {
			continue
		}
		size := m.sizing.OrderSize(totalQuote, currentPrice)
		if err := m.placeSell(ctx, i, size, price); err != nil {
			m.reportPlacementFailure(ctx, order.SideSell, i, price, err)
		}
	}
}

// PerformInitialPurchase market-buys the quantity that brings the base
// position to its initial target. A zero quantity is a no-op.
func (m *OrderManager) PerformInitialPurchase(ctx context.Context, currentPrice decimal.Decimal) error {
	qty := m.sizing.InitialQuantity(m.balances.QuoteBalance(), m.balances.BaseBalance(), currentPrice)
	if !qty.IsPositive() {
		m.logger.Info("initial purchase not needed", "price", currentPrice.String())
		return nil
	}

	placed, err := m.executor.ExecuteMarketOrder(ctx, order.SideBuy, m.pair, qty, currentPrice)
	if err != nil {
		return fmt.Errorf("initial purchase failed: %w", err)
	}
	m.book.Add(placed, order.NoLevel)
	metrics.OrdersPlaced.WithLabelValues(string(order.SideBuy), string(order.TypeMarket)).Inc()

	if m.mode.IsBacktest() {
		// Credit through the normal event path.
		m.bus.Publish(ctx, events.Event{Topic: events.TopicOrderFilled, Order: placed})
	} else {
		// Live fills settle directly using the exchange-reported average.
		m.balances.ApplyFill(placed)
	}

	m.logger.Info("initial purchase executed",
		"qty", placed.Filled.String(), "price", placed.FillPrice().String())
	m.notifier.NotifyAsync(ctx, notification.OrderPlaced,
		"initial market purchase executed",
		map[string]string{"qty": placed.Filled.String(), "price": placed.FillPrice().String()})
	return nil
}

// ExecuteTakeProfitOrStopLoss market-sells the entire base position.
// Exactly one of takeProfit and stopLoss must be set.
func (m *OrderManager) ExecuteTakeProfitOrStopLoss(ctx context.Context, currentPrice decimal.Decimal, takeProfit, stopLoss bool) error {
	if takeProfit == stopLoss {
		return fmt.Errorf("exactly one of take profit and stop loss must be set")
	}

	qty := m.balances.TotalBase()
	if !qty.IsPositive() {
		m.logger.Info("no base position to liquidate")
		return nil
	}

	placed, err := m.executor.ExecuteMarketOrder(ctx, order.SideSell, m.pair, qty, currentPrice)
	if err != nil {
		return fmt.Errorf("liquidation order failed: %w", err)
	}
	m.book.Add(placed, order.NoLevel)
	m.balances.ApplyFill(placed)
	metrics.OrdersPlaced.WithLabelValues(string(order.SideSell), string(order.TypeMarket)).Inc()

	typ := notification.TakeProfitTriggered
	if stopLoss {
		typ = notification.StopLossTriggered
	}
	m.notifier.NotifyAsync(ctx, typ, "position liquidated", map[string]string{
		"qty":   placed.Filled.String(),
		"price": placed.FillPrice().String(),
	})
	return nil
}

// SimulateOrderFills fills every open limit order whose price falls in
// the bar's [low, high] range and publishes the fills. OpenOrders
// returns buys before sells in placement order, so a bar's fills replay
// identically across runs.
func (m *OrderManager) SimulateOrderFills(ctx context.Context, high, low decimal.Decimal, timestamp int64) {
	for _, o := range m.book.OpenOrders() {
		if o.Type != order.TypeLimit {
			continue
		}
		if o.Price.LessThan(low) || o.Price.GreaterThan(high) {
			continue
		}
		o.Filled = o.Amount
		o.Remaining = decimal.Zero
		o.Status = order.StatusClosed
		o.Timestamp = timestamp

		m.logger.Debug("simulated fill",
			"order_id", o.ID, "side", o.Side, "price", o.Price.String())
		m.bus.Publish(ctx, events.Event{Topic: events.TopicOrderFilled, Order: o})
	}
}

// onOrderFilled transitions the filled level and places the paired
// opposite-side order. Non-grid orders are ignored.
func (m *OrderManager) onOrderFilled(ctx context.Context, event events.Event) error {
	o := event.Order
	if o == nil {
		return nil
	}
	// Settle funds before sizing the paired order; ApplyFill is
	// idempotent so the balance tracker's own subscription stays safe.
	m.balances.ApplyFill(o)
	metrics.OrdersFilled.WithLabelValues(string(o.Side)).Inc()

	level, ok := m.book.LevelFor(o.ID)
	if !ok {
		return nil
	}
	metrics.OpenOrders.WithLabelValues(string(o.Side)).Dec()
	if err := m.grid.CompleteOrder(level, o.Side); err != nil {
		return err
	}

	m.recordPositionFill(o.Side, m.grid.LevelPrice(level), o.Filled)

	switch o.Side {
	case order.SideBuy:
		paired, ok := m.grid.PairedSellLevel(level)
		if !ok {
			m.logger.Warn("no placeable sell level above filled buy", "level", level)
			return nil
		}
		if err := m.placeSell(ctx, paired, o.Filled, m.grid.LevelPrice(paired)); err != nil {
			m.reportPlacementFailure(ctx, order.SideSell, paired, m.grid.LevelPrice(paired), err)
			return nil
		}
		m.grid.PairLevels(level, paired)

	case order.SideSell:
		paired, ok := m.grid.PairedBuyLevel(level)
		if !ok {
			m.logger.Warn("no placeable buy level below filled sell", "level", level)
			return nil
		}
		if err := m.placeBuy(ctx, paired, o.Filled, m.grid.LevelPrice(paired)); err != nil {
			m.reportPlacementFailure(ctx, order.SideBuy, paired, m.grid.LevelPrice(paired), err)
			return nil
		}
		m.grid.PairLevels(paired, level)
	}
	return nil
}

// recordPositionFill forwards a grid fill to the sizing policy's
// position book. Spot sizing does not track positions.
func (m *OrderManager) recordPositionFill(side order.Side, price, qty decimal.Decimal) {
	if recorder, ok := m.sizing.(PositionRecorder); ok {
		recorder.RecordFill(side, price, qty)
	}
}

// onOrderCancelled reverts the level and releases the reservation.
func (m *OrderManager) onOrderCancelled(ctx context.Context, event events.Event) error {
	o := event.Order
	if o == nil {
		return nil
	}
	metrics.OrdersCancelled.Inc()

	level, ok := m.book.LevelFor(o.ID)
	if !ok {
		return nil
	}
	metrics.OpenOrders.WithLabelValues(string(o.Side)).Dec()
	if err := m.grid.MarkCanceled(level); err != nil {
		return err
	}

	switch o.Side {
	case order.SideBuy:
		m.balances.ReleaseBuyReservation(m.balances.BuyReservationAmount(o.Remaining, o.Price))
	case order.SideSell:
		m.balances.ReleaseSellReservation(o.Remaining)
	}

	m.notifier.NotifyAsync(ctx, notification.OrderCancelled, "grid order cancelled",
		map[string]string{"order_id": o.ID, "level": fmt.Sprint(level)})
	return nil
}

// placeBuy validates, reserves, submits, and records a buy limit order
// at a level.
func (m *OrderManager) placeBuy(ctx context.Context, level int, qty, price decimal.Decimal) error {
	adjusted, err := m.validate.AdjustBuy(m.balances.QuoteBalance(), qty, price)
	if err != nil {
		return err
	}

	reserve := m.balances.BuyReservationAmount(adjusted, price)
	if err := m.balances.ReserveFundsForBuy(reserve); err != nil {
		return err
	}

	placed, err := m.executor.ExecuteLimitOrder(ctx, order.SideBuy, m.pair, adjusted, price)
	if err != nil {
		m.balances.ReleaseBuyReservation(reserve)
		return err
	}
	if err := m.grid.MarkOrderPending(level, order.SideBuy, placed.ID); err != nil {
		m.balances.ReleaseBuyReservation(reserve)
		return err
	}
	m.book.Add(placed, level)
	metrics.OrdersPlaced.WithLabelValues(string(order.SideBuy), string(order.TypeLimit)).Inc()
	metrics.OpenOrders.WithLabelValues(string(order.SideBuy)).Inc()

	m.logger.Info("buy order placed",
		"order_id", placed.ID, "level", level,
		"qty", adjusted.String(), "price", price.String())
	m.notifier.NotifyAsync(ctx, notification.OrderPlaced, "buy order placed",
		map[string]string{"order_id": placed.ID, "price": price.String()})
	return nil
}

// placeSell validates, reserves, submits, and records a sell limit
// order at a level.
func (m *OrderManager) placeSell(ctx context.Context, level int, qty, price decimal.Decimal) error {
	adjusted, err := m.validate.AdjustSell(m.balances.BaseBalance(), qty)
	if err != nil {
		return err
	}

	if err := m.balances.ReserveFundsForSell(adjusted); err != nil {
		return err
	}

	placed, err := m.executor.ExecuteLimitOrder(ctx, order.SideSell, m.pair, adjusted, price)
	if err != nil {
		m.balances.ReleaseSellReservation(adjusted)
		return err
	}
	if err := m.grid.MarkOrderPending(level, order.SideSell, placed.ID); err != nil {
		m.balances.ReleaseSellReservation(adjusted)
		return err
	}
	m.book.Add(placed, level)
	metrics.OrdersPlaced.WithLabelValues(string(order.SideSell), string(order.TypeLimit)).Inc()
	metrics.OpenOrders.WithLabelValues(string(order.SideSell)).Inc()

	m.logger.Info("sell order placed",
		"order_id", placed.ID, "level", level,
		"qty", adjusted.String(), "price", price.String())
	m.notifier.NotifyAsync(ctx, notification.OrderPlaced, "sell order placed",
		map[string]string{"order_id": placed.ID, "price": price.String()})
	return nil
}

func (m *OrderManager) reportPlacementFailure(ctx context.Context, side order.Side, level int, price decimal.Decimal, err error) {
	metrics.OrderFailures.Inc()
	m.logger.Error("order placement failed",
		"side", side, "level", level, "price", price.String(), "error", err)
	m.notifier.NotifyAsync(ctx, notification.OrderFailed, "order placement failed",
		map[string]string{
			"side":  string(side),
			"price": price.String(),
			"error": err.Error(),
		})
}
