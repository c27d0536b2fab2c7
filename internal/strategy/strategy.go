// Package strategy runs the top-level trading loop: trigger detection,
// tick handling, and dispatch between live and backtest modes.
package strategy

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/balance"
	"gridbot/internal/config"
	"gridbot/internal/core"
	"gridbot/internal/events"
	"gridbot/internal/execution"
	"gridbot/internal/grid"
	"gridbot/internal/infrastructure/metrics"
	"gridbot/internal/manager"
	"gridbot/internal/order"
	"gridbot/internal/report"
	"gridbot/internal/tracker"
)

// GridTradingStrategy owns the control loop. The grid stays idle until
// the trigger price is crossed; from then on fills drive the ladder and
// every tick is checked against take profit and stop loss.
type GridTradingStrategy struct {
	cfg        *config.Config
	grid       *grid.Manager
	orders     *manager.OrderManager
	balances   *balance.Tracker
	book       *order.Book
	exchange   core.ExchangeService
	backtestEx *execution.Backtest    // set in backtest mode
	statusPoll *tracker.StatusTracker // set in live and paper modes
	positions  *grid.PositionBook     // set in perpetual mode
	bus        *events.Bus
	analyzer   *report.Analyzer
	logger     core.ILogger

	// Touched only from the run loop goroutine.
	marginUnsafe bool
	lastFunding  int64

	mu        sync.Mutex
	armed     bool
	lastPrice decimal.Decimal
	hasLast   bool
	trigger   decimal.Decimal

	stopped atomic.Bool
	running atomic.Bool
	cancel  context.CancelFunc // guarded by mu
}

// New creates a strategy. backtestEx must be set in backtest mode;
// statusPoll must be set in live and paper modes; positions is nil for
// spot trading.
func New(
	cfg *config.Config,
	g *grid.Manager,
	orders *manager.OrderManager,
	balances *balance.Tracker,
	book *order.Book,
	exchange core.ExchangeService,
	backtestEx *execution.Backtest,
	statusPoll *tracker.StatusTracker,
	positions *grid.PositionBook,
	bus *events.Bus,
	logger core.ILogger,
) *GridTradingStrategy {
	s := &GridTradingStrategy{
		cfg:        cfg,
		grid:       g,
		orders:     orders,
		balances:   balances,
		book:       book,
		exchange:   exchange,
		backtestEx: backtestEx,
		statusPoll: statusPoll,
		positions:  positions,
		bus:        bus,
		analyzer:   report.NewAnalyzer(),
		logger:     logger.WithField("component", "strategy"),
	}
	s.trigger = s.resolveTriggerPrice()
	return s
}

// resolveTriggerPrice returns the configured trigger or, when absent,
// the grid's central price.
func (s *GridTradingStrategy) resolveTriggerPrice() decimal.Decimal {
	if s.cfg.Grid.TriggerPrice > 0 {
		return decimal.NewFromFloat(s.cfg.Grid.TriggerPrice)
	}
	return s.grid.CentralPrice()
}

// TriggerPrice returns the price whose crossing arms the grid.
func (s *GridTradingStrategy) TriggerPrice() decimal.Decimal {
	return s.trigger
}

// IsRunning reports whether the control loop is active.
func (s *GridTradingStrategy) IsRunning() bool {
	return s.running.Load()
}

// Run executes the strategy until stopped, data is exhausted, or
// take profit / stop loss fires. It blocks for the whole session.
func (s *GridTradingStrategy) Run(ctx context.Context) error {
	s.stopped.Store(false)
	s.running.Store(true)
	defer s.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	s.logger.Info("strategy starting",
		"mode", s.cfg.Trading.Mode,
		"pair", s.cfg.Pair.HumanReadable(),
		"trigger_price", s.trigger.String())

	if s.cfg.Mode().IsBacktest() {
		return s.runBacktest(ctx)
	}
	return s.runLive(ctx)
}

// Stop signals the loop to exit. Idempotent.
func (s *GridTradingStrategy) Stop() {
	if s.stopped.CompareAndSwap(false, true) {
		s.logger.Info("strategy stop requested")
	}
	s.cancelRun()
}

// cancelRun cancels the active run context, if any. Stop and
// TriggerStop may race Run, so the cancel func is read under the lock.
func (s *GridTradingStrategy) cancelRun() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// runBacktest replays historical bars through the simulated fill path.
func (s *GridTradingStrategy) runBacktest(ctx context.Context) error {
	start, err := time.Parse(time.RFC3339, s.cfg.Backtest.StartDate)
	if err != nil {
		return fmt.Errorf("invalid backtest start date: %w", err)
	}
	end, err := time.Parse(time.RFC3339, s.cfg.Backtest.EndDate)
	if err != nil {
		return fmt.Errorf("invalid backtest end date: %w", err)
	}

	candles, err := s.exchange.FetchOHLCV(ctx, s.cfg.Pair.Symbol(), s.cfg.Backtest.Timeframe, start, end)
	if err != nil {
		return err
	}
	s.logger.Info("backtest data loaded", "bars", len(candles))

	for _, candle := range candles {
		if s.stopped.Load() || ctx.Err() != nil {
			break
		}
		s.backtestEx.SetTimestamp(candle.Timestamp)

		if err := s.maybeArm(ctx, candle.Close); err != nil {
			return err
		}
		s.orders.SimulateOrderFills(ctx, candle.High, candle.Low, candle.Timestamp)
		s.accrueFunding(candle.Timestamp, candle.Close)
		if s.isArmed() {
			s.checkMarginSafety(candle.Close)
			s.checkTakeProfitStopLoss(ctx, candle.Close)
		}
		s.recordSample(candle.Timestamp, candle.Close)
		s.setLastPrice(candle.Close)
	}

	s.logger.Info("backtest finished")
	return nil
}

// runLive subscribes to ticker updates and reacts to each price.
func (s *GridTradingStrategy) runLive(ctx context.Context) error {
	s.statusPoll.Start(ctx)
	defer s.statusPoll.Stop()

	err := s.exchange.ListenToTickerUpdates(ctx, s.cfg.Pair.Symbol(), func(tickCtx context.Context, price decimal.Decimal) {
		if s.stopped.Load() {
			return
		}
		if err := s.maybeArm(tickCtx, price); err != nil {
			s.logger.Error("arming failed", "error", err)
			s.TriggerStop(tickCtx, "arming failed")
			return
		}
		now := time.Now().UnixMilli()
		s.accrueFunding(now, price)
		if s.isArmed() {
			s.checkMarginSafety(price)
			s.checkTakeProfitStopLoss(tickCtx, price)
		}
		s.recordSample(now, price)
		s.setLastPrice(price)
	}, s.cfg.Timing.TickerInterval())

	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// maybeArm checks the trigger edge and, on the first crossing, performs
// the initial purchase and places the ladder. Never arms before a last
// price exists and never arms twice.
func (s *GridTradingStrategy) maybeArm(ctx context.Context, price decimal.Decimal) error {
	s.mu.Lock()
	if s.armed || !s.hasLast {
		s.mu.Unlock()
		return nil
	}
	crossed := (s.lastPrice.LessThanOrEqual(s.trigger) && s.trigger.LessThanOrEqual(price)) ||
		s.lastPrice.Equal(s.trigger)
	if !crossed {
		s.mu.Unlock()
		return nil
	}
	s.armed = true
	s.mu.Unlock()

	s.logger.Info("trigger crossed, arming grid",
		"trigger", s.trigger.String(), "price", price.String())

	if s.cfg.Trading.PerformInitialPurchase {
		if err := s.orders.PerformInitialPurchase(ctx, price); err != nil {
			return err
		}
	}
	s.orders.InitializeGridOrders(ctx, price)
	return nil
}

func (s *GridTradingStrategy) isArmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

func (s *GridTradingStrategy) setLastPrice(price decimal.Decimal) {
	s.mu.Lock()
	s.lastPrice = price
	s.hasLast = true
	s.mu.Unlock()
}

// fundingIntervalMs is the perpetual funding settlement period.
const fundingIntervalMs = 8 * 60 * 60 * 1000

// accrueFunding charges the configured funding rate on the open long
// position value at every 8h settlement boundary. No-op in spot mode.
func (s *GridTradingStrategy) accrueFunding(timestamp int64, price decimal.Decimal) {
	if s.positions == nil || s.cfg.Grid.FundingRate == 0 {
		return
	}
	if s.lastFunding == 0 {
		s.lastFunding = timestamp
		return
	}
	rate := decimal.NewFromFloat(s.cfg.Grid.FundingRate)
	for timestamp-s.lastFunding >= fundingIntervalMs {
		s.lastFunding += fundingIntervalMs
		value := s.positions.TotalContracts(grid.PositionLong).Mul(price)
		if !value.IsPositive() {
			continue
		}
		fee := s.positions.RecordFundingRate(value, rate)
		s.logger.Info("funding settled",
			"position_value", value.String(), "fee", fee.String(),
			"total_funding_fees", s.positions.TotalFundingFees().String())
	}
}

// checkMarginSafety warns once per degradation edge when the margin
// ratio falls below maintenance. No-op in spot mode.
func (s *GridTradingStrategy) checkMarginSafety(price decimal.Decimal) {
	if s.positions == nil {
		return
	}
	exposure := s.positions.TotalContracts(grid.PositionLong).Mul(price)
	safe := s.positions.CheckMarginSafety(s.balances.TotalQuote(), exposure)
	if !safe && !s.marginUnsafe {
		s.logger.Warn("margin ratio below maintenance requirement",
			"margin", s.balances.TotalQuote().String(),
			"position_value", exposure.String())
	}
	s.marginUnsafe = !safe
}

// checkTakeProfitStopLoss liquidates and requests a stop when either
// threshold is breached.
func (s *GridTradingStrategy) checkTakeProfitStopLoss(ctx context.Context, price decimal.Decimal) {
	tp := s.cfg.Risk.TakeProfit
	sl := s.cfg.Risk.StopLoss

	if tp.Enabled && price.GreaterThanOrEqual(decimal.NewFromFloat(tp.Threshold)) {
		s.logger.Info("take profit threshold reached", "price", price.String())
		if err := s.orders.ExecuteTakeProfitOrStopLoss(ctx, price, true, false); err != nil {
			s.logger.Error("take profit liquidation failed", "error", err)
		}
		s.TriggerStop(ctx, "take profit triggered")
		return
	}

	if sl.Enabled && price.LessThanOrEqual(decimal.NewFromFloat(sl.Threshold)) {
		s.logger.Info("stop loss threshold reached", "price", price.String())
		if err := s.orders.ExecuteTakeProfitOrStopLoss(ctx, price, false, true); err != nil {
			s.logger.Error("stop loss liquidation failed", "error", err)
		}
		s.TriggerStop(ctx, "stop loss triggered")
	}
}

// TriggerStop publishes STOP_BOT exactly once per run and halts the loop.
func (s *GridTradingStrategy) TriggerStop(ctx context.Context, reason string) {
	if s.stopped.CompareAndSwap(false, true) {
		s.bus.Publish(ctx, events.Event{Topic: events.TopicStopBot, Reason: reason})
	}
	s.cancelRun()
}

func (s *GridTradingStrategy) recordSample(timestamp int64, price decimal.Decimal) {
	value := s.balances.TotalValue(price)
	s.analyzer.Record(timestamp, value)

	v, _ := value.Float64()
	p, _ := price.Float64()
	metrics.AccountValue.Set(v)
	metrics.CurrentPrice.Set(p)
}

// GenerateReport summarizes the session.
func (s *GridTradingStrategy) GenerateReport() report.Summary {
	s.mu.Lock()
	last := s.lastPrice
	s.mu.Unlock()

	return s.analyzer.Summarize(
		s.cfg.Pair.HumanReadable(),
		s.book,
		s.balances.TotalFees(),
		s.balances.TotalQuote(),
		s.balances.TotalBase(),
		last,
	)
}
