// Package bot wires configuration, exchange access, and the trading
// strategy into one runnable unit.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/balance"
	"gridbot/internal/config"
	"gridbot/internal/core"
	"gridbot/internal/events"
	"gridbot/internal/exchange"
	"gridbot/internal/execution"
	"gridbot/internal/grid"
	"gridbot/internal/health"
	"gridbot/internal/infrastructure/metrics"
	"gridbot/internal/manager"
	"gridbot/internal/notification"
	"gridbot/internal/order"
	"gridbot/internal/report"
	"gridbot/internal/strategy"
	"gridbot/internal/tracker"
)

// healthCheckInterval is how often the background probe runs outside
// backtest mode.
const healthCheckInterval = 30 * time.Second

// Result is the outcome of one bot session.
type Result struct {
	Summary report.Summary
	Orders  []string
}

// Bot owns the full component stack for one trading session.
type Bot struct {
	cfg      *config.Config
	logger   core.ILogger
	exchange core.ExchangeService
	notifier *notification.Manager
	health   *health.Manager

	mu       sync.Mutex
	book     *order.Book
	balances *balance.Tracker
	strategy *strategy.GridTradingStrategy
	cancel   context.CancelFunc
}

// New builds a bot from a validated configuration.
func New(cfg *config.Config, logger core.ILogger) (*Bot, error) {
	ex, err := exchange.New(cfg.Exchange, logger)
	if err != nil {
		return nil, err
	}
	return NewWithExchange(cfg, ex, logger), nil
}

// NewWithExchange builds a bot over an already constructed exchange
// adapter.
func NewWithExchange(cfg *config.Config, ex core.ExchangeService, logger core.ILogger) *Bot {
	notifier := notification.NewManager(logger)
	notifier.AddChannel(notification.NewLogChannel(logger))
	if cfg.Notifications.Enabled {
		for _, hook := range cfg.Notifications.Webhooks {
			switch hook.Type {
			case "telegram":
				notifier.AddChannel(notification.NewTelegramChannel(hook.Token, hook.ChatID))
			case "slack":
				notifier.AddChannel(notification.NewSlackChannel(hook.URL, hook.Channel))
			default:
				logger.Warn("unknown notification channel type", "type", hook.Type)
			}
		}
	}

	b := &Bot{
		cfg:      cfg,
		logger:   logger.WithField("component", "bot"),
		exchange: ex,
		notifier: notifier,
		health:   health.NewManager(logger),
	}

	b.health.Register("strategy", func() error {
		s := b.currentStrategy()
		if s == nil || !s.IsRunning() {
			return fmt.Errorf("strategy is not running")
		}
		return nil
	})
	b.health.Register("exchange", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		status, err := b.exchange.GetExchangeStatus(ctx)
		if err != nil {
			return err
		}
		if status.Status != "ok" {
			return fmt.Errorf("exchange status %q", status.Status)
		}
		return nil
	})
	return b
}

// Run executes one full session and blocks until it finishes. The
// per-session components are rebuilt on every call, so Run may be
// called again after Stop.
func (b *Bot) Run(ctx context.Context) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s, bus, err := b.buildSession(ctx, cancel)
	if err != nil {
		return nil, err
	}
	defer bus.Close()

	if b.cfg.Telemetry.EnableMetrics {
		server := metrics.NewServer(b.cfg.Telemetry.MetricsPort, b.logger)
		server.Start()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = server.Stop(shutdownCtx)
		}()
	}

	if !b.cfg.Mode().IsBacktest() {
		checker := health.NewChecker(b.health, b.notifier, healthCheckInterval, b.logger)
		checker.Start(ctx)
		defer checker.Stop()
	}

	bus.Publish(ctx, events.Event{Topic: events.TopicStartBot, Reason: "session starting"})
	runErr := s.Run(ctx)

	result := &Result{
		Summary: s.GenerateReport(),
		Orders:  report.FormattedOrders(b.currentBook()),
	}
	if runErr != nil {
		return result, runErr
	}
	return result, nil
}

// Stop halts the current session. Idempotent.
func (b *Bot) Stop() {
	b.mu.Lock()
	s := b.strategy
	cancel := b.cancel
	b.mu.Unlock()

	if s != nil {
		s.Stop()
	}
	if cancel != nil {
		cancel()
	}
}

// Restart stops the current session and runs a fresh one.
func (b *Bot) Restart(ctx context.Context) (*Result, error) {
	b.Stop()
	return b.Run(ctx)
}

// GetHealthStatus reports per-component health.
func (b *Bot) GetHealthStatus() map[string]string {
	return b.health.GetStatus()
}

// GetBalances returns the session's free and reserved funds. Zero
// before the first Run.
func (b *Bot) GetBalances() (quote, base, reservedQuote, reservedBase decimal.Decimal) {
	b.mu.Lock()
	balances := b.balances
	b.mu.Unlock()

	if balances == nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	}
	return balances.QuoteBalance(), balances.BaseBalance(),
		balances.ReservedQuote(), balances.ReservedBase()
}

// buildSession constructs the per-run component stack.
func (b *Bot) buildSession(ctx context.Context, cancel context.CancelFunc) (*strategy.GridTradingStrategy, *events.Bus, error) {
	cfg := b.cfg
	mode := cfg.Mode()

	g, err := grid.NewManager(grid.Geometry{
		Bottom:   decimal.NewFromFloat(cfg.Grid.BottomRange),
		Top:      decimal.NewFromFloat(cfg.Grid.TopRange),
		NumGrids: cfg.Grid.NumGrids,
		Spacing:  cfg.Spacing(),
		Leverage: cfg.Grid.Leverage,
	}, cfg.Strategy(), b.logger)
	if err != nil {
		return nil, nil, err
	}

	bus := events.NewBus(b.logger)
	book := order.NewBook()
	balances := balance.NewTracker(bus, decimal.NewFromFloat(cfg.Exchange.TradingFee), b.logger)

	if err := balances.SetupBalances(ctx, mode,
		decimal.NewFromFloat(cfg.Trading.InitialBalance),
		decimal.NewFromFloat(cfg.Trading.InitialCryptoBalance),
		b.exchange, cfg.Pair.BaseCurrency, cfg.Pair.QuoteCurrency); err != nil {
		bus.Close()
		return nil, nil, err
	}

	var executor execution.Strategy
	var backtestEx *execution.Backtest
	if mode.IsBacktest() {
		backtestEx = execution.NewBacktest(b.logger)
		executor = backtestEx
	} else {
		executor = execution.NewLive(b.exchange, execution.LiveOptions{
			MaxRetries:         cfg.Timing.MaxRetries,
			RetryDelay:         cfg.Timing.RetryDelay(),
			MaxSlippage:        decimal.NewFromFloat(cfg.Timing.MaxSlippage),
			RateLimitPerSecond: cfg.Timing.RateLimitPerSecond,
		}, b.logger)
	}

	validator := order.NewValidator(
		decimal.NewFromFloat(cfg.Limits.MinOrderValue),
		decimal.NewFromFloat(cfg.Limits.QuantityStep))

	var sizing manager.SizingPolicy
	var validation manager.ValidationPolicy
	var positions *grid.PositionBook
	if cfg.Grid.Leverage > 1 {
		positions = grid.NewPositionBook(cfg.Grid.Leverage)
		sizing = manager.PerpetualSizing{Grid: g, Positions: positions}
		validation = manager.PerpetualValidation{Validator: validator, Positions: positions}
	} else {
		sizing = manager.SpotSizing{Grid: g}
		validation = manager.SpotValidation{Validator: validator}
	}

	orders := manager.New(g, book, balances, executor, bus, b.notifier,
		sizing, validation, cfg.Pair.Symbol(), mode, b.logger)

	poll := tracker.NewStatusTracker(book, executor, bus,
		cfg.Timing.PollingInterval(), b.logger)

	s := strategy.New(cfg, g, orders, balances, book, b.exchange,
		backtestEx, poll, positions, bus, b.logger)

	// External stop requests ride the same topic the strategy publishes
	// on; the strategy's own publishes are already stopping it.
	bus.SubscribeSync(events.TopicStopBot, func(ctx context.Context, e events.Event) error {
		b.logger.Info("stop requested", "reason", e.Reason)
		s.Stop()
		return nil
	})
	bus.SubscribeSync(events.TopicStartBot, func(ctx context.Context, e events.Event) error {
		b.logger.Info("session started",
			"mode", cfg.Trading.Mode, "pair", cfg.Pair.HumanReadable())
		return nil
	})

	b.mu.Lock()
	b.book = book
	b.balances = balances
	b.strategy = s
	b.cancel = cancel
	b.mu.Unlock()
	return s, bus, nil
}

func (b *Bot) currentStrategy() *strategy.GridTradingStrategy {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.strategy
}

func (b *Bot) currentBook() *order.Book {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.book == nil {
		return order.NewBook()
	}
	return b.book
}
