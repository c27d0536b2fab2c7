// Package balance tracks quote and base funds with a reservation
// discipline: funds committed to open orders move into reserved buckets
// and are settled back on fills or cancellations.
package balance

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"gridbot/internal/config"
	"gridbot/internal/core"
	"gridbot/internal/events"
	"gridbot/internal/order"
)

// Tracker holds the engine's view of account funds. All mutation goes
// through its methods; the sum quote+reserved_quote (and base+
// reserved_base) only changes on fills.
type Tracker struct {
	mu sync.RWMutex

	quoteBalance  decimal.Decimal
	baseBalance   decimal.Decimal
	reservedQuote decimal.Decimal
	reservedBase  decimal.Decimal
	totalFees     decimal.Decimal

	feeRate   decimal.Decimal
	processed map[string]bool // order ids already settled

	logger core.ILogger
}

// NewTracker creates a tracker and subscribes it to fill events.
func NewTracker(bus *events.Bus, feeRate decimal.Decimal, logger core.ILogger) *Tracker {
	t := &Tracker{
		feeRate:   feeRate,
		processed: make(map[string]bool),
		logger:    logger.WithField("component", "balance_tracker"),
	}
	bus.Subscribe(events.TopicOrderFilled, t.onOrderFilled)
	return t
}

// SetupBalances initializes funds. Backtest mode uses the configured
// amounts; live and paper modes read the exchange's free buckets.
func (t *Tracker) SetupBalances(
	ctx context.Context,
	mode config.TradingMode,
	initialQuote, initialBase decimal.Decimal,
	exchange core.ExchangeService,
	baseCurrency, quoteCurrency string,
) error {
	if mode.IsBacktest() {
		t.mu.Lock()
		t.quoteBalance = initialQuote
		t.baseBalance = initialBase
		t.mu.Unlock()
		return nil
	}

	balances, err := exchange.GetBalance(ctx)
	if err != nil {
		return &core.DataFetchError{Message: "failed to fetch account balances", Err: err}
	}

	t.mu.Lock()
	t.quoteBalance = balances.Free[quoteCurrency]
	t.baseBalance = balances.Free[baseCurrency]
	t.mu.Unlock()

	t.logger.Info("balances initialized from exchange",
		"quote", quoteCurrency, "quote_balance", t.QuoteBalance().String(),
		"base", baseCurrency, "base_balance", t.BaseBalance().String())
	return nil
}

// ReserveFundsForBuy moves amountQuote from the free quote balance into
// the reserved bucket.
func (t *Tracker) ReserveFundsForBuy(amountQuote decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if amountQuote.GreaterThan(t.quoteBalance) {
		return &core.InsufficientBalanceError{
			Required:  amountQuote.String(),
			Available: t.quoteBalance.String(),
		}
	}
	t.quoteBalance = t.quoteBalance.Sub(amountQuote)
	t.reservedQuote = t.reservedQuote.Add(amountQuote)
	return nil
}

// ReserveFundsForSell moves qtyBase from the free base balance into the
// reserved bucket.
func (t *Tracker) ReserveFundsForSell(qtyBase decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if qtyBase.GreaterThan(t.baseBalance) {
		return &core.InsufficientCryptoBalanceError{
			Required:  qtyBase.String(),
			Available: t.baseBalance.String(),
		}
	}
	t.baseBalance = t.baseBalance.Sub(qtyBase)
	t.reservedBase = t.reservedBase.Add(qtyBase)
	return nil
}

// ReleaseBuyReservation returns a reservation to the free quote balance
// after a canceled buy.
func (t *Tracker) ReleaseBuyReservation(amountQuote decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reservedQuote = t.reservedQuote.Sub(amountQuote)
	t.quoteBalance = t.quoteBalance.Add(amountQuote)
	if t.reservedQuote.IsNegative() {
		t.quoteBalance = t.quoteBalance.Add(t.reservedQuote)
		t.reservedQuote = decimal.Zero
	}
}

// ReleaseSellReservation returns a reservation to the free base balance
// after a canceled sell.
func (t *Tracker) ReleaseSellReservation(qtyBase decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reservedBase = t.reservedBase.Sub(qtyBase)
	t.baseBalance = t.baseBalance.Add(qtyBase)
	if t.reservedBase.IsNegative() {
		t.baseBalance = t.baseBalance.Add(t.reservedBase)
		t.reservedBase = decimal.Zero
	}
}

// onOrderFilled settles a fill. Each order id is settled at most once.
func (t *Tracker) onOrderFilled(ctx context.Context, event events.Event) error {
	if event.Order == nil {
		return nil
	}
	t.ApplyFill(event.Order)
	return nil
}

// ApplyFill settles a filled order against the balance buckets.
// Idempotent per order id.
func (t *Tracker) ApplyFill(o *order.Order) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.processed[o.ID] {
		return
	}
	t.processed[o.ID] = true

	fillPrice := o.FillPrice()
	cost := o.Filled.Mul(fillPrice)
	fee := cost.Mul(t.feeRate)

	switch o.Side {
	case order.SideBuy:
		// The reservation was made at the limit price with fee
		// headroom; price improvement flows back to the free bucket.
		refPrice := o.Price
		if !refPrice.IsPositive() {
			refPrice = fillPrice
		}
		release := o.Filled.Mul(refPrice).Mul(decimal.NewFromInt(1).Add(t.feeRate))
		t.reservedQuote = t.reservedQuote.Sub(release)
		t.quoteBalance = t.quoteBalance.Add(release.Sub(cost.Add(fee)))
		if t.reservedQuote.IsNegative() {
			t.quoteBalance = t.quoteBalance.Add(t.reservedQuote)
			t.reservedQuote = decimal.Zero
		}
		t.baseBalance = t.baseBalance.Add(o.Filled)

	case order.SideSell:
		t.reservedBase = t.reservedBase.Sub(o.Filled)
		if t.reservedBase.IsNegative() {
			t.baseBalance = t.baseBalance.Add(t.reservedBase)
			t.reservedBase = decimal.Zero
		}
		t.quoteBalance = t.quoteBalance.Add(cost.Sub(fee))
	}

	t.totalFees = t.totalFees.Add(fee)

	t.logger.Debug("fill settled",
		"order_id", o.ID, "side", o.Side,
		"filled", o.Filled.String(), "price", fillPrice.String(),
		"fee", fee.String())
}

// BuyReservationAmount returns the quote amount to reserve for a buy of
// qty at price, including fee headroom.
func (t *Tracker) BuyReservationAmount(qty, price decimal.Decimal) decimal.Decimal {
	return qty.Mul(price).Mul(decimal.NewFromInt(1).Add(t.feeRate))
}

// QuoteBalance returns the free quote balance.
func (t *Tracker) QuoteBalance() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.quoteBalance
}

// BaseBalance returns the free base balance.
func (t *Tracker) BaseBalance() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.baseBalance
}

// ReservedQuote returns the quote amount committed to open buys.
func (t *Tracker) ReservedQuote() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.reservedQuote
}

// ReservedBase returns the base amount committed to open sells.
func (t *Tracker) ReservedBase() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.reservedBase
}

// TotalFees returns the cumulative fees paid.
func (t *Tracker) TotalFees() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalFees
}

// TotalQuote returns free plus reserved quote.
func (t *Tracker) TotalQuote() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.quoteBalance.Add(t.reservedQuote)
}

// TotalBase returns free plus reserved base.
func (t *Tracker) TotalBase() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.baseBalance.Add(t.reservedBase)
}

// TotalValue returns the account value in quote terms at the given
// price, counting reserved funds.
func (t *Tracker) TotalValue(price decimal.Decimal) decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	quote := t.quoteBalance.Add(t.reservedQuote)
	base := t.baseBalance.Add(t.reservedBase)
	return quote.Add(base.Mul(price))
}
