// Package binance adapts the Binance spot REST API to the
// core.ExchangeService interface.
package binance

import (
	"context"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gridbot/internal/core"
)

// timeframes maps the config timeframe names to Binance kline intervals.
// They happen to coincide, so the map doubles as the allow list.
var timeframes = map[string]string{
	"1m":  "1m",
	"3m":  "3m",
	"5m":  "5m",
	"15m": "15m",
	"30m": "30m",
	"1h":  "1h",
	"2h":  "2h",
	"4h":  "4h",
	"6h":  "6h",
	"8h":  "8h",
	"12h": "12h",
	"1d":  "1d",
	"3d":  "3d",
	"1w":  "1w",
}

// klineBatchLimit is the maximum number of candles per klines request.
const klineBatchLimit = 1000

// Exchange is the Binance spot implementation of core.ExchangeService.
type Exchange struct {
	client *binance.Client
	logger core.ILogger
}

// New creates a Binance spot exchange adapter.
func New(apiKey, secretKey string, logger core.ILogger) *Exchange {
	return &Exchange{
		client: binance.NewClient(apiKey, secretKey),
		logger: logger.WithField("component", "binance"),
	}
}

// GetBalance returns the spot account balances keyed by asset.
func (e *Exchange) GetBalance(ctx context.Context) (core.Balances, error) {
	account, err := e.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return core.Balances{}, &core.DataFetchError{Message: "failed to fetch account balances", Err: err}
	}

	balances := core.Balances{
		Free:  make(map[string]decimal.Decimal),
		Used:  make(map[string]decimal.Decimal),
		Total: make(map[string]decimal.Decimal),
	}
	for _, b := range account.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			continue
		}
		locked, err := decimal.NewFromString(b.Locked)
		if err != nil {
			continue
		}
		if free.IsZero() && locked.IsZero() {
			continue
		}
		balances.Free[b.Asset] = free
		balances.Used[b.Asset] = locked
		balances.Total[b.Asset] = free.Add(locked)
	}
	return balances, nil
}

// PlaceOrder submits a market or limit order and returns the exchange's
// view of it. Limit orders are GTC.
func (e *Exchange) PlaceOrder(ctx context.Context, symbol, orderType, side string, qty, price decimal.Decimal) (core.ExchangeOrder, error) {
	svc := e.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideType(side)).
		Quantity(qty.String()).
		NewClientOrderID(uuid.NewString())

	switch binance.OrderType(orderType) {
	case binance.OrderTypeLimit:
		svc = svc.Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Price(price.String())
	case binance.OrderTypeMarket:
		svc = svc.Type(binance.OrderTypeMarket)
	default:
		return core.ExchangeOrder{}, &core.DataFetchError{Message: "unknown order type " + orderType}
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return core.ExchangeOrder{}, err
	}

	order := core.ExchangeOrder{
		ID:        strconv.FormatInt(res.OrderID, 10),
		Symbol:    res.Symbol,
		Side:      string(res.Side),
		Type:      string(res.Type),
		Status:    string(res.Status),
		Price:     parseDecimal(res.Price),
		Amount:    parseDecimal(res.OrigQuantity),
		Filled:    parseDecimal(res.ExecutedQuantity),
		Timestamp: res.TransactTime,
	}
	order.Remaining = order.Amount.Sub(order.Filled)
	order.Average, order.Fee = fillAverageAndFee(res.Fills, order.Filled)
	if order.Average.IsZero() {
		order.Average = order.Price
	}
	return order, nil
}

// FetchOrder looks up a previously placed order by id.
func (e *Exchange) FetchOrder(ctx context.Context, orderID, symbol string) (core.ExchangeOrder, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return core.ExchangeOrder{}, &core.DataFetchError{Message: "invalid order id " + orderID, Err: err}
	}

	res, err := e.client.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return core.ExchangeOrder{}, &core.DataFetchError{Message: "failed to fetch order " + orderID, Err: err}
	}

	order := core.ExchangeOrder{
		ID:        strconv.FormatInt(res.OrderID, 10),
		Symbol:    res.Symbol,
		Side:      string(res.Side),
		Type:      string(res.Type),
		Status:    string(res.Status),
		Price:     parseDecimal(res.Price),
		Amount:    parseDecimal(res.OrigQuantity),
		Filled:    parseDecimal(res.ExecutedQuantity),
		Timestamp: res.Time,
	}
	order.Remaining = order.Amount.Sub(order.Filled)

	// Spot order lookups report the cumulative quote volume rather than
	// an average price.
	quoteVolume := parseDecimal(res.CummulativeQuoteQuantity)
	if order.Filled.IsPositive() && quoteVolume.IsPositive() {
		order.Average = quoteVolume.Div(order.Filled)
	} else {
		order.Average = order.Price
	}
	return order, nil
}

// CancelOrder cancels an open order by id.
func (e *Exchange) CancelOrder(ctx context.Context, orderID, symbol string) (core.CancelResult, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return core.CancelResult{}, &core.DataFetchError{Message: "invalid order id " + orderID, Err: err}
	}

	res, err := e.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return core.CancelResult{}, err
	}
	return core.CancelResult{Status: string(res.Status)}, nil
}

// FetchOHLCV pages through the klines endpoint until the requested range
// is covered.
func (e *Exchange) FetchOHLCV(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]core.Candle, error) {
	interval, ok := timeframes[timeframe]
	if !ok {
		return nil, &core.UnsupportedTimeframeError{Timeframe: timeframe}
	}

	var candles []core.Candle
	from := start.UnixMilli()
	until := end.UnixMilli()

	for from < until {
		klines, err := e.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(from).
			EndTime(until).
			Limit(klineBatchLimit).
			Do(ctx)
		if err != nil {
			return nil, &core.DataFetchError{Message: "failed to fetch klines", Err: err}
		}
		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			candles = append(candles, core.Candle{
				Timestamp: k.OpenTime,
				Open:      parseDecimal(k.Open),
				High:      parseDecimal(k.High),
				Low:       parseDecimal(k.Low),
				Close:     parseDecimal(k.Close),
				Volume:    parseDecimal(k.Volume),
			})
		}
		from = klines[len(klines)-1].CloseTime + 1
	}

	e.logger.Debug("fetched historical candles",
		"symbol", symbol, "timeframe", timeframe, "count", len(candles))
	return candles, nil
}

// ListenToTickerUpdates polls the last price on an interval and invokes
// the callback with each observation. It blocks until the context is
// cancelled. Transient fetch failures are logged and skipped.
func (e *Exchange) ListenToTickerUpdates(ctx context.Context, symbol string, cb core.TickerCallback, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			prices, err := e.client.NewListPricesService().Symbol(symbol).Do(ctx)
			if err != nil {
				e.logger.Warn("ticker fetch failed", "symbol", symbol, "error", err)
				continue
			}
			if len(prices) == 0 {
				continue
			}
			price, err := decimal.NewFromString(prices[0].Price)
			if err != nil {
				e.logger.Warn("unparseable ticker price", "value", prices[0].Price)
				continue
			}
			cb(ctx, price)
		}
	}
}

// GetExchangeStatus pings the API and reports reachability.
func (e *Exchange) GetExchangeStatus(ctx context.Context) (core.ExchangeStatus, error) {
	if err := e.client.NewPingService().Do(ctx); err != nil {
		return core.ExchangeStatus{Status: "unreachable"}, err
	}
	return core.ExchangeStatus{Status: "ok"}, nil
}

// CloseConnection is a no-op for the REST client.
func (e *Exchange) CloseConnection() error { return nil }

// fillAverageAndFee computes the volume-weighted average price and total
// commission across the immediate fills of a create-order response.
func fillAverageAndFee(fills []*binance.Fill, filled decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if len(fills) == 0 || !filled.IsPositive() {
		return decimal.Zero, decimal.Zero
	}
	notional := decimal.Zero
	fee := decimal.Zero
	for _, f := range fills {
		price := parseDecimal(f.Price)
		qty := parseDecimal(f.Quantity)
		notional = notional.Add(price.Mul(qty))
		fee = fee.Add(parseDecimal(f.Commission))
	}
	return notional.Div(filled), fee
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
