// Package core defines the shared interfaces and types for the grid bot.
package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ILogger defines the interface for structured logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}

// Balances is the account snapshot returned by an exchange, keyed by currency.
type Balances struct {
	Free  map[string]decimal.Decimal
	Used  map[string]decimal.Decimal
	Total map[string]decimal.Decimal
}

// ExchangeOrder is the raw order shape returned by an exchange adapter.
// The execution strategy parses it into an order.Order.
type ExchangeOrder struct {
	ID        string
	Symbol    string
	Side      string
	Type      string
	Status    string
	Price     decimal.Decimal
	Amount    decimal.Decimal
	Filled    decimal.Decimal
	Remaining decimal.Decimal
	Average   decimal.Decimal
	Fee       decimal.Decimal
	Timestamp int64
}

// CancelResult is the exchange response to a cancel request.
type CancelResult struct {
	Status string
}

// ExchangeStatus is the exchange platform status.
type ExchangeStatus struct {
	Status string
}

// Candle is one OHLCV bar.
type Candle struct {
	Timestamp int64
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// TickerCallback receives a price on every ticker refresh.
type TickerCallback func(ctx context.Context, price decimal.Decimal)

// ExchangeService defines the interface for exchange adapters.
// All methods that issue network requests accept a context.
type ExchangeService interface {
	GetBalance(ctx context.Context) (Balances, error)
	PlaceOrder(ctx context.Context, symbol, orderType, side string, qty, price decimal.Decimal) (ExchangeOrder, error)
	FetchOrder(ctx context.Context, orderID, symbol string) (ExchangeOrder, error)
	CancelOrder(ctx context.Context, orderID, symbol string) (CancelResult, error)
	FetchOHLCV(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]Candle, error)
	ListenToTickerUpdates(ctx context.Context, symbol string, cb TickerCallback, interval time.Duration) error
	GetExchangeStatus(ctx context.Context) (ExchangeStatus, error)
	CloseConnection() error
}

// IHealthMonitor aggregates component health checks.
type IHealthMonitor interface {
	Register(component string, check func() error)
	GetStatus() map[string]string
	IsHealthy() bool
}
