package core

import "fmt"

// ConfigError reports invalid grid geometry or an unknown strategy,
// spacing, or trading mode. Fatal at init.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error: %s", e.Message)
	}
	return fmt.Sprintf("config error: field %q: %s", e.Field, e.Message)
}

// InsufficientBalanceError is raised when a buy cannot be funded from
// the free quote balance.
type InsufficientBalanceError struct {
	Required  string
	Available string
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient quote balance: required %s, available %s", e.Required, e.Available)
}

// InsufficientCryptoBalanceError is raised when a sell exceeds the free
// base balance.
type InsufficientCryptoBalanceError struct {
	Required  string
	Available string
}

func (e *InsufficientCryptoBalanceError) Error() string {
	return fmt.Sprintf("insufficient crypto balance: required %s, available %s", e.Required, e.Available)
}

// OrderExecutionFailedError is raised by the live execution strategy
// after all retries are exhausted.
type OrderExecutionFailedError struct {
	Side    string
	Type    string
	Pair    string
	Message string
	Err     error
}

func (e *OrderExecutionFailedError) Error() string {
	return fmt.Sprintf("order execution failed (%s %s %s): %s", e.Side, e.Type, e.Pair, e.Message)
}

func (e *OrderExecutionFailedError) Unwrap() error { return e.Err }

// DataFetchError reports exchange connectivity or response-shape
// failures on a data path.
type DataFetchError struct {
	Message string
	Err     error
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("data fetch error: %s", e.Message)
}

func (e *DataFetchError) Unwrap() error { return e.Err }

// UnsupportedExchangeError is fatal at startup.
type UnsupportedExchangeError struct {
	Exchange string
}

func (e *UnsupportedExchangeError) Error() string {
	return fmt.Sprintf("unsupported exchange: %s", e.Exchange)
}

// UnsupportedTimeframeError is fatal at startup.
type UnsupportedTimeframeError struct {
	Timeframe string
}

func (e *UnsupportedTimeframeError) Error() string {
	return fmt.Sprintf("unsupported timeframe: %s", e.Timeframe)
}
