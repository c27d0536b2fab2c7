// Package exchange selects and constructs the configured exchange
// adapter.
package exchange

import (
	"strings"

	"gridbot/internal/config"
	"gridbot/internal/core"
	"gridbot/internal/exchange/binance"
)

// New returns the adapter for the configured exchange.
func New(cfg config.ExchangeConfig, logger core.ILogger) (core.ExchangeService, error) {
	switch strings.ToLower(cfg.Name) {
	case "binance":
		return binance.New(cfg.APIKey, cfg.SecretKey, logger), nil
	default:
		return nil, &core.UnsupportedExchangeError{Exchange: cfg.Name}
	}
}
