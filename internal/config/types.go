package config

import (
	"fmt"
	"strings"
)

// TradingMode selects the environment orders are executed against.
type TradingMode string

const (
	ModeBacktest TradingMode = "backtest"
	ModePaper    TradingMode = "paper_trading"
	ModeLive     TradingMode = "live"
)

// ParseTradingMode parses a trading mode string, case-insensitive.
func ParseTradingMode(s string) (TradingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "backtest":
		return ModeBacktest, nil
	case "paper_trading":
		return ModePaper, nil
	case "live":
		return ModeLive, nil
	default:
		return "", fmt.Errorf("unknown trading mode: %q", s)
	}
}

// IsBacktest reports whether orders are simulated from historical data.
func (m TradingMode) IsBacktest() bool { return m == ModeBacktest }

// StrategyType selects how grid levels cycle between buying and selling.
type StrategyType string

const (
	StrategySimpleGrid StrategyType = "simple_grid"
	StrategyHedgedGrid StrategyType = "hedged_grid"
)

// ParseStrategyType parses a strategy type string, case-insensitive.
func ParseStrategyType(s string) (StrategyType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simple_grid":
		return StrategySimpleGrid, nil
	case "hedged_grid":
		return StrategyHedgedGrid, nil
	default:
		return "", fmt.Errorf("unknown strategy type: %q", s)
	}
}

// SpacingType selects the grid ladder geometry.
type SpacingType string

const (
	SpacingArithmetic SpacingType = "arithmetic"
	SpacingGeometric  SpacingType = "geometric"
)

// ParseSpacingType parses a spacing type string, case-insensitive.
func ParseSpacingType(s string) (SpacingType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "arithmetic":
		return SpacingArithmetic, nil
	case "geometric":
		return SpacingGeometric, nil
	default:
		return "", fmt.Errorf("unknown spacing type: %q", s)
	}
}

// MarginMode selects how perpetual margin is allocated.
type MarginMode string

const (
	MarginIsolated MarginMode = "isolated"
	MarginCross    MarginMode = "cross"
)
