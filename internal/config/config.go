// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	Exchange      ExchangeConfig     `yaml:"exchange"`
	Pair          PairConfig         `yaml:"pair"`
	Trading       TradingConfig      `yaml:"trading"`
	Grid          GridConfig         `yaml:"grid"`
	Risk          RiskConfig         `yaml:"risk_management"`
	Backtest      BacktestConfig     `yaml:"backtest"`
	Timing        TimingConfig       `yaml:"timing"`
	Limits        LimitsConfig       `yaml:"limits"`
	System        SystemConfig       `yaml:"system"`
	Telemetry     TelemetryConfig    `yaml:"telemetry"`
	Notifications NotificationConfig `yaml:"notifications"`
}

// ExchangeConfig contains exchange connection settings
type ExchangeConfig struct {
	Name       string  `yaml:"name"`
	APIKey     string  `yaml:"api_key"`
	SecretKey  string  `yaml:"secret_key"`
	TradingFee float64 `yaml:"trading_fee"`
}

// PairConfig names the traded pair
type PairConfig struct {
	BaseCurrency  string `yaml:"base_currency"`
	QuoteCurrency string `yaml:"quote_currency"`
}

// Symbol returns the concatenated exchange symbol, e.g. BTCUSDT.
func (p PairConfig) Symbol() string {
	return p.BaseCurrency + p.QuoteCurrency
}

// HumanReadable returns the pair in BASE/QUOTE form.
func (p PairConfig) HumanReadable() string {
	return p.BaseCurrency + "/" + p.QuoteCurrency
}

// TradingConfig contains trading mode and initial funding
type TradingConfig struct {
	Mode                   string  `yaml:"mode"`
	InitialBalance         float64 `yaml:"initial_balance"`
	InitialCryptoBalance   float64 `yaml:"initial_crypto_balance"`
	PerformInitialPurchase bool    `yaml:"perform_initial_purchase"`
}

// GridConfig contains the grid geometry parameters
type GridConfig struct {
	StrategyType string  `yaml:"strategy_type"`
	SpacingType  string  `yaml:"spacing_type"`
	NumGrids     int     `yaml:"num_grids"`
	BottomRange  float64 `yaml:"bottom_range"`
	TopRange     float64 `yaml:"top_range"`
	TriggerPrice float64 `yaml:"trigger_price"` // 0 disables trigger gating
	Leverage     int     `yaml:"leverage"`      // perpetual only; 0 or 1 means unleveraged
	MarginMode   string  `yaml:"margin_mode"`   // perpetual only
	ContractSize float64 `yaml:"contract_size"` // perpetual only
	FundingRate  float64 `yaml:"funding_rate"`  // perpetual only; per 8h settlement
}

// ThresholdConfig is a shared enable+threshold pair
type ThresholdConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Threshold float64 `yaml:"threshold"`
}

// RiskConfig contains take profit and stop loss settings
type RiskConfig struct {
	TakeProfit ThresholdConfig `yaml:"take_profit"`
	StopLoss   ThresholdConfig `yaml:"stop_loss"`
}

// BacktestConfig contains historical data settings
type BacktestConfig struct {
	Timeframe string `yaml:"timeframe"`
	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`
}

// TimingConfig contains polling, retry, and slippage settings
type TimingConfig struct {
	PollingIntervalSeconds float64 `yaml:"polling_interval"`
	TickerIntervalSeconds  float64 `yaml:"ticker_interval"`
	MaxRetries             int     `yaml:"max_retries"`
	RetryDelaySeconds      float64 `yaml:"retry_delay"`
	MaxSlippage            float64 `yaml:"max_slippage"`
	RateLimitPerSecond     float64 `yaml:"rate_limit_per_second"`
}

// PollingInterval returns the order status poll interval as a duration.
func (t TimingConfig) PollingInterval() time.Duration {
	return time.Duration(t.PollingIntervalSeconds * float64(time.Second))
}

// TickerInterval returns the live ticker refresh interval as a duration.
func (t TimingConfig) TickerInterval() time.Duration {
	return time.Duration(t.TickerIntervalSeconds * float64(time.Second))
}

// RetryDelay returns the pause between order retry attempts.
func (t TimingConfig) RetryDelay() time.Duration {
	return time.Duration(t.RetryDelaySeconds * float64(time.Second))
}

// LimitsConfig contains exchange order constraints
type LimitsConfig struct {
	MinOrderValue float64 `yaml:"min_order_value"`
	QuantityStep  float64 `yaml:"quantity_step"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	EnableMetrics bool `yaml:"enable_metrics"`
	MetricsPort   int  `yaml:"metrics_port"`
}

// WebhookConfig configures one outbound notification channel
type WebhookConfig struct {
	Type    string `yaml:"type"` // telegram or slack
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
	Channel string `yaml:"channel"`
}

// NotificationConfig contains notification channel settings
type NotificationConfig struct {
	Enabled  bool            `yaml:"enabled"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Exchange.Name == "" {
		c.Exchange.Name = "binance"
	}
	if c.Grid.SpacingType == "" {
		c.Grid.SpacingType = string(SpacingArithmetic)
	}
	if c.Timing.PollingIntervalSeconds == 0 {
		c.Timing.PollingIntervalSeconds = 5
	}
	if c.Timing.TickerIntervalSeconds == 0 {
		c.Timing.TickerIntervalSeconds = 1
	}
	if c.Timing.MaxRetries == 0 {
		c.Timing.MaxRetries = 3
	}
	if c.Timing.RetryDelaySeconds == 0 {
		c.Timing.RetryDelaySeconds = 1
	}
	if c.Timing.MaxSlippage == 0 {
		c.Timing.MaxSlippage = 0.005
	}
	if c.Timing.RateLimitPerSecond == 0 {
		c.Timing.RateLimitPerSecond = 5
	}
	if c.Limits.MinOrderValue == 0 {
		c.Limits.MinOrderValue = 10
	}
	if c.Limits.QuantityStep == 0 {
		c.Limits.QuantityStep = 0.00001
	}
	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
	if c.Telemetry.MetricsPort == 0 {
		c.Telemetry.MetricsPort = 9090
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errors []string

	for _, check := range []func() error{
		c.validateExchange,
		c.validatePair,
		c.validateTrading,
		c.validateGrid,
		c.validateRisk,
		c.validateBacktest,
		c.validateTiming,
		c.validateSystem,
	} {
		if err := check(); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateExchange() error {
	if c.Exchange.TradingFee < 0 || c.Exchange.TradingFee >= 1 {
		return ValidationError{
			Field:   "exchange.trading_fee",
			Value:   c.Exchange.TradingFee,
			Message: "must be in [0, 1)",
		}
	}
	mode, err := ParseTradingMode(c.Trading.Mode)
	if err == nil && !mode.IsBacktest() {
		if c.Exchange.APIKey == "" {
			return ValidationError{
				Field:   "exchange.api_key",
				Message: "API key is required outside backtest mode",
			}
		}
		if c.Exchange.SecretKey == "" {
			return ValidationError{
				Field:   "exchange.secret_key",
				Message: "secret key is required outside backtest mode",
			}
		}
	}
	return nil
}

func (c *Config) validatePair() error {
	if c.Pair.BaseCurrency == "" {
		return ValidationError{
			Field:   "pair.base_currency",
			Message: "base currency is required",
		}
	}
	if c.Pair.QuoteCurrency == "" {
		return ValidationError{
			Field:   "pair.quote_currency",
			Message: "quote currency is required",
		}
	}
	return nil
}

func (c *Config) validateTrading() error {
	if _, err := ParseTradingMode(c.Trading.Mode); err != nil {
		return ValidationError{
			Field:   "trading.mode",
			Value:   c.Trading.Mode,
			Message: "must be one of: backtest, paper_trading, live",
		}
	}
	if c.Trading.InitialBalance < 0 {
		return ValidationError{
			Field:   "trading.initial_balance",
			Value:   c.Trading.InitialBalance,
			Message: "must not be negative",
		}
	}
	if c.Trading.InitialCryptoBalance < 0 {
		return ValidationError{
			Field:   "trading.initial_crypto_balance",
			Value:   c.Trading.InitialCryptoBalance,
			Message: "must not be negative",
		}
	}
	return nil
}

func (c *Config) validateGrid() error {
	if _, err := ParseStrategyType(c.Grid.StrategyType); err != nil {
		return ValidationError{
			Field:   "grid.strategy_type",
			Value:   c.Grid.StrategyType,
			Message: "must be one of: simple_grid, hedged_grid",
		}
	}
	if _, err := ParseSpacingType(c.Grid.SpacingType); err != nil {
		return ValidationError{
			Field:   "grid.spacing_type",
			Value:   c.Grid.SpacingType,
			Message: "must be one of: arithmetic, geometric",
		}
	}
	if c.Grid.NumGrids < 2 {
		return ValidationError{
			Field:   "grid.num_grids",
			Value:   c.Grid.NumGrids,
			Message: "at least two grid levels are required",
		}
	}
	if c.Grid.BottomRange <= 0 {
		return ValidationError{
			Field:   "grid.bottom_range",
			Value:   c.Grid.BottomRange,
			Message: "must be positive",
		}
	}
	if c.Grid.TopRange <= c.Grid.BottomRange {
		return ValidationError{
			Field:   "grid.top_range",
			Value:   c.Grid.TopRange,
			Message: "must be greater than bottom_range",
		}
	}
	if c.Grid.TriggerPrice < 0 {
		return ValidationError{
			Field:   "grid.trigger_price",
			Value:   c.Grid.TriggerPrice,
			Message: "must not be negative",
		}
	}
	if c.Grid.Leverage < 0 {
		return ValidationError{
			Field:   "grid.leverage",
			Value:   c.Grid.Leverage,
			Message: "must not be negative",
		}
	}
	if c.Grid.FundingRate < -1 || c.Grid.FundingRate > 1 {
		return ValidationError{
			Field:   "grid.funding_rate",
			Value:   c.Grid.FundingRate,
			Message: "must be between -1 and 1",
		}
	}
	if c.Grid.MarginMode != "" &&
		c.Grid.MarginMode != string(MarginIsolated) &&
		c.Grid.MarginMode != string(MarginCross) {
		return ValidationError{
			Field:   "grid.margin_mode",
			Value:   c.Grid.MarginMode,
			Message: "must be one of: isolated, cross",
		}
	}
	return nil
}

func (c *Config) validateRisk() error {
	if c.Risk.TakeProfit.Enabled && c.Risk.TakeProfit.Threshold <= 0 {
		return ValidationError{
			Field:   "risk_management.take_profit.threshold",
			Value:   c.Risk.TakeProfit.Threshold,
			Message: "must be positive when take profit is enabled",
		}
	}
	if c.Risk.StopLoss.Enabled && c.Risk.StopLoss.Threshold <= 0 {
		return ValidationError{
			Field:   "risk_management.stop_loss.threshold",
			Value:   c.Risk.StopLoss.Threshold,
			Message: "must be positive when stop loss is enabled",
		}
	}
	return nil
}

func (c *Config) validateBacktest() error {
	mode, err := ParseTradingMode(c.Trading.Mode)
	if err != nil || !mode.IsBacktest() {
		return nil
	}
	if c.Backtest.Timeframe == "" {
		return ValidationError{
			Field:   "backtest.timeframe",
			Message: "timeframe is required in backtest mode",
		}
	}
	start, err := time.Parse(time.RFC3339, c.Backtest.StartDate)
	if err != nil {
		return ValidationError{
			Field:   "backtest.start_date",
			Value:   c.Backtest.StartDate,
			Message: "must be an RFC3339 timestamp",
		}
	}
	end, err := time.Parse(time.RFC3339, c.Backtest.EndDate)
	if err != nil {
		return ValidationError{
			Field:   "backtest.end_date",
			Value:   c.Backtest.EndDate,
			Message: "must be an RFC3339 timestamp",
		}
	}
	if !end.After(start) {
		return ValidationError{
			Field:   "backtest.end_date",
			Value:   c.Backtest.EndDate,
			Message: "must be after start_date",
		}
	}
	return nil
}

func (c *Config) validateTiming() error {
	if c.Timing.PollingIntervalSeconds <= 0 {
		return ValidationError{
			Field:   "timing.polling_interval",
			Value:   c.Timing.PollingIntervalSeconds,
			Message: "must be positive",
		}
	}
	if c.Timing.MaxRetries < 1 {
		return ValidationError{
			Field:   "timing.max_retries",
			Value:   c.Timing.MaxRetries,
			Message: "must be at least 1",
		}
	}
	if c.Timing.MaxSlippage < 0 || c.Timing.MaxSlippage >= 1 {
		return ValidationError{
			Field:   "timing.max_slippage",
			Value:   c.Timing.MaxSlippage,
			Message: "must be in [0, 1)",
		}
	}
	return nil
}

func (c *Config) validateSystem() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

// Mode returns the parsed trading mode. Validate must have succeeded.
func (c *Config) Mode() TradingMode {
	mode, _ := ParseTradingMode(c.Trading.Mode)
	return mode
}

// Strategy returns the parsed strategy type. Validate must have succeeded.
func (c *Config) Strategy() StrategyType {
	st, _ := ParseStrategyType(c.Grid.StrategyType)
	return st
}

// Spacing returns the parsed spacing type. Validate must have succeeded.
func (c *Config) Spacing() SpacingType {
	sp, _ := ParseSpacingType(c.Grid.SpacingType)
	return sp
}

// String returns a string representation of the configuration (with sensitive data masked)
func (c *Config) String() string {
	configCopy := *c
	configCopy.Exchange.APIKey = maskString(configCopy.Exchange.APIKey)
	configCopy.Exchange.SecretKey = maskString(configCopy.Exchange.SecretKey)
	for i := range configCopy.Notifications.Webhooks {
		configCopy.Notifications.Webhooks[i].Token = maskString(configCopy.Notifications.Webhooks[i].Token)
	}

	data, _ := yaml.Marshal(configCopy)
	return string(data)
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func maskString(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

// DefaultConfig returns a default configuration for testing
func DefaultConfig() *Config {
	cfg := &Config{
		Exchange: ExchangeConfig{
			Name:       "binance",
			APIKey:     "test_api_key",
			SecretKey:  "test_secret_key",
			TradingFee: 0.001,
		},
		Pair: PairConfig{
			BaseCurrency:  "BTC",
			QuoteCurrency: "USDT",
		},
		Trading: TradingConfig{
			Mode:           "backtest",
			InitialBalance: 10000,
		},
		Grid: GridConfig{
			StrategyType: "simple_grid",
			SpacingType:  "arithmetic",
			NumGrids:     10,
			BottomRange:  90000,
			TopRange:     99000,
		},
		Risk: RiskConfig{
			TakeProfit: ThresholdConfig{Enabled: false, Threshold: 120000},
			StopLoss:   ThresholdConfig{Enabled: false, Threshold: 80000},
		},
		Backtest: BacktestConfig{
			Timeframe: "1h",
			StartDate: "2024-01-01T00:00:00Z",
			EndDate:   "2024-06-01T00:00:00Z",
		},
	}
	cfg.applyDefaults()
	return cfg
}
