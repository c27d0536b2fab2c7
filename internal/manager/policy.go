// Package manager places and reconciles grid orders: the initial
// ladder, paired orders after fills, and take profit / stop loss exits.
package manager

import (
	"github.com/shopspring/decimal"

	"gridbot/internal/core"
	"gridbot/internal/grid"
	"gridbot/internal/order"
)

// SizingPolicy computes order quantities. Spot and perpetual trading
// differ only in these calculations.
type SizingPolicy interface {
	// OrderSize returns the base quantity for one grid level.
	OrderSize(totalQuote, currentPrice decimal.Decimal) decimal.Decimal
	// InitialQuantity returns the base quantity for the initial market
	// buy; zero means skip it.
	InitialQuantity(quoteBalance, baseBalance, currentPrice decimal.Decimal) decimal.Decimal
}

// ValidationPolicy adjusts quantities to exchange limits and available
// funds before submission.
type ValidationPolicy interface {
	AdjustBuy(quoteBalance, qty, price decimal.Decimal) (decimal.Decimal, error)
	AdjustSell(baseBalance, qty decimal.Decimal) (decimal.Decimal, error)
}

// PositionRecorder is implemented by sizing policies that carry open
// contracts. price is the filled grid level's price.
type PositionRecorder interface {
	RecordFill(side order.Side, price, qty decimal.Decimal)
}

// SpotSizing allocates the quote balance evenly across levels and
// targets a half-value crypto position for the initial purchase.
type SpotSizing struct {
	Grid *grid.Manager
}

func (s SpotSizing) OrderSize(totalQuote, currentPrice decimal.Decimal) decimal.Decimal {
	return s.Grid.OrderSizeForLevel(totalQuote, currentPrice)
}

func (s SpotSizing) InitialQuantity(quoteBalance, baseBalance, currentPrice decimal.Decimal) decimal.Decimal {
	return s.Grid.InitialOrderQuantity(quoteBalance, baseBalance, currentPrice)
}

// PerpetualSizing sizes contracts from per-grid margin and leverage,
// keeping headroom for the maintenance margin requirement.
type PerpetualSizing struct {
	Grid      *grid.Manager
	Positions *grid.PositionBook
}

func (p PerpetualSizing) OrderSize(totalMargin, currentPrice decimal.Decimal) decimal.Decimal {
	if !currentPrice.IsPositive() {
		return decimal.Zero
	}
	marginPerGrid := totalMargin.Div(decimal.NewFromInt(int64(p.Grid.NumLevels())))
	return p.Positions.MaxOrderSize(marginPerGrid, currentPrice)
}

func (p PerpetualSizing) InitialQuantity(availableMargin, currentContracts, currentPrice decimal.Decimal) decimal.Decimal {
	if !currentPrice.IsPositive() {
		return decimal.Zero
	}
	leverage := p.Positions.Leverage()
	targetValue := availableMargin.Mul(leverage).Div(decimal.NewFromInt(2))
	currentValue := currentContracts.Mul(currentPrice)

	valueToOpen := targetValue.Sub(currentValue)
	maxValue := availableMargin.Mul(leverage)
	if valueToOpen.GreaterThan(maxValue) {
		valueToOpen = maxValue
	}
	qty := valueToOpen.Div(currentPrice)
	if qty.IsNegative() {
		return decimal.Zero
	}
	return qty
}

// RecordFill keeps the position book in step with grid fills: a buy
// opens long contracts at its level, a sell closes the cheapest open
// entries.
func (p PerpetualSizing) RecordFill(side order.Side, price, qty decimal.Decimal) {
	switch side {
	case order.SideBuy:
		p.Positions.UpdatePosition(price, qty, grid.PositionLong)
	case order.SideSell:
		p.Positions.ClosePosition(qty, grid.PositionLong)
	}
}

// SpotValidation applies exchange limits and spot balance checks.
type SpotValidation struct {
	Validator *order.Validator
}

func (v SpotValidation) AdjustBuy(quoteBalance, qty, price decimal.Decimal) (decimal.Decimal, error) {
	return v.Validator.AdjustAndValidateBuyQuantity(quoteBalance, qty, price)
}

func (v SpotValidation) AdjustSell(baseBalance, qty decimal.Decimal) (decimal.Decimal, error) {
	return v.Validator.AdjustAndValidateSellQuantity(baseBalance, qty)
}

// PerpetualValidation applies exchange limits against margin-scaled
// buying power.
type PerpetualValidation struct {
	Validator *order.Validator
	Positions *grid.PositionBook
}

func (v PerpetualValidation) AdjustBuy(marginBalance, qty, price decimal.Decimal) (decimal.Decimal, error) {
	buyingPower := marginBalance.Mul(v.Positions.Leverage())
	adjusted, err := v.Validator.AdjustAndValidateBuyQuantity(buyingPower, qty, price)
	if err != nil {
		return decimal.Zero, err
	}

	// Reject orders that would push the margin ratio below maintenance.
	exposure := v.Positions.TotalContracts(grid.PositionLong).Add(adjusted).Mul(price)
	if !v.Positions.CheckMarginSafety(marginBalance, exposure) {
		return decimal.Zero, &core.InsufficientBalanceError{
			Required:  exposure.Mul(v.Positions.MaintenanceMarginRatio()).String(),
			Available: marginBalance.String(),
		}
	}
	return adjusted, nil
}

func (v PerpetualValidation) AdjustSell(contracts, qty decimal.Decimal) (decimal.Decimal, error) {
	return v.Validator.AdjustAndValidateSellQuantity(contracts, qty)
}
