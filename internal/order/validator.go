package order

import (
	"github.com/shopspring/decimal"

	"gridbot/internal/core"
)

// Validator snaps order quantities to exchange limits before submission.
type Validator struct {
	minOrderValue decimal.Decimal
	quantityStep  decimal.Decimal
}

// NewValidator creates a validator with the exchange's minimum notional
// value and quantity step size.
func NewValidator(minOrderValue, quantityStep decimal.Decimal) *Validator {
	return &Validator{
		minOrderValue: minOrderValue,
		quantityStep:  quantityStep,
	}
}

// floorToStep rounds a quantity down to the nearest step multiple.
func (v *Validator) floorToStep(qty decimal.Decimal) decimal.Decimal {
	if v.quantityStep.IsZero() {
		return qty
	}
	return qty.Div(v.quantityStep).Floor().Mul(v.quantityStep)
}

// ceilToStep rounds a quantity up to the nearest step multiple.
func (v *Validator) ceilToStep(qty decimal.Decimal) decimal.Decimal {
	if v.quantityStep.IsZero() {
		return qty
	}
	return qty.Div(v.quantityStep).Ceil().Mul(v.quantityStep)
}

// AdjustAndValidateBuyQuantity snaps a buy quantity to the step size,
// raises it to the minimum notional when needed, and checks the order
// cost against the available quote balance.
func (v *Validator) AdjustAndValidateBuyQuantity(balance, qty, price decimal.Decimal) (decimal.Decimal, error) {
	adjusted := v.floorToStep(qty)

	if adjusted.Mul(price).LessThan(v.minOrderValue) && price.IsPositive() {
		adjusted = v.ceilToStep(v.minOrderValue.Div(price))
	}

	if !adjusted.IsPositive() {
		return decimal.Zero, &core.InsufficientBalanceError{
			Required:  v.minOrderValue.String(),
			Available: balance.String(),
		}
	}

	cost := adjusted.Mul(price)
	if cost.GreaterThan(balance) {
		return decimal.Zero, &core.InsufficientBalanceError{
			Required:  cost.String(),
			Available: balance.String(),
		}
	}
	return adjusted, nil
}

// AdjustAndValidateSellQuantity snaps a sell quantity to the step size
// and checks it against the available crypto balance.
func (v *Validator) AdjustAndValidateSellQuantity(cryptoBalance, qty decimal.Decimal) (decimal.Decimal, error) {
	adjusted := v.floorToStep(qty)

	if !adjusted.IsPositive() || adjusted.GreaterThan(cryptoBalance) {
		return decimal.Zero, &core.InsufficientCryptoBalanceError{
			Required:  adjusted.String(),
			Available: cryptoBalance.String(),
		}
	}
	return adjusted, nil
}
