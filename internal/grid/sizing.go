package grid

import (
	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// OrderSizeForLevel returns the base quantity for one grid order given
// the total quote balance: equal quote allocation per level, converted
// at the current price.
func (m *Manager) OrderSizeForLevel(totalQuote, currentPrice decimal.Decimal) decimal.Decimal {
	if !currentPrice.IsPositive() {
		return decimal.Zero
	}
	m.mu.RLock()
	n := decimal.NewFromInt(int64(len(m.levels)))
	m.mu.RUnlock()
	return totalQuote.Div(n).Div(currentPrice)
}

// InitialOrderQuantity returns the base quantity of the initial market
// buy that brings the crypto position to half the total account value.
// Zero or negative means no initial purchase is needed.
func (m *Manager) InitialOrderQuantity(quoteBalance, baseBalance, currentPrice decimal.Decimal) decimal.Decimal {
	if !currentPrice.IsPositive() {
		return decimal.Zero
	}
	currentValue := baseBalance.Mul(currentPrice)
	targetValue := quoteBalance.Add(currentValue).Div(two)
	qty := targetValue.Sub(currentValue).Div(currentPrice)
	if qty.IsNegative() {
		return decimal.Zero
	}
	return qty
}
