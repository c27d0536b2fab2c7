package grid

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// PositionSide is the direction of a perpetual position.
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// PositionBook tracks perpetual contract positions per level price,
// funding fees, and margin safety. Unused in spot mode.
type PositionBook struct {
	mu sync.RWMutex

	long  map[string]decimal.Decimal // level price -> contracts
	short map[string]decimal.Decimal

	fundingRates     []decimal.Decimal
	totalFundingFees decimal.Decimal

	leverage               decimal.Decimal
	maintenanceMarginRatio decimal.Decimal
}

// NewPositionBook creates a position book for the given leverage. The
// maintenance margin ratio defaults to 1%.
func NewPositionBook(leverage int) *PositionBook {
	lev := int64(leverage)
	if lev < 1 {
		lev = 1
	}
	return &PositionBook{
		long:                   make(map[string]decimal.Decimal),
		short:                  make(map[string]decimal.Decimal),
		leverage:               decimal.NewFromInt(lev),
		maintenanceMarginRatio: decimal.NewFromFloat(0.01),
	}
}

// Leverage returns the configured leverage.
func (p *PositionBook) Leverage() decimal.Decimal {
	return p.leverage
}

// MaintenanceMarginRatio returns the margin ratio below which new
// exposure is rejected.
func (p *PositionBook) MaintenanceMarginRatio() decimal.Decimal {
	return p.maintenanceMarginRatio
}

// UpdatePosition adds contracts at a level price on the given side.
// Negative quantities reduce the position.
func (p *PositionBook) UpdatePosition(price decimal.Decimal, qty decimal.Decimal, side PositionSide) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := price.String()
	book := p.long
	if side == PositionShort {
		book = p.short
	}
	book[key] = book[key].Add(qty)
	if !book[key].IsPositive() {
		delete(book, key)
	}
}

// ClosePosition removes qty contracts from one side, draining the
// lowest-priced entries first, and returns the quantity actually
// closed. Closing more than is held clamps to the held total.
func (p *PositionBook) ClosePosition(qty decimal.Decimal, side PositionSide) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()

	book := p.long
	if side == PositionShort {
		book = p.short
	}

	prices := make([]decimal.Decimal, 0, len(book))
	for key := range book {
		price, err := decimal.NewFromString(key)
		if err != nil {
			continue
		}
		prices = append(prices, price)
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].LessThan(prices[j]) })

	closed := decimal.Zero
	for _, price := range prices {
		if !qty.GreaterThan(closed) {
			break
		}
		key := price.String()
		take := decimal.Min(book[key], qty.Sub(closed))
		book[key] = book[key].Sub(take)
		if !book[key].IsPositive() {
			delete(book, key)
		}
		closed = closed.Add(take)
	}
	return closed
}

// PositionAt returns the contract quantity held at a level price.
func (p *PositionBook) PositionAt(price decimal.Decimal, side PositionSide) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if side == PositionShort {
		return p.short[price.String()]
	}
	return p.long[price.String()]
}

// TotalContracts returns the summed contracts on one side.
func (p *PositionBook) TotalContracts(side PositionSide) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()

	book := p.long
	if side == PositionShort {
		book = p.short
	}
	total := decimal.Zero
	for _, qty := range book {
		total = total.Add(qty)
	}
	return total
}

// RecordFundingRate appends a funding rate observation and returns the
// funding fee charged on the given position value.
func (p *PositionBook) RecordFundingRate(positionValue, rate decimal.Decimal) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.fundingRates = append(p.fundingRates, rate)
	fee := positionValue.Mul(rate)
	p.totalFundingFees = p.totalFundingFees.Add(fee)
	return fee
}

// TotalFundingFees returns the cumulative funding fees paid.
func (p *PositionBook) TotalFundingFees() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.totalFundingFees
}

// MaxOrderSize returns the safe contract quantity for one grid given
// the margin allocated to it: leveraged notional at the current price,
// reduced by the maintenance margin requirement.
func (p *PositionBook) MaxOrderSize(marginPerGrid, currentPrice decimal.Decimal) decimal.Decimal {
	if !currentPrice.IsPositive() {
		return decimal.Zero
	}
	maxSize := marginPerGrid.Mul(p.leverage).Div(currentPrice)
	return maxSize.Mul(decimal.NewFromInt(1).Sub(p.maintenanceMarginRatio))
}

// CheckMarginSafety reports whether the margin ratio stays at or above
// the maintenance requirement for the given totals.
func (p *PositionBook) CheckMarginSafety(totalMargin, totalPositionValue decimal.Decimal) bool {
	if !totalPositionValue.IsPositive() {
		return true
	}
	return totalMargin.Div(totalPositionValue).GreaterThanOrEqual(p.maintenanceMarginRatio)
}
