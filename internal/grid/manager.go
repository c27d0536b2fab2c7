package grid

import (
	"fmt"
	"math"
	"sync"

	"github.com/shopspring/decimal"

	"gridbot/internal/config"
	"gridbot/internal/core"
	"gridbot/internal/order"
)

// Manager owns the ladder geometry, the per-level state machine, and
// the pairing links between buy and sell levels.
type Manager struct {
	mu sync.RWMutex

	levels       []*Level
	centralPrice decimal.Decimal
	strategyType config.StrategyType

	// Pairing links by level index, stored in both directions so a
	// reverse fill re-targets the original level by default.
	pairedSell map[int]int // buy level -> sell level
	pairedBuy  map[int]int // sell level -> buy level

	logger core.ILogger
}

// Geometry holds the ladder construction inputs.
type Geometry struct {
	Bottom   decimal.Decimal
	Top      decimal.Decimal
	NumGrids int
	Spacing  config.SpacingType
	Leverage int // 0 or 1 for spot; >1 widens arithmetic spacing
}

// NewManager builds the ladder and assigns initial level states.
func NewManager(geom Geometry, strategyType config.StrategyType, logger core.ILogger) (*Manager, error) {
	prices, central, err := buildPrices(geom)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		centralPrice: central,
		strategyType: strategyType,
		pairedSell:   make(map[int]int),
		pairedBuy:    make(map[int]int),
		logger:       logger.WithField("component", "grid_manager"),
	}

	top := len(prices) - 1
	for i, price := range prices {
		state := m.initialState(i, top, price)
		m.levels = append(m.levels, &Level{Index: i, Price: price, State: state})
	}

	m.logger.Info("grid initialized",
		"num_levels", len(m.levels),
		"bottom", prices[0].String(),
		"top", prices[top].String(),
		"central_price", central.String(),
		"strategy_type", strategyType)
	return m, nil
}

func (m *Manager) initialState(index, top int, price decimal.Decimal) CycleState {
	switch m.strategyType {
	case config.StrategyHedgedGrid:
		if index == top {
			return StateReadyToSell
		}
		return StateReadyToBuyOrSell
	default:
		if price.LessThanOrEqual(m.centralPrice) {
			return StateReadyToBuy
		}
		return StateReadyToSell
	}
}

// buildPrices computes the ladder prices and the central price.
func buildPrices(geom Geometry) ([]decimal.Decimal, decimal.Decimal, error) {
	if !geom.Bottom.IsPositive() {
		return nil, decimal.Zero, &core.ConfigError{
			Field:   "bottom_range",
			Message: fmt.Sprintf("must be positive, got %s", geom.Bottom.String()),
		}
	}
	if geom.Top.LessThanOrEqual(geom.Bottom) {
		return nil, decimal.Zero, &core.ConfigError{
			Field:   "top_range",
			Message: fmt.Sprintf("must exceed bottom_range, got %s", geom.Top.String()),
		}
	}
	if geom.NumGrids < 2 {
		return nil, decimal.Zero, &core.ConfigError{
			Field:   "num_grids",
			Message: fmt.Sprintf("must be at least 2, got %d", geom.NumGrids),
		}
	}

	n := geom.NumGrids
	prices := make([]decimal.Decimal, 0, n)

	switch geom.Spacing {
	case config.SpacingArithmetic:
		step := geom.Top.Sub(geom.Bottom).Div(decimal.NewFromInt(int64(n - 1)))
		if geom.Leverage > 1 {
			// Wider rungs at higher leverage to keep per-level risk down.
			factor := decimal.NewFromFloat(1 + float64(geom.Leverage-1)*0.1)
			step = step.Mul(factor)
		}
		for i := 0; i < n; i++ {
			prices = append(prices, geom.Bottom.Add(step.Mul(decimal.NewFromInt(int64(i)))))
		}
		central := geom.Top.Add(geom.Bottom).Div(decimal.NewFromInt(2))
		return prices, central, nil

	case config.SpacingGeometric:
		topF, _ := geom.Top.Float64()
		bottomF, _ := geom.Bottom.Float64()
		ratio := decimal.NewFromFloat(math.Pow(topF/bottomF, 1/float64(n-1)))
		price := geom.Bottom
		for i := 0; i < n; i++ {
			prices = append(prices, price)
			price = price.Mul(ratio)
		}
		mid := n / 2
		var central decimal.Decimal
		if n%2 == 0 {
			central = prices[mid-1].Add(prices[mid]).Div(decimal.NewFromInt(2))
		} else {
			central = prices[mid]
		}
		return prices, central, nil

	default:
		return nil, decimal.Zero, &core.ConfigError{
			Field:   "spacing_type",
			Message: fmt.Sprintf("unrecognized spacing type %q", geom.Spacing),
		}
	}
}

// NumLevels returns the ladder length.
func (m *Manager) NumLevels() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.levels)
}

// CentralPrice returns the price partitioning initial buys from sells.
func (m *Manager) CentralPrice() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.centralPrice
}

// Prices returns the ladder prices in ascending order.
func (m *Manager) Prices() []decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]decimal.Decimal, len(m.levels))
	for i, l := range m.levels {
		out[i] = l.Price
	}
	return out
}

// Level returns a snapshot of one level.
func (m *Manager) Level(index int) (Level, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if index < 0 || index >= len(m.levels) {
		return Level{}, false
	}
	return *m.levels[index], true
}

// BuyLevelIndexes returns the indexes eligible for initial buys, ascending.
func (m *Manager) BuyLevelIndexes() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []int
	top := len(m.levels) - 1
	for i, l := range m.levels {
		switch m.strategyType {
		case config.StrategyHedgedGrid:
			if i != top {
				out = append(out, i)
			}
		default:
			if l.Price.LessThanOrEqual(m.centralPrice) {
				out = append(out, i)
			}
		}
	}
	return out
}

// SellLevelIndexes returns the indexes eligible for initial sells, ascending.
func (m *Manager) SellLevelIndexes() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []int
	for i, l := range m.levels {
		switch m.strategyType {
		case config.StrategyHedgedGrid:
			if i != 0 {
				out = append(out, i)
			}
		default:
			if l.Price.GreaterThan(m.centralPrice) {
				out = append(out, i)
			}
		}
	}
	return out
}

// CanPlaceOrder reports whether the level accepts an order of that side.
func (m *Manager) CanPlaceOrder(index int, side order.Side) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if index < 0 || index >= len(m.levels) {
		return false
	}
	return m.levels[index].CanPlace(side)
}

// MarkOrderPending records a placed order on the level and moves it to
// the corresponding waiting state.
func (m *Manager) MarkOrderPending(index int, side order.Side, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.levels) {
		return fmt.Errorf("no grid level at index %d", index)
	}
	return m.levels[index].markPending(side, orderID)
}

// CompleteOrder transitions the level after its resting order filled.
func (m *Manager) CompleteOrder(index int, side order.Side) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.levels) {
		return fmt.Errorf("no grid level at index %d", index)
	}
	level := m.levels[index]
	level.PendingOrderID = ""

	switch m.strategyType {
	case config.StrategyHedgedGrid:
		level.State = StateReadyToBuyOrSell
		if side == order.SideBuy {
			if sell, ok := m.pairedSell[index]; ok {
				m.levels[sell].State = StateReadyToSell
			}
		} else {
			if buy, ok := m.pairedBuy[index]; ok {
				m.levels[buy].State = StateReadyToBuy
			}
		}
	default:
		if side == order.SideBuy {
			level.State = StateReadyToSell
		} else {
			level.State = StateReadyToBuy
		}
	}

	m.logger.Debug("level transitioned after fill",
		"index", index, "price", level.Price.String(),
		"side", side, "state", level.State)
	return nil
}

// MarkCanceled reverts the level to its ready state after a cancel.
func (m *Manager) MarkCanceled(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.levels) {
		return fmt.Errorf("no grid level at index %d", index)
	}
	level := m.levels[index]
	level.PendingOrderID = ""

	if m.strategyType == config.StrategyHedgedGrid {
		level.State = StateReadyToBuyOrSell
		return nil
	}
	switch level.State {
	case StateWaitingForBuyFill:
		level.State = StateReadyToBuy
	case StateWaitingForSellFill:
		level.State = StateReadyToSell
	}
	return nil
}

// PairLevels records a bidirectional pairing between a buy level and
// the sell level serving it.
func (m *Manager) PairLevels(buyIndex, sellIndex int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pairedSell[buyIndex] = sellIndex
	m.pairedBuy[sellIndex] = buyIndex
}

// PairedSellLevel returns the level for the sell paired to a filled buy:
// the smallest level above it that can currently take a sell.
func (m *Manager) PairedSellLevel(buyIndex int) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := buyIndex + 1; i < len(m.levels); i++ {
		if m.levels[i].CanPlace(order.SideSell) {
			return i, true
		}
	}
	return 0, false
}

// PairedBuyLevel returns the level for the buy paired to a filled sell:
// the stored pairing when still placeable, else the greatest level
// below that can currently take a buy.
func (m *Manager) PairedBuyLevel(sellIndex int) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if buy, ok := m.pairedBuy[sellIndex]; ok && m.levels[buy].CanPlace(order.SideBuy) {
		return buy, true
	}
	for i := sellIndex - 1; i >= 0; i-- {
		if m.levels[i].CanPlace(order.SideBuy) {
			return i, true
		}
	}
	return 0, false
}

// LevelPrice returns the price at an index.
func (m *Manager) LevelPrice(index int) decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if index < 0 || index >= len(m.levels) {
		return decimal.Zero
	}
	return m.levels[index].Price
}
