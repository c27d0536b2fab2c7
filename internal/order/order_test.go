package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbot/internal/core"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"NEW", StatusOpen},
		{"PARTIALLY_FILLED", StatusOpen},
		{"open", StatusOpen},
		{"FILLED", StatusClosed},
		{"closed", StatusClosed},
		{"CANCELED", StatusCanceled},
		{"cancelled", StatusCanceled},
		{"EXPIRED", StatusExpired},
		{"REJECTED", StatusRejected},
		{"PENDING_NEW", StatusUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseStatus(tt.raw), tt.raw)
	}
}

func TestStatusIsTerminal(t *testing.T) {
	assert.False(t, StatusOpen.IsTerminal())
	assert.False(t, StatusUnknown.IsTerminal())
	assert.True(t, StatusClosed.IsTerminal())
	assert.True(t, StatusCanceled.IsTerminal())
	assert.True(t, StatusExpired.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
}

func TestFromExchange(t *testing.T) {
	raw := core.ExchangeOrder{
		ID:        "42",
		Symbol:    "BTCUSDT",
		Side:      "buy",
		Type:      "limit",
		Status:    "NEW",
		Price:     d("91000"),
		Amount:    d("0.01"),
		Remaining: d("0.01"),
		Timestamp: 1700000000000,
	}

	o, err := FromExchange(raw)
	require.NoError(t, err)
	assert.Equal(t, SideBuy, o.Side)
	assert.Equal(t, TypeLimit, o.Type)
	assert.Equal(t, StatusOpen, o.Status)
	assert.True(t, o.IsOpen())
	assert.False(t, o.IsFilled())

	raw.Side = "short"
	_, err = FromExchange(raw)
	assert.Error(t, err)
}

func TestFillPricePrefersAverage(t *testing.T) {
	o := &Order{Price: d("100"), Average: d("101.5")}
	assert.True(t, o.FillPrice().Equal(d("101.5")))

	o.Average = decimal.Zero
	assert.True(t, o.FillPrice().Equal(d("100")))
}

func TestBookAddAndPartitions(t *testing.T) {
	b := NewBook()
	buy := &Order{ID: "1", Side: SideBuy, Status: StatusOpen, Amount: d("1")}
	sell := &Order{ID: "2", Side: SideSell, Status: StatusOpen, Amount: d("1")}

	b.Add(buy, 3)
	b.Add(sell, NoLevel)

	got, ok := b.Get("1")
	require.True(t, ok)
	assert.Equal(t, buy, got)

	level, ok := b.LevelFor("1")
	require.True(t, ok)
	assert.Equal(t, 3, level)

	_, ok = b.LevelFor("2")
	assert.False(t, ok)

	assert.Len(t, b.BuyOrders(), 1)
	assert.Len(t, b.SellOrders(), 1)
	assert.Len(t, b.AllOrders(), 2)
	assert.Len(t, b.OpenOrders(), 2)
	assert.Empty(t, b.CompletedOrders())
}

func TestBookOpenOrdersDeterministic(t *testing.T) {
	b := NewBook()
	for i := 0; i < 8; i++ {
		b.Add(&Order{
			ID:     "buy-" + string(rune('0'+i)),
			Side:   SideBuy,
			Status: StatusOpen,
			Amount: d("1"),
		}, i)
	}
	// A closed order and a resting sell interleave with the buys.
	b.Add(&Order{ID: "done", Side: SideBuy, Status: StatusClosed, Amount: d("1")}, 8)
	b.Add(&Order{ID: "sell-0", Side: SideSell, Status: StatusOpen, Amount: d("1")}, 9)

	want := []string{
		"buy-0", "buy-1", "buy-2", "buy-3",
		"buy-4", "buy-5", "buy-6", "buy-7",
		"sell-0",
	}
	// Every call walks the placement-ordered sides, so backtest fill
	// replay sees the same sequence run after run.
	for i := 0; i < 10; i++ {
		open := b.OpenOrders()
		require.Len(t, open, len(want))
		for j, o := range open {
			assert.Equal(t, want[j], o.ID, "call %d position %d", i, j)
		}
	}
}

func TestBookUpdateStatus(t *testing.T) {
	b := NewBook()
	o := &Order{ID: "1", Side: SideBuy, Status: StatusOpen, Amount: d("1"), Remaining: d("1")}
	b.Add(o, 0)

	b.UpdateStatus(&Order{
		ID:        "1",
		Status:    StatusClosed,
		Filled:    d("1"),
		Remaining: decimal.Zero,
		Average:   d("99.5"),
		Fee:       d("0.1"),
	})

	got, _ := b.Get("1")
	assert.Equal(t, StatusClosed, got.Status)
	assert.True(t, got.Filled.Equal(d("1")))
	assert.True(t, got.Average.Equal(d("99.5")))
	assert.Empty(t, b.OpenOrders())
	assert.Len(t, b.CompletedOrders(), 1)

	// Updates for unknown ids are ignored.
	b.UpdateStatus(&Order{ID: "missing", Status: StatusClosed})
	assert.Len(t, b.AllOrders(), 1)
}

func TestValidatorBuyFloorsToStep(t *testing.T) {
	v := NewValidator(d("10"), d("0.001"))

	qty, err := v.AdjustAndValidateBuyQuantity(d("10000"), d("0.12345"), d("100"))
	require.NoError(t, err)
	assert.True(t, qty.Equal(d("0.123")), qty.String())
}

func TestValidatorBuyBumpsToMinNotional(t *testing.T) {
	v := NewValidator(d("10"), d("0.001"))

	// 0.05 * 100 = 5 < 10, bump to 0.1.
	qty, err := v.AdjustAndValidateBuyQuantity(d("10000"), d("0.05"), d("100"))
	require.NoError(t, err)
	assert.True(t, qty.Equal(d("0.1")), qty.String())
}

func TestValidatorBuyInsufficientBalance(t *testing.T) {
	v := NewValidator(d("10"), d("0.001"))

	_, err := v.AdjustAndValidateBuyQuantity(d("5"), d("1"), d("100"))
	require.Error(t, err)
	var insufficient *core.InsufficientBalanceError
	assert.ErrorAs(t, err, &insufficient)
}

func TestValidatorSell(t *testing.T) {
	v := NewValidator(d("10"), d("0.001"))

	qty, err := v.AdjustAndValidateSellQuantity(d("1"), d("0.5554"))
	require.NoError(t, err)
	assert.True(t, qty.Equal(d("0.555")), qty.String())

	_, err = v.AdjustAndValidateSellQuantity(d("0.1"), d("0.5"))
	require.Error(t, err)
	var insufficient *core.InsufficientCryptoBalanceError
	assert.ErrorAs(t, err, &insufficient)
}
