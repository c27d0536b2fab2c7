package report

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"gridbot/internal/order"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSummarizeComputesROI(t *testing.T) {
	a := NewAnalyzer()
	a.Record(1, d("1000"))
	a.Record(2, d("1050"))
	a.Record(3, d("1100"))

	s := a.Summarize("BTC/USDT", order.NewBook(), d("2.5"), d("600"), d("0.005"), d("100000"))
	assert.True(t, s.StartValue.Equal(d("1000")))
	assert.True(t, s.FinalValue.Equal(d("1100")))
	assert.True(t, s.ROIPercent.Equal(d("10")), s.ROIPercent.String())
	assert.True(t, s.TotalFees.Equal(d("2.5")))
}

func TestDrawdownAndRunup(t *testing.T) {
	a := NewAnalyzer()
	// Peak 1200, trough after peak 900: drawdown 25%.
	// Trough 800 at start, later 1200: runup 50%.
	for i, v := range []string{"800", "1200", "900", "1100"} {
		a.Record(int64(i), d(v))
	}

	s := a.Summarize("BTC/USDT", order.NewBook(), decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero)
	assert.True(t, s.MaxDrawdown.Equal(d("25")), s.MaxDrawdown.String())
	assert.True(t, s.MaxRunup.Equal(d("50")), s.MaxRunup.String())
}

func TestSummarizeCountsCompletedOrdersBySide(t *testing.T) {
	book := order.NewBook()
	book.Add(&order.Order{ID: "1", Side: order.SideBuy, Status: order.StatusClosed}, 0)
	book.Add(&order.Order{ID: "2", Side: order.SideBuy, Status: order.StatusClosed}, 1)
	book.Add(&order.Order{ID: "3", Side: order.SideSell, Status: order.StatusClosed}, 2)
	book.Add(&order.Order{ID: "4", Side: order.SideSell, Status: order.StatusOpen}, 3)

	a := NewAnalyzer()
	a.Record(1, d("1000"))
	s := a.Summarize("BTC/USDT", book, decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero)
	assert.Equal(t, 2, s.BuyOrders)
	assert.Equal(t, 1, s.SellOrders)
}

func TestEmptySeriesProducesZeroSummary(t *testing.T) {
	a := NewAnalyzer()
	s := a.Summarize("BTC/USDT", order.NewBook(), decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero)
	assert.True(t, s.ROIPercent.IsZero())
	assert.True(t, s.StartValue.IsZero())
	assert.Empty(t, s.AccountValues)
}

func TestFormattedOrders(t *testing.T) {
	book := order.NewBook()
	book.Add(&order.Order{
		ID: "1", Symbol: "BTCUSDT", Side: order.SideBuy, Type: order.TypeLimit,
		Status: order.StatusClosed, Price: d("100"), Amount: d("1"),
		Timestamp: 1700000000000,
	}, 0)

	lines := FormattedOrders(book)
	assert.Len(t, lines, 1)
	assert.Contains(t, lines[0], "BUY")
	assert.Contains(t, lines[0], "BTCUSDT")
	assert.Contains(t, lines[0], "2023-11-14")
}
