package binance

import (
	"context"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbot/internal/core"
	"gridbot/internal/logging"
)

func TestFetchOHLCVRejectsUnknownTimeframe(t *testing.T) {
	e := New("", "", logging.NewNop())

	_, err := e.FetchOHLCV(context.Background(), "BTCUSDT", "7m",
		time.Now().Add(-time.Hour), time.Now())

	var unsupported *core.UnsupportedTimeframeError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "7m", unsupported.Timeframe)
}

func TestFillAverageAndFee(t *testing.T) {
	fills := []*binance.Fill{
		{Price: "100", Quantity: "1", Commission: "0.1"},
		{Price: "102", Quantity: "1", Commission: "0.1"},
	}

	avg, fee := fillAverageAndFee(fills, decimal.NewFromInt(2))
	assert.True(t, avg.Equal(decimal.NewFromInt(101)), avg.String())
	assert.True(t, fee.Equal(decimal.RequireFromString("0.2")), fee.String())
}

func TestFillAverageAndFeeEmpty(t *testing.T) {
	avg, fee := fillAverageAndFee(nil, decimal.Zero)
	assert.True(t, avg.IsZero())
	assert.True(t, fee.IsZero())
}

func TestCancelOrderRejectsNonNumericID(t *testing.T) {
	e := New("", "", logging.NewNop())
	_, err := e.CancelOrder(context.Background(), "backtest-1", "BTCUSDT")

	var fetchErr *core.DataFetchError
	assert.ErrorAs(t, err, &fetchErr)
}
