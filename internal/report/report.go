// Package report summarizes a trading session: returns, drawdown,
// order activity, and final balances.
package report

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"gridbot/internal/order"
)

// Sample is one point of the account value series.
type Sample struct {
	Timestamp int64
	Value     decimal.Decimal
}

// Summary is the performance result returned when the bot stops.
type Summary struct {
	Pair          string
	StartValue    decimal.Decimal
	FinalValue    decimal.Decimal
	ROIPercent    decimal.Decimal
	MaxDrawdown   decimal.Decimal // percent, non-negative
	MaxRunup      decimal.Decimal // percent, non-negative
	BuyOrders     int
	SellOrders    int
	TotalFees     decimal.Decimal
	FinalQuote    decimal.Decimal
	FinalBase     decimal.Decimal
	LastPrice     decimal.Decimal
	AccountValues []Sample
}

// Analyzer accumulates account value samples during a run and computes
// the summary at the end.
type Analyzer struct {
	mu      sync.Mutex
	samples []Sample
}

// NewAnalyzer creates an empty analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Record appends one account value observation.
func (a *Analyzer) Record(timestamp int64, value decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.samples = append(a.samples, Sample{Timestamp: timestamp, Value: value})
}

// Samples returns a copy of the recorded series.
func (a *Analyzer) Samples() []Sample {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Sample, len(a.samples))
	copy(out, a.samples)
	return out
}

// Summarize computes the performance summary from the recorded series
// and the final account state.
func (a *Analyzer) Summarize(pair string, book *order.Book, totalFees, finalQuote, finalBase, lastPrice decimal.Decimal) Summary {
	samples := a.Samples()

	s := Summary{
		Pair:          pair,
		TotalFees:     totalFees,
		FinalQuote:    finalQuote,
		FinalBase:     finalBase,
		LastPrice:     lastPrice,
		AccountValues: samples,
	}

	for _, o := range book.CompletedOrders() {
		if o.Side == order.SideBuy {
			s.BuyOrders++
		} else {
			s.SellOrders++
		}
	}

	if len(samples) == 0 {
		return s
	}

	s.StartValue = samples[0].Value
	s.FinalValue = samples[len(samples)-1].Value
	if s.StartValue.IsPositive() {
		s.ROIPercent = s.FinalValue.Sub(s.StartValue).
			Div(s.StartValue).Mul(decimal.NewFromInt(100))
	}
	s.MaxDrawdown, s.MaxRunup = drawdownAndRunup(samples)
	return s
}

// drawdownAndRunup scans the series once: drawdown is the largest
// percentage fall from a running peak, runup the largest rise from a
// running trough.
func drawdownAndRunup(samples []Sample) (drawdown, runup decimal.Decimal) {
	hundred := decimal.NewFromInt(100)
	peak := samples[0].Value
	trough := samples[0].Value

	for _, sample := range samples[1:] {
		v := sample.Value
		if v.GreaterThan(peak) {
			peak = v
		}
		if v.LessThan(trough) {
			trough = v
		}
		if peak.IsPositive() {
			dd := peak.Sub(v).Div(peak).Mul(hundred)
			if dd.GreaterThan(drawdown) {
				drawdown = dd
			}
		}
		if trough.IsPositive() {
			ru := v.Sub(trough).Div(trough).Mul(hundred)
			if ru.GreaterThan(runup) {
				runup = ru
			}
		}
	}
	return drawdown, runup
}

// FormattedOrders renders the order history as aligned text lines.
func FormattedOrders(book *order.Book) []string {
	orders := book.AllOrders()
	lines := make([]string, 0, len(orders))
	for _, o := range orders {
		lines = append(lines, fmt.Sprintf("%-22s %-4s %-6s %-12s qty=%-14s price=%-14s status=%s",
			o.FormattedTime(), o.Side, o.Type, o.Symbol,
			o.Amount.String(), o.Price.String(), o.Status))
	}
	return lines
}

// String renders the summary for log output.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pair=%s roi=%s%% ", s.Pair, s.ROIPercent.StringFixed(2))
	fmt.Fprintf(&b, "start=%s final=%s ", s.StartValue.String(), s.FinalValue.String())
	fmt.Fprintf(&b, "max_drawdown=%s%% max_runup=%s%% ", s.MaxDrawdown.StringFixed(2), s.MaxRunup.StringFixed(2))
	fmt.Fprintf(&b, "buys=%d sells=%d fees=%s ", s.BuyOrders, s.SellOrders, s.TotalFees.String())
	fmt.Fprintf(&b, "quote=%s base=%s", s.FinalQuote.String(), s.FinalBase.String())
	return b.String()
}
