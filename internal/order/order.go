// Package order defines the order model, the in-memory order book, and
// quantity validation against exchange limits.
package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/core"
)

// Side is the order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide parses an exchange side string.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(s) {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	default:
		return "", fmt.Errorf("unknown order side: %q", s)
	}
}

// Type is the order type.
type Type string

const (
	TypeMarket Type = "MARKET"
	TypeLimit  Type = "LIMIT"
)

// ParseType parses an exchange order type string.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(s) {
	case "MARKET":
		return TypeMarket, nil
	case "LIMIT":
		return TypeLimit, nil
	default:
		return "", fmt.Errorf("unknown order type: %q", s)
	}
}

// Status is the order lifecycle status. Closed, Canceled, Expired, and
// Rejected are terminal.
type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusClosed   Status = "CLOSED"
	StatusCanceled Status = "CANCELED"
	StatusExpired  Status = "EXPIRED"
	StatusRejected Status = "REJECTED"
	StatusUnknown  Status = "UNKNOWN"
)

// ParseStatus maps an exchange status string onto the local lifecycle.
// Unrecognized statuses map to StatusUnknown rather than failing.
func ParseStatus(s string) Status {
	switch strings.ToUpper(s) {
	case "OPEN", "NEW", "PARTIALLY_FILLED":
		return StatusOpen
	case "CLOSED", "FILLED":
		return StatusClosed
	case "CANCELED", "CANCELLED":
		return StatusCanceled
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return StatusExpired
	case "REJECTED":
		return StatusRejected
	default:
		return StatusUnknown
	}
}

// IsTerminal reports whether no further fills can occur.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusClosed, StatusCanceled, StatusExpired, StatusRejected:
		return true
	}
	return false
}

// Order is one tracked exchange order.
type Order struct {
	ID        string
	Symbol    string
	Side      Side
	Type      Type
	Status    Status
	Price     decimal.Decimal // limit price; zero for market orders
	Average   decimal.Decimal // average fill price when known
	Amount    decimal.Decimal
	Filled    decimal.Decimal
	Remaining decimal.Decimal
	Fee       decimal.Decimal
	Timestamp int64
}

// FromExchange converts a raw exchange order into the local model.
func FromExchange(raw core.ExchangeOrder) (*Order, error) {
	side, err := ParseSide(raw.Side)
	if err != nil {
		return nil, err
	}
	typ, err := ParseType(raw.Type)
	if err != nil {
		return nil, err
	}
	return &Order{
		ID:        raw.ID,
		Symbol:    raw.Symbol,
		Side:      side,
		Type:      typ,
		Status:    ParseStatus(raw.Status),
		Price:     raw.Price,
		Average:   raw.Average,
		Amount:    raw.Amount,
		Filled:    raw.Filled,
		Remaining: raw.Remaining,
		Fee:       raw.Fee,
		Timestamp: raw.Timestamp,
	}, nil
}

// IsFilled reports whether the order completed in full.
func (o *Order) IsFilled() bool { return o.Status == StatusClosed }

// IsOpen reports whether the order can still fill.
func (o *Order) IsOpen() bool { return o.Status == StatusOpen }

// FillPrice returns the effective execution price: the average fill
// price when the exchange reported one, otherwise the limit price.
func (o *Order) FillPrice() decimal.Decimal {
	if o.Average.IsPositive() {
		return o.Average
	}
	return o.Price
}

// String renders a compact human-readable order line.
func (o *Order) String() string {
	return fmt.Sprintf("%s %s %s %s amount=%s price=%s filled=%s status=%s",
		o.ID, o.Side, o.Type, o.Symbol,
		o.Amount.String(), o.Price.String(), o.Filled.String(), o.Status)
}

// FormattedTime renders the order timestamp for reports.
func (o *Order) FormattedTime() string {
	if o.Timestamp == 0 {
		return ""
	}
	return time.UnixMilli(o.Timestamp).UTC().Format("2006-01-02 15:04:05")
}
