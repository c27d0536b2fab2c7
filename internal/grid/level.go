// Package grid implements the price ladder, the per-level order cycle
// state machine, pairing between buy and sell levels, and order sizing.
package grid

import (
	"fmt"

	"github.com/shopspring/decimal"

	"gridbot/internal/order"
)

// CycleState is the per-level position in the buy/sell cycle.
type CycleState string

const (
	StateReadyToBuy         CycleState = "READY_TO_BUY"
	StateReadyToSell        CycleState = "READY_TO_SELL"
	StateReadyToBuyOrSell   CycleState = "READY_TO_BUY_OR_SELL"
	StateWaitingForBuyFill  CycleState = "WAITING_FOR_BUY_FILL"
	StateWaitingForSellFill CycleState = "WAITING_FOR_SELL_FILL"
	StateCompleted          CycleState = "COMPLETED"
)

// Level is one rung of the ladder. At most one resting order exists per
// level at any time; PendingOrderID names it while waiting for a fill.
type Level struct {
	Index          int
	Price          decimal.Decimal
	State          CycleState
	PendingOrderID string
}

// CanPlace reports whether an order of the given side may rest here.
func (l *Level) CanPlace(side order.Side) bool {
	switch side {
	case order.SideBuy:
		return l.State == StateReadyToBuy || l.State == StateReadyToBuyOrSell
	case order.SideSell:
		return l.State == StateReadyToSell || l.State == StateReadyToBuyOrSell
	}
	return false
}

// markPending records a placed order and moves to the waiting state.
func (l *Level) markPending(side order.Side, orderID string) error {
	if !l.CanPlace(side) {
		return fmt.Errorf("level %d (price %s) in state %s cannot accept a %s order",
			l.Index, l.Price.String(), l.State, side)
	}
	l.PendingOrderID = orderID
	if side == order.SideBuy {
		l.State = StateWaitingForBuyFill
	} else {
		l.State = StateWaitingForSellFill
	}
	return nil
}

func (l *Level) String() string {
	return fmt.Sprintf("level %d price=%s state=%s", l.Index, l.Price.String(), l.State)
}
