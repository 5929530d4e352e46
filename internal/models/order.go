package models

import (
	"fmt"
	"time"

	"order-matching-engine/internal/money"
)

// Order is a single resting or historical buy/sell instruction against a
// market. Amount is immutable; FilledAmount is monotonically
// non-decreasing; RemainingAmount always equals Amount-FilledAmount
// (invariant 1 of §3, enforced by ApplyFill and Normalize rather than
// recomputed ad hoc by callers).
type Order struct {
	ID              int64
	MarketID        int64
	Type            OrderType
	Side            OrderSide
	Price           money.Price
	Amount          money.Amount
	FilledAmount    money.Amount
	RemainingAmount money.Amount
	State           OrderState
	CreatedAt       time.Time
	UpdatedAt       time.Time
	FilledAt        *time.Time
}

// NewOrder constructs a freshly-intake order in the Waiting state with
// filled_amount at zero, per §3.
func NewOrder(marketID int64, typ OrderType, side OrderSide, price money.Price, amount money.Amount) *Order {
	return &Order{
		MarketID:        marketID,
		Type:            typ,
		Side:            side,
		Price:           price,
		Amount:          amount,
		FilledAmount:    money.Zero,
		RemainingAmount: money.Amount{Decimal: amount.Decimal},
		State:           OrderStateWaiting,
	}
}

// Normalize recomputes RemainingAmount from Amount and FilledAmount, per
// §4.1's intake step: "remaining_amount := amount - (filled_amount | 0)".
func (o *Order) Normalize(now time.Time) {
	o.RemainingAmount = o.Amount.Sub(o.FilledAmount)
	o.UpdatedAt = now
}

// ApplyFill records a match of qty against this order: bumps FilledAmount,
// shrinks RemainingAmount, and transitions the state per the graph in
// §4.2. qty must not exceed RemainingAmount.
func (o *Order) ApplyFill(qty money.Amount, now time.Time) error {
	if qty.GreaterThan(o.RemainingAmount.Decimal) {
		return fmt.Errorf("fill quantity %s exceeds remaining %s", qty.String(), o.RemainingAmount.String())
	}
	o.FilledAmount = o.FilledAmount.Add(qty)
	o.RemainingAmount = o.RemainingAmount.Sub(qty)
	o.UpdatedAt = now

	if o.RemainingAmount.IsZero() {
		o.State = OrderStateFilled
		o.FilledAt = &now
	} else if o.FilledAmount.IsPositive() {
		o.State = OrderStatePartiallyFilled
	}
	return nil
}

// MarkNoLiquidity transitions a Market order that found no opposing
// candidates at all to the terminal Error state (§4.1, the only path to
// Error in the core).
func (o *Order) MarkNoLiquidity(now time.Time) {
	o.State = OrderStateError
	o.UpdatedAt = now
}

// Cancel transitions a resting order to Canceled, preserving prior fills
// and leaving RemainingAmount at its pre-cancel value (§4.4: "the unfilled
// residue is abandoned").
func (o *Order) Cancel(now time.Time) error {
	if o.State != OrderStateWaiting && o.State != OrderStatePartiallyFilled {
		return fmt.Errorf("order in state %s is not cancelable", o.State)
	}
	o.State = OrderStateCanceled
	o.UpdatedAt = now
	return nil
}

// IsResting reports whether the order currently belongs on the depth
// cache: a Waiting or PartiallyFilled order with positive remaining
// amount.
func (o *Order) IsResting() bool {
	return o.State.IsResting() && o.RemainingAmount.IsPositive()
}

// CheckInvariants validates the per-order invariants listed in §3/§8. It
// is used by tests and may be called defensively after any core
// transition.
func (o *Order) CheckInvariants() error {
	if !o.Amount.Equal(o.FilledAmount.Add(o.RemainingAmount).Decimal) {
		return fmt.Errorf("order %d: amount %s != filled %s + remaining %s", o.ID, o.Amount, o.FilledAmount, o.RemainingAmount)
	}
	if o.FilledAmount.IsNegative() || o.RemainingAmount.IsNegative() {
		return fmt.Errorf("order %d: negative filled/remaining amount", o.ID)
	}
	if o.FilledAmount.IsZero() {
		switch o.State {
		case OrderStateWaiting, OrderStateCanceled, OrderStateError:
		default:
			return fmt.Errorf("order %d: zero filled amount but state %s", o.ID, o.State)
		}
	}
	if o.FilledAmount.IsPositive() && o.FilledAmount.LessThan(o.Amount.Decimal) {
		switch o.State {
		case OrderStatePartiallyFilled, OrderStateCanceled:
		default:
			return fmt.Errorf("order %d: partial fill but state %s", o.ID, o.State)
		}
	}
	if o.FilledAmount.Equal(o.Amount.Decimal) != (o.State == OrderStateFilled) {
		return fmt.Errorf("order %d: filled_amount==amount iff Filled state violated", o.ID)
	}
	if o.State == OrderStateFilled && o.FilledAt == nil {
		return fmt.Errorf("order %d: Filled state without filled_at", o.ID)
	}
	return nil
}
