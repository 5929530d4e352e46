// Package money defines the fixed-scale decimal types used for every
// monetary quantity in the matching engine. Matching never touches binary
// floating point; floats only appear in internal/depthcache, as sorted-set
// scores and as the JSON numbers of the depth view's price levels.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MinPositive is the smallest representable positive price or amount.
var MinPositive = decimal.New(1, -12)

// PriceScale, AmountScale and FeeScale are the maximum number of fractional
// digits allowed for each quantity, per spec.
const (
	PriceScale  = 16
	AmountScale = 8
	FeeScale    = 9
)

// Price is a positive decimal quantity with up to PriceScale fractional
// digits, at least MinPositive.
type Price struct {
	decimal.Decimal
}

// NewPrice validates and wraps d as a Price.
func NewPrice(d decimal.Decimal) (Price, error) {
	if d.LessThan(MinPositive) {
		return Price{}, fmt.Errorf("price must be >= %s, got %s", MinPositive.String(), d.String())
	}
	if d.Exponent() < -PriceScale {
		return Price{}, fmt.Errorf("price has more than %d fractional digits", PriceScale)
	}
	return Price{d}, nil
}

// MustPrice panics if d is not a valid Price. For use with literal constants
// in tests.
func MustPrice(d decimal.Decimal) Price {
	p, err := NewPrice(d)
	if err != nil {
		panic(err)
	}
	return p
}

// Amount is a non-negative decimal quantity with up to AmountScale
// fractional digits. Orders require a strictly positive Amount; zero is
// only valid for derived quantities such as filled_amount at intake.
type Amount struct {
	decimal.Decimal
}

// NewAmount validates and wraps d as a non-negative Amount.
func NewAmount(d decimal.Decimal) (Amount, error) {
	if d.IsNegative() {
		return Amount{}, fmt.Errorf("amount must be non-negative, got %s", d.String())
	}
	if d.Exponent() < -AmountScale {
		return Amount{}, fmt.Errorf("amount has more than %d fractional digits", AmountScale)
	}
	return Amount{d}, nil
}

// NewPositiveAmount validates d as an Amount that must also be strictly
// positive and at least MinPositive, per spec's order amount invariant.
func NewPositiveAmount(d decimal.Decimal) (Amount, error) {
	a, err := NewAmount(d)
	if err != nil {
		return Amount{}, err
	}
	if a.LessThan(MinPositive) {
		return Amount{}, fmt.Errorf("amount must be >= %s, got %s", MinPositive.String(), d.String())
	}
	return a, nil
}

// MustAmount panics if d is not a valid Amount.
func MustAmount(d decimal.Decimal) Amount {
	a, err := NewAmount(d)
	if err != nil {
		panic(err)
	}
	return a
}

// Fee is a non-negative decimal rate with up to FeeScale fractional digits,
// carried as market metadata and recorded verbatim on each trade.
type Fee struct {
	decimal.Decimal
}

// NewFee validates and wraps d as a Fee.
func NewFee(d decimal.Decimal) (Fee, error) {
	if d.IsNegative() {
		return Fee{}, fmt.Errorf("fee must be non-negative, got %s", d.String())
	}
	if d.Exponent() < -FeeScale {
		return Fee{}, fmt.Errorf("fee has more than %d fractional digits", FeeScale)
	}
	return Fee{d}, nil
}

// MustFee panics if d is not a valid Fee.
func MustFee(d decimal.Decimal) Fee {
	f, err := NewFee(d)
	if err != nil {
		panic(err)
	}
	return f
}

// Zero is the additive identity amount, used as the starting filled_amount
// of a freshly created order.
var Zero = Amount{decimal.Zero}

// Add returns a + b as an Amount, without re-validating scale (arithmetic on
// already-valid amounts cannot grow the fractional digit count).
func (a Amount) Add(b Amount) Amount {
	return Amount{a.Decimal.Add(b.Decimal)}
}

// Sub returns a - b as an Amount. Callers are responsible for ensuring the
// result does not go negative; the matching engine only ever subtracts a
// matched quantity that has already been bounded by min(remaining, remaining).
func (a Amount) Sub(b Amount) Amount {
	return Amount{a.Decimal.Sub(b.Decimal)}
}

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if a.LessThan(b.Decimal) {
		return a
	}
	return b
}
