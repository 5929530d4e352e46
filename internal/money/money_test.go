package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPrice(t *testing.T) {
	t.Run("valid price at the minimum boundary", func(t *testing.T) {
		p, err := NewPrice(MinPositive)
		require.NoError(t, err)
		assert.True(t, p.Equal(MinPositive))
	})

	t.Run("rejects below minimum", func(t *testing.T) {
		below := decimal.New(1, -13)
		_, err := NewPrice(below)
		assert.Error(t, err)
	})

	t.Run("rejects more than 16 fractional digits", func(t *testing.T) {
		tooFine := decimal.RequireFromString("1.00000000000000001")
		_, err := NewPrice(tooFine)
		assert.Error(t, err)
	})

	t.Run("accepts ordinary price", func(t *testing.T) {
		p, err := NewPrice(decimal.NewFromFloat(50000.5))
		require.NoError(t, err)
		assert.Equal(t, "50000.5", p.String())
	})
}

func TestNewAmount(t *testing.T) {
	t.Run("zero is a valid Amount but not a valid positive amount", func(t *testing.T) {
		a, err := NewAmount(decimal.Zero)
		require.NoError(t, err)
		assert.True(t, a.IsZero())

		_, err = NewPositiveAmount(decimal.Zero)
		assert.Error(t, err)
	})

	t.Run("rejects negative", func(t *testing.T) {
		_, err := NewAmount(decimal.NewFromInt(-1))
		assert.Error(t, err)
	})

	t.Run("rejects more than 8 fractional digits", func(t *testing.T) {
		_, err := NewAmount(decimal.RequireFromString("0.123456789"))
		assert.Error(t, err)
	})

	t.Run("accepts the smallest positive amount at AmountScale", func(t *testing.T) {
		smallest := decimal.New(1, -AmountScale)
		a, err := NewPositiveAmount(smallest)
		require.NoError(t, err)
		assert.True(t, a.Equal(smallest))
	})
}

func TestNewFee(t *testing.T) {
	t.Run("accepts zero fee", func(t *testing.T) {
		f, err := NewFee(decimal.Zero)
		require.NoError(t, err)
		assert.True(t, f.IsZero())
	})

	t.Run("rejects negative fee", func(t *testing.T) {
		_, err := NewFee(decimal.NewFromFloat(-0.001))
		assert.Error(t, err)
	})

	t.Run("rejects more than 9 fractional digits", func(t *testing.T) {
		_, err := NewFee(decimal.RequireFromString("0.0000000001"))
		assert.Error(t, err)
	})
}

func TestAmountArithmetic(t *testing.T) {
	a := MustAmount(decimal.NewFromFloat(1.0))
	b := MustAmount(decimal.NewFromFloat(0.3))

	sum := a.Add(b)
	assert.True(t, sum.Equal(decimal.NewFromFloat(1.3)))

	diff := a.Sub(b)
	assert.True(t, diff.Equal(decimal.NewFromFloat(0.7)))

	assert.True(t, Min(a, b).Equal(b.Decimal))
	assert.True(t, Min(b, a).Equal(b.Decimal))
}

func TestMustPanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() { MustPrice(decimal.NewFromInt(-1)) })
	assert.Panics(t, func() { MustAmount(decimal.NewFromInt(-1)) })
	assert.Panics(t, func() { MustFee(decimal.NewFromInt(-1)) })
}
