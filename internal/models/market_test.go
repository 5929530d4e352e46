package models

import (
	"testing"

	"order-matching-engine/internal/money"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMarket_DerivesSymbol(t *testing.T) {
	btc := Currency{ID: 1, Name: "Bitcoin", Symbol: "BTC"}
	usdt := Currency{ID: 2, Name: "Tether", Symbol: "USDT"}
	fee := money.MustFee(decimal.NewFromFloat(0.001))

	m, err := NewMarket(btc, usdt, fee)
	require.NoError(t, err)
	assert.Equal(t, "BTC_USDT", m.Symbol)
	assert.Equal(t, MarketStateActive, m.State)
}

func TestNewMarket_RejectsSameCurrency(t *testing.T) {
	btc := Currency{ID: 1, Name: "Bitcoin", Symbol: "BTC"}
	fee := money.MustFee(decimal.Zero)

	_, err := NewMarket(btc, btc, fee)
	assert.Error(t, err)
}

func TestMarketState_AcceptsOrders(t *testing.T) {
	assert.True(t, MarketStateActive.AcceptsOrders())
	assert.False(t, MarketStateSuspend.AcceptsOrders())
	assert.False(t, MarketStateDeactive.AcceptsOrders())
}
