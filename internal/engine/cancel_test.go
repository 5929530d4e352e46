package engine

import (
	"context"
	"testing"

	"order-matching-engine/internal/models"

	"github.com/stretchr/testify/require"
)

func TestCancelOrder_UnknownOrder(t *testing.T) {
	m, _, _ := newTestHarness(t)
	_, err := m.CancelOrder(context.Background(), -1)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCancelOrder_RejectsAlreadyFilled(t *testing.T) {
	m, st, symbol := newTestHarness(t)
	sell, _ := placeOrder(t, st, m, symbol, models.OrderTypeLimit, models.OrderSideSell, 100, 1.0)
	_, result := placeOrder(t, st, m, symbol, models.OrderTypeMarket, models.OrderSideBuy, 1, 1.0)
	require.Equal(t, "processed", result.Status)

	_, err := m.CancelOrder(context.Background(), sell.ID)
	require.ErrorIs(t, err, ErrOrderNotCancelable)
}

func TestCancelOrder_WaitingOrderRemovedFromBook(t *testing.T) {
	m, st, symbol := newTestHarness(t)
	order, _ := placeOrder(t, st, m, symbol, models.OrderTypeLimit, models.OrderSideBuy, 100, 1.0)

	canceled, err := m.CancelOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStateCanceled, canceled.State)
	require.True(t, canceled.FilledAmount.IsZero())
	require.True(t, canceled.RemainingAmount.Equal(order.Amount.Decimal))
}
