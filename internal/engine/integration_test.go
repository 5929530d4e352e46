package engine

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"order-matching-engine/internal/depthcache"
	"order-matching-engine/internal/models"
	"order-matching-engine/internal/money"
	"order-matching-engine/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// newTestHarness wires a Matcher against a real record store (skipped if
// DB_DSN is unset, following the teacher's own integration-test gating) and
// an in-process Redis server (miniredis) standing in for the depth cache, so
// these tests never need a live Redis instance.
func newTestHarness(t *testing.T) (*Matcher, *store.Store, string) {
	t.Helper()
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		t.Skip("DB_DSN environment variable not set, skipping integration test")
	}

	db, err := store.Connect(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.Migrate(context.Background(), db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	st := store.New(db)
	cache := depthcache.New(rdb, st)
	matcher := New(st, cache)

	symbol := freshMarket(t, st)
	return matcher, st, symbol
}

// freshMarket creates a new Currency pair and Market per test so concurrent
// test runs (and reruns) never collide on the unique market symbol.
func freshMarket(t *testing.T, st *store.Store) string {
	t.Helper()
	ctx := context.Background()
	suffix := fmt.Sprintf("%d", time.Now().UnixNano()%1_000_000_000)

	base, err := st.CreateCurrency(ctx, "Bitcoin-"+suffix, "B"+suffix)
	require.NoError(t, err)
	quote, err := st.CreateCurrency(ctx, "TetherUSD-"+suffix, "U"+suffix)
	require.NoError(t, err)

	fee := money.MustFee(decimal.NewFromFloat(0.001))
	market, err := models.NewMarket(*base, *quote, fee)
	require.NoError(t, err)
	created, err := st.CreateMarket(ctx, market)
	require.NoError(t, err)
	return created.Symbol
}

// placeOrder drives the same atomic persist-then-match path as the HTTP
// boundary's createOrder (spec.md §4.5): one call to
// Matcher.PlaceAndProcessOrder, never a separate insert followed by a
// separate ProcessOrder.
func placeOrder(t *testing.T, st *store.Store, m *Matcher, marketSymbol string, typ models.OrderType, side models.OrderSide, p, a float64) (*models.Order, *ProcessResult) {
	t.Helper()
	ctx := context.Background()
	market, err := st.GetMarketBySymbol(ctx, marketSymbol)
	require.NoError(t, err)

	price := money.MustPrice(decimal.NewFromFloat(p))
	amt := money.MustAmount(decimal.NewFromFloat(a))
	order := models.NewOrder(market.ID, typ, side, price, amt)

	result, err := m.PlaceAndProcessOrder(ctx, marketSymbol, order)
	require.NoError(t, err)

	refreshed, err := st.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	return refreshed, result
}

// TestScenario_EmptyMarketDepth is spec.md §8 scenario 1.
func TestScenario_EmptyMarketDepth(t *testing.T) {
	_, st, symbol := newTestHarness(t)
	ctx := context.Background()
	market, err := st.GetMarketBySymbol(ctx, symbol)
	require.NoError(t, err)

	buys, sells, err := st.RestingOrders(ctx, market.ID)
	require.NoError(t, err)
	require.Empty(t, buys)
	require.Empty(t, sells)
}

// TestScenario_CrossIntoRestingSell is spec.md §8 scenario 2.
func TestScenario_CrossIntoRestingSell(t *testing.T) {
	m, st, symbol := newTestHarness(t)

	sell, _ := placeOrder(t, st, m, symbol, models.OrderTypeLimit, models.OrderSideSell, 50000, 0.2)
	require.Equal(t, models.OrderStateWaiting, sell.State)

	buy, result := placeOrder(t, st, m, symbol, models.OrderTypeLimit, models.OrderSideBuy, 50500, 0.1)
	require.Equal(t, "processed", result.Status)
	require.Equal(t, models.OrderStateFilled, buy.State)
	require.True(t, buy.FilledAmount.Equal(decimal.NewFromFloat(0.1)))

	sell, err := st.GetOrder(context.Background(), sell.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatePartiallyFilled, sell.State)
	require.True(t, sell.FilledAmount.Equal(decimal.NewFromFloat(0.1)))
	require.True(t, sell.RemainingAmount.Equal(decimal.NewFromFloat(0.1)))

	trades, err := st.TradesForOrder(context.Background(), buy.ID)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.True(t, trades[0].Price.Equal(decimal.NewFromFloat(50000)))
	require.True(t, trades[0].Amount.Equal(decimal.NewFromFloat(0.1)))
}

// TestScenario_PartialThenComplete is spec.md §8 scenario 3.
func TestScenario_PartialThenComplete(t *testing.T) {
	m, st, symbol := newTestHarness(t)
	ctx := context.Background()

	sell, _ := placeOrder(t, st, m, symbol, models.OrderTypeLimit, models.OrderSideSell, 50000, 1.0)

	_, r1 := placeOrder(t, st, m, symbol, models.OrderTypeMarket, models.OrderSideBuy, 50000, 0.3)
	require.Equal(t, "processed", r1.Status)
	sell, err := st.GetOrder(ctx, sell.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatePartiallyFilled, sell.State)
	require.True(t, sell.RemainingAmount.Equal(decimal.NewFromFloat(0.7)))

	_, r2 := placeOrder(t, st, m, symbol, models.OrderTypeMarket, models.OrderSideBuy, 50000, 0.3)
	require.Equal(t, "processed", r2.Status)
	sell, err = st.GetOrder(ctx, sell.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatePartiallyFilled, sell.State)
	require.True(t, sell.RemainingAmount.Equal(decimal.NewFromFloat(0.4)))

	_, r3 := placeOrder(t, st, m, symbol, models.OrderTypeMarket, models.OrderSideBuy, 50000, 0.4)
	require.Equal(t, "processed", r3.Status)
	sell, err = st.GetOrder(ctx, sell.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStateFilled, sell.State)
	require.True(t, sell.RemainingAmount.IsZero())

	trades, err := st.TradesForOrder(ctx, sell.ID)
	require.NoError(t, err)
	require.Len(t, trades, 3)
}

// TestScenario_MarketOrderNoLiquidity is spec.md §8 scenario 4.
func TestScenario_MarketOrderNoLiquidity(t *testing.T) {
	m, st, symbol := newTestHarness(t)

	buy, result := placeOrder(t, st, m, symbol, models.OrderTypeMarket, models.OrderSideBuy, 1, 1.0)
	require.Equal(t, "no_match", result.Status)
	require.Equal(t, models.OrderStateError, buy.State)

	trades, err := st.TradesForOrder(context.Background(), buy.ID)
	require.NoError(t, err)
	require.Empty(t, trades)
}

// TestScenario_PriceTimePriority is spec.md §8 scenario 5.
func TestScenario_PriceTimePriority(t *testing.T) {
	m, st, symbol := newTestHarness(t)
	ctx := context.Background()

	a, _ := placeOrder(t, st, m, symbol, models.OrderTypeLimit, models.OrderSideSell, 51000, 2.0)
	time.Sleep(10 * time.Millisecond)
	b, _ := placeOrder(t, st, m, symbol, models.OrderTypeLimit, models.OrderSideSell, 51000, 1.5)
	time.Sleep(10 * time.Millisecond)
	c, _ := placeOrder(t, st, m, symbol, models.OrderTypeLimit, models.OrderSideSell, 52000, 5.0)

	buy, result := placeOrder(t, st, m, symbol, models.OrderTypeMarket, models.OrderSideBuy, 1, 3.0)
	require.Equal(t, "processed", result.Status)

	trades, err := st.TradesForOrder(ctx, buy.ID)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	require.Equal(t, a.ID, trades[0].MakerOrderID)
	require.True(t, trades[0].Amount.Equal(decimal.NewFromFloat(2.0)))
	require.Equal(t, b.ID, trades[1].MakerOrderID)
	require.True(t, trades[1].Amount.Equal(decimal.NewFromFloat(1.0)))

	bRefreshed, err := st.GetOrder(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatePartiallyFilled, bRefreshed.State)
	require.True(t, bRefreshed.RemainingAmount.Equal(decimal.NewFromFloat(0.5)))

	cRefreshed, err := st.GetOrder(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStateWaiting, cRefreshed.State)
}

// TestScenario_CancelPreservesPriorFills is spec.md §8 scenario 6.
func TestScenario_CancelPreservesPriorFills(t *testing.T) {
	m, st, symbol := newTestHarness(t)
	ctx := context.Background()

	sell, _ := placeOrder(t, st, m, symbol, models.OrderTypeLimit, models.OrderSideSell, 50000, 10.0)
	_, result := placeOrder(t, st, m, symbol, models.OrderTypeMarket, models.OrderSideBuy, 1, 3.0)
	require.Equal(t, "processed", result.Status)

	sell, err := st.GetOrder(ctx, sell.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatePartiallyFilled, sell.State)

	canceled, err := m.CancelOrder(ctx, sell.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStateCanceled, canceled.State)
	require.True(t, canceled.FilledAmount.Equal(decimal.NewFromFloat(3.0)))
	require.True(t, canceled.RemainingAmount.Equal(decimal.NewFromFloat(7.0)))

	trades, err := st.TradesForOrder(ctx, sell.ID)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	market, err := st.GetMarketBySymbol(ctx, symbol)
	require.NoError(t, err)
	_, sells, err := st.RestingOrders(ctx, market.ID)
	require.NoError(t, err)
	for _, o := range sells {
		require.NotEqual(t, sell.ID, o.ID)
	}
}

func TestProcessOrder_RejectsNonWaitingOrder(t *testing.T) {
	m, st, symbol := newTestHarness(t)
	ctx := context.Background()

	_, _ = placeOrder(t, st, m, symbol, models.OrderTypeLimit, models.OrderSideSell, 50000, 1.0)
	market, err := st.GetMarketBySymbol(ctx, symbol)
	require.NoError(t, err)
	buys, sells, err := st.RestingOrders(ctx, market.ID)
	require.NoError(t, err)
	require.Empty(t, buys)
	require.Len(t, sells, 1)

	// Reprocessing an already-Waiting-but-since-filled order must fail: fill
	// it fully first, then attempt to process it again.
	_, result := placeOrder(t, st, m, symbol, models.OrderTypeMarket, models.OrderSideBuy, 1, 1.0)
	require.Equal(t, "processed", result.Status)

	_, err = m.ProcessOrder(ctx, sells[0].ID)
	require.ErrorIs(t, err, ErrOrderNotWaiting)
}

func TestProcessOrder_UnknownOrder(t *testing.T) {
	m, _, _ := newTestHarness(t)
	_, err := m.ProcessOrder(context.Background(), -1)
	require.ErrorIs(t, err, ErrOrderNotFound)
}
