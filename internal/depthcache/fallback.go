package depthcache

import (
	"context"
	"sort"
	"time"

	"order-matching-engine/internal/models"
	"order-matching-engine/internal/store"

	"github.com/shopspring/decimal"
)

// DBFallback aggregates the depth view directly from the record store,
// bypassing Redis entirely. It is its own type, independently testable
// without a Redis dependency, grounded in the teacher system's
// free-standing `_get_order_book_from_db` fallback method (§4.3
// "Fallback").
type DBFallback struct {
	store *store.Store
}

// NewDBFallback constructs a DBFallback over the given record store.
func NewDBFallback(st *store.Store) *DBFallback {
	return &DBFallback{store: st}
}

// Get aggregates every resting order for marketSymbol directly from the
// record store and returns a Depth annotated Source: "database". If the
// market does not exist, the returned Depth carries an Error field instead
// of failing the call outright, per §4.3's "the implementation may return
// an empty book with an error field rather than raising".
func (f *DBFallback) Get(ctx context.Context, marketSymbol string, limit int) (*Depth, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	market, err := f.store.GetMarketBySymbol(ctx, marketSymbol)
	if err != nil {
		return &Depth{
			MarketSymbol: marketSymbol,
			Timestamp:    time.Now().UTC(),
			Error:        "Market not found",
		}, nil
	}

	buys, sells, err := f.store.RestingOrders(ctx, market.ID)
	if err != nil {
		return nil, err
	}

	return &Depth{
		MarketSymbol: marketSymbol,
		Sell:         aggregate(sells, false, limit),
		Buy:          aggregate(buys, true, limit),
		Timestamp:    time.Now().UTC(),
		Source:       "database",
	}, nil
}

// aggregate sums remaining_amount across every resting order sharing a
// price, then returns up to limit levels sorted ascending (sell) or
// descending (buy).
func aggregate(orders []*models.Order, descending bool, limit int) []Level {
	sums := map[string]decimal.Decimal{}
	prices := []decimal.Decimal{}
	for _, o := range orders {
		key := o.Price.String()
		if _, ok := sums[key]; !ok {
			sums[key] = decimal.Zero
			prices = append(prices, o.Price.Decimal)
		}
		sums[key] = sums[key].Add(o.RemainingAmount.Decimal)
	}

	sort.Slice(prices, func(i, j int) bool {
		if descending {
			return prices[i].GreaterThan(prices[j])
		}
		return prices[i].LessThan(prices[j])
	})

	levels := make([]Level, 0, len(prices))
	for _, p := range prices {
		levels = append(levels, Level{Price: p, Amount: sums[p.String()]})
	}
	if len(levels) > limit {
		levels = levels[:limit]
	}
	return levels
}
