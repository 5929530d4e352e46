// Package depthcache implements §4.3's order-book depth cache: a derived,
// eventually-consistent aggregation of resting orders, held in Redis
// sorted sets and read through for cheap top-of-book queries. It owns no
// business fact; the record store (internal/store) always wins on
// disagreement, and Sync repairs the cache from it.
package depthcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"order-matching-engine/internal/models"
	"order-matching-engine/internal/store"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// DefaultLimit is the default number of price levels get_depth returns
// when the caller does not specify one.
const DefaultLimit = 10

// SyncLockTTL is the expiry on the sync_lock:<symbol> guard, per §6.
const SyncLockTTL = 30 * time.Second

// Level is one aggregated price level: the sum of every resting order's
// remaining amount at that price (§4.3 "Aggregation rule").
type Level struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
}

// MarshalJSON writes price and amount as JSON numbers rather than decimal
// strings; exact decimals stay in the record store.
func (l Level) MarshalJSON() ([]byte, error) {
	price, _ := l.Price.Float64()
	amount, _ := l.Amount.Float64()
	return json.Marshal(struct {
		Price  float64 `json:"price"`
		Amount float64 `json:"amount"`
	}{price, amount})
}

// Depth is the response shape of get_depth (§4.3, §6).
type Depth struct {
	MarketSymbol string    `json:"market_symbol"`
	Sell         []Level   `json:"sell"`
	Buy          []Level   `json:"buy"`
	Timestamp    time.Time `json:"timestamp"`
	Source       string    `json:"source,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Stats reports counts and sync/update timestamps for one market's cache
// entries (§4.3 "stats").
type Stats struct {
	MarketSymbol string `json:"market_symbol"`
	BuyCount     int64  `json:"buy_orders_count"`
	SellCount    int64  `json:"sell_orders_count"`
	LastUpdate   string `json:"last_update,omitempty"`
	LastSync     string `json:"last_sync,omitempty"`
}

// entry is the JSON member stored in each sorted set, matching §6's
// bit-exact cache keyspace.
type entry struct {
	ID        int64  `json:"id"`
	Price     string `json:"price"`
	Amount    string `json:"amount"`
	CreatedAt string `json:"created_at"`
}

// Cache is the Redis-backed depth cache service.
type Cache struct {
	rdb      *redis.Client
	store    *store.Store
	fallback *DBFallback
}

// New constructs a Cache over an already-connected Redis client and the
// record store it falls back to.
func New(rdb *redis.Client, st *store.Store) *Cache {
	return &Cache{rdb: rdb, store: st, fallback: &DBFallback{store: st}}
}

// Get returns the top limit price levels on each side for marketSymbol.
// On any Redis-layer failure it falls back to aggregating directly from
// the record store, annotated Source: "database" (§4.3 "Fallback"). When
// both sides come back empty from Redis it triggers one Sync and re-reads,
// per §4.3.
func (c *Cache) Get(ctx context.Context, marketSymbol string, limit int) (*Depth, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if _, err := c.store.GetMarketBySymbol(ctx, marketSymbol); err != nil {
		return nil, err
	}

	sell, sellErr := c.levels(ctx, sellKey(marketSymbol), limit, false)
	buy, buyErr := c.levels(ctx, buyKey(marketSymbol), limit, true)
	if sellErr != nil || buyErr != nil {
		log.Warn().Str("market_symbol", marketSymbol).Err(firstErr(sellErr, buyErr)).Msg("depth cache unavailable, falling back to record store")
		return c.fallback.Get(ctx, marketSymbol, limit)
	}

	if len(sell) == 0 && len(buy) == 0 {
		if err := c.Sync(ctx, marketSymbol); err != nil {
			log.Warn().Str("market_symbol", marketSymbol).Err(err).Msg("depth cache sync failed")
		}
		sell, _ = c.levels(ctx, sellKey(marketSymbol), limit, false)
		buy, _ = c.levels(ctx, buyKey(marketSymbol), limit, true)
	}

	return &Depth{
		MarketSymbol: marketSymbol,
		Sell:         sell,
		Buy:          buy,
		Timestamp:    time.Now().UTC(),
		Source:       "cache",
	}, nil
}

func firstErr(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// levels fetches the first limit raw members of key (ordered best-first by
// score), then aggregates them by price, per the teacher system's
// `_get_sell_from_redis`/`_get_buy_from_redis`: the raw-member window, not
// the aggregated level count, is bounded by limit.
func (c *Cache) levels(ctx context.Context, key string, limit int, isBuy bool) ([]Level, error) {
	raw, err := c.rdb.ZRangeWithScores(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange %s: %w", key, err)
	}

	sums := map[string]decimal.Decimal{}
	order := []string{}
	for _, z := range raw {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		var e entry
		if err := json.Unmarshal([]byte(member), &e); err != nil {
			continue
		}
		if _, seen := sums[e.Price]; !seen {
			order = append(order, e.Price)
			sums[e.Price] = decimal.Zero
		}
		amt, err := decimal.NewFromString(e.Amount)
		if err != nil {
			continue
		}
		sums[e.Price] = sums[e.Price].Add(amt)
	}

	prices := make([]decimal.Decimal, 0, len(order))
	for _, p := range order {
		d, err := decimal.NewFromString(p)
		if err != nil {
			continue
		}
		prices = append(prices, d)
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].LessThan(prices[j]) })

	if isBuy {
		// Buy levels are returned descending; sell stays ascending.
		for i, j := 0, len(prices)-1; i < j; i, j = i+1, j-1 {
			prices[i], prices[j] = prices[j], prices[i]
		}
	}

	levels := make([]Level, 0, len(prices))
	for _, p := range prices {
		levels = append(levels, Level{Price: p, Amount: sums[p.String()]})
	}
	if len(levels) > limit {
		levels = levels[:limit]
	}
	return levels, nil
}

// Update clears and rebuilds both sorted sets for marketSymbol from the
// record store's current resting orders. Every matching-engine write path
// (ProcessOrder, CancelOrder) calls this, unguarded, after its transaction
// commits — posting a freshly-resting limit order, reflecting a partial
// fill, and removing a filled/canceled order are all just instances of
// "rebuild from the source of truth" (§9 "Ownership of the depth cache").
func (c *Cache) Update(ctx context.Context, marketSymbol string) error {
	market, err := c.store.GetMarketBySymbol(ctx, marketSymbol)
	if err != nil {
		return err
	}
	buys, sells, err := c.store.RestingOrders(ctx, market.ID)
	if err != nil {
		return fmt.Errorf("load resting orders: %w", err)
	}

	bKey, sKey := buyKey(marketSymbol), sellKey(marketSymbol)
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, bKey, sKey)
	for _, o := range buys {
		addEntry(pipe, bKey, o, true)
	}
	for _, o := range sells {
		addEntry(pipe, sKey, o, false)
	}
	pipe.Set(ctx, lastUpdateKey(marketSymbol), time.Now().UTC().Format(time.RFC3339Nano), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rebuild order book for %s: %w", marketSymbol, err)
	}
	return nil
}

func addEntry(pipe redis.Pipeliner, key string, o *models.Order, isBuy bool) {
	e := entry{
		ID:        o.ID,
		Price:     o.Price.String(),
		Amount:    o.RemainingAmount.String(),
		CreatedAt: o.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	score, _ := o.Price.Float64()
	if isBuy {
		score = -score
	}
	pipe.ZAdd(context.Background(), key, redis.Z{Score: score, Member: string(b)})
}

// Sync fully rebuilds marketSymbol's cache entries, guarded by a
// sync_lock:<symbol> entry with a 30-second expiry acquired via SET NX
// (§4.3, §6). If the lock is already held, Sync returns immediately
// without error.
func (c *Cache) Sync(ctx context.Context, marketSymbol string) error {
	acquired, err := c.rdb.SetNX(ctx, syncLockKey(marketSymbol), "1", SyncLockTTL).Result()
	if err != nil {
		return fmt.Errorf("acquire sync lock: %w", err)
	}
	if !acquired {
		return nil
	}
	defer c.rdb.Del(ctx, syncLockKey(marketSymbol))

	if err := c.Update(ctx, marketSymbol); err != nil {
		return err
	}
	return c.rdb.Set(ctx, lastSyncKey(marketSymbol), time.Now().UTC().Format(time.RFC3339Nano), 0).Err()
}

// Stats reports counts and last-update/last-sync timestamps for
// marketSymbol's cache entries, for observability (§4.3 "stats").
func (c *Cache) Stats(ctx context.Context, marketSymbol string) (*Stats, error) {
	buyCount, err := c.rdb.ZCard(ctx, buyKey(marketSymbol)).Result()
	if err != nil {
		return nil, err
	}
	sellCount, err := c.rdb.ZCard(ctx, sellKey(marketSymbol)).Result()
	if err != nil {
		return nil, err
	}
	lastUpdate, _ := c.rdb.Get(ctx, lastUpdateKey(marketSymbol)).Result()
	lastSync, _ := c.rdb.Get(ctx, lastSyncKey(marketSymbol)).Result()

	return &Stats{
		MarketSymbol: marketSymbol,
		BuyCount:     buyCount,
		SellCount:    sellCount,
		LastUpdate:   lastUpdate,
		LastSync:     lastSync,
	}, nil
}
