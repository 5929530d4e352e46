// Package engine implements the matching engine (§4.1) and cancel handler
// (§4.4). It never decides a match by reading internal/depthcache — it
// matches strictly from internal/store inside one serializable
// transaction, and only writes to the cache after that transaction
// commits (§9 "Ownership of the depth cache").
package engine

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"order-matching-engine/internal/depthcache"
	"order-matching-engine/internal/models"
	"order-matching-engine/internal/money"
	"order-matching-engine/internal/store"

	"github.com/rs/zerolog/log"
)

// Sentinel errors for process_order's precondition failures (§4.1
// "Precondition"). The HTTP boundary maps these to 400-class responses.
var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderNotWaiting    = errors.New("order is not in waiting state")
	ErrOrderNotCancelable = errors.New("order cannot be canceled")
)

// ProcessResult is process_order's success-path response shape (§4.1).
type ProcessResult struct {
	Status        string            `json:"status"`
	MatchedAmount money.Amount      `json:"matched_amount"`
	OrderState    models.OrderState `json:"order_state"`
}

// Matcher is the matching engine and cancel handler, constructed with
// injected handles to the record store and the depth cache (§9
// "Singleton services" recast as a constructed service).
type Matcher struct {
	store *store.Store
	cache *depthcache.Cache

	mutexGuard    sync.RWMutex
	marketMutexes map[string]*sync.Mutex
}

// New constructs a Matcher.
func New(st *store.Store, c *depthcache.Cache) *Matcher {
	return &Matcher{store: st, cache: c, marketMutexes: make(map[string]*sync.Mutex)}
}

// marketMutex returns a per-market mutex, creating it if necessary. This
// mirrors the teacher's Engine.getSymbolMutex: a coarse in-process
// serialization fast path so concurrent requests on the same hot market
// don't all queue directly on the record store's row locks, which remain
// the authoritative arbiter (§4.1, §5).
func (m *Matcher) marketMutex(symbol string) *sync.Mutex {
	m.mutexGuard.RLock()
	mtx, ok := m.marketMutexes[symbol]
	m.mutexGuard.RUnlock()
	if ok {
		return mtx
	}

	m.mutexGuard.Lock()
	defer m.mutexGuard.Unlock()
	if mtx, ok = m.marketMutexes[symbol]; !ok {
		mtx = &sync.Mutex{}
		m.marketMutexes[symbol] = mtx
	}
	return mtx
}

// marketSymbolForOrder is an unlocked lookup used only to discover which
// per-market mutex to acquire before opening the authoritative transaction.
func (m *Matcher) marketSymbolForOrder(ctx context.Context, orderID int64) (string, error) {
	order, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrOrderNotFound
		}
		return "", err
	}
	market, err := m.store.GetMarketByID(ctx, order.MarketID)
	if err != nil {
		return "", err
	}
	return market.Symbol, nil
}

// PlaceAndProcessOrder persists order in the Waiting state and immediately
// matches it, both inside the same serializable transaction (spec.md §4.5:
// "persists a Waiting order, immediately invokes the matching engine under
// the same transaction as the persist"). marketSymbol keys the per-market
// fast-path mutex; the caller already has it from resolving order.MarketID.
func (m *Matcher) PlaceAndProcessOrder(ctx context.Context, marketSymbol string, order *models.Order) (*ProcessResult, error) {
	mtx := m.marketMutex(marketSymbol)
	mtx.Lock()
	defer mtx.Unlock()

	var result ProcessResult
	var committedSymbol string

	err := m.store.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := m.store.InsertOrderTx(ctx, tx, order); err != nil {
			return err
		}
		r, symbol, err := m.processOrderTx(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		result = *r
		committedSymbol = symbol
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.updateCacheAfterCommit(ctx, committedSymbol)
	return &result, nil
}

// ProcessOrder matches the order identified by orderID against the
// opposing side of its market under strict price-time priority, inside a
// single serializable transaction bracketed by pessimistic row locks
// (§4.1, §5). It must be invoked only after the order has been persisted
// in the Waiting state.
func (m *Matcher) ProcessOrder(ctx context.Context, orderID int64) (*ProcessResult, error) {
	symbol, err := m.marketSymbolForOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	mtx := m.marketMutex(symbol)
	mtx.Lock()
	defer mtx.Unlock()

	var result ProcessResult
	var committedSymbol string

	err = m.store.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		r, s, err := m.processOrderTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		result = *r
		committedSymbol = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.updateCacheAfterCommit(ctx, committedSymbol)
	return &result, nil
}

// processOrderTx is the matching algorithm proper, run inside tx. It is
// shared by ProcessOrder (order already persisted by a prior, separate
// transaction) and PlaceAndProcessOrder (order persisted earlier in this
// same transaction).
func (m *Matcher) processOrderTx(ctx context.Context, tx *sql.Tx, orderID int64) (*ProcessResult, string, error) {
	order, err := m.store.GetOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", ErrOrderNotFound
		}
		return nil, "", err
	}
	if order.State != models.OrderStateWaiting {
		return nil, "", ErrOrderNotWaiting
	}

	now := time.Now().UTC()
	order.Normalize(now)
	if err := m.store.UpdateOrder(ctx, tx, order); err != nil {
		return nil, "", err
	}

	market, err := m.store.GetMarketByID(ctx, order.MarketID)
	if err != nil {
		return nil, "", err
	}

	opposing, err := m.store.ScanOpposingForUpdate(ctx, tx, order.MarketID, order.Side.Opposite())
	if err != nil {
		return nil, "", err
	}

	totalMatched := money.Zero
	for _, maker := range opposing {
		if order.RemainingAmount.IsZero() {
			break
		}
		if order.Type == models.OrderTypeLimit && !priceWithinLimit(order, maker) {
			break
		}

		qty := money.Min(order.RemainingAmount, maker.RemainingAmount)
		trade := models.NewTrade(maker, order, qty, market.ID, market.Fee, now)
		if _, err := m.store.InsertTrade(ctx, tx, &trade); err != nil {
			return nil, "", err
		}

		if err := order.ApplyFill(qty, now); err != nil {
			return nil, "", err
		}
		if err := maker.ApplyFill(qty, now); err != nil {
			return nil, "", err
		}
		if err := m.store.UpdateOrder(ctx, tx, maker); err != nil {
			return nil, "", err
		}

		totalMatched = totalMatched.Add(qty)
	}

	if order.Type == models.OrderTypeMarket && len(opposing) == 0 {
		order.MarkNoLiquidity(now)
		if err := m.store.UpdateOrder(ctx, tx, order); err != nil {
			return nil, "", err
		}
		return &ProcessResult{Status: "no_match", MatchedAmount: totalMatched, OrderState: order.State}, market.Symbol, nil
	}

	if err := m.store.UpdateOrder(ctx, tx, order); err != nil {
		return nil, "", err
	}
	return &ProcessResult{Status: "processed", MatchedAmount: totalMatched, OrderState: order.State}, market.Symbol, nil
}

// updateCacheAfterCommit refreshes the depth cache once the matching
// transaction has committed. Cache writes are best-effort (§9): a failure
// here is logged, never propagated, and never reopens the transaction.
func (m *Matcher) updateCacheAfterCommit(ctx context.Context, marketSymbol string) {
	if marketSymbol == "" {
		return
	}
	if err := m.cache.Update(ctx, marketSymbol); err != nil {
		log.Warn().Str("market_symbol", marketSymbol).Err(err).Msg("depth cache update failed after matching")
	}
}

// priceWithinLimit implements §4.1's limit-order early-termination rule: a
// Buy taker accepts makers priced at or below its own price; a Sell taker
// accepts makers priced at or above its own.
func priceWithinLimit(incoming, maker *models.Order) bool {
	if incoming.Side == models.OrderSideBuy {
		return maker.Price.LessThanOrEqual(incoming.Price.Decimal)
	}
	return maker.Price.GreaterThanOrEqual(incoming.Price.Decimal)
}
