package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"order-matching-engine/internal/models"
	"order-matching-engine/internal/store"

	"github.com/rs/zerolog/log"
)

// CancelOrder transitions order orderID from {Waiting, PartiallyFilled} to
// Canceled, preserving prior fills and leaving remaining_amount at its
// pre-cancel value (§4.4). It takes the same per-market fast-path mutex as
// ProcessOrder, then the same row lock, so a cancel and a concurrent match
// on the same market never race each other (§5).
func (m *Matcher) CancelOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	symbol, err := m.marketSymbolForOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	mtx := m.marketMutex(symbol)
	mtx.Lock()
	defer mtx.Unlock()

	var result *models.Order
	var marketSymbol string

	err = m.store.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		order, err := m.store.GetOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		if order.State != models.OrderStateWaiting && order.State != models.OrderStatePartiallyFilled {
			return ErrOrderNotCancelable
		}

		if err := order.Cancel(time.Now().UTC()); err != nil {
			return err
		}
		if err := m.store.UpdateOrder(ctx, tx, order); err != nil {
			return err
		}

		market, err := m.store.GetMarketByID(ctx, order.MarketID)
		if err != nil {
			return err
		}
		marketSymbol = market.Symbol
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if marketSymbol != "" {
		if err := m.cache.Update(ctx, marketSymbol); err != nil {
			log.Warn().Str("market_symbol", marketSymbol).Err(err).Msg("depth cache update failed after cancel")
		}
	}
	return result, nil
}
