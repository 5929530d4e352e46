package models

import (
	"time"

	"order-matching-engine/internal/money"
)

// Trade is an immutable, append-only record of a single match between a
// resting maker order and an incoming taker order. Price is always the
// maker's posted price at the instant of the match (§3, §4.1 "Trade price
// rule").
type Trade struct {
	ID            int64
	MakerOrderID  int64
	TakerOrderID  int64
	MarketID      int64
	Price         money.Price
	Amount        money.Amount
	Fee           money.Fee
	CreatedAt     time.Time
}

// NewTrade constructs a Trade for a single match of qty between maker and
// taker, recording the market's fee rate as of trade time (§4.1 "Fee
// rule": the engine records the rate, never a computed fee amount).
func NewTrade(maker, taker *Order, qty money.Amount, marketID int64, fee money.Fee, now time.Time) Trade {
	return Trade{
		MakerOrderID: maker.ID,
		TakerOrderID: taker.ID,
		MarketID:     marketID,
		Price:        maker.Price,
		Amount:       qty,
		Fee:          fee,
		CreatedAt:    now,
	}
}
