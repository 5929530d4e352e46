package models

import (
	"fmt"
	"time"

	"order-matching-engine/internal/money"
)

// Market is an ordered base/quote currency pair that orders trade against.
// Symbol is derived once at creation from the two currencies' symbols and
// never changes afterwards.
type Market struct {
	ID              int64       `json:"id"`
	BaseCurrencyID  int64       `json:"base_currency_id"`
	QuoteCurrencyID int64       `json:"quote_currency_id"`
	BaseSymbol      string      `json:"base_symbol"`
	QuoteSymbol     string      `json:"quote_symbol"`
	Symbol          string      `json:"symbol"`
	Fee             money.Fee   `json:"fee"`
	State           MarketState `json:"state"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// DeriveSymbol builds the canonical "<base>_<quote>" market symbol.
func DeriveSymbol(baseSymbol, quoteSymbol string) string {
	return fmt.Sprintf("%s_%s", baseSymbol, quoteSymbol)
}

// NewMarket validates and constructs a Market. base and quote must refer to
// distinct currencies, per the creation-time invariant of §3.
func NewMarket(base, quote Currency, fee money.Fee) (*Market, error) {
	if base.ID == quote.ID {
		return nil, fmt.Errorf("market base and quote currency must differ")
	}
	return &Market{
		BaseCurrencyID:  base.ID,
		QuoteCurrencyID: quote.ID,
		BaseSymbol:      base.Symbol,
		QuoteSymbol:     quote.Symbol,
		Symbol:          DeriveSymbol(base.Symbol, quote.Symbol),
		Fee:             fee,
		State:           MarketStateActive,
	}, nil
}
