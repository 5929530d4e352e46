package api

import (
	"encoding/json"
	"net/http"

	"order-matching-engine/internal/models"
	"order-matching-engine/internal/money"

	"github.com/shopspring/decimal"
)

// handleMarket implements POST /market/ and GET /market/ (§6). Market
// creation is the thin CRUD needed for orders to reference a market at
// all (§3 expansion, Open Question resolved): base_currency and
// quote_currency are currency symbols, validated distinct before creation
// per §3's creation-time invariant.
func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createMarket(w, r)
	case http.MethodGet:
		s.listMarkets(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) createMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.BaseCurrency == "" || req.QuoteCurrency == "" {
		writeError(w, http.StatusBadRequest, "base_currency and quote_currency are required")
		return
	}
	if req.BaseCurrency == req.QuoteCurrency {
		writeError(w, http.StatusBadRequest, "base and quote currency must differ")
		return
	}

	feeDecimal := decimal.Zero
	if req.Fee != "" {
		var err error
		feeDecimal, err = decimal.NewFromString(req.Fee)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid fee")
			return
		}
	}
	fee, err := money.NewFee(feeDecimal)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	base, err := s.store.GetCurrencyBySymbol(ctx, req.BaseCurrency)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown base currency")
		return
	}
	quote, err := s.store.GetCurrencyBySymbol(ctx, req.QuoteCurrency)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown quote currency")
		return
	}

	market, err := models.NewMarket(*base, *quote, fee)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := s.store.CreateMarket(ctx, market)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to create market: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.store.ListMarkets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}
	writeJSON(w, http.StatusOK, markets)
}
