package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"order-matching-engine/internal/engine"
	"order-matching-engine/internal/models"
	"order-matching-engine/internal/money"
	"order-matching-engine/internal/store"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// handleOrder implements POST /order/ (create) and PATCH /order/ (cancel),
// per §4.5 and §6.
func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createOrder(w, r)
	case http.MethodPatch:
		s.cancelOrder(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// createOrder persists a Waiting order and immediately invokes the
// matching engine in the same request, per §4.5: "persists a Waiting
// order, immediately invokes the matching engine under the same
// transaction as the persist".
func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx := r.Context()
	market, err := s.store.GetMarketBySymbol(ctx, req.TargetMarketSymbol)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown market")
		return
	}
	if !market.State.AcceptsOrders() {
		writeError(w, http.StatusBadRequest, "market is not accepting orders")
		return
	}

	orderType := models.OrderType(req.OrderType)
	if !orderType.Valid() {
		writeError(w, http.StatusBadRequest, "order_type must be Market or Limit")
		return
	}
	orderSide := models.OrderSide(req.OrderSide)
	if !orderSide.Valid() {
		writeError(w, http.StatusBadRequest, "order_side must be Buy or Sell")
		return
	}

	priceDecimal, err := decimal.NewFromString(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, "price must be a decimal number")
		return
	}
	price, err := money.NewPrice(priceDecimal)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amountDecimal, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a decimal number")
		return
	}
	amount, err := money.NewPositiveAmount(amountDecimal)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order := models.NewOrder(market.ID, orderType, orderSide, price, amount)
	if _, err := s.matcher.PlaceAndProcessOrder(ctx, req.TargetMarketSymbol, order); err != nil {
		log.Error().Err(err).Str("market_symbol", req.TargetMarketSymbol).Msg("failed to place and process order")
		writeError(w, http.StatusInternalServerError, "failed to create order")
		return
	}

	writeJSON(w, http.StatusCreated, CreateOrderResponse{OrderID: order.ID, Status: "created"})
}

// cancelOrder transitions an order to Canceled, per §4.5: "rejects unless
// the order is currently Waiting or PartiallyFilled".
func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.OrderID == 0 {
		writeError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	order, err := s.matcher.CancelOrder(r.Context(), req.OrderID)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, engine.ErrOrderNotCancelable):
			writeError(w, http.StatusBadRequest, "order is not cancelable")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		default:
			log.Error().Err(err).Int64("order_id", req.OrderID).Msg("failed to cancel order")
			writeError(w, http.StatusInternalServerError, "failed to cancel order")
		}
		return
	}

	writeJSON(w, http.StatusOK, CancelOrderResponse{OrderID: order.ID, Status: "canceled"})
}
