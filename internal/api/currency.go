package api

import (
	"encoding/json"
	"net/http"
)

// handleCurrency implements the minimal currency administration needed to
// seed the currencies a market references (§3 expansion: "Currency/Market
// administration"). POST creates, GET lists.
func (s *Server) handleCurrency(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req CreateCurrencyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Name == "" || req.Symbol == "" {
			writeError(w, http.StatusBadRequest, "name and symbol are required")
			return
		}
		c, err := s.store.CreateCurrency(r.Context(), req.Name, req.Symbol)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to create currency: "+err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, c)
	case http.MethodGet:
		currencies, err := s.store.ListCurrencies(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list currencies")
			return
		}
		writeJSON(w, http.StatusOK, currencies)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
