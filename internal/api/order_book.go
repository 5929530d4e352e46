package api

import (
	"net/http"
	"strconv"

	"order-matching-engine/internal/depthcache"
)

// handleOrderBook implements GET /order-book/ (§4.5, §6): returns the
// aggregated depth view for market_symbol, top limit price levels per side.
func (s *Server) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	marketSymbol := r.URL.Query().Get("market_symbol")
	if marketSymbol == "" {
		writeError(w, http.StatusBadRequest, "market_symbol is required")
		return
	}

	limit := depthcache.DefaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 || parsed > 100 {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 100")
			return
		}
		limit = parsed
	}

	depth, err := s.cache.Get(r.Context(), marketSymbol, limit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown market")
		return
	}
	writeJSON(w, http.StatusOK, depth)
}
