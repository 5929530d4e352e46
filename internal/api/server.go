// Package api is the external request/response boundary (§4.5, §6): a
// plain net/http mux exactly as the teacher's own cmd/server wires one up,
// since §1 explicitly scopes HTTP routing/serialization out of the core's
// focus.
package api

import (
	"encoding/json"
	"net/http"

	"order-matching-engine/internal/depthcache"
	"order-matching-engine/internal/engine"
	"order-matching-engine/internal/store"
)

// Server wires together the record store, the matching engine and the
// depth cache behind the HTTP surface of §6.
type Server struct {
	store   *store.Store
	matcher *engine.Matcher
	cache   *depthcache.Cache
}

// NewServer constructs a Server.
func NewServer(st *store.Store, m *engine.Matcher, c *depthcache.Cache) *Server {
	return &Server{store: st, matcher: m, cache: c}
}

// Routes registers the HTTP surface of §6 on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/currency/", s.handleCurrency)
	mux.HandleFunc("/market/", s.handleMarket)
	mux.HandleFunc("/order/", s.handleOrder)
	mux.HandleFunc("/order-book/", s.handleOrderBook)
	mux.HandleFunc("/health", s.handleHealth)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Status: "error", Message: message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "record store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
