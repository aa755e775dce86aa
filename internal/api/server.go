// Package api provides the HTTP surface of the symbol sync service:
// sync triggers, sync status, and the instrument query endpoints backed
// by the canonical store.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"symbolsyncv1/internal/gateway"
	"symbolsyncv1/internal/metrics"
	"symbolsyncv1/internal/model"
	"symbolsyncv1/internal/syncer"
)

// SymbolReader is the query surface the handlers need from the store.
type SymbolReader interface {
	model.SymbolStore
	PopularSymbols(ctx context.Context, limit int) ([]model.SearchResult, error)
	SymbolsByExchange(ctx context.Context, exchange string, limit int) ([]model.SearchResult, error)
}

// SyncRunner triggers syncs. Satisfied by *syncer.Orchestrator.
type SyncRunner interface {
	SyncOne(ctx context.Context, broker string) (*syncer.Result, error)
	SyncAll(ctx context.Context) map[string]*syncer.Result
}

// Server bundles the handler dependencies. Archiver, cache, hub and
// metrics are optional; nil disables the corresponding endpoints or
// behavior.
type Server struct {
	store    SymbolReader
	statuses model.StatusStore
	sync     SyncRunner
	archiver model.SnapshotArchiver
	cache    model.MappingCache
	hub      *gateway.Hub
	metrics  *metrics.Metrics

	srv *http.Server
}

func NewServer(addr string, store SymbolReader, statuses model.StatusStore, sync SyncRunner) *Server {
	s := &Server{store: store, statuses: statuses, sync: sync}
	s.srv = &http.Server{Addr: addr, Handler: s.Routes()}
	return s
}

func (s *Server) WithArchiver(a model.SnapshotArchiver) *Server { s.archiver = a; return s }
func (s *Server) WithCache(c model.MappingCache) *Server        { s.cache = c; return s }
func (s *Server) WithHub(h *gateway.Hub) *Server                { s.hub = h; return s }
func (s *Server) WithMetrics(m *metrics.Metrics) *Server        { s.metrics = m; return s }

// Routes builds the API mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/api/v1/sync/", s.handleSyncBroker) // POST /api/v1/sync/{broker}
	mux.HandleFunc("/api/v1/sync-all", s.handleSyncAll)
	mux.HandleFunc("/api/v1/status", s.handleStatus)

	mux.HandleFunc("/api/v1/symbols/search", s.handleSearch)
	mux.HandleFunc("/api/v1/symbols/mapping", s.handleMapping)
	mux.HandleFunc("/api/v1/symbols/details", s.handleDetails)
	mux.HandleFunc("/api/v1/symbols/segments", s.handleSegments)
	mux.HandleFunc("/api/v1/symbols/popular", s.handlePopular)
	mux.HandleFunc("/api/v1/symbols/exchange/", s.handleByExchange) // GET /api/v1/symbols/exchange/{exchange}
	mux.HandleFunc("/api/v1/files", s.handleFiles)

	if s.hub != nil {
		mux.HandleFunc("/api/v1/stream", s.hub.ServeWS)
	}

	return mux
}

// Start launches the API server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[api] server listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[api] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
