package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"symbolsyncv1/internal/model"
	"symbolsyncv1/internal/syncer"
)

// handleSyncBroker triggers one broker's sync and blocks until it
// finishes. Overlapping triggers get 409; a manual trigger is an admin
// action and the caller wants the outcome.
func (s *Server) handleSyncBroker(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	broker := strings.ToLower(strings.TrimPrefix(r.URL.Path, "/api/v1/sync/"))
	if broker == "" || strings.Contains(broker, "/") {
		writeError(w, http.StatusBadRequest, "broker name required")
		return
	}

	res, err := s.sync.SyncOne(r.Context(), broker)
	switch {
	case errors.Is(err, syncer.ErrUnsupportedBroker):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, syncer.ErrSyncInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	results := s.sync.SyncAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	statuses, err := s.statuses.GetStatuses(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"statuses": statuses})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "query parameter q required")
		return
	}

	start := time.Now()
	filters := model.SearchFilters{
		Exchange:       strings.ToUpper(r.URL.Query().Get("exchange")),
		Segment:        strings.ToUpper(r.URL.Query().Get("segment")),
		Broker:         strings.ToLower(r.URL.Query().Get("broker")),
		InstrumentType: strings.ToUpper(r.URL.Query().Get("instrument_type")),
		IncludeExpired: r.URL.Query().Get("include_expired") == "true",
		Limit:          queryInt(r, "limit", 0),
	}

	results, err := s.store.Search(r.Context(), strings.ToUpper(q), filters)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.SearchRequests.Inc()
		s.metrics.QueryDuration.WithLabelValues("search").Observe(time.Since(start).Seconds())
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(results), "results": results})
}

// handleMapping resolves one broker's identifiers for a canonical
// symbol+exchange, read-aside through the cache when one is configured.
func (s *Server) handleMapping(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	broker := strings.ToLower(r.URL.Query().Get("broker"))
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	exchange := strings.ToUpper(r.URL.Query().Get("exchange"))
	if broker == "" || symbol == "" || exchange == "" {
		writeError(w, http.StatusBadRequest, "broker, symbol and exchange required")
		return
	}

	if s.cache != nil {
		if m, ok := s.cache.GetMapping(r.Context(), broker, symbol, exchange); ok {
			if s.metrics != nil {
				s.metrics.MappingRequests.WithLabelValues("cache").Inc()
			}
			writeJSON(w, http.StatusOK, m)
			return
		}
	}

	m, err := s.store.GetMapping(r.Context(), broker, symbol, exchange)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "no active mapping for "+broker+" "+symbol+" "+exchange)
		return
	}
	if s.metrics != nil {
		s.metrics.MappingRequests.WithLabelValues("sqlite").Inc()
	}
	if s.cache != nil {
		s.cache.SetMapping(r.Context(), m)
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	exchange := strings.ToUpper(r.URL.Query().Get("exchange"))
	if symbol == "" || exchange == "" {
		writeError(w, http.StatusBadRequest, "symbol and exchange required")
		return
	}

	d, err := s.store.GetDetails(r.Context(), symbol, exchange)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "unknown instrument "+symbol+" on "+exchange)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	segs, err := s.store.ListSegments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(segs), "segments": segs})
}

func (s *Server) handlePopular(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	results, err := s.store.PopularSymbols(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(results), "results": results})
}

func (s *Server) handleByExchange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	exchange := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/api/v1/symbols/exchange/"))
	if exchange == "" || strings.Contains(exchange, "/") {
		writeError(w, http.StatusBadRequest, "exchange required")
		return
	}
	results, err := s.store.SymbolsByExchange(r.Context(), exchange, queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(results), "results": results})
}

// handleFiles lists archived snapshot files, newest first.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	if s.archiver == nil {
		writeError(w, http.StatusNotFound, "snapshot archive not configured")
		return
	}
	files, err := s.archiver.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(files), "files": files})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
