package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the symbol sync service.
type Metrics struct {
	SyncsTotal     *prometheus.CounterVec   // labels: broker, result=completed|failed
	SyncDuration   *prometheus.HistogramVec // labels: broker
	FetchFallbacks *prometheus.CounterVec   // labels: broker
	SymbolsFetched *prometheus.GaugeVec     // labels: broker
	SymbolsStored  *prometheus.CounterVec   // labels: broker, kind=stored|updated
	SyncsRejected  prometheus.Counter       // overlapping sync attempts turned away

	// Query surface metrics
	SearchRequests  prometheus.Counter
	MappingRequests *prometheus.CounterVec // labels: source=cache|sqlite
	QueryDuration   *prometheus.HistogramVec // labels: endpoint
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		SyncsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "symbolsync_syncs_total",
			Help: "Completed sync attempts by broker and result",
		}, []string{"broker", "result"}),
		SyncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "symbolsync_sync_duration_seconds",
			Help:    "Wall time of one broker sync (fetch, normalize, store, archive)",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{"broker"}),
		FetchFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "symbolsync_fetch_fallbacks_total",
			Help: "Syncs served by a fallback source rather than the primary endpoint",
		}, []string{"broker"}),
		SymbolsFetched: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "symbolsync_symbols_fetched",
			Help: "Symbols fetched in the most recent sync per broker",
		}, []string{"broker"}),
		SymbolsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "symbolsync_symbols_stored_total",
			Help: "Instrument rows written by kind (stored = fresh insert, updated = replaced)",
		}, []string{"broker", "kind"}),
		SyncsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "symbolsync_syncs_rejected_total",
			Help: "Sync requests rejected because the broker was already syncing",
		}),

		SearchRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "symbolsync_search_requests_total",
			Help: "Symbol search requests served",
		}),
		MappingRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "symbolsync_mapping_requests_total",
			Help: "Mapping lookups by serving source",
		}, []string{"source"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "symbolsync_query_duration_seconds",
			Help:    "Query endpoint latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}

	prometheus.MustRegister(
		m.SyncsTotal,
		m.SyncDuration,
		m.FetchFallbacks,
		m.SymbolsFetched,
		m.SymbolsStored,
		m.SyncsRejected,
		m.SearchRequests,
		m.MappingRequests,
		m.QueryDuration,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	SQLiteOK       bool      `json:"sqlite_ok"`
	RedisConnected bool      `json:"redis_connected"`
	RedisEnabled   bool      `json:"redis_enabled"`
	LastSyncAt     time.Time `json:"last_sync_at"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastSyncAt(t time.Time) {
	h.mu.Lock()
	h.LastSyncAt = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint. Redis is an optional
// dependency: its state only degrades health when it is enabled.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.SQLiteOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	} else if h.RedisEnabled && !h.RedisConnected {
		overallStatus = "degraded"
	}

	lastSync := ""
	if !h.LastSyncAt.IsZero() {
		lastSync = h.LastSyncAt.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		LastSyncAt      string  `json:"last_sync_at,omitempty"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		LastSyncAt:      lastSync,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
