package api

import (
	"errors"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"time"

	"carnival/internal/game"
	"carnival/internal/lobby"
	"carnival/internal/tournament"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics with bounded cardinality (no per-user labels)
var (
	// Match metrics
	matchesStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carnival_matches_started_total",
		Help: "Matches started",
	}, []string{"game", "mode"})

	matchesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carnival_matches_completed_total",
		Help: "Matches that delivered a final score",
	}, []string{"game", "mode"})

	matchScore = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "carnival_match_score",
		Help:    "Final match scores",
		Buckets: []float64{0, 100, 250, 500, 1000, 1500, 2000, 3000, 5000},
	}, []string{"game"})

	matchInputs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carnival_match_inputs_total",
		Help: "Player inputs by outcome",
	}, []string{"result"}) // "accepted", "ignored", "rejected"

	// Tournament metrics
	tournamentEntries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carnival_tournament_entries_total",
		Help: "Paid tournament entries",
	})

	tournamentOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carnival_tournament_outcomes_total",
		Help: "Brackets that ended, by outcome",
	}, []string{"outcome"})

	ledgerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "carnival_ledger_op_duration_seconds",
		Help:    "Ledger operation latency",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	}, []string{"op", "result"})

	// Audit log metrics
	auditDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carnival_audit_dropped_total",
		Help: "Audit events dropped due to rate limiting or buffer full",
	})

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter, auth or origin check",
	}, []string{"reason"})

	// HTTP metrics with bounded labels
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	// WebSocket metrics
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "Total WebSocket messages queued",
	})

	wsMessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_dropped_total",
		Help: "WebSocket messages dropped for slow clients",
	})
)

// Metrics records lobby activity in Prometheus.
type Metrics struct{}

var _ lobby.Observer = Metrics{}

func (Metrics) MatchStarted(id game.ID, mode game.Mode) {
	matchesStarted.WithLabelValues(string(id), string(mode)).Inc()
}

func (Metrics) MatchCompleted(id game.ID, mode game.Mode, score int) {
	matchesCompleted.WithLabelValues(string(id), string(mode)).Inc()
	matchScore.WithLabelValues(string(id)).Observe(float64(score))
}

func (Metrics) TournamentEntered() {
	tournamentEntries.Inc()
}

func (Metrics) TournamentEnded(outcome tournament.Status) {
	tournamentOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (Metrics) LedgerOp(op string, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ledgerLatency.WithLabelValues(op, result).Observe(took.Seconds())
}

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // keep on loopback in production
	BasicAuthUser string // Optional basic auth
	BasicAuthPass string
}

// DefaultObservabilityConfig returns safe defaults
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// NewDebugServer builds the internal observability server: pprof, metrics,
// health and audit log stats. It returns nil when disabled. Non-loopback
// addresses are forced to 127.0.0.1 unless ALLOW_DEBUG_EXTERNAL=true.
func NewDebugServer(cfg ObservabilityConfig, audit *game.AuditLog) *http.Server {
	if !cfg.Enabled {
		log.Println("📊 Debug server disabled")
		return nil
	}

	if host, port, err := net.SplitHostPort(cfg.ListenAddr); err == nil &&
		host != "127.0.0.1" && host != "localhost" && os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
		log.Println("⚠️ Debug server forced to localhost for security")
		cfg.ListenAddr = net.JoinHostPort("127.0.0.1", port)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if audit != nil {
		mux.HandleFunc("/debug/audit", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, audit.Stats())
		})
	}

	var handler http.Handler = mux
	if cfg.BasicAuthUser != "" {
		handler = basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}

	log.Printf("📊 Debug server on %s", cfg.ListenAddr)
	log.Printf("   - pprof:   http://%s/debug/pprof/", cfg.ListenAddr)
	log.Printf("   - metrics: http://%s/metrics", cfg.ListenAddr)
	return &http.Server{Addr: cfg.ListenAddr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
}

// basicAuthMiddleware adds basic authentication to the handler
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestMetrics records latency and status per route pattern.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, endpoint, status, time.Since(start))
	})
}

// RecordAuditDrop counts a dropped audit event.
func RecordAuditDrop() {
	auditDropped.Inc()
}

// RecordInput counts a match input by outcome.
func RecordInput(accepted bool, err error) {
	switch {
	case err != nil && !errors.Is(err, game.ErrMatchOver):
		matchInputs.WithLabelValues("rejected").Inc()
	case accepted:
		matchInputs.WithLabelValues("accepted").Inc()
	default:
		matchInputs.WithLabelValues("ignored").Inc()
	}
}

// RecordConnectionRejected increments the rejection counter.
// reason must be one of: "rate_limit", "origin", "auth", "ws_total_limit", "ws_ip_limit"
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments WebSocket message counter
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}

// RecordWSDropped counts a message dropped for a slow client.
func RecordWSDropped() {
	wsMessagesDropped.Inc()
}
