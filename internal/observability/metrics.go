package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lastdino/matex-sub001/internal/procurement"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	receiptsTotal     *prometheus.CounterVec
	receiptLines      prometheus.Histogram
	hookFailures      *prometheus.CounterVec
	statusTransitions *prometheus.CounterVec
	stockSync         *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry, metrik HTTP dan metrik penerimaan barang.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matex_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "matex_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	receipts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matex_receipts_total",
		Help: "Receiving events by outcome (committed, rejected).",
	}, []string{"outcome"})
	lines := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "matex_receipt_lines",
		Help:    "Number of lines per committed receipt.",
		Buckets: []float64{1, 2, 5, 10, 25, 50},
	})
	hooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matex_receiving_hook_failures_total",
		Help: "Post-commit hook failures by hook name.",
	}, []string{"hook"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matex_order_status_transitions_total",
		Help: "Committed purchase order status transitions.",
	}, []string{"from", "to"})
	stockSync := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matex_stock_sync_total",
		Help: "Stock change notifications to the external inventory system by outcome.",
	}, []string{"outcome"})
	registry.MustRegister(requests, duration, receipts, lines, hooks, transitions, stockSync)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		receiptsTotal:     receipts,
		receiptLines:      lines,
		hookFailures:      hooks,
		statusTransitions: transitions,
		stockSync:         stockSync,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveReceipt counts a receiving event.
func (m *Metrics) ObserveReceipt(outcome string, lines int) {
	if m == nil {
		return
	}
	m.receiptsTotal.WithLabelValues(outcome).Inc()
	if lines > 0 {
		m.receiptLines.Observe(float64(lines))
	}
}

// HookFailed counts a failed post-commit hook.
func (m *Metrics) HookFailed(hook string) {
	if m == nil {
		return
	}
	m.hookFailures.WithLabelValues(hook).Inc()
}

// StatusChanged implements procurement.StatusObserver.
func (m *Metrics) StatusChanged(ctx context.Context, change procurement.StatusChange) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(string(change.From), string(change.To)).Inc()
}

// StockSynced counts a stock sync delivery attempt; outcome is "sent", "failed" or "skipped".
func (m *Metrics) StockSynced(outcome string) {
	if m == nil {
		return
	}
	m.stockSync.WithLabelValues(outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
