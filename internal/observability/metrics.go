package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/maelza/maelza-erp/internal/jobs"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	documents       *prometheus.CounterVec
	stockUnits      *prometheus.CounterVec
	stockRejections *prometheus.CounterVec
	jobs            *jobmetrics.Metrics
}

// NewMetrics menginisialisasi registry, metrik HTTP, metrik dokumen dan metrik job.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maelza_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "maelza_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	documents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maelza_documents_total",
		Help: "Operasi dokumen penjualan dan pembelian berdasarkan hasil.",
	}, []string{"kind", "operation", "outcome"})
	stockUnits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maelza_stock_units_total",
		Help: "Unit stok yang bergerak masuk atau keluar.",
	}, []string{"kind", "direction"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maelza_stock_rejections_total",
		Help: "Transaksi yang ditolak karena stok tidak cukup.",
	}, []string{"kind"})
	registry.MustRegister(requests, duration, documents, stockUnits, rejections)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		documents:       documents,
		stockUnits:      stockUnits,
		stockRejections: rejections,
		jobs:            jobmetrics.NewMetrics(registry),
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

// ObserveDocument mencatat satu operasi dokumen.
func (m *Metrics) ObserveDocument(kind, operation, outcome string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(kind, operation, outcome).Inc()
}

// ObserveStockMovement mencatat jumlah unit yang bergerak.
func (m *Metrics) ObserveStockMovement(kind, direction string, qty int) {
	if m == nil || qty <= 0 {
		return
	}
	m.stockUnits.WithLabelValues(kind, direction).Add(float64(qty))
}

// ObserveStockRejection mencatat penolakan karena stok tidak cukup.
func (m *Metrics) ObserveStockRejection(kind string) {
	if m == nil {
		return
	}
	m.stockRejections.WithLabelValues(kind).Inc()
}

// Jobs mengembalikan metrik job yang terdaftar pada registry yang sama.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
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
