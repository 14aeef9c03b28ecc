package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_backend_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_backend_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"path"})

	// Engine metrics
	chatRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_backend_chat_requests_total",
		Help: "Total number of chat requests",
	}, []string{"status"})

	chatRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_backend_chat_request_duration_seconds",
		Help:    "Duration of chat requests including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	captionRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_backend_caption_requests_total",
		Help: "Total number of image caption requests",
	}, []string{"status"})

	productsExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_backend_products_extracted_total",
		Help: "Total number of products extracted from model replies",
	})

	// Cache metrics
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_backend_cache_hits_total",
		Help: "Total number of cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_backend_cache_misses_total",
		Help: "Total number of cache misses",
	})

	// Rate limit metrics
	rateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_backend_rate_limit_exceeded_total",
		Help: "Total number of rate limit exceeded events",
	}, []string{"user_id"})

	// Session gauge
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_backend_active_sessions",
		Help: "Number of live sessions",
	})
)

// Metrics provides methods to record prometheus metrics
type Metrics struct{}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordChatRequest(status string, duration time.Duration) {
	chatRequestsTotal.WithLabelValues(status).Inc()
	chatRequestDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (m *Metrics) RecordCaption(status string) {
	captionRequestsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordProducts(count int) {
	productsExtracted.Add(float64(count))
}

func (m *Metrics) RecordCacheHit() {
	cacheHits.Inc()
}

func (m *Metrics) RecordCacheMiss() {
	cacheMisses.Inc()
}

func (m *Metrics) RecordRateLimitExceeded(userID string) {
	rateLimitExceeded.WithLabelValues(userID).Inc()
}

func (m *Metrics) SetActiveSessions(count float64) {
	activeSessions.Set(count)
}

// statusRecorder captures the response status for the HTTP middleware
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMetrics is a mux middleware observing request counts and durations
func HTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		httpRequestsTotal.WithLabelValues(r.URL.Path, fmt.Sprintf("%d", rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// StartMetricsServer starts the prometheus scrape endpoint
func StartMetricsServer(port int, path string) error {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
