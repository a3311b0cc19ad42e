package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the media server.
type Metrics struct {
	registry               *prometheus.Registry
	requestsTotal          prometheus.Counter
	errorsTotal            prometheus.Counter
	bytesStreamedTotal     prometheus.Counter
	transcodesStartedTotal prometheus.Counter
	transcodesFailedTotal  prometheus.Counter
	cacheHitsTotal         prometheus.Counter
	cacheMissesTotal       prometheus.Counter
	cacheEvictionsTotal    prometheus.Counter
	activeStreams          prometheus.Gauge
	cacheEntries           prometheus.Gauge
}

// New creates and registers Prometheus metrics for the media server.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	bytesStreamedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_bytes_streamed_total",
		Help: "Total number of media bytes written to clients",
	})
	transcodesStartedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_transcodes_started_total",
		Help: "Total number of transcoding subprocesses started",
	})
	transcodesFailedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_transcodes_failed_total",
		Help: "Total number of transcoding subprocesses that exited with an error",
	})
	cacheHitsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_segment_cache_hits_total",
		Help: "Total number of manifest requests served from the segment cache",
	})
	cacheMissesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_segment_cache_misses_total",
		Help: "Total number of manifest requests that triggered segment generation",
	})
	cacheEvictionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_segment_cache_evictions_total",
		Help: "Total number of segment cache entries removed by the eviction sweep",
	})
	activeStreams := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "media_active_streams",
		Help: "Number of media streams currently being served",
	})
	cacheEntries := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "media_segment_cache_entries",
		Help: "Number of entries currently in the segment cache",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		bytesStreamedTotal,
		transcodesStartedTotal,
		transcodesFailedTotal,
		cacheHitsTotal,
		cacheMissesTotal,
		cacheEvictionsTotal,
		activeStreams,
		cacheEntries,
	)

	return &Metrics{
		registry:               registry,
		requestsTotal:          requestsTotal,
		errorsTotal:            errorsTotal,
		bytesStreamedTotal:     bytesStreamedTotal,
		transcodesStartedTotal: transcodesStartedTotal,
		transcodesFailedTotal:  transcodesFailedTotal,
		cacheHitsTotal:         cacheHitsTotal,
		cacheMissesTotal:       cacheMissesTotal,
		cacheEvictionsTotal:    cacheEvictionsTotal,
		activeStreams:          activeStreams,
		cacheEntries:           cacheEntries,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// AddBytesStreamed adds n to the streamed bytes counter.
func (m *Metrics) AddBytesStreamed(n int64) {
	m.bytesStreamedTotal.Add(float64(n))
}

// IncTranscodesStarted increments the started transcodes counter.
func (m *Metrics) IncTranscodesStarted() {
	m.transcodesStartedTotal.Inc()
}

// IncTranscodesFailed increments the failed transcodes counter.
func (m *Metrics) IncTranscodesFailed() {
	m.transcodesFailedTotal.Inc()
}

// IncCacheHits increments the segment cache hit counter.
func (m *Metrics) IncCacheHits() {
	m.cacheHitsTotal.Inc()
}

// IncCacheMisses increments the segment cache miss counter.
func (m *Metrics) IncCacheMisses() {
	m.cacheMissesTotal.Inc()
}

// AddCacheEvictions adds n to the eviction counter.
func (m *Metrics) AddCacheEvictions(n int) {
	m.cacheEvictionsTotal.Add(float64(n))
}

// StreamStarted increments the active streams gauge.
func (m *Metrics) StreamStarted() {
	m.activeStreams.Inc()
}

// StreamFinished decrements the active streams gauge.
func (m *Metrics) StreamFinished() {
	m.activeStreams.Dec()
}

// SetCacheEntries sets the cache entries gauge.
func (m *Metrics) SetCacheEntries(n int) {
	m.cacheEntries.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values
// (e.g. current cache entry count).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
