// Package metrics records operational counters on a private Prometheus
// registry.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder receives events from every layer of the application.
type Recorder interface {
	ObserveRemoteCall(op string, d time.Duration, err error)
	ObserveHTTP(host string, status int, d time.Duration)
	IncCacheHits()
	IncCacheMisses()
	ObserveReconcile(d time.Duration, added, removed, relocated int)
	IncContainersCreated()
	ObserveStore(op string, d time.Duration, err error)
	// WriteTextfile dumps the current values in the text exposition format.
	WriteTextfile(path string) error
}

// New returns a Prometheus recorder, or a noop recorder when disabled.
func New(enabled bool) Recorder {
	if !enabled {
		return Noop{}
	}
	return NewPrometheus()
}

// Prometheus is a Recorder on its own registry.
type Prometheus struct {
	registry *prometheus.Registry

	remoteCalls    *prometheus.CounterVec
	remoteDuration *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	reconcileDur   prometheus.Histogram
	drift          *prometheus.CounterVec
	containers     prometheus.Counter
	storeOps       *prometheus.CounterVec
	storeDuration  *prometheus.HistogramVec
}

// NewPrometheus creates a recorder with a fresh registry.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Prometheus{
		registry: reg,

		remoteCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ytarchive_remote_calls_total",
			Help: "Remote API calls by operation and outcome, after retries",
		}, []string{"op", "outcome"}),

		remoteDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ytarchive_remote_call_duration_seconds",
			Help:    "Remote API call latency including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ytarchive_http_requests_total",
			Help: "HTTP round trips by host and status class",
		}, []string{"host", "status"}),

		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ytarchive_http_request_duration_seconds",
			Help:    "HTTP round trip latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"host"}),

		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "ytarchive_cache_hits_total",
			Help: "Lookups answered from the metadata cache",
		}),

		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "ytarchive_cache_misses_total",
			Help: "Lookups that went to the remote",
		}),

		reconcileDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ytarchive_reconcile_duration_seconds",
			Help:    "Duration of reconciliation passes",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),

		drift: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ytarchive_reconcile_drift_total",
			Help: "Corrections made by reconciliation, by direction",
		}, []string{"direction"}),

		containers: f.NewCounter(prometheus.CounterOpts{
			Name: "ytarchive_containers_created_total",
			Help: "Archive containers created",
		}),

		storeOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ytarchive_store_operations_total",
			Help: "Local store operations by outcome",
		}, []string{"op", "outcome"}),

		storeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ytarchive_store_operation_duration_seconds",
			Help:    "Local store operation latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
}

// Registry exposes the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

func (p *Prometheus) ObserveRemoteCall(op string, d time.Duration, err error) {
	p.remoteCalls.WithLabelValues(op, outcome(err)).Inc()
	p.remoteDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (p *Prometheus) ObserveHTTP(host string, status int, d time.Duration) {
	p.httpRequests.WithLabelValues(host, statusClass(status)).Inc()
	p.httpDuration.WithLabelValues(host).Observe(d.Seconds())
}

func (p *Prometheus) IncCacheHits()   { p.cacheHits.Inc() }
func (p *Prometheus) IncCacheMisses() { p.cacheMisses.Inc() }

func (p *Prometheus) ObserveReconcile(d time.Duration, added, removed, relocated int) {
	p.reconcileDur.Observe(d.Seconds())
	p.drift.WithLabelValues("added").Add(float64(added))
	p.drift.WithLabelValues("removed").Add(float64(removed))
	p.drift.WithLabelValues("relocated").Add(float64(relocated))
}

func (p *Prometheus) IncContainersCreated() { p.containers.Inc() }

func (p *Prometheus) ObserveStore(op string, d time.Duration, err error) {
	p.storeOps.WithLabelValues(op, outcome(err)).Inc()
	p.storeDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (p *Prometheus) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, p.registry)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var t interface{ Temporary() bool }
	if errors.As(err, &t) && t.Temporary() {
		return "retryable"
	}
	return "error"
}

func statusClass(code int) string {
	if code <= 0 {
		return "none"
	}
	return strconv.Itoa(code/100) + "xx"
}

// Noop discards everything.
type Noop struct{}

func (Noop) ObserveRemoteCall(string, time.Duration, error) {}
func (Noop) ObserveHTTP(string, int, time.Duration)         {}
func (Noop) IncCacheHits()                                  {}
func (Noop) IncCacheMisses()                                {}
func (Noop) ObserveReconcile(time.Duration, int, int, int)  {}
func (Noop) IncContainersCreated()                          {}
func (Noop) ObserveStore(string, time.Duration, error)      {}
func (Noop) WriteTextfile(string) error                     { return nil }
