// Package metrics exports Prometheus collectors for the repository, the
// cache and the event bus. A single Prometheus value satisfies the metric
// interfaces of all three.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "articles"

type Prometheus struct {
	loadDuration        *prometheus.HistogramVec
	saveDuration        *prometheus.HistogramVec
	eventsAppended      *prometheus.CounterVec
	concurrencyConflict *prometheus.CounterVec
	snapshotsWritten    *prometheus.CounterVec
	snapshotDecodeFail  *prometheus.CounterVec
	snapshotWriteFail   *prometheus.CounterVec

	cacheRequests     *prometheus.CounterVec
	cacheEarly        prometheus.Counter
	cacheCompute      prometheus.Histogram
	cacheBackendError prometheus.Counter
	cacheDecodeError  prometheus.Counter

	listenerDuration *prometheus.HistogramVec
	listenerErrors   *prometheus.CounterVec
}

// New registers all collectors with reg
func New(reg prometheus.Registerer) *Prometheus {
	f := promauto.With(reg)

	return &Prometheus{
		loadDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregate_load_duration_seconds",
			Help:      "Duration of aggregate loads (snapshot read plus replay)",
			Buckets:   prometheus.DefBuckets,
		}, []string{"aggregate_type"}),
		saveDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregate_save_duration_seconds",
			Help:      "Duration of aggregate saves including publishing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"aggregate_type"}),
		eventsAppended: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_appended_total",
			Help:      "Events appended to the event store",
		}, []string{"aggregate_type"}),
		concurrencyConflict: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "concurrency_conflicts_total",
			Help:      "Saves rejected because the stream moved on",
		}, []string{"aggregate_type"}),
		snapshotsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_written_total",
			Help:      "Snapshots written",
		}, []string{"aggregate_type"}),
		snapshotDecodeFail: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_decode_failures_total",
			Help:      "Snapshots that could not be decoded and were replaced by full replay",
		}, []string{"aggregate_type"}),
		snapshotWriteFail: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_write_failures_total",
			Help:      "Snapshot writes that failed after the events were stored",
		}, []string{"aggregate_type"}),

		cacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by result",
		}, []string{"result"}),
		cacheEarly: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_early_recomputes_total",
			Help:      "Fresh entries recomputed ahead of expiry",
		}),
		cacheCompute: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_compute_duration_seconds",
			Help:      "Duration of cache value computations",
			Buckets:   prometheus.DefBuckets,
		}),
		cacheBackendError: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_backend_errors_total",
			Help:      "Cache backend failures served by computing directly",
		}),
		cacheDecodeError: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_decode_errors_total",
			Help:      "Cache entries dropped because they could not be decoded",
		}),

		listenerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "listener_duration_seconds",
			Help:      "Duration of event listener calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"listener", "event_type"}),
		listenerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_errors_total",
			Help:      "Failed event listener calls",
		}, []string{"listener", "event_type"}),
	}
}

func (p *Prometheus) LoadDuration(aggregateType string, d time.Duration) {
	p.loadDuration.WithLabelValues(aggregateType).Observe(d.Seconds())
}

func (p *Prometheus) SaveDuration(aggregateType string, d time.Duration) {
	p.saveDuration.WithLabelValues(aggregateType).Observe(d.Seconds())
}

func (p *Prometheus) EventsAppended(aggregateType string, n int) {
	p.eventsAppended.WithLabelValues(aggregateType).Add(float64(n))
}

func (p *Prometheus) ConcurrencyConflict(aggregateType string) {
	p.concurrencyConflict.WithLabelValues(aggregateType).Inc()
}

func (p *Prometheus) SnapshotWritten(aggregateType string) {
	p.snapshotsWritten.WithLabelValues(aggregateType).Inc()
}

func (p *Prometheus) SnapshotDecodeFailed(aggregateType string) {
	p.snapshotDecodeFail.WithLabelValues(aggregateType).Inc()
}

func (p *Prometheus) SnapshotWriteFailed(aggregateType string) {
	p.snapshotWriteFail.WithLabelValues(aggregateType).Inc()
}

func (p *Prometheus) Hit()            { p.cacheRequests.WithLabelValues("hit").Inc() }
func (p *Prometheus) Miss()           { p.cacheRequests.WithLabelValues("miss").Inc() }
func (p *Prometheus) EarlyRecompute() { p.cacheEarly.Inc() }
func (p *Prometheus) BackendError()   { p.cacheBackendError.Inc() }
func (p *Prometheus) DecodeError()    { p.cacheDecodeError.Inc() }

func (p *Prometheus) Computed(d time.Duration) {
	p.cacheCompute.Observe(d.Seconds())
}

func (p *Prometheus) ListenerHandled(listener, eventType string, d time.Duration, err error) {
	p.listenerDuration.WithLabelValues(listener, eventType).Observe(d.Seconds())
	if err != nil {
		p.listenerErrors.WithLabelValues(listener, eventType).Inc()
	}
}
