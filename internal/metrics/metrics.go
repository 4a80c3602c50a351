// Package metrics exposes storage and list store activity as Prometheus
// metrics. A Metrics value satisfies both the Pebble engine hook and the
// list store hook.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rzbill/listdb/internal/lists"
	pebblestore "github.com/rzbill/listdb/internal/storage/pebble"
	logpkg "github.com/rzbill/listdb/pkg/log"
)

const namespace = "listdb"

type Metrics struct {
	logger   logpkg.Logger
	registry *prometheus.Registry

	kvOps       *prometheus.CounterVec
	kvBytes     *prometheus.CounterVec
	kvLatency   *prometheus.HistogramVec
	batchOps    prometheus.Histogram
	batchBytes  prometheus.Histogram
	sets        prometheus.Counter
	setBytes    prometheus.Counter
	removed     *prometheus.CounterVec
	pulses      *prometheus.CounterVec
	corruptions *prometheus.CounterVec
}

var (
	_ pebblestore.MetricsHook = (*Metrics)(nil)
	_ lists.MetricsHook       = (*Metrics)(nil)
)

// New registers every collector on a private registry, along with the Go
// runtime and process collectors.
func New(logger logpkg.Logger) (*Metrics, error) {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		logger:   logger,
		registry: reg,
		kvOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "kv", Name: "ops_total",
			Help: "Engine reads and writes.",
		}, []string{"op"}),
		kvBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "kv", Name: "bytes_total",
			Help: "Bytes read from or written to the engine.",
		}, []string{"op"}),
		kvLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "kv", Name: "latency_seconds",
			Help:    "Engine operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"op"}),
		batchOps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "kv", Name: "batch_ops",
			Help:    "Operations per committed batch.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		batchBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "kv", Name: "batch_bytes",
			Help:    "Bytes per committed batch.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 10),
		}),
		sets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lists", Name: "sets_total",
			Help: "Records appended.",
		}),
		setBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lists", Name: "set_bytes_total",
			Help: "Uncompressed payload bytes appended.",
		}),
		removed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lists", Name: "removed_total",
			Help: "Records removed, by operation.",
		}, []string{"op"}),
		pulses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lists", Name: "pulses_total",
			Help: "Mid-operation commits of bulk removals.",
		}, []string{"op"}),
		corruptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lists", Name: "corruptions_total",
			Help: "Corrupt records or index entries encountered.",
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
		m.kvOps, m.kvBytes, m.kvLatency, m.batchOps, m.batchBytes,
		m.sets, m.setBytes, m.removed, m.pulses, m.corruptions,
	} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "metrics: register")
		}
	}
	return m, nil
}

func (m *Metrics) ObserveWrite(elapsed time.Duration, bytes int) {
	m.observeKV("write", elapsed, bytes)
}

func (m *Metrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.observeKV("read", elapsed, bytes)
}

func (m *Metrics) ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int) {
	m.observeKV("commit", elapsed, bytes)
	m.batchOps.Observe(float64(numOps))
	m.batchBytes.Observe(float64(bytes))
}

func (m *Metrics) observeKV(op string, elapsed time.Duration, bytes int) {
	m.kvOps.WithLabelValues(op).Inc()
	m.kvBytes.WithLabelValues(op).Add(float64(bytes))
	m.kvLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveSet(payloadBytes int) {
	m.sets.Inc()
	m.setBytes.Add(float64(payloadBytes))
}

func (m *Metrics) ObserveRemoved(op string, n int) {
	m.removed.WithLabelValues(op).Add(float64(n))
}

func (m *Metrics) ObservePulse(op string) {
	m.pulses.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveCorruption(structural bool) {
	kind := "data"
	if structural {
		kind = "structural"
	}
	m.corruptions.WithLabelValues(kind).Inc()
}

// Registry exposes the registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) AttachMetrics(sm *http.ServeMux) {
	sm.Handle("/metrics", m.Handler())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorLog:          logpkg.ToStdLogger(m.logger),
	})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	m.AttachMetrics(mux)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	m.logger.Info("metrics listening", logpkg.Str("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrapf(err, "metrics: serve %s", addr)
	}
}
