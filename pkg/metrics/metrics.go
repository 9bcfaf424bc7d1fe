// Package metrics is droxporter's Prometheus registry facade (C9). It wraps
// an injectable *prometheus.Registry with an optional name prefix and a set
// of constant labels applied to every metric family it constructs, then
// exposes every vector the inventory stores, loaders, key manager, client,
// scheduler, and self-agent collector write into (C2-C5, C7, C8).
package metrics

import (
	"bytes"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// Registry wraps a prometheus.Registry, applying an optional prefix and a
// fixed set of constant labels to every family created through it. This is
// the injectable-registry shape required by a process that may expose more
// than one independent collector set in tests.
type Registry struct {
	reg         *prometheus.Registry
	prefix      string
	constLabels prometheus.Labels
}

// NewRegistry builds an empty registry. prefix, if non-empty, is prepended
// to every metric name as "<prefix>_<name>". constLabels is merged into
// every family's ConstLabels.
func NewRegistry(prefix string, constLabels map[string]string) *Registry {
	return &Registry{
		reg:         prometheus.NewRegistry(),
		prefix:      prefix,
		constLabels: prometheus.Labels(constLabels),
	}
}

func (r *Registry) name(n string) string {
	if r.prefix == "" {
		return n
	}
	return r.prefix + "_" + n
}

func (r *Registry) labels() prometheus.Labels {
	return r.constLabels
}

// NewGaugeVec creates, registers, and returns a GaugeVec.
func (r *Registry) NewGaugeVec(name, help string, labelNames []string) *prometheus.GaugeVec {
	v := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        r.name(name),
		Help:        help,
		ConstLabels: r.labels(),
	}, labelNames)
	r.reg.MustRegister(v)
	return v
}

// NewGauge creates, registers, and returns a Gauge.
func (r *Registry) NewGauge(name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        r.name(name),
		Help:        help,
		ConstLabels: r.labels(),
	})
	r.reg.MustRegister(g)
	return g
}

// NewCounterVec creates, registers, and returns a CounterVec.
func (r *Registry) NewCounterVec(name, help string, labelNames []string) *prometheus.CounterVec {
	v := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        r.name(name),
		Help:        help,
		ConstLabels: r.labels(),
	}, labelNames)
	r.reg.MustRegister(v)
	return v
}

// NewCounter creates, registers, and returns a Counter.
func (r *Registry) NewCounter(name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        r.name(name),
		Help:        help,
		ConstLabels: r.labels(),
	})
	r.reg.MustRegister(c)
	return c
}

// NewHistogramVec creates, registers, and returns a HistogramVec.
func (r *Registry) NewHistogramVec(name, help string, buckets []float64, labelNames []string) *prometheus.HistogramVec {
	v := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        r.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: r.labels(),
	}, labelNames)
	r.reg.MustRegister(v)
	return v
}

// NewHistogram creates, registers, and returns a Histogram.
func (r *Registry) NewHistogram(name, help string, buckets []float64) prometheus.Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        r.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: r.labels(),
	})
	r.reg.MustRegister(h)
	return h
}

// Prometheus exposes the underlying registry for direct registration of
// hand-built collectors (e.g. a custom process collector).
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.reg
}

// Handler returns the HTTP handler the external scrape surface mounts.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gather produces the exposition text directly, for callers that are not an
// HTTP handler (tests, alternate transports).
func (r *Registry) Gather() ([]byte, error) {
	families, err := r.reg.Gather()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DefaultBuckets mirrors the sixteen-bucket histogram the original exporter
// used for request-latency observations (original_source/src/metrics/utils.rs).
var DefaultBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5,
	0.75, 1, 2.5, 5, 7.5, 10, 30, 60,
}

// Timer is a helper for timing operations and observing the elapsed seconds
// into a histogram.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
