// Package metrics records counters, gauges and stopwatches grouped by
// subsystem and exposes them in the Prometheus text format.
package metrics

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "mcgate"

// Reporter owns a Prometheus registry and lazily creates one collector per
// metric name. The label set of a metric is fixed by its first report;
// later reports with different labels are dropped.
type Reporter struct {
	registry *prometheus.Registry

	mu         sync.RWMutex
	collectors map[string]*collector
}

type collector struct {
	policy    Policy
	labels    []string
	counter   *prometheus.CounterVec
	gauge     *prometheus.GaugeVec
	histogram *prometheus.HistogramVec
}

// NewReporter creates a reporter with its own registry. withRuntime adds
// the Go runtime and process collectors.
func NewReporter(withRuntime bool) *Reporter {
	r := &Reporter{
		registry:   prometheus.NewRegistry(),
		collectors: make(map[string]*collector),
	}
	if withRuntime {
		r.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return r
}

// Registry returns the underlying registry.
func (r *Reporter) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry for scraping.
func (r *Reporter) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func metricName(group, name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(group) + "_" + name
}

func labelNames(dim Dimension) []string {
	names := make([]string, 0, len(dim))
	for k := range dim {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func sameLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (r *Reporter) get(policy Policy, group, name string, dim Dimension) *collector {
	full := metricName(group, name)
	labels := labelNames(dim)

	r.mu.RLock()
	c, ok := r.collectors[full]
	r.mu.RUnlock()
	if ok {
		if c.policy != policy || !sameLabels(c.labels, labels) {
			return nil
		}
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.collectors[full]; ok {
		if c.policy != policy || !sameLabels(c.labels, labels) {
			return nil
		}
		return c
	}

	c = &collector{policy: policy, labels: labels}
	var err error
	switch policy {
	case PolicySum:
		c.counter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: full, Help: full,
		}, labels)
		err = r.registry.Register(c.counter)
	case PolicySet:
		c.gauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace, Name: full, Help: full,
		}, labels)
		err = r.registry.Register(c.gauge)
	case PolicyStopwatch, PolicyHistogram:
		c.histogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace, Name: full, Help: full,
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, labels)
		err = r.registry.Register(c.histogram)
	default:
		return nil
	}
	if err != nil {
		return nil
	}
	r.collectors[full] = c
	return c
}

// IncrCounter adds v to a counter. Negative values are ignored.
func (r *Reporter) IncrCounter(group, name string, v Value, dim Dimension) {
	if v < 0 {
		return
	}
	if c := r.get(PolicySum, group, name, dim); c != nil {
		c.counter.With(prometheus.Labels(dim)).Add(float64(v))
	}
}

// UpdateGauge sets a gauge to v.
func (r *Reporter) UpdateGauge(group, name string, v Value, dim Dimension) {
	if c := r.get(PolicySet, group, name, dim); c != nil {
		c.gauge.With(prometheus.Labels(dim)).Set(float64(v))
	}
}

// Observe records v, in seconds for stopwatches, into a histogram.
func (r *Reporter) Observe(group, name string, v Value, dim Dimension) {
	if c := r.get(PolicyHistogram, group, name, dim); c != nil {
		c.histogram.With(prometheus.Labels(dim)).Observe(float64(v))
	}
}

var (
	defaultMu       sync.RWMutex
	defaultReporter = NewReporter(true)
)

// Default returns the process-wide reporter the package functions use.
func Default() *Reporter {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultReporter
}

// SetDefault replaces the process-wide reporter and returns the previous one.
func SetDefault(r *Reporter) *Reporter {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultReporter
	defaultReporter = r
	return prev
}

// Handler serves the default registry.
func Handler() http.Handler {
	return Default().Handler()
}

// IncrCounterWithGroup adds v to an unlabelled counter on the default reporter.
func IncrCounterWithGroup(group, name string, v Value) {
	Default().IncrCounter(group, name, v, nil)
}

// IncrCounterWithDimGroup adds v to a labelled counter on the default reporter.
func IncrCounterWithDimGroup(group, name string, v Value, dim Dimension) {
	Default().IncrCounter(group, name, v, dim)
}

// UpdateGaugeWithGroup sets an unlabelled gauge on the default reporter.
func UpdateGaugeWithGroup(group, name string, v Value) {
	Default().UpdateGauge(group, name, v, nil)
}

// UpdateGaugeWithDimGroup sets a labelled gauge on the default reporter.
func UpdateGaugeWithDimGroup(group, name string, v Value, dim Dimension) {
	Default().UpdateGauge(group, name, v, dim)
}

// RecordStopwatchWithGroup observes the time elapsed since start.
func RecordStopwatchWithGroup(group, name string, start time.Time) {
	Default().Observe(group, name, Value(time.Since(start).Seconds()), nil)
}

// RecordStopwatchWithDimGroup observes the time elapsed since start under dim.
func RecordStopwatchWithDimGroup(group, name string, start time.Time, dim Dimension) {
	Default().Observe(group, name, Value(time.Since(start).Seconds()), dim)
}
