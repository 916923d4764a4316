package prometheus

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Client registers a vector per metric name the first time it is used. The
// label names of a metric are fixed by that first use; later calls with a
// different label set are ignored.
type Client struct {
	registerer       prometheus.Registerer
	mu               sync.Mutex
	counterMetrics   map[string]*prometheus.CounterVec
	histogramMetrics map[string]*prometheus.HistogramVec
	labelNames       map[string][]string
}

func New(reg prometheus.Registerer) *Client {
	return &Client{
		registerer:       reg,
		counterMetrics:   make(map[string]*prometheus.CounterVec),
		histogramMetrics: make(map[string]*prometheus.HistogramVec),
		labelNames:       make(map[string][]string),
	}
}

func (c *Client) Incr(name string, tags []string, rate float64) {
	if c == nil {
		return
	}

	names, values := toLabels(tags)
	vec := c.counter(MetricName(name), names)
	if vec == nil {
		return
	}

	counter, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		return
	}

	counter.Inc()
}

func (c *Client) Timing(name string, value time.Duration, tags []string, rate float64) {
	if c == nil {
		return
	}

	names, values := toLabels(tags)
	vec := c.histogram(MetricName(name)+"_seconds", names)
	if vec == nil {
		return
	}

	observer, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		return
	}

	observer.Observe(value.Seconds())
}

func (c *Client) counter(name string, labels []string) *prometheus.CounterVec {
	c.mu.Lock()
	defer c.mu.Unlock()

	if vec, ok := c.counterMetrics[name]; ok {
		if !sameLabels(c.labelNames[name], labels) {
			return nil
		}

		return vec
	}

	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, labels)
	if err := c.registerer.Register(vec); err != nil {
		return nil
	}

	c.counterMetrics[name] = vec
	c.labelNames[name] = labels
	return vec
}

func (c *Client) histogram(name string, labels []string) *prometheus.HistogramVec {
	c.mu.Lock()
	defer c.mu.Unlock()

	if vec, ok := c.histogramMetrics[name]; ok {
		if !sameLabels(c.labelNames[name], labels) {
			return nil
		}

		return vec
	}

	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Buckets: prometheus.DefBuckets,
	}, labels)
	if err := c.registerer.Register(vec); err != nil {
		return nil
	}

	c.histogramMetrics[name] = vec
	c.labelNames[name] = labels
	return vec
}

// MetricName converts a dotted statsd style name into a valid prometheus name.
func MetricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_", ":", "_").Replace(name)
}

// toLabels turns "key:value" tags into sorted label names and matching values.
// A tag without a colon becomes a label with an empty value.
func toLabels(tags []string) ([]string, []string) {
	sorted := make([]string, len(tags))
	copy(sorted, tags)
	sort.Strings(sorted)

	names := make([]string, 0, len(sorted))
	values := make([]string, 0, len(sorted))
	seen := map[string]bool{}
	for _, tag := range sorted {
		key, value, _ := strings.Cut(tag, ":")
		key = MetricName(key)
		if len(key) == 0 || seen[key] {
			continue
		}

		seen[key] = true
		names = append(names, key)
		values = append(values, value)
	}

	return names, values
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
