package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-offline-cache/types"
	"github.com/saiset-co/sai-offline-cache/utils"
)

type PrometheusMetrics struct {
	logger     types.Logger
	prefix     string
	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	mu         sync.RWMutex
	running    int32
}

func NewPrometheusMetrics(logger types.Logger, config *types.MetricsConfig) (types.MetricsManager, error) {
	prefix := config.Prefix
	if prefix == "" {
		prefix = "sai_offline_cache"
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &PrometheusMetrics{
		logger:     logger,
		prefix:     prefix,
		registry:   registry,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}, nil
}

func (p *PrometheusMetrics) Start() error {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return types.ErrMetricsStartFailed
	}

	p.logger.Info("Prometheus metrics started", zap.String("prefix", p.prefix))
	return nil
}

func (p *PrometheusMetrics) Stop() error {
	atomic.StoreInt32(&p.running, 0)
	return nil
}

func (p *PrometheusMetrics) IsRunning() bool {
	return atomic.LoadInt32(&p.running) == 1
}

func (p *PrometheusMetrics) Counter(name string, labels map[string]string) types.Counter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if counter, exists := p.counters[name]; exists {
		return &prometheusCounter{counter: counter, labels: labels}
	}

	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: p.prefix,
			Name:      name,
			Help:      fmt.Sprintf("Counter metric %s", name),
		},
		labelNames(labels),
	)

	p.registry.MustRegister(counter)
	p.counters[name] = counter
	return &prometheusCounter{counter: counter, labels: labels}
}

func (p *PrometheusMetrics) Gauge(name string, labels map[string]string) types.Gauge {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gauge, exists := p.gauges[name]; exists {
		return &prometheusGauge{gauge: gauge, labels: labels}
	}

	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: p.prefix,
			Name:      name,
			Help:      fmt.Sprintf("Gauge metric %s", name),
		},
		labelNames(labels),
	)

	p.registry.MustRegister(gauge)
	p.gauges[name] = gauge
	return &prometheusGauge{gauge: gauge, labels: labels}
}

func (p *PrometheusMetrics) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()

	if histogram, exists := p.histograms[name]; exists {
		return &prometheusHistogram{histogram: histogram, labels: labels}
	}

	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: p.prefix,
			Name:      name,
			Help:      fmt.Sprintf("Histogram metric %s", name),
			Buckets:   buckets,
		},
		labelNames(labels),
	)

	p.registry.MustRegister(histogram)
	p.histograms[name] = histogram
	return &prometheusHistogram{histogram: histogram, labels: labels}
}

type metricValue struct {
	Name   string            `json:"name"`
	Type   string            `json:"type"`
	Value  float64           `json:"value"`
	Labels map[string]string `json:"labels,omitempty"`
}

// Export renders a JSON view of every gathered sample, for the
// gateway's stats endpoint.
func (p *PrometheusMetrics) Export() ([]byte, error) {
	families, err := p.registry.Gather()
	if err != nil {
		return nil, types.WrapError(err, "failed to gather metrics")
	}

	var values []metricValue
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			value := metricValue{
				Name:   family.GetName(),
				Type:   family.GetType().String(),
				Labels: labelPairs(metric),
			}

			switch family.GetType() {
			case dto.MetricType_COUNTER:
				value.Value = metric.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				value.Value = metric.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				value.Value = metric.GetHistogram().GetSampleSum()
			case dto.MetricType_SUMMARY:
				value.Value = metric.GetSummary().GetSampleSum()
			}

			values = append(values, value)
		}
	}

	return utils.Marshal(values)
}

func labelPairs(metric *dto.Metric) map[string]string {
	if len(metric.GetLabel()) == 0 {
		return nil
	}

	labels := make(map[string]string, len(metric.GetLabel()))
	for _, pair := range metric.GetLabel() {
		labels[pair.GetName()] = pair.GetValue()
	}
	return labels
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	return names
}

type prometheusCounter struct {
	counter *prometheus.CounterVec
	labels  map[string]string
}

func (c *prometheusCounter) Inc()              { c.counter.With(c.labels).Inc() }
func (c *prometheusCounter) Add(value float64) { c.counter.With(c.labels).Add(value) }

func (c *prometheusCounter) Get() float64 {
	metric := &dto.Metric{}
	if err := c.counter.With(c.labels).Write(metric); err != nil {
		return 0
	}
	return metric.GetCounter().GetValue()
}

type prometheusGauge struct {
	gauge  *prometheus.GaugeVec
	labels map[string]string
}

func (g *prometheusGauge) Set(value float64) { g.gauge.With(g.labels).Set(value) }
func (g *prometheusGauge) Inc()              { g.gauge.With(g.labels).Inc() }
func (g *prometheusGauge) Dec()              { g.gauge.With(g.labels).Dec() }

func (g *prometheusGauge) Get() float64 {
	metric := &dto.Metric{}
	if err := g.gauge.With(g.labels).Write(metric); err != nil {
		return 0
	}
	return metric.GetGauge().GetValue()
}

type prometheusHistogram struct {
	histogram *prometheus.HistogramVec
	labels    map[string]string
}

func (h *prometheusHistogram) Observe(value float64) {
	h.histogram.With(h.labels).Observe(value)
}

func (h *prometheusHistogram) ObserveDuration(start time.Time) {
	h.histogram.With(h.labels).Observe(time.Since(start).Seconds())
}
