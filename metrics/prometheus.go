package metrics

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-food-admin/types"
	"github.com/saiset-co/sai-food-admin/utils"
)

type PrometheusConfig struct {
	Subsystem       string `yaml:"subsystem" json:"subsystem"`
	EnableGoMetrics bool   `yaml:"enable_go_metrics" json:"enable_go_metrics"`
}

// PrometheusMetrics keeps one vector per metric name. The label names of a
// vector are fixed by the first request for that name.
type PrometheusMetrics struct {
	logger     types.Logger
	namespace  string
	subsystem  string
	constant   prometheus.Labels
	registry   *prometheus.Registry
	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	running    int32
}

func NewPrometheusMetrics(config *types.MetricsConfig, logger types.Logger) (*PrometheusMetrics, error) {
	promConfig := &PrometheusConfig{EnableGoMetrics: true}
	if config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, promConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal prometheus config")
		}
	}

	namespace := config.Prefix
	if namespace == "" {
		namespace = DefaultPrefix
	}

	registry := prometheus.NewRegistry()
	if promConfig.EnableGoMetrics {
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	return &PrometheusMetrics{
		logger:     logger,
		namespace:  namespace,
		subsystem:  promConfig.Subsystem,
		constant:   config.Labels,
		registry:   registry,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}, nil
}

func (p *PrometheusMetrics) Start() error {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return types.ErrServerAlreadyRunning
	}
	return nil
}

func (p *PrometheusMetrics) Stop() error {
	if !atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		return types.ErrServerNotRunning
	}
	return nil
}

func (p *PrometheusMetrics) IsRunning() bool {
	return atomic.LoadInt32(&p.running) == 1
}

func (p *PrometheusMetrics) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusMetrics) Counter(name string, labels map[string]string) types.Counter {
	p.mu.Lock()
	vec, ok := p.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   p.namespace,
			Subsystem:   p.subsystem,
			Name:        name,
			Help:        fmt.Sprintf("Counter %s", name),
			ConstLabels: p.constant,
		}, labelNames(labels))
		p.register(name, vec)
		p.counters[name] = vec
	}
	p.mu.Unlock()

	counter, err := vec.GetMetricWith(labels)
	if err != nil {
		p.logger.Error("Prometheus counter labels mismatch", zap.String("name", name), zap.Error(err))
		return emptyCounter{}
	}
	return &PrometheusCounter{logger: p.logger, counter: counter}
}

func (p *PrometheusMetrics) Gauge(name string, labels map[string]string) types.Gauge {
	p.mu.Lock()
	vec, ok := p.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   p.namespace,
			Subsystem:   p.subsystem,
			Name:        name,
			Help:        fmt.Sprintf("Gauge %s", name),
			ConstLabels: p.constant,
		}, labelNames(labels))
		p.register(name, vec)
		p.gauges[name] = vec
	}
	p.mu.Unlock()

	gauge, err := vec.GetMetricWith(labels)
	if err != nil {
		p.logger.Error("Prometheus gauge labels mismatch", zap.String("name", name), zap.Error(err))
		return emptyGauge{}
	}
	return &PrometheusGauge{logger: p.logger, gauge: gauge}
}

// Histogram uses the default buckets when none are given.
func (p *PrometheusMetrics) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	p.mu.Lock()
	vec, ok := p.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   p.namespace,
			Subsystem:   p.subsystem,
			Name:        name,
			Help:        fmt.Sprintf("Histogram %s", name),
			Buckets:     buckets,
			ConstLabels: p.constant,
		}, labelNames(labels))
		p.register(name, vec)
		p.histograms[name] = vec
	}
	p.mu.Unlock()

	observer, err := vec.GetMetricWith(labels)
	if err != nil {
		p.logger.Error("Prometheus histogram labels mismatch", zap.String("name", name), zap.Error(err))
		return emptyHistogram{}
	}
	return &PrometheusHistogram{observer: observer}
}

func (p *PrometheusMetrics) Handler() types.FastHTTPHandler {
	return types.FastHTTPHandler(fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})))
}

// register runs under p.mu.
func (p *PrometheusMetrics) register(name string, collector prometheus.Collector) {
	if err := p.registry.Register(collector); err != nil {
		p.logger.Error("Failed to register prometheus collector", zap.String("name", name), zap.Error(err))
	}
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type PrometheusCounter struct {
	logger  types.Logger
	counter prometheus.Counter
}

func (c *PrometheusCounter) Inc() {
	c.counter.Inc()
}

func (c *PrometheusCounter) Add(value float64) {
	c.counter.Add(value)
}

func (c *PrometheusCounter) Get() float64 {
	metric := &dto.Metric{}
	if err := c.counter.Write(metric); err != nil {
		c.logger.Error("Failed to read counter", zap.Error(err))
	}
	return metric.GetCounter().GetValue()
}

type PrometheusGauge struct {
	logger types.Logger
	gauge  prometheus.Gauge
}

func (g *PrometheusGauge) Set(value float64) {
	g.gauge.Set(value)
}

func (g *PrometheusGauge) Inc() {
	g.gauge.Inc()
}

func (g *PrometheusGauge) Dec() {
	g.gauge.Dec()
}

func (g *PrometheusGauge) Add(value float64) {
	g.gauge.Add(value)
}

func (g *PrometheusGauge) Sub(value float64) {
	g.gauge.Sub(value)
}

func (g *PrometheusGauge) Get() float64 {
	metric := &dto.Metric{}
	if err := g.gauge.Write(metric); err != nil {
		g.logger.Error("Failed to read gauge", zap.Error(err))
	}
	return metric.GetGauge().GetValue()
}

type PrometheusHistogram struct {
	observer prometheus.Observer
}

func (h *PrometheusHistogram) Observe(value float64) {
	h.observer.Observe(value)
}

func (h *PrometheusHistogram) ObserveDuration(start time.Time) {
	h.observer.Observe(time.Since(start).Seconds())
}

func (h *PrometheusHistogram) GetCount() uint64 {
	if histogram := h.snapshot(); histogram != nil {
		return histogram.GetSampleCount()
	}
	return 0
}

func (h *PrometheusHistogram) GetSum() float64 {
	if histogram := h.snapshot(); histogram != nil {
		return histogram.GetSampleSum()
	}
	return 0
}

func (h *PrometheusHistogram) snapshot() *dto.Histogram {
	metric, ok := h.observer.(prometheus.Metric)
	if !ok {
		return nil
	}

	out := &dto.Metric{}
	if err := metric.Write(out); err != nil {
		return nil
	}
	return out.GetHistogram()
}
