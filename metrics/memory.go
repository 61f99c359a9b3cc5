package metrics

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-food-admin/types"
	"github.com/saiset-co/sai-food-admin/utils"
)

var defaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

type MemoryConfig struct {
	// CollectInterval is in seconds; 0 disables runtime sampling.
	CollectInterval int `yaml:"collect_interval" json:"collect_interval"`
}

// MemoryMetrics keeps instruments in process and serves them as a JSON
// snapshot. It suits single-instance deployments and tests.
type MemoryMetrics struct {
	ctx        context.Context
	cancel     context.CancelFunc
	prefix     string
	constant   map[string]string
	interval   time.Duration
	mu         sync.RWMutex
	counters   map[string]*MemoryCounter
	gauges     map[string]*MemoryGauge
	histograms map[string]*MemoryHistogram
	sampler    *runtimeSampler
	running    int32
}

// MetricValue is one series in the JSON snapshot.
type MetricValue struct {
	Name   string            `json:"name"`
	Type   string            `json:"type"`
	Value  float64           `json:"value"`
	Count  uint64            `json:"count,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
}

func NewMemoryMetrics(ctx context.Context, config *types.MetricsConfig, logger types.Logger) (*MemoryMetrics, error) {
	memConfig := &MemoryConfig{CollectInterval: 15}
	if config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, memConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal memory metrics config")
		}
	}

	if memConfig.CollectInterval < 0 {
		return nil, types.Errorf(types.ErrMetricsConfigInvalid, "collect_interval: %d", memConfig.CollectInterval)
	}

	prefix := config.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	m := &MemoryMetrics{
		ctx:        ctx,
		prefix:     prefix,
		constant:   config.Labels,
		interval:   time.Duration(memConfig.CollectInterval) * time.Second,
		counters:   make(map[string]*MemoryCounter),
		gauges:     make(map[string]*MemoryGauge),
		histograms: make(map[string]*MemoryHistogram),
	}
	m.sampler = newRuntimeSampler(m, logger)

	return m, nil
}

func (m *MemoryMetrics) Start() error {
	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	if m.interval > 0 {
		var ctx context.Context
		ctx, m.cancel = context.WithCancel(m.ctx)
		m.sampler.start(ctx, m.interval)
	}

	return nil
}

func (m *MemoryMetrics) Stop() error {
	if !atomic.CompareAndSwapInt32(&m.running, 1, 0) {
		return types.ErrServerNotRunning
	}

	if m.cancel != nil {
		m.cancel()
		m.sampler.wait()
	}

	return nil
}

func (m *MemoryMetrics) IsRunning() bool {
	return atomic.LoadInt32(&m.running) == 1
}

func (m *MemoryMetrics) Counter(name string, labels map[string]string) types.Counter {
	key := seriesKey(name, labels)

	m.mu.RLock()
	c, ok := m.counters[key]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok = m.counters[key]; !ok {
		c = &MemoryCounter{name: name, labels: labels}
		m.counters[key] = c
	}
	return c
}

func (m *MemoryMetrics) Gauge(name string, labels map[string]string) types.Gauge {
	key := seriesKey(name, labels)

	m.mu.RLock()
	g, ok := m.gauges[key]
	m.mu.RUnlock()
	if ok {
		return g
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if g, ok = m.gauges[key]; !ok {
		g = &MemoryGauge{name: name, labels: labels}
		m.gauges[key] = g
	}
	return g
}

func (m *MemoryMetrics) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	key := seriesKey(name, labels)

	m.mu.RLock()
	h, ok := m.histograms[key]
	m.mu.RUnlock()
	if ok {
		return h
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok = m.histograms[key]; !ok {
		if len(buckets) == 0 {
			buckets = defaultBuckets
		}
		sorted := append([]float64(nil), buckets...)
		sort.Float64s(sorted)

		h = &MemoryHistogram{
			name:    name,
			labels:  labels,
			buckets: sorted,
			counts:  make([]uint64, len(sorted)+1),
		}
		m.histograms[key] = h
	}
	return h
}

// Snapshot lists every series sorted by name, then labels.
func (m *MemoryMetrics) Snapshot() []MetricValue {
	m.mu.RLock()
	out := make([]MetricValue, 0, len(m.counters)+len(m.gauges)+len(m.histograms))
	for _, c := range m.counters {
		out = append(out, MetricValue{Name: m.fullName(c.name), Type: "counter", Value: c.Get(), Labels: m.withConstant(c.labels)})
	}
	for _, g := range m.gauges {
		out = append(out, MetricValue{Name: m.fullName(g.name), Type: "gauge", Value: g.Get(), Labels: m.withConstant(g.labels)})
	}
	for _, h := range m.histograms {
		out = append(out, MetricValue{Name: m.fullName(h.name), Type: "histogram", Value: h.GetSum(), Count: h.GetCount(), Labels: m.withConstant(h.labels)})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return seriesKey("", out[i].Labels) < seriesKey("", out[j].Labels)
	})

	return out
}

func (m *MemoryMetrics) Handler() types.FastHTTPHandler {
	return func(ctx *fasthttp.RequestCtx) {
		utils.WriteJSON(ctx, fasthttp.StatusOK, m.Snapshot())
	}
}

func (m *MemoryMetrics) fullName(name string) string {
	return m.prefix + "_" + name
}

func (m *MemoryMetrics) withConstant(labels map[string]string) map[string]string {
	if len(m.constant) == 0 {
		return labels
	}

	out := make(map[string]string, len(labels)+len(m.constant))
	for k, v := range m.constant {
		out[k] = v
	}
	for k, v := range labels {
		out[k] = v
	}
	return out
}

func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	names := labelNames(labels)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range names {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	return b.String()
}

type MemoryCounter struct {
	name   string
	labels map[string]string
	bits   uint64
}

func (c *MemoryCounter) Inc() {
	c.Add(1)
}

// Add ignores negative deltas; counters only go up.
func (c *MemoryCounter) Add(value float64) {
	if value < 0 {
		return
	}
	addFloat(&c.bits, value)
}

func (c *MemoryCounter) Get() float64 {
	return math.Float64frombits(atomic.LoadUint64(&c.bits))
}

type MemoryGauge struct {
	name   string
	labels map[string]string
	bits   uint64
}

func (g *MemoryGauge) Set(value float64) {
	atomic.StoreUint64(&g.bits, math.Float64bits(value))
}

func (g *MemoryGauge) Inc() {
	addFloat(&g.bits, 1)
}

func (g *MemoryGauge) Dec() {
	addFloat(&g.bits, -1)
}

func (g *MemoryGauge) Add(value float64) {
	addFloat(&g.bits, value)
}

func (g *MemoryGauge) Sub(value float64) {
	addFloat(&g.bits, -value)
}

func (g *MemoryGauge) Get() float64 {
	return math.Float64frombits(atomic.LoadUint64(&g.bits))
}

type MemoryHistogram struct {
	name    string
	labels  map[string]string
	buckets []float64
	counts  []uint64
	sumBits uint64
	count   uint64
}

func (h *MemoryHistogram) Observe(value float64) {
	idx := sort.SearchFloat64s(h.buckets, value)
	atomic.AddUint64(&h.counts[idx], 1)
	atomic.AddUint64(&h.count, 1)
	addFloat(&h.sumBits, value)
}

func (h *MemoryHistogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

func (h *MemoryHistogram) GetCount() uint64 {
	return atomic.LoadUint64(&h.count)
}

func (h *MemoryHistogram) GetSum() float64 {
	return math.Float64frombits(atomic.LoadUint64(&h.sumBits))
}

// Buckets returns cumulative counts keyed by upper bound. The +Inf bucket
// is keyed by math.Inf(1).
func (h *MemoryHistogram) Buckets() map[float64]uint64 {
	out := make(map[float64]uint64, len(h.counts))
	var total uint64
	for i, bound := range h.buckets {
		total += atomic.LoadUint64(&h.counts[i])
		out[bound] = total
	}
	out[math.Inf(1)] = total + atomic.LoadUint64(&h.counts[len(h.buckets)])
	return out
}

func addFloat(bits *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(bits)
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(bits, old, next) {
			return
		}
	}
}
