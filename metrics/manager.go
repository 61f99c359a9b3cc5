package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-food-admin/types"
)

const (
	TypeMemory     = "memory"
	TypePrometheus = "prometheus"

	DefaultPath   = "/metrics"
	DefaultPrefix = "food_admin"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// Manager fronts the configured backend. Instruments requested while the
// backend is not running are no-ops so callers never need a nil check.
type Manager struct {
	logger  types.Logger
	backend types.MetricsManager
	kind    string
	state   atomic.Value
}

var customMetricsCreators = sync.Map{}

func RegisterMetricsManager(name string, creator types.MetricsManagerCreator) {
	customMetricsCreators.Store(name, creator)
}

// NewManager returns ErrMetricsIsDisabled when metrics are switched off; the
// caller then runs without a metrics manager.
func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger) (*Manager, error) {
	metricsConfig := config.GetConfig().Metrics
	if metricsConfig == nil || !metricsConfig.Enabled {
		return nil, types.ErrMetricsIsDisabled
	}

	var (
		backend types.MetricsManager
		err     error
	)

	switch metricsConfig.Type {
	case TypeMemory:
		backend, err = NewMemoryMetrics(ctx, metricsConfig, logger)
	case TypePrometheus:
		backend, err = NewPrometheusMetrics(metricsConfig, logger)
	default:
		creator, ok := customMetricsCreators.Load(metricsConfig.Type)
		if !ok {
			return nil, types.Errorf(types.ErrMetricsTypeUnknown, "type: %s", metricsConfig.Type)
		}
		backend, err = creator.(types.MetricsManagerCreator)(metricsConfig)
	}

	if err != nil {
		return nil, types.WrapError(err, "failed to initialize metrics manager")
	}

	m := &Manager{
		logger:  logger,
		backend: backend,
		kind:    metricsConfig.Type,
	}
	m.state.Store(StateStopped)

	logger.Info("Metrics manager initialized", zap.String("type", metricsConfig.Type))

	return m, nil
}

func (m *Manager) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	if err := m.backend.Start(); err != nil {
		m.setState(StateStopped)
		return types.WrapError(err, "failed to start metrics manager")
	}

	m.setState(StateRunning)
	m.logger.Info("Metrics manager started", zap.String("type", m.kind))
	return nil
}

func (m *Manager) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}
	defer m.setState(StateStopped)

	if err := m.backend.Stop(); err != nil {
		m.logger.Error("Error during metrics manager shutdown", zap.Error(err))
		return err
	}

	m.logger.Info("Metrics manager stopped")
	return nil
}

func (m *Manager) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *Manager) Counter(name string, labels map[string]string) types.Counter {
	if m.IsRunning() {
		return m.backend.Counter(name, labels)
	}
	return emptyCounter{}
}

func (m *Manager) Gauge(name string, labels map[string]string) types.Gauge {
	if m.IsRunning() {
		return m.backend.Gauge(name, labels)
	}
	return emptyGauge{}
}

func (m *Manager) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	if m.IsRunning() {
		return m.backend.Histogram(name, buckets, labels)
	}
	return emptyHistogram{}
}

func (m *Manager) Handler() types.FastHTTPHandler {
	backend := m.backend.Handler()
	return func(ctx *fasthttp.RequestCtx) {
		if !m.IsRunning() {
			ctx.Error("metrics not running", fasthttp.StatusServiceUnavailable)
			return
		}
		backend(ctx)
	}
}

func (m *Manager) getState() State {
	return m.state.Load().(State)
}

func (m *Manager) setState(newState State) {
	m.state.Store(newState)
}

func (m *Manager) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}

type emptyCounter struct{}

func (emptyCounter) Inc()          {}
func (emptyCounter) Add(_ float64) {}
func (emptyCounter) Get() float64  { return 0 }

type emptyGauge struct{}

func (emptyGauge) Set(_ float64) {}
func (emptyGauge) Inc()          {}
func (emptyGauge) Dec()          {}
func (emptyGauge) Add(_ float64) {}
func (emptyGauge) Sub(_ float64) {}
func (emptyGauge) Get() float64  { return 0 }

type emptyHistogram struct{}

func (emptyHistogram) Observe(_ float64)           {}
func (emptyHistogram) ObserveDuration(_ time.Time) {}
func (emptyHistogram) GetCount() uint64            { return 0 }
func (emptyHistogram) GetSum() float64             { return 0 }
