package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-food-admin/types"
	"github.com/saiset-co/sai-food-admin/utils"
)

const (
	DefaultCheckTimeout = 5 * time.Second
	DefaultPath         = "/health"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// Manager runs the registered checks concurrently and reports the worst
// status. Each check is bounded by its own timeout and recovered on panic.
type Manager struct {
	ctx          context.Context
	cancel       context.CancelFunc
	service      types.ServiceInfo
	logger       types.Logger
	checkers     map[string]types.HealthChecker
	startTime    time.Time
	checkTimeout time.Duration
	mu           sync.RWMutex
	state        atomic.Value
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger) *Manager {
	managerCtx, cancel := context.WithCancel(ctx)

	cfg := config.GetConfig()
	timeout := DefaultCheckTimeout
	if cfg.Health != nil && cfg.Health.Timeout > 0 {
		timeout = cfg.Health.Timeout
	}

	m := &Manager{
		ctx:          managerCtx,
		cancel:       cancel,
		service:      types.ServiceInfo{Name: cfg.Name, Version: cfg.Version},
		logger:       logger,
		checkers:     make(map[string]types.HealthChecker),
		checkTimeout: timeout,
	}
	m.state.Store(StateStopped)

	return m
}

func (m *Manager) RegisterChecker(name string, checker types.HealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkers[name] = checker
}

func (m *Manager) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	m.startTime = time.Now()
	m.setState(StateRunning)

	m.logger.Info("Health manager started", zap.Strings("checks", m.names()))
	return nil
}

func (m *Manager) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	m.cancel()
	m.setState(StateStopped)

	m.logger.Info("Health manager stopped")
	return nil
}

func (m *Manager) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *Manager) Check(ctx context.Context) types.HealthReport {
	m.mu.RLock()
	checkers := make(map[string]types.HealthChecker, len(m.checkers))
	for name, checker := range m.checkers {
		checkers[name] = checker
	}
	m.mu.RUnlock()

	results := make(map[string]types.HealthCheck, len(checkers))
	var resultMu sync.Mutex

	var g errgroup.Group
	for name, checker := range checkers {
		g.Go(func() error {
			result := m.execute(ctx, name, checker)

			resultMu.Lock()
			results[name] = result
			resultMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return m.buildReport(results)
}

// Handler answers 200 while every check is healthy and 503 otherwise.
func (m *Manager) Handler() types.FastHTTPHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if !m.IsRunning() {
			utils.WriteError(ctx, fasthttp.StatusServiceUnavailable, "health manager is not running")
			return
		}

		report := m.Check(m.ctx)

		status := fasthttp.StatusOK
		if report.Status == types.StatusUnhealthy {
			status = fasthttp.StatusServiceUnavailable
		}
		utils.WriteJSON(ctx, status, report)
	}
}

func (m *Manager) VersionHandler() types.FastHTTPHandler {
	return func(ctx *fasthttp.RequestCtx) {
		utils.WriteJSON(ctx, fasthttp.StatusOK, types.VersionInfo{
			Version:   m.service.Version,
			BuildInfo: buildInfo(),
		})
	}
}

func (m *Manager) execute(ctx context.Context, name string, checker types.HealthChecker) types.HealthCheck {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, m.checkTimeout)
	defer cancel()

	done := make(chan types.HealthCheck, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("Health check panicked", zap.String("check", name), zap.Any("panic", r))
				done <- types.HealthCheck{
					Status:  types.StatusUnhealthy,
					Message: fmt.Sprintf("check panicked: %v", r),
				}
			}
		}()
		done <- checker(checkCtx)
	}()

	var result types.HealthCheck
	select {
	case result = <-done:
	case <-checkCtx.Done():
		result = types.HealthCheck{Status: types.StatusUnhealthy, Message: "check timed out"}
	}

	result.Name = name
	result.LastCheck = time.Now()
	result.Duration = time.Since(start)

	if result.Status == "" {
		result.Status = types.StatusUnknown
	}

	return result
}

func (m *Manager) buildReport(results map[string]types.HealthCheck) types.HealthReport {
	summary := types.HealthSummary{Total: len(results)}

	overall := types.StatusHealthy
	for _, result := range results {
		switch result.Status {
		case types.StatusHealthy:
			summary.Healthy++
		case types.StatusUnhealthy:
			summary.Unhealthy++
			overall = types.StatusUnhealthy
		default:
			summary.Unknown++
			if overall == types.StatusHealthy {
				overall = types.StatusUnknown
			}
		}
	}

	return types.HealthReport{
		Status:    overall,
		Timestamp: time.Now(),
		Uptime:    time.Since(m.startTime),
		Service:   m.service,
		Checks:    results,
		Summary:   summary,
	}
}

func (m *Manager) names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.checkers))
	for name := range m.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
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
