package cron

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-food-admin/types"
)

const DefaultStopTimeout = 10 * time.Second

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// Specs take an optional leading seconds field and the @every/@hourly
// descriptors.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Manager schedules named housekeeping jobs. A job never overlaps itself and
// a panicking job is logged, not fatal.
type Manager struct {
	logger      types.Logger
	metrics     types.MetricsManager
	cron        *cron.Cron
	mu          sync.RWMutex
	jobs        map[string]*types.JobEntry
	state       atomic.Value
	stopTimeout time.Duration
}

func NewManager(config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) *Manager {
	timezone := time.UTC
	if cronConfig := config.GetConfig().Cron; cronConfig != nil && cronConfig.Timezone != "" {
		loc, err := time.LoadLocation(cronConfig.Timezone)
		if err != nil {
			logger.Warn("Unknown cron timezone, using UTC", zap.String("timezone", cronConfig.Timezone), zap.Error(err))
		} else {
			timezone = loc
		}
	}

	cronLogger := cronLogger{logger: logger}

	m := &Manager{
		logger:  logger,
		metrics: metrics,
		cron: cron.New(
			cron.WithLocation(timezone),
			cron.WithParser(parser),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		jobs:        make(map[string]*types.JobEntry),
		stopTimeout: DefaultStopTimeout,
	}
	m.state.Store(StateStopped)

	return m
}

func (m *Manager) Add(jobName, spec string, job func()) error {
	if jobName == "" {
		return types.ErrCronJobNameIsEmpty
	}
	if job == nil {
		return types.ErrCronJobIsNil
	}

	schedule, err := parser.Parse(spec)
	if err != nil {
		return types.Errorf(types.ErrCronExpressionInvalid, "%s: %v", spec, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[jobName]; exists {
		return types.Errorf(types.ErrCronJobExists, "job: %s", jobName)
	}

	entry := &types.JobEntry{
		Name:    jobName,
		Spec:    spec,
		AddedAt: time.Now(),
	}
	entry.ID = m.cron.Schedule(schedule, cron.FuncJob(m.wrap(jobName, job)))
	m.jobs[jobName] = entry

	m.logger.Info("Cron job added", zap.String("job_name", jobName), zap.String("spec", spec))
	return nil
}

func (m *Manager) Remove(jobName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.jobs[jobName]
	if !exists {
		return types.Errorf(types.ErrCronJobNotFound, "job: %s", jobName)
	}

	m.cron.Remove(entry.ID)
	delete(m.jobs, jobName)

	m.logger.Info("Cron job removed", zap.String("job_name", jobName))
	return nil
}

// Jobs returns a copy of every entry, sorted by name.
func (m *Manager) Jobs() []types.JobEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.JobEntry, 0, len(m.jobs))
	for _, entry := range m.jobs {
		copied := *entry
		if next := m.cron.Entry(entry.ID); next.ID != 0 {
			copied.NextRun = next.Next
		}
		out = append(out, copied)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *Manager) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	m.cron.Start()
	m.setState(StateRunning)

	m.logger.Info("Cron manager started", zap.Int("jobs", len(m.Jobs())))
	return nil
}

// Stop waits for running jobs up to the stop timeout.
func (m *Manager) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}
	defer m.setState(StateStopped)

	select {
	case <-m.cron.Stop().Done():
		m.logger.Info("Cron manager stopped")
		return nil
	case <-time.After(m.stopTimeout):
		m.logger.Warn("Cron manager stop timed out with jobs still running")
		return types.NewErrorf("cron stop timed out after %v", m.stopTimeout)
	}
}

func (m *Manager) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *Manager) wrap(jobName string, job func()) func() {
	return func() {
		start := time.Now()
		result := "success"

		defer func() {
			if r := recover(); r != nil {
				result = "panic"
				m.logger.Error("Cron job panicked", zap.String("job_name", jobName), zap.Any("panic", r))
			}

			duration := time.Since(start)
			m.finish(jobName, start, duration)
			m.record(jobName, result, duration)

			m.logger.Debug("Cron job finished",
				zap.String("job_name", jobName),
				zap.String("result", result),
				zap.Duration("duration", duration))
		}()

		job()
	}
}

func (m *Manager) finish(jobName string, start time.Time, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.jobs[jobName]; ok {
		entry.LastRun = start
		entry.LastDuration = duration
		entry.RunCount++
	}
}

func (m *Manager) record(jobName, result string, duration time.Duration) {
	if m.metrics == nil {
		return
	}

	m.metrics.Counter("cron_job_executions_total", map[string]string{
		"job_name": jobName,
		"result":   result,
	}).Inc()
	m.metrics.Histogram("cron_job_duration_seconds", nil, map[string]string{
		"job_name": jobName,
	}).Observe(duration.Seconds())
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

// cronLogger adapts types.Logger to cron.Logger.
type cronLogger struct {
	logger types.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(fields(keysAndValues), zap.Error(err))...)
}

func fields(keysAndValues []interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out = append(out, zap.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return out
}
