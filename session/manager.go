package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-food-admin/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

var customBackendCreators = make(map[string]types.SessionBackendCreator)

func RegisterSessionBackend(name string, creator types.SessionBackendCreator) {
	customBackendCreators[name] = creator
}

// NewID returns a fresh opaque session identifier for the session cookie.
func NewID() string {
	return uuid.NewString()
}

// Manager is the injectable session store. It persists through a backend and
// notifies subscribers after every successful write.
type Manager struct {
	ctx       context.Context
	cancel    context.CancelFunc
	logger    types.Logger
	metrics   types.MetricsManager
	backend   types.SessionBackend
	mu        sync.RWMutex
	listeners map[uint64]types.SessionListener
	nextID    uint64
	state     atomic.Value
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) (*Manager, error) {
	sessionConfig := config.GetConfig().Session
	if sessionConfig == nil {
		return nil, types.ErrConfigIsNil
	}

	backend, err := createBackend(ctx, sessionConfig, logger)
	if err != nil {
		return nil, types.WrapError(err, "failed to create session backend")
	}

	return NewManagerWithBackend(ctx, backend, logger, metrics), nil
}

func NewManagerWithBackend(ctx context.Context, backend types.SessionBackend, logger types.Logger, metrics types.MetricsManager) *Manager {
	managerCtx, cancel := context.WithCancel(ctx)

	m := &Manager{
		ctx:       managerCtx,
		cancel:    cancel,
		logger:    logger,
		metrics:   metrics,
		backend:   backend,
		listeners: make(map[uint64]types.SessionListener),
	}

	m.state.Store(StateStopped)
	return m
}

func createBackend(ctx context.Context, config *types.SessionConfig, logger types.Logger) (types.SessionBackend, error) {
	switch config.Type {
	case "", "memory":
		return NewMemoryBackend(), nil
	case "clover":
		return NewCloverBackend(config.Config, logger)
	case "sqlite":
		return NewSQLiteBackend(ctx, config.Config, logger)
	case "redis":
		return NewRedisBackend(config.Config, logger)
	default:
		if creator, exists := customBackendCreators[config.Type]; exists {
			return creator(ctx, config.Config, logger)
		}
		return nil, types.Errorf(types.ErrSessionTypeUnknown, "session type: %s", config.Type)
	}
}

func (m *Manager) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	if err := m.backend.Start(); err != nil {
		m.setState(StateStopped)
		return types.WrapError(err, "failed to start session backend")
	}

	m.setState(StateRunning)
	m.logger.Info("Session store started")
	return nil
}

func (m *Manager) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		m.setState(StateStopped)
		m.cancel()
	}()

	if err := m.backend.Stop(); err != nil {
		return types.WrapError(err, "failed to stop session backend")
	}

	m.logger.Info("Session store stopped")
	return nil
}

func (m *Manager) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *Manager) Get(ctx context.Context, id string) (*types.Session, error) {
	if id == "" {
		return nil, types.ErrSessionIDEmpty
	}

	session, err := m.backend.Load(ctx, id)
	if err != nil {
		if !types.IsError(err, types.ErrSessionNotFound) {
			m.record("get", "error")
		}
		return nil, err
	}

	m.record("get", "ok")
	return session, nil
}

// Set writes token, user id and display name together.
func (m *Manager) Set(ctx context.Context, id string, session *types.Session) error {
	if id == "" {
		return types.ErrSessionIDEmpty
	}
	if session == nil {
		return types.ErrSessionIsNil
	}

	stored := *session
	if err := m.backend.Save(ctx, id, &stored); err != nil {
		m.record("set", "error")
		return types.WrapError(err, "failed to save session")
	}

	m.record("set", "ok")
	m.emit(types.SessionEvent{ID: id, Kind: types.SessionEventSet, Session: &stored})
	return nil
}

// Clear removes every session field. Clearing an absent session is not an error.
func (m *Manager) Clear(ctx context.Context, id string) error {
	if id == "" {
		return types.ErrSessionIDEmpty
	}

	if err := m.backend.Delete(ctx, id); err != nil && !types.IsError(err, types.ErrSessionNotFound) {
		m.record("clear", "error")
		return types.WrapError(err, "failed to clear session")
	}

	m.record("clear", "ok")
	m.emit(types.SessionEvent{ID: id, Kind: types.SessionEventCleared})
	return nil
}

func (m *Manager) Subscribe(listener types.SessionListener) func() {
	if listener == nil {
		return func() {}
	}

	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.listeners[id] = listener
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) Ping(ctx context.Context) error {
	return m.backend.Ping(ctx)
}

func (m *Manager) emit(event types.SessionEvent) {
	m.mu.RLock()
	listeners := make([]types.SessionListener, 0, len(m.listeners))
	for _, listener := range m.listeners {
		listeners = append(listeners, listener)
	}
	m.mu.RUnlock()

	for _, listener := range listeners {
		m.notify(listener, event)
	}
}

func (m *Manager) notify(listener types.SessionListener, event types.SessionEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Session listener panicked",
				zap.String("session_id", event.ID),
				zap.Any("panic", r))
		}
	}()

	listener(event)
}

func (m *Manager) record(op, result string) {
	if m.metrics == nil {
		return
	}
	m.metrics.Counter("session_operations_total", map[string]string{
		"op":     op,
		"result": result,
	}).Inc()
}

func (m *Manager) getState() State {
	return m.state.Load().(State)
}

func (m *Manager) setState(newState State) bool {
	currentState := m.getState()
	return m.state.CompareAndSwap(currentState, newState)
}

func (m *Manager) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}
