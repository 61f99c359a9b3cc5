package middleware

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-food-admin/guard"
	"github.com/saiset-co/sai-food-admin/types"
)

const MaxMiddlewares = 64

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type entry struct {
	name       string
	weight     int
	middleware types.Middleware
}

type chain func(ctx *fasthttp.RequestCtx, handler func(*fasthttp.RequestCtx), config *types.RouteConfig)

// Manager runs registered middlewares in ascending weight order. A route can
// disable middlewares by name; names listed in RouteConfig.Middlewares win over
// a disable inherited from a group.
type Manager struct {
	ctx         context.Context
	config      types.ConfigManager
	logger      types.Logger
	metrics     types.MetricsManager
	mu          sync.RWMutex
	registered  map[string]types.Middleware
	ordered     []entry
	nameToIndex map[string]int
	chains      sync.Map
	initialized atomic.Bool
	state       atomic.Value
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) *Manager {
	m := &Manager{
		ctx:         ctx,
		config:      config,
		logger:      logger,
		metrics:     metrics,
		registered:  make(map[string]types.Middleware),
		nameToIndex: make(map[string]int),
	}
	m.state.Store(StateStopped)
	return m
}

// RegisterMiddlewares installs every middleware enabled in config and finalizes the order.
func (m *Manager) RegisterMiddlewares(g *guard.Guard) error {
	mwConfig := m.config.GetConfig().Middlewares
	if mwConfig == nil || !mwConfig.Enabled {
		return m.finalize()
	}

	enabled := func(item *types.MiddlewareItemConfig) bool {
		return item != nil && item.Enabled
	}

	var candidates []types.Middleware

	if enabled(mwConfig.Recovery) {
		candidates = append(candidates, NewRecoveryMiddleware(m.config, m.logger, m.metrics))
	}
	if enabled(mwConfig.RequestID) {
		candidates = append(candidates, NewRequestIDMiddleware(m.config))
	}
	if enabled(mwConfig.Logging) {
		candidates = append(candidates, NewLoggingMiddleware(m.config, m.logger, m.metrics))
	}
	if enabled(mwConfig.BodyLimit) {
		candidates = append(candidates, NewBodyLimitMiddleware(m.config, m.logger, m.metrics))
	}
	if enabled(mwConfig.Session) {
		candidates = append(candidates, NewSessionMiddleware(m.config, m.logger))
	}
	if enabled(mwConfig.Guard) {
		if g == nil {
			return types.Errorf(types.ErrMiddlewareInvalidType, "guard middleware enabled without a guard")
		}
		candidates = append(candidates, NewGuardMiddleware(m.ctx, m.config, g, m.logger))
	}
	if enabled(mwConfig.Compression) {
		candidates = append(candidates, NewCompressionMiddleware(m.config, m.logger, m.metrics))
	}

	for _, mw := range candidates {
		if err := m.Register(mw); err != nil {
			return err
		}
		m.logger.Info("Middleware registered", zap.String("name", mw.Name()), zap.Int("weight", mw.Weight()))
	}

	return m.finalize()
}

func (m *Manager) Register(middleware types.Middleware) error {
	if middleware == nil {
		return types.ErrMiddlewareInvalidType
	}

	if m.initialized.Load() {
		return types.NewErrorf("cannot register middleware %q after finalization", middleware.Name())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.registered) >= MaxMiddlewares {
		return types.NewErrorf("maximum middleware count exceeded: %d", MaxMiddlewares)
	}

	if _, exists := m.registered[middleware.Name()]; exists {
		return types.NewErrorf("middleware %q already registered", middleware.Name())
	}

	m.registered[middleware.Name()] = middleware
	return nil
}

func (m *Manager) finalize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized.Load() {
		return types.NewErrorf("configuration already finalized")
	}

	weights := make(map[int]string, len(m.registered))
	ordered := make([]entry, 0, len(m.registered))
	for name, mw := range m.registered {
		if existing, exists := weights[mw.Weight()]; exists {
			return types.Errorf(types.ErrMiddlewareOrderInvalid, "duplicate weight %d for middlewares %q and %q",
				mw.Weight(), existing, name)
		}
		weights[mw.Weight()] = name
		ordered = append(ordered, entry{name: name, weight: mw.Weight(), middleware: mw})
	}

	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].weight < ordered[j].weight
	})

	m.ordered = ordered
	m.nameToIndex = make(map[string]int, len(ordered))
	for i, e := range ordered {
		m.nameToIndex[e.name] = i
	}

	m.initialized.Store(true)
	return nil
}

func (m *Manager) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	if !m.initialized.Load() {
		if err := m.finalize(); err != nil {
			m.setState(StateStopped)
			return err
		}
	}

	m.setState(StateRunning)
	return nil
}

func (m *Manager) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	m.setState(StateStopped)
	m.logger.Info("Middleware manager stopped")
	return nil
}

func (m *Manager) IsRunning() bool {
	return m.getState() == StateRunning
}

// Names lists registered middlewares in execution order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.ordered))
	for _, e := range m.ordered {
		names = append(names, e.name)
	}
	return names
}

func (m *Manager) Execute(ctx *fasthttp.RequestCtx, handler func(*fasthttp.RequestCtx), config *types.RouteConfig) {
	if !m.initialized.Load() {
		handler(ctx)
		return
	}

	mask := m.mask(config)
	if mask == 0 {
		handler(ctx)
		return
	}

	if cached, ok := m.chains.Load(mask); ok {
		cached.(chain)(ctx, handler, config)
		return
	}

	compiled := m.compile(mask)
	m.chains.Store(mask, compiled)
	compiled(ctx, handler, config)
}

func (m *Manager) mask(config *types.RouteConfig) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := uint64(1)<<uint(len(m.ordered)) - 1
	if config == nil {
		return all
	}

	mask := all
	for _, name := range config.DisabledMiddlewares {
		if index, ok := m.nameToIndex[name]; ok {
			mask &^= 1 << uint(index)
		}
	}
	for _, name := range config.Middlewares {
		if index, ok := m.nameToIndex[name]; ok {
			mask |= 1 << uint(index)
		}
	}

	return mask
}

func (m *Manager) compile(mask uint64) chain {
	m.mu.RLock()
	active := make([]types.Middleware, 0, len(m.ordered))
	for i, e := range m.ordered {
		if mask&(1<<uint(i)) != 0 {
			active = append(active, e.middleware)
		}
	}
	m.mu.RUnlock()

	return func(ctx *fasthttp.RequestCtx, handler func(*fasthttp.RequestCtx), config *types.RouteConfig) {
		var index int

		var next func(*fasthttp.RequestCtx)
		next = func(ctx *fasthttp.RequestCtx) {
			if index >= len(active) {
				handler(ctx)
				return
			}

			mw := active[index]
			index++
			mw.Handle(ctx, next, config)
		}

		next(ctx)
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
