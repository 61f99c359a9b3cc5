package cache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/saiset-co/sai-food-admin/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const DefaultKeepUnusedFor = 60 * time.Second

var _ types.QueryCache = (*QueryCache)(nil)

// QueryCache holds one entry per endpoint+args and deduplicates in-flight reads.
// All entry state is guarded by mu; fetchers run outside the lock.
type QueryCache struct {
	ctx           context.Context
	cancel        context.CancelFunc
	logger        types.Logger
	metrics       types.MetricsManager
	keepUnusedFor time.Duration
	maxAge        time.Duration
	now           func() time.Time
	mu            sync.Mutex
	entries       map[string]*entry
	index         map[types.Tag]map[string]struct{}
	flights       singleflight.Group
	listenersMu   sync.RWMutex
	listeners     map[uint64]types.MutationListener
	nextListener  uint64
	state         atomic.Value
}

func NewQueryCache(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) *QueryCache {
	var cacheConfig *types.CacheConfig
	if config != nil {
		cacheConfig = config.GetConfig().Cache
	}
	return New(ctx, cacheConfig, logger, metrics)
}

func New(ctx context.Context, config *types.CacheConfig, logger types.Logger, metrics types.MetricsManager) *QueryCache {
	cacheCtx, cancel := context.WithCancel(ctx)

	c := &QueryCache{
		ctx:           cacheCtx,
		cancel:        cancel,
		logger:        logger,
		metrics:       metrics,
		keepUnusedFor: DefaultKeepUnusedFor,
		now:           time.Now,
		entries:       make(map[string]*entry),
		index:         make(map[types.Tag]map[string]struct{}),
		listeners:     make(map[uint64]types.MutationListener),
	}

	if config != nil {
		if config.KeepUnusedFor > 0 {
			c.keepUnusedFor = config.KeepUnusedFor
		}
		c.maxAge = config.MaxAge
	}

	c.state.Store(StateStopped)
	return c
}

func (c *QueryCache) Start() error {
	if !c.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	c.setState(StateRunning)
	c.logger.Info("Query cache started",
		zap.Duration("keep_unused_for", c.keepUnusedFor),
		zap.Duration("max_age", c.maxAge))
	return nil
}

func (c *QueryCache) Stop() error {
	if !c.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer c.setState(StateStopped)

	c.cancel()

	c.mu.Lock()
	for key, e := range c.entries {
		for sub := range e.subscribers {
			sub.detach()
		}
		c.removeLocked(key, e)
	}
	c.mu.Unlock()

	c.logger.Info("Query cache stopped")
	return nil
}

func (c *QueryCache) IsRunning() bool {
	return c.getState() == StateRunning
}

// Query subscribes to endpoint+args. ctx bounds the subscription: when it is
// done the subscription is released as if Unsubscribe had been called.
func (c *QueryCache) Query(ctx context.Context, req types.QueryRequest) types.QuerySubscription {
	if req.Skip {
		c.countQuery("skipped")
		return detached("", types.QueryState{Status: types.QueryStatusIdle})
	}

	key, err := BuildKey(req.Endpoint, req.Args)
	if err != nil {
		return detached("", types.QueryState{Status: types.QueryStatusError, Err: err})
	}

	if req.Fetch == nil {
		return detached(key, types.QueryState{Status: types.QueryStatusError, Err: types.ErrCacheFetcherIsNil})
	}

	if !c.IsRunning() {
		return detached(key, types.QueryState{Status: types.QueryStatusError, Err: types.ErrCacheIsStopped})
	}

	c.mu.Lock()

	e, exists := c.entries[key]
	if !exists {
		e = newEntry(key, nil, req.Fetch)
		c.entries[key] = e
		c.updateEntriesGauge()
	}
	e.fetch = req.Fetch
	c.indexLocked(key, e.addTags(req.Tags))

	sub := newSubscription(c, key, e.state)
	sub.entry = e
	e.subscribers[sub] = struct{}{}

	switch {
	case e.fresh(c.now(), c.maxAge):
		c.countQuery("hit")
	case e.inflight:
		c.countQuery("joined")
	default:
		c.countQuery("miss")
		c.startFetchLocked(e)
	}

	sub.deliver(e.state)
	c.mu.Unlock()

	if ctx != nil && ctx.Done() != nil {
		sub.watch(ctx)
	}

	return sub
}

// Mutate runs exactly one request. Tags are invalidated only after it succeeds.
func (c *QueryCache) Mutate(ctx context.Context, req types.MutationRequest) types.QueryState {
	if ctx == nil {
		ctx = c.ctx
	}
	if req.Do == nil {
		return types.QueryState{Status: types.QueryStatusError, Err: types.ErrCacheFetcherIsNil}
	}

	data, err := safeFetch(ctx, req.Do)
	if err != nil {
		if ctx.Err() != nil {
			return types.QueryState{Status: types.QueryStatusIdle}
		}
		c.logger.Debug("Mutation failed", zap.String("endpoint", req.Endpoint), zap.Error(err))
		return types.QueryState{Status: types.QueryStatusError, Err: err, UpdatedAt: c.now()}
	}

	if len(req.Invalidates) > 0 {
		c.Invalidate(req.Invalidates...)
		c.notifyMutation(req.Endpoint, req.Invalidates)
	}

	return types.QueryState{Status: types.QueryStatusReady, Data: data, UpdatedAt: c.now()}
}

// Invalidate marks every entry carrying one of tags. Watched entries refetch,
// unwatched ones are dropped. It returns the number of entries touched.
func (c *QueryCache) Invalidate(tags ...types.Tag) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make(map[string]struct{})
	for _, tag := range tags {
		for key := range c.index[tag] {
			keys[key] = struct{}{}
		}
		c.countInvalidation(tag)
	}

	for key := range keys {
		e := c.entries[key]
		if e == nil {
			continue
		}

		if len(e.subscribers) == 0 {
			if e.cancel != nil {
				e.cancel()
			}
			c.removeLocked(key, e)
			continue
		}

		e.stale = true
		if !e.inflight {
			c.startFetchLocked(e)
		}
	}

	if len(keys) > 0 {
		c.logger.Debug("Cache invalidated", zap.Stringers("tags", tags), zap.Int("entries", len(keys)))
	}

	return len(keys)
}

func (c *QueryCache) OnMutation(listener types.MutationListener) func() {
	if listener == nil {
		return func() {}
	}

	c.listenersMu.Lock()
	c.nextListener++
	id := c.nextListener
	c.listeners[id] = listener
	c.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.listenersMu.Lock()
			delete(c.listeners, id)
			c.listenersMu.Unlock()
		})
	}
}

// Sweep drops entries nobody has watched for keepUnusedFor.
func (c *QueryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if len(e.subscribers) > 0 || e.inflight {
			continue
		}
		if now.Sub(e.releasedAt) >= c.keepUnusedFor {
			c.removeLocked(key, e)
			removed++
		}
	}

	return removed
}

func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *QueryCache) startFetchLocked(e *entry) {
	e.generation++
	generation := e.generation

	fetchCtx, cancel := context.WithCancel(c.ctx)
	e.cancel = cancel
	e.inflight = true
	e.stale = false

	e.publish(types.QueryState{
		Status:    types.QueryStatusPending,
		Data:      e.state.Data,
		UpdatedAt: e.state.UpdatedAt,
	})

	fetch := e.fetch
	flightKey := e.key + "#" + strconv.FormatUint(generation, 10)

	go func() {
		data, err, _ := c.flights.Do(flightKey, func() (interface{}, error) {
			return safeFetch(fetchCtx, fetch)
		})
		c.complete(e, generation, fetchCtx, data, err)
		cancel()
	}()
}

func (c *QueryCache) complete(e *entry, generation uint64, fetchCtx context.Context, data interface{}, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if fetchCtx.Err() != nil || c.entries[e.key] != e || e.generation != generation {
		return
	}

	e.inflight = false
	e.cancel = nil

	now := c.now()
	if err != nil {
		c.countFetch("error")
		c.logger.Debug("Query fetch failed", zap.String("key", e.key), zap.Error(err))
		e.publish(types.QueryState{
			Status:    types.QueryStatusError,
			Data:      e.state.Data,
			Err:       err,
			UpdatedAt: now,
		})
	} else {
		c.countFetch("ok")
		e.fetchedAt = now
		e.publish(types.QueryState{
			Status:    types.QueryStatusReady,
			Data:      data,
			UpdatedAt: now,
		})
	}

	if e.stale && len(e.subscribers) > 0 {
		c.startFetchLocked(e)
	}
}

func (c *QueryCache) refetch(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := sub.entry
	if e == nil || c.entries[e.key] != e {
		return
	}
	if _, watching := e.subscribers[sub]; !watching || e.inflight {
		return
	}

	c.startFetchLocked(e)
}

func (c *QueryCache) unsubscribe(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub.detach()

	e := sub.entry
	if e == nil {
		return
	}
	if _, watching := e.subscribers[sub]; !watching {
		return
	}

	delete(e.subscribers, sub)
	if len(e.subscribers) > 0 {
		return
	}

	e.releasedAt = c.now()

	if e.inflight {
		e.cancel()
		e.cancel = nil
		e.inflight = false
		e.generation++
		e.state = types.QueryState{
			Status:    types.QueryStatusIdle,
			Data:      e.state.Data,
			UpdatedAt: e.state.UpdatedAt,
		}
		c.countFetch("cancelled")
	}
}

func (c *QueryCache) indexLocked(key string, tags []types.Tag) {
	for _, tag := range tags {
		keys, ok := c.index[tag]
		if !ok {
			keys = make(map[string]struct{})
			c.index[tag] = keys
		}
		keys[key] = struct{}{}
	}
}

func (c *QueryCache) removeLocked(key string, e *entry) {
	delete(c.entries, key)
	for _, tag := range e.tags {
		if keys, ok := c.index[tag]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(c.index, tag)
			}
		}
	}
	c.updateEntriesGauge()
}

func (c *QueryCache) notifyMutation(endpoint string, tags []types.Tag) {
	c.listenersMu.RLock()
	listeners := make([]types.MutationListener, 0, len(c.listeners))
	for _, listener := range c.listeners {
		listeners = append(listeners, listener)
	}
	c.listenersMu.RUnlock()

	for _, listener := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("Mutation listener panicked", zap.String("endpoint", endpoint), zap.Any("panic", r))
				}
			}()
			listener(endpoint, tags)
		}()
	}
}

func safeFetch(ctx context.Context, fetch types.Fetcher) (data interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = types.Errorf(types.ErrCacheOperationFailed, "fetch panicked: %v", r)
		}
	}()

	return fetch(ctx)
}

func (c *QueryCache) getState() State {
	return c.state.Load().(State)
}

func (c *QueryCache) setState(newState State) bool {
	currentState := c.getState()
	return c.state.CompareAndSwap(currentState, newState)
}

func (c *QueryCache) transitionState(from, to State) bool {
	return c.state.CompareAndSwap(from, to)
}
