package cache

import (
	"context"
	"sync"

	"github.com/saiset-co/sai-food-admin/types"
)

// Subscription is one caller's view of a cache entry. Updates are latest-wins:
// a slow reader only ever sees the most recent state.
type Subscription struct {
	cache   *QueryCache
	entry   *entry
	key     string
	mu      sync.Mutex
	state   types.QueryState
	updates chan types.QueryState
	signal  chan struct{}
	done    bool
	stop    func() bool
	once    sync.Once
}

func newSubscription(cache *QueryCache, key string, state types.QueryState) *Subscription {
	return &Subscription{
		cache:   cache,
		key:     key,
		state:   state,
		updates: make(chan types.QueryState, 1),
		signal:  make(chan struct{}, 1),
	}
}

// detached subscriptions are never attached to an entry: skipped or failed before registration.
func detached(key string, state types.QueryState) *Subscription {
	s := newSubscription(nil, key, state)
	s.done = true
	close(s.updates)
	return s
}

func (s *Subscription) Key() string {
	return s.key
}

func (s *Subscription) State() types.QueryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Updates is closed after Unsubscribe.
func (s *Subscription) Updates() <-chan types.QueryState {
	return s.updates
}

// Wait blocks until the entry settles. Skipped and unsubscribed
// subscriptions return their current state immediately.
func (s *Subscription) Wait(ctx context.Context) (types.QueryState, error) {
	for {
		s.mu.Lock()
		state, done := s.state, s.done
		s.mu.Unlock()

		if state.IsSettled() || done {
			return state, nil
		}

		select {
		case <-s.signal:
		case <-ctx.Done():
			return s.State(), ctx.Err()
		}
	}
}

func (s *Subscription) Refetch() {
	if s.cache == nil {
		return
	}
	s.cache.refetch(s)
}

func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.mu.Lock()
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		if s.cache != nil {
			s.cache.unsubscribe(s)
		}
	})
}

func (s *Subscription) watch(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stop = context.AfterFunc(ctx, s.Unsubscribe)
}

// deliver runs under the cache lock.
func (s *Subscription) deliver(state types.QueryState) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()

	select {
	case s.updates <- state:
	default:
		select {
		case <-s.updates:
		default:
		}
		select {
		case s.updates <- state:
		default:
		}
	}

	s.wake()
}

// detach runs under the cache lock.
func (s *Subscription) detach() {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.mu.Unlock()

	close(s.updates)
	s.wake()
}

func (s *Subscription) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}
