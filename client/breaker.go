package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-food-admin/types"
)

type BreakerState int32

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops calling the food API after repeated transport or
// gateway failures and probes it again after the recovery timeout.
// A nil or disabled breaker lets everything through.
type CircuitBreaker struct {
	config    *types.CircuitBreakerConfig
	logger    types.Logger
	name      string
	now       func() time.Time
	mutex     sync.Mutex
	state     atomic.Value
	failures  atomic.Int32
	successes atomic.Int32
	lastFail  atomic.Int64
}

func NewCircuitBreaker(config *types.CircuitBreakerConfig, logger types.Logger, name string) *CircuitBreaker {
	if config == nil {
		config = &types.CircuitBreakerConfig{}
	}

	cb := &CircuitBreaker{
		config: config,
		logger: logger,
		name:   name,
		now:    time.Now,
	}

	cb.state.Store(BreakerClosed)
	return cb
}

func (cb *CircuitBreaker) enabled() bool {
	return cb != nil && cb.config.Enabled
}

func (cb *CircuitBreaker) CanExecute() bool {
	if !cb.enabled() {
		return true
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.State() {
	case BreakerOpen:
		lastFail := time.Unix(0, cb.lastFail.Load())
		if cb.now().Sub(lastFail) >= cb.config.RecoveryTimeout {
			cb.transitionTo(BreakerHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	if !cb.enabled() {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.State() {
	case BreakerClosed:
		cb.failures.Store(0)
	case BreakerHalfOpen:
		successes := cb.successes.Add(1)
		required := int32(cb.config.HalfOpenRequests)
		if required < 1 {
			required = 1
		}
		if successes >= required {
			cb.transitionTo(BreakerClosed)
		}
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	if !cb.enabled() {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.lastFail.Store(cb.now().UnixNano())

	switch cb.State() {
	case BreakerClosed:
		failures := cb.failures.Add(1)
		if failures >= int32(cb.config.FailureThreshold) {
			cb.transitionTo(BreakerOpen)
		}
	case BreakerHalfOpen:
		cb.transitionTo(BreakerOpen)
	}
}

func (cb *CircuitBreaker) State() BreakerState {
	if cb == nil {
		return BreakerClosed
	}
	return cb.state.Load().(BreakerState)
}

func (cb *CircuitBreaker) Reset() {
	if !cb.enabled() {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.transitionTo(BreakerClosed)
}

// transitionTo runs under cb.mutex.
func (cb *CircuitBreaker) transitionTo(next BreakerState) {
	prev := cb.State()
	if prev == next {
		return
	}

	cb.state.Store(next)
	cb.successes.Store(0)
	if next == BreakerClosed {
		cb.failures.Store(0)
		cb.lastFail.Store(0)
	}

	log := cb.logger.Info
	if next == BreakerOpen {
		log = cb.logger.Warn
	}
	log("Circuit breaker state changed",
		zap.String("client", cb.name),
		zap.Stringer("from", prev),
		zap.Stringer("to", next),
		zap.Int32("failures", cb.failures.Load()))
}

// IsCircuitBreakerFailure counts transport errors and gateway-type statuses.
// Ordinary 4xx/5xx answers from the API are results, not outages.
func IsCircuitBreakerFailure(statusCode int, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}

	switch statusCode {
	case 408, 429, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableError reports whether another attempt could succeed.
func IsRetryableError(statusCode int, err error) bool {
	if err != nil {
		return isNetworkError(err)
	}

	switch statusCode {
	case 408, 429, 502, 503, 504:
		return true
	default:
		return false
	}
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED,
			syscall.EHOSTUNREACH, syscall.ENETUNREACH, syscall.ETIMEDOUT:
			return true
		}
	}

	return false
}
