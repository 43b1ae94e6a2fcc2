package client

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-offline-cache/types"
)

type BreakerState int32

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
	BreakerDisabled
)

// CircuitBreaker guards the single live fetch a strategy is allowed.
// When open, fetches fail fast and the strategies fall back to cache.
// It never retries anything itself.
type CircuitBreaker struct {
	config    *types.CircuitBreakerConfig
	logger    types.Logger
	state     atomic.Int32
	failures  atomic.Int32
	halfOpen  atomic.Int32
	openedAt  atomic.Int64
}

func NewCircuitBreaker(config *types.CircuitBreakerConfig, logger types.Logger) *CircuitBreaker {
	cb := &CircuitBreaker{
		config: config,
		logger: logger,
	}

	if config == nil || !config.Enabled {
		cb.state.Store(int32(BreakerDisabled))
		return cb
	}

	if cb.config.FailureThreshold <= 0 {
		cb.config.FailureThreshold = 5
	}
	if cb.config.RecoveryTimeout <= 0 {
		cb.config.RecoveryTimeout = 30 * time.Second
	}
	if cb.config.HalfOpenRequests <= 0 {
		cb.config.HalfOpenRequests = 1
	}

	cb.state.Store(int32(BreakerClosed))
	return cb
}

func (cb *CircuitBreaker) CanExecute() bool {
	switch BreakerState(cb.state.Load()) {
	case BreakerDisabled, BreakerClosed:
		return true
	case BreakerOpen:
		openedAt := time.Unix(0, cb.openedAt.Load())
		if time.Since(openedAt) < cb.config.RecoveryTimeout {
			return false
		}

		if cb.state.CompareAndSwap(int32(BreakerOpen), int32(BreakerHalfOpen)) {
			cb.halfOpen.Store(0)
			cb.logger.Debug("Circuit breaker half-open")
		}
		fallthrough
	case BreakerHalfOpen:
		return cb.halfOpen.Add(1) <= int32(cb.config.HalfOpenRequests)
	default:
		return true
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	if BreakerState(cb.state.Load()) == BreakerDisabled {
		return
	}

	cb.failures.Store(0)

	if cb.state.CompareAndSwap(int32(BreakerHalfOpen), int32(BreakerClosed)) {
		cb.logger.Info("Circuit breaker closed")
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	state := BreakerState(cb.state.Load())
	if state == BreakerDisabled {
		return
	}

	if state == BreakerHalfOpen {
		cb.trip(BreakerHalfOpen)
		return
	}

	if cb.failures.Add(1) >= int32(cb.config.FailureThreshold) {
		cb.trip(BreakerClosed)
	}
}

func (cb *CircuitBreaker) trip(from BreakerState) {
	if cb.state.CompareAndSwap(int32(from), int32(BreakerOpen)) {
		cb.openedAt.Store(time.Now().UnixNano())
		cb.failures.Store(0)
		cb.logger.Warn("Circuit breaker open",
			zap.Duration("recovery_timeout", cb.config.RecoveryTimeout))
	}
}

func (cb *CircuitBreaker) State() BreakerState {
	return BreakerState(cb.state.Load())
}
