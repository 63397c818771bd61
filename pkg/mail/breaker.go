/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package mail

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/telekom/issuemail/pkg/metrics"
)

// CircuitState represents the current state of the circuit breaker.
type CircuitState int32

const (
	// CircuitClosed indicates normal operation - sends flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen indicates the circuit is tripped - sends are rejected.
	CircuitOpen
	// CircuitHalfOpen indicates the circuit is probing the server.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures the circuit breaker in front of an SMTP server.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failed sends before opening the circuit.
	// Default: 5
	FailureThreshold int

	// SuccessThreshold is the number of consecutive successes in half-open state
	// required to close the circuit.
	// Default: 1
	SuccessThreshold int

	// OpenTimeout is how long to wait before probing the server again.
	// Default: 30s
	OpenTimeout time.Duration
}

func breakerConfigFrom(failures, openSeconds int) BreakerConfig {
	return BreakerConfig{
		FailureThreshold: failures,
		OpenTimeout:      time.Duration(openSeconds) * time.Second,
	}
}

// ErrCircuitOpen is returned while the SMTP server is considered down.
var ErrCircuitOpen = errors.New("mail circuit breaker is open")

// CircuitBreaker stops hammering an SMTP server that keeps failing. Rejected
// sends fail fast and the queue schedules them for a later retry.
type CircuitBreaker struct {
	host   string
	config BreakerConfig
	log    *zap.SugaredLogger
	now    func() time.Time

	state            atomic.Int32
	consecutiveFails atomic.Int64
	consecutiveSuccs atomic.Int64
	halfOpenInFlight atomic.Int64
	lastStateChange  atomic.Value // time.Time

	mu sync.Mutex
}

func NewCircuitBreaker(host string, cfg BreakerConfig, log *zap.SugaredLogger) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	cb := &CircuitBreaker{
		host:   host,
		config: cfg,
		log:    log.Named("circuit-breaker").With("host", host),
		now:    time.Now,
	}
	cb.state.Store(int32(CircuitClosed))
	cb.lastStateChange.Store(cb.now())
	metrics.MailCircuitState.WithLabelValues(host).Set(float64(CircuitClosed))
	return cb
}

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.canExecute() {
		metrics.MailCircuitRejections.WithLabelValues(cb.host).Inc()
		return ErrCircuitOpen
	}

	if err := fn(ctx); err != nil {
		// a cancelled send says nothing about the server
		if ctx.Err() == nil {
			cb.recordFailure()
		} else {
			cb.releaseProbe()
		}
		return err
	}
	cb.recordSuccess()
	return nil
}

func (cb *CircuitBreaker) canExecute() bool {
	switch CircuitState(cb.state.Load()) {
	case CircuitClosed:
		return true
	case CircuitOpen:
		lastChange, ok := cb.lastStateChange.Load().(time.Time)
		if !ok || cb.now().Sub(lastChange) < cb.config.OpenTimeout {
			return false
		}
		cb.transitionTo(CircuitHalfOpen)
		return cb.acquireProbe()
	case CircuitHalfOpen:
		return cb.acquireProbe()
	default:
		return false
	}
}

// Only one probe send is in flight while half-open.
func (cb *CircuitBreaker) acquireProbe() bool {
	if cb.halfOpenInFlight.Add(1) <= 1 {
		return true
	}
	cb.halfOpenInFlight.Add(-1)
	return false
}

func (cb *CircuitBreaker) releaseProbe() {
	if CircuitState(cb.state.Load()) == CircuitHalfOpen {
		cb.halfOpenInFlight.Add(-1)
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.consecutiveFails.Store(0)
	successes := cb.consecutiveSuccs.Add(1)
	if CircuitState(cb.state.Load()) == CircuitHalfOpen {
		cb.halfOpenInFlight.Add(-1)
		if int(successes) >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.consecutiveSuccs.Store(0)
	failures := cb.consecutiveFails.Add(1)

	switch CircuitState(cb.state.Load()) {
	case CircuitClosed:
		if int(failures) >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	oldState := CircuitState(cb.state.Load())
	if oldState == newState {
		return
	}

	cb.state.Store(int32(newState))
	cb.lastStateChange.Store(cb.now())
	cb.consecutiveFails.Store(0)
	cb.consecutiveSuccs.Store(0)
	cb.halfOpenInFlight.Store(0)

	if newState == CircuitOpen {
		cb.log.Warnw("SMTP server keeps failing, pausing delivery", "from", oldState.String(), "retryAfter", cb.config.OpenTimeout)
	} else {
		cb.log.Infow("Mail circuit breaker state changed", "from", oldState.String(), "to", newState.String())
	}
	metrics.MailCircuitState.WithLabelValues(cb.host).Set(float64(newState))
}

func (cb *CircuitBreaker) State() CircuitState {
	return CircuitState(cb.state.Load())
}

// breakerSender guards a Sender with a CircuitBreaker.
type breakerSender struct {
	Sender
	breaker *CircuitBreaker
}

// WithCircuitBreaker wraps s so that a failing server trips the breaker.
func WithCircuitBreaker(s Sender, cfg BreakerConfig, log *zap.SugaredLogger) Sender {
	return &breakerSender{Sender: s, breaker: NewCircuitBreaker(s.GetHost(), cfg, log)}
}

func (b *breakerSender) Send(ctx context.Context, email Email) error {
	return b.breaker.Execute(ctx, func(ctx context.Context) error {
		return b.Sender.Send(ctx, email)
	})
}
