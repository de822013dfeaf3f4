// Package circuitbreaker fails fast when a vendor API is unhealthy
// instead of burning retries against it. Closed passes requests through,
// open rejects them, half-open lets probes through until the vendor
// proves itself again.
package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"github.com/resumeforge/resume-ai/internal/domain"
)

// Breaker is satisfied by both the in-memory and the Redis-backed
// implementations.
type Breaker interface {
	// Allow returns nil when the request may proceed and
	// domain.ErrCircuitBreakerOpen when the circuit is open.
	Allow(ctx context.Context) error

	RecordSuccess(ctx context.Context)
	RecordFailure(ctx context.Context)

	State(ctx context.Context) State
}

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type Config struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // successes to close from half-open
	Timeout          time.Duration // open duration before probing
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// InMemoryBreaker tracks state locally. Suitable for single-instance
// deployments.
type InMemoryBreaker struct {
	mu          sync.RWMutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time
	config      Config
}

func NewInMemory(cfg Config) *InMemoryBreaker {
	return &InMemoryBreaker{
		state:  StateClosed,
		config: cfg,
	}
}

func (cb *InMemoryBreaker) Allow(ctx context.Context) error {
	cb.mu.RLock()
	state := cb.state
	lastFailure := cb.lastFailure
	cb.mu.RUnlock()

	switch state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(lastFailure) > cb.config.Timeout {
			cb.mu.Lock()
			if cb.state == StateOpen {
				cb.state = StateHalfOpen
				cb.successes = 0
			}
			cb.mu.Unlock()
			return nil
		}
		return domain.ErrCircuitBreakerOpen
	case StateHalfOpen:
		return nil
	}

	return nil
}

func (cb *InMemoryBreaker) RecordSuccess(ctx context.Context) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.state = StateClosed
			cb.failures = 0
			cb.successes = 0
		}
	}
}

func (cb *InMemoryBreaker) RecordFailure(ctx context.Context) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure = time.Now()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.state = StateOpen
		}
	case StateHalfOpen:
		cb.state = StateOpen
		cb.successes = 0
	}
}

func (cb *InMemoryBreaker) State(ctx context.Context) State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

func (cb *InMemoryBreaker) Failures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failures
}

// Manager keeps one breaker per vendor, created lazily.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]Breaker
	config   Config
	factory  func(vendor string) Breaker
}

type ManagerOption func(*Manager)

// WithRedis backs new breakers with Redis so state is shared across
// instances. Falls back to in-memory per vendor when Redis is down.
func WithRedis(redisURL string) ManagerOption {
	return func(m *Manager) {
		m.factory = func(vendor string) Breaker {
			cb, err := NewRedis(redisURL, vendor, m.config)
			if err != nil {
				return NewInMemory(m.config)
			}
			return cb
		}
	}
}

func NewManager(cfg Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		breakers: make(map[string]Breaker),
		config:   cfg,
		factory: func(vendor string) Breaker {
			return NewInMemory(cfg)
		},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Get returns the breaker for a vendor, creating one on first use.
func (m *Manager) Get(vendor string) Breaker {
	m.mu.RLock()
	cb, ok := m.breakers[vendor]
	m.mu.RUnlock()

	if ok {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.breakers[vendor]; ok {
		return existing
	}

	cb = m.factory(vendor)
	m.breakers[vendor] = cb
	return cb
}

// States reports the current state of every known breaker.
func (m *Manager) States() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ctx := context.Background()
	states := make(map[string]string)
	for vendor, cb := range m.breakers {
		states[vendor] = cb.State(ctx).String()
	}
	return states
}
