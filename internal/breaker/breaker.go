package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ariefcatur/renu-clearing/internal/failure"
)

const (
	DefaultMaxRetries   = 3
	DefaultResetTimeout = 30 * time.Second
)

type Settings struct {
	// MaxRetries consecutive failures trip the breaker.
	MaxRetries int
	// ResetTimeout is how long an open breaker waits before admitting one trial call.
	ResetTimeout time.Duration
	// OnStateChange is optional; used for logs and the breaker gauge.
	OnStateChange func(provider string, from, to gobreaker.State)
}

// Registry owns one breaker per provider name. Build one per process and pass it
// to every client Env.
type Registry struct {
	settings Settings

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewRegistry(s Settings) *Registry {
	if s.MaxRetries <= 0 {
		s.MaxRetries = DefaultMaxRetries
	}
	if s.ResetTimeout <= 0 {
		s.ResetTimeout = DefaultResetTimeout
	}
	return &Registry{settings: s, breakers: map[string]*gobreaker.CircuitBreaker{}}
}

func (r *Registry) get(name string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	maxRetries := uint32(r.settings.MaxRetries)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // single trial call while half-open
		Timeout:     r.settings.ResetTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= maxRetries
		},
		// a declined charge or a rejected report is still a healthy upstream
		IsSuccessful: func(err error) bool {
			return err == nil || failure.IsBusiness(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if r.settings.OnStateChange != nil {
				r.settings.OnStateChange(name, from, to)
			}
		},
	})
	r.breakers[name] = cb
	return cb
}

// State reports the current state of the named breaker; unknown names are closed.
func (r *Registry) State(name string) gobreaker.State {
	r.mu.Lock()
	cb, ok := r.breakers[name]
	r.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

// Names lists providers that have a breaker so far.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.breakers))
	for n := range r.breakers {
		out = append(out, n)
	}
	return out
}

// Execute runs fn through the named provider's breaker. When the breaker is open
// (or its half-open trial slot is taken) fn is not called and a
// *failure.BreakerOpen is returned. Nothing is retried here.
func Execute[T any](r *Registry, name string, fn func() (T, error)) (T, error) {
	var zero T

	out, err := r.get(name).Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, &failure.BreakerOpen{Provider: name}
	}
	if err != nil {
		return zero, err
	}
	v, _ := out.(T)
	return v, nil
}
