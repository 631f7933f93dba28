// Package circuit implements an optional circuit breaker over the
// engine. When enabled, each operation gets its own breaker so a
// failing solver chain cannot block fetches, and an open breaker
// rejects calls before any endpoint is touched.
package circuit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/types"
)

// Breaker wraps one gobreaker instance behind the CircuitBreaker
// interface
type Breaker struct {
	mu       sync.RWMutex
	breaker  *gobreaker.CircuitBreaker
	settings gobreaker.Settings
}

// NewBreaker creates a named circuit breaker
func NewBreaker(name string, failureThreshold int, timeout time.Duration, logger types.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    timeout,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= uint32(failureThreshold) && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit state changed",
				"name", name,
				"from", stateName(from),
				"to", stateName(to),
			)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Input errors say nothing about the chain's health
			var verr *types.ValidationError
			return errors.As(err, &verr)
		},
	}

	return &Breaker{
		breaker:  gobreaker.NewCircuitBreaker(settings),
		settings: settings,
	}
}

func (b *Breaker) current() *gobreaker.CircuitBreaker {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.breaker
}

// Execute runs the function with circuit breaker protection
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.current().Execute(func() (interface{}, error) {
		return nil, fn()
	})

	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return types.ErrCircuitBreakerOpen
	}

	return err
}

// State returns the current state
func (b *Breaker) State() string {
	return stateName(b.current().State())
}

// Reset discards the breaker's history, closing it immediately
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.breaker = gobreaker.NewCircuitBreaker(b.settings)
}

func stateName(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Engine gates each pool operation behind its own breaker
type Engine struct {
	inner types.Engine
	solve *Breaker
	fetch *Breaker
}

// Wrap decorates an engine with circuit breakers. When the feature is
// disabled the engine passes through untouched.
func Wrap(inner types.Engine, cfg *types.Config, logger types.Logger) types.Engine {
	if !cfg.CircuitBreaker.Enabled {
		return inner
	}

	return &Engine{
		inner: inner,
		solve: NewBreaker("solve", cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.Timeout, logger),
		fetch: NewBreaker("fetch", cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.Timeout, logger),
	}
}

// Solve runs the solve chain unless its breaker is open
func (e *Engine) Solve(ctx context.Context, audioURL, lang string) (*types.SolveResult, error) {
	var res *types.SolveResult
	err := e.solve.Execute(func() error {
		var innerErr error
		res, innerErr = e.inner.Solve(ctx, audioURL, lang)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Fetch runs the fetch chain unless its breaker is open
func (e *Engine) Fetch(ctx context.Context, freq *types.FetchRequest) (*types.FetchResult, error) {
	var res *types.FetchResult
	err := e.fetch.Execute(func() error {
		var innerErr error
		res, innerErr = e.inner.Fetch(ctx, freq)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// States reports the per-operation breaker states
func (e *Engine) States() map[string]string {
	return map[string]string{
		"solve": e.solve.State(),
		"fetch": e.fetch.State(),
	}
}
