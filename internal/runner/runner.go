// Package runner drives the retry and fallback chain for one endpoint
// pool: pick an endpoint, attempt the operation, record the outcome,
// and on failure move to the next endpoint with the failed ones
// excluded. When the chain is spent, an operation that has a direct
// form gets exactly one try without any endpoint.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/types"
)

// Operation is one unit of work the chain can run against an endpoint
type Operation interface {
	Name() string

	// Attempt runs the operation against one endpoint
	Attempt(ctx context.Context, ep *types.Endpoint) *types.Outcome

	// DirectCapable reports whether the operation has a form that runs
	// without an endpoint
	DirectCapable() bool

	// Direct runs the operation without an endpoint
	Direct(ctx context.Context) *types.Outcome
}

// Result describes the attempt that finally succeeded
type Result struct {
	Outcome  *types.Outcome
	Endpoint string
	Direct   bool
	Attempts int
}

// Runner executes operations against one pool
type Runner struct {
	kind     types.EndpointKind
	selector types.Selector
	stats    types.StatsTracker
	metrics  types.MetricsCollector
	logger   types.Logger

	mu             sync.RWMutex
	maxRetries     int
	backoff        time.Duration
	attemptTimeout time.Duration
}

// New creates a runner for one pool
func New(kind types.EndpointKind, selector types.Selector, stats types.StatsTracker, metrics types.MetricsCollector, logger types.Logger, maxRetries int, backoff, attemptTimeout time.Duration) *Runner {
	return &Runner{
		kind:           kind,
		selector:       selector,
		stats:          stats,
		metrics:        metrics,
		logger:         logger,
		maxRetries:     maxRetries,
		backoff:        backoff,
		attemptTimeout: attemptTimeout,
	}
}

// UpdateRetry applies reloaded retry settings
func (r *Runner) UpdateRetry(maxRetries int, backoff time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxRetries = maxRetries
	r.backoff = backoff
}

func (r *Runner) limits() (int, time.Duration, time.Duration) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.maxRetries, r.backoff, r.attemptTimeout
}

// Execute runs the chain. Every endpoint attempt is recorded against
// that endpoint's stats; the direct attempt is recorded against none.
func (r *Runner) Execute(ctx context.Context, op Operation) (*Result, error) {
	maxRetries, backoff, attemptTimeout := r.limits()

	excluded := make(map[string]bool, maxRetries)
	attempts := 0
	sawEndpoint := false
	var lastAddress string

	for attempts < maxRetries {
		ep := r.selector.Choose(excluded)
		if ep == nil {
			break
		}
		sawEndpoint = true
		attempts++
		lastAddress = ep.Address

		outcome := r.attempt(ctx, op, ep, attemptTimeout)
		r.stats.Record(ep.Address, outcome.OK(), outcome.ElapsedMs())
		if r.metrics != nil {
			r.metrics.RecordAttempt(string(r.kind), outcome.Class.String(), outcome.Elapsed)
		}

		if outcome.OK() {
			r.logger.Debug("Attempt succeeded",
				"op", op.Name(),
				"kind", r.kind,
				"address", ep.Address,
				"attempt", attempts,
				"elapsed_ms", outcome.ElapsedMs(),
			)
			return &Result{Outcome: outcome, Endpoint: ep.Address, Attempts: attempts}, nil
		}

		r.logger.Warn("Attempt failed",
			"op", op.Name(),
			"kind", r.kind,
			"address", ep.Address,
			"attempt", attempts,
			"outcome", outcome.Class.String(),
			"status", outcome.Status,
			"error", outcome.Err,
		)
		excluded[ep.Address] = true

		if attempts < maxRetries {
			if err := r.wait(ctx, backoff); err != nil {
				return nil, err
			}
		}
	}

	if !op.DirectCapable() {
		if !sawEndpoint {
			return nil, &types.RelayError{Op: op.Name(), Kind: r.kind, Err: types.ErrNoEndpointsAvailable}
		}
		return nil, &types.RelayError{Op: op.Name(), Kind: r.kind, Endpoint: lastAddress, Err: types.ErrAllAttemptsFailed}
	}

	directOutcome := r.direct(ctx, op, attemptTimeout)
	attempts++
	if r.metrics != nil {
		r.metrics.RecordAttempt(string(r.kind), directOutcome.Class.String(), directOutcome.Elapsed)
	}

	if directOutcome.OK() {
		r.logger.Debug("Direct attempt succeeded",
			"op", op.Name(),
			"kind", r.kind,
			"attempt", attempts,
			"elapsed_ms", directOutcome.ElapsedMs(),
		)
		return &Result{Outcome: directOutcome, Direct: true, Attempts: attempts}, nil
	}

	r.logger.Warn("Direct attempt failed",
		"op", op.Name(),
		"kind", r.kind,
		"outcome", directOutcome.Class.String(),
		"status", directOutcome.Status,
		"error", directOutcome.Err,
	)
	return nil, &types.RelayError{Op: op.Name(), Kind: r.kind, Endpoint: lastAddress, Err: types.ErrAllAttemptsFailed}
}

// attempt runs one bounded try against an endpoint
func (r *Runner) attempt(ctx context.Context, op Operation, ep *types.Endpoint, timeout time.Duration) *types.Outcome {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op.Attempt(attemptCtx, ep)
}

// direct runs the single bounded try without an endpoint
func (r *Runner) direct(ctx context.Context, op Operation, timeout time.Duration) *types.Outcome {
	directCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op.Direct(directCtx)
}

// wait sleeps the fixed backoff, waking early on cancellation
func (r *Runner) wait(ctx context.Context, backoff time.Duration) error {
	if backoff <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(backoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
