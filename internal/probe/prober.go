// Package probe measures endpoint latency ahead of real traffic and
// feeds the results to the selector as hints for unproven endpoints.
package probe

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/transport"
	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/types"
)

// Prober sweeps a pool and records one latency hint per endpoint. A
// failed probe records the penalty latency instead so the endpoint
// starts with a poor score rather than an unknown one.
type Prober struct {
	registry  types.Registry
	selector  types.Selector
	client    *transport.Client
	logger    types.Logger
	timeout   time.Duration
	penaltyMs int64

	sweepInProgress int32
}

// New creates a prober for one endpoint pool
func New(registry types.Registry, selector types.Selector, client *transport.Client, logger types.Logger, timeout time.Duration, penaltyMs int64) *Prober {
	return &Prober{
		registry:  registry,
		selector:  selector,
		client:    client,
		logger:    logger,
		timeout:   timeout,
		penaltyMs: penaltyMs,
	}
}

// Probe measures one endpoint and returns the observed latency. A
// non-2xx response or transport failure counts as a failed probe.
func (p *Prober) Probe(ctx context.Context, ep *types.Endpoint) (time.Duration, error) {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	outcome := p.client.Get(probeCtx, ep.BaseURL())
	if !outcome.OK() {
		if outcome.Status != 0 {
			return outcome.Elapsed, fmt.Errorf("probe status %d", outcome.Status)
		}
		return outcome.Elapsed, fmt.Errorf("probe failed: %s", outcome.Class)
	}

	return outcome.Elapsed, nil
}

// ProbeAll sweeps the whole pool in parallel and stores the results as
// selector hints. Overlapping sweeps are skipped.
func (p *Prober) ProbeAll(ctx context.Context) map[string]int64 {
	if !atomic.CompareAndSwapInt32(&p.sweepInProgress, 0, 1) {
		return nil
	}
	defer atomic.StoreInt32(&p.sweepInProgress, 0)

	endpoints := p.registry.List()
	if len(endpoints) == 0 {
		return map[string]int64{}
	}

	var mu sync.Mutex
	results := make(map[string]int64, len(endpoints))

	var wg sync.WaitGroup
	for _, ep := range endpoints {
		wg.Add(1)
		go func(ep *types.Endpoint) {
			defer wg.Done()

			latency, err := p.Probe(ctx, ep)
			latencyMs := latency.Milliseconds()
			if err != nil {
				latencyMs = p.penaltyMs
				p.logger.Debug("Probe failed",
					"kind", p.registry.Kind(),
					"address", ep.Address,
					"error", err,
				)
			} else {
				p.logger.Debug("Probe succeeded",
					"kind", p.registry.Kind(),
					"address", ep.Address,
					"latency_ms", latencyMs,
				)
			}

			p.selector.SetLatencyHint(ep.Address, latencyMs)

			mu.Lock()
			results[ep.Address] = latencyMs
			mu.Unlock()
		}(ep)
	}
	wg.Wait()

	p.logger.Info("Probe sweep complete",
		"kind", p.registry.Kind(),
		"endpoints", len(results),
	)

	return results
}

// Watch sweeps the pool on an interval until the context is cancelled.
// The first sweep runs immediately.
func (p *Prober) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	p.ProbeAll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProbeAll(ctx)
		}
	}
}
