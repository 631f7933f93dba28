package selector

import (
	"math/rand"
	"sync"
	"time"

	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/types"
)

// WeightedRandom selects endpoints with probability proportional to
// their score. Every endpoint keeps a positive floor weight, so even a
// badly degraded endpoint stays reachable and can recover.
type WeightedRandom struct {
	registry types.Registry
	stats    types.StatsTracker
	metrics  types.MetricsCollector
	logger   types.Logger

	mu      sync.RWMutex
	weights Weights
	hints   map[string]int64
}

// NewWeightedRandom creates a selector over the given pool
func NewWeightedRandom(registry types.Registry, stats types.StatsTracker, metrics types.MetricsCollector, logger types.Logger, weights Weights) *WeightedRandom {
	return &WeightedRandom{
		registry: registry,
		stats:    stats,
		metrics:  metrics,
		logger:   logger,
		weights:  weights,
		hints:    make(map[string]int64),
	}
}

// Choose returns the next endpoint, skipping excluded addresses. When
// the exclusion set covers the whole pool the draw falls back to the
// full list; nil means the pool is empty.
func (w *WeightedRandom) Choose(excluded map[string]bool) *types.Endpoint {
	pool := w.registry.List()
	if len(pool) == 0 {
		return nil
	}

	candidates := make([]*types.Endpoint, 0, len(pool))
	for _, ep := range pool {
		if excluded != nil && excluded[ep.Address] {
			continue
		}
		candidates = append(candidates, ep)
	}

	fallback := false
	if len(candidates) == 0 {
		// Everything was excluded; retry over the full pool rather
		// than give up
		candidates = pool
		fallback = true
		w.logger.Debug("Exclusions cover the pool, drawing from full list", "kind", w.registry.Kind())
	}

	selected := w.draw(candidates)

	if w.metrics != nil {
		w.metrics.RecordSelection(string(w.registry.Kind()), fallback)
	}

	return selected
}

// draw performs the weighted random selection
func (w *WeightedRandom) draw(candidates []*types.Endpoint) *types.Endpoint {
	now := time.Now()

	cw := w.currentWeights()
	scores := make([]float64, len(candidates))
	total := 0.0
	for i, ep := range candidates {
		s := w.Score(ep, now)
		if s < cw.MinWeight {
			s = cw.MinWeight
		}
		scores[i] = s
		total += s
	}

	r := rand.Float64() * total
	for i, ep := range candidates {
		r -= scores[i]
		if r < 0 {
			return ep
		}
	}

	// Floating point remainder lands on the last candidate
	return candidates[len(candidates)-1]
}

// Score computes the current selection score for an endpoint
func (w *WeightedRandom) Score(ep *types.Endpoint, now time.Time) float64 {
	es := w.stats.Get(ep.Address)
	hint, hasHint := w.LatencyHint(ep.Address)
	return score(es, hint, hasHint, w.currentWeights(), now)
}

// SetLatencyHint records a probed latency used until real stats exist
func (w *WeightedRandom) SetLatencyHint(address string, latencyMs int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hints[address] = latencyMs
}

// LatencyHint returns the probed latency for an address, if any
func (w *WeightedRandom) LatencyHint(address string) (int64, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	hint, ok := w.hints[address]
	return hint, ok
}

// DropLatencyHint removes the hint for an address
func (w *WeightedRandom) DropLatencyHint(address string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.hints, address)
}

// UpdateWeights swaps the scoring constants, used on config reload
func (w *WeightedRandom) UpdateWeights(weights Weights) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.weights = weights
}

func (w *WeightedRandom) currentWeights() Weights {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.weights
}
