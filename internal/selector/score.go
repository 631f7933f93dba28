// Package selector implements score-weighted random endpoint selection
package selector

import (
	"time"

	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/types"
)

// Weights tunes the scoring formula. Scores feed a weighted random
// draw, so only their relative order matters to callers.
type Weights struct {
	BaseScore      float64
	SuccessWeight  float64
	LatencyWeight  float64
	LatencyDivisor float64
	FailurePenalty float64
	RecencyBonus   float64
	RecencyWindow  time.Duration
	MinWeight      float64
}

// DefaultWeights returns the built-in scoring constants
func DefaultWeights() Weights {
	return Weights{
		BaseScore:      100,
		SuccessWeight:  50,
		LatencyWeight:  25,
		LatencyDivisor: 100,
		FailurePenalty: 10,
		RecencyBonus:   10,
		RecencyWindow:  5 * time.Minute,
		MinWeight:      1,
	}
}

// WeightsFromConfig maps the selector configuration onto Weights
func WeightsFromConfig(cfg *types.Config) Weights {
	return Weights{
		BaseScore:      cfg.Selector.BaseScore,
		SuccessWeight:  cfg.Selector.SuccessWeight,
		LatencyWeight:  cfg.Selector.LatencyWeight,
		LatencyDivisor: cfg.Selector.LatencyDivisor,
		FailurePenalty: cfg.Selector.FailurePenalty,
		RecencyBonus:   cfg.Selector.RecencyBonus,
		RecencyWindow:  cfg.Selector.RecencyWindow,
		MinWeight:      cfg.Selector.MinWeight,
	}
}

// score computes the selection score for one endpoint.
//
// Higher success rates raise the score, higher average latency lowers
// it, consecutive failures drag it down linearly, and endpoints used
// inside the recency window get a small bonus. A probed latency stands
// in for the average until the endpoint has a recorded success.
func score(es *types.EndpointStats, hint int64, hasHint bool, w Weights, now time.Time) float64 {
	s := w.BaseScore
	s += es.SuccessRate() * w.SuccessWeight

	avgMs := float64(es.AverageResponseTimeMs)
	if es.SuccessfulRequests == 0 && hasHint {
		avgMs = float64(hint)
	}
	if t := w.LatencyWeight - avgMs/w.LatencyDivisor; t > 0 {
		s += t
	}

	s -= float64(es.ConsecutiveFailures) * w.FailurePenalty

	if es.LastUsedAt > 0 && now.Sub(time.UnixMilli(es.LastUsedAt)) < w.RecencyWindow {
		s += w.RecencyBonus
	}

	return s
}
