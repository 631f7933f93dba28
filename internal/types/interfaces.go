// Package types defines the core interfaces and models for the earnd endpoint engine
package types

import (
	"context"
	"net/http"
	"time"
)

// Registry manages the endpoint pool for one kind
type Registry interface {
	// Load reads the persisted pool, seeding defaults when nothing usable exists
	Load(ctx context.Context) error
	// Add parses and appends a new endpoint, returning false on duplicate
	Add(ctx context.Context, raw string) (bool, error)
	// Remove deletes an endpoint by address or raw form, returning false when absent
	Remove(ctx context.Context, addr string) (bool, error)
	// List returns a snapshot of the current pool
	List() []*Endpoint
	// Lookup returns the endpoint with the given address, or nil
	Lookup(addr string) *Endpoint
	// Kind returns the pool's endpoint kind
	Kind() EndpointKind
}

// StatsTracker records per-endpoint request outcomes
type StatsTracker interface {
	// Record updates counters for one attempt against an endpoint
	Record(address string, success bool, elapsedMs int64)
	// Get returns a copy of the stats for an address, zero-valued when unknown
	Get(address string) *EndpointStats
	// Snapshot returns a copy of all tracked stats
	Snapshot() map[string]*EndpointStats
	// Reset clears all stats and persists the empty state
	Reset(ctx context.Context) error
	// Remove drops the stats for a single address
	Remove(address string)
	// Flush forces any pending write to storage
	Flush(ctx context.Context) error
}

// Selector picks endpoints by weighted random draw over health scores
type Selector interface {
	// Choose returns the next endpoint, ignoring excluded addresses.
	// It falls back to the full pool when the exclusion set covers
	// everything and returns nil only when the pool is empty.
	Choose(excluded map[string]bool) *Endpoint
	// Score computes the current selection score for an endpoint
	Score(ep *Endpoint, now time.Time) float64
	// SetLatencyHint records a probed latency used until real stats exist
	SetLatencyHint(address string, latencyMs int64)
	// LatencyHint returns the probed latency for an address, if any
	LatencyHint(address string) (int64, bool)
}

// Engine executes requests with endpoint selection, retry and direct fallback
type Engine interface {
	// Solve transcribes a captcha audio challenge through a solver endpoint
	Solve(ctx context.Context, audioURL, lang string) (*SolveResult, error)
	// Fetch performs an HTTP request through a proxy endpoint
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// Prober measures endpoint latency
type Prober interface {
	// Probe checks a single endpoint and returns its round-trip time
	Probe(ctx context.Context, ep *Endpoint) (time.Duration, error)
	// ProbeAll sweeps the pool in parallel and returns latency by address
	ProbeAll(ctx context.Context) map[string]int64
	// Watch re-probes the pool on an interval until the context ends
	Watch(ctx context.Context, interval time.Duration)
}

// CircuitBreaker protects against cascading failures
type CircuitBreaker interface {
	// Execute runs the function with circuit breaker protection
	Execute(fn func() error) error
	// State returns the current state (closed, open, half-open)
	State() string
	// Reset manually resets the circuit breaker
	Reset()
}

// Storage persists endpoint pools and their stats
type Storage interface {
	// LoadEndpoints returns the persisted pool in compact form,
	// or nil when nothing usable is stored
	LoadEndpoints(ctx context.Context, kind EndpointKind) ([]string, error)
	// SaveEndpoints replaces the persisted pool
	SaveEndpoints(ctx context.Context, kind EndpointKind, endpoints []string) error
	// LoadStats returns the persisted stats keyed by address
	LoadStats(ctx context.Context, kind EndpointKind) (map[string]*EndpointStats, error)
	// SaveStats replaces the persisted stats
	SaveStats(ctx context.Context, kind EndpointKind, stats map[string]*EndpointStats) error
	// Close closes the storage
	Close() error
}

// MetricsCollector gathers engine and runtime metrics
type MetricsCollector interface {
	// RecordAttempt records one attempt against an endpoint
	RecordAttempt(kind, outcome string, duration time.Duration)
	// RecordSelection records an endpoint selection
	RecordSelection(kind string, fallback bool)
	// RecordSolve records the final result of a solve call
	RecordSolve(success bool)
	// SetEndpointCount updates the registered endpoint gauge
	SetEndpointCount(kind string, count int)
	// Handler returns the metrics endpoint handler
	Handler() http.Handler
}

// Logger provides structured logging
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	With(fields ...interface{}) Logger
}
