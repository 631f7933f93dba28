// Package stats tracks per-endpoint request outcomes with debounced persistence
package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/types"
)

// Store holds the stats table for one endpoint pool. Writes are
// coalesced inside a debounce window so rapid retry loops do not hammer
// storage; Flush forces the pending state out immediately.
type Store struct {
	kind     types.EndpointKind
	storage  types.Storage
	logger   types.Logger
	debounce time.Duration

	mu    sync.Mutex
	stats map[string]*types.EndpointStats
	dirty bool
	timer *time.Timer
}

// NewStore creates a stats store for the given kind
func NewStore(kind types.EndpointKind, storage types.Storage, logger types.Logger, debounce time.Duration) *Store {
	return &Store{
		kind:     kind,
		storage:  storage,
		logger:   logger,
		debounce: debounce,
		stats:    make(map[string]*types.EndpointStats),
	}
}

// Load reads the persisted stats table. Absent or unusable data starts
// an empty table.
func (s *Store) Load(ctx context.Context) error {
	loaded, err := s.storage.LoadStats(ctx, s.kind)
	if err != nil {
		return fmt.Errorf("failed to load %s stats: %w", s.kind, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats = make(map[string]*types.EndpointStats, len(loaded))
	for address, es := range loaded {
		s.stats[address] = es.Clone()
	}

	s.logger.Debug("Loaded endpoint stats", "kind", s.kind, "count", len(s.stats))
	return nil
}

// Record updates the counters for one attempt and schedules a write
func (s *Store) Record(address string, success bool, elapsedMs int64) {
	now := time.Now()

	s.mu.Lock()
	es, exists := s.stats[address]
	if !exists {
		es = &types.EndpointStats{}
		s.stats[address] = es
	}

	if success {
		es.RecordSuccess(elapsedMs, now)
	} else {
		es.RecordFailure(now)
	}

	s.dirty = true
	s.scheduleFlushLocked()
	s.mu.Unlock()
}

// Get returns a copy of the stats for an address, zero-valued when unknown
func (s *Store) Get(address string) *types.EndpointStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stats[address].Clone()
}

// Snapshot returns a copy of the whole stats table
func (s *Store) Snapshot() map[string]*types.EndpointStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]*types.EndpointStats, len(s.stats))
	for address, es := range s.stats {
		snapshot[address] = es.Clone()
	}
	return snapshot
}

// Reset clears all stats and persists the empty table immediately.
// The endpoint pool itself is untouched.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.stats = make(map[string]*types.EndpointStats)
	s.dirty = true
	s.mu.Unlock()

	return s.Flush(ctx)
}

// Remove drops the stats for a single address
func (s *Store) Remove(address string) {
	s.mu.Lock()
	if _, exists := s.stats[address]; exists {
		delete(s.stats, address)
		s.dirty = true
		s.scheduleFlushLocked()
	}
	s.mu.Unlock()
}

// Flush writes any pending state to storage now
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	snapshot := make(map[string]*types.EndpointStats, len(s.stats))
	for address, es := range s.stats {
		snapshot[address] = es.Clone()
	}
	s.dirty = false
	s.mu.Unlock()

	if err := s.storage.SaveStats(ctx, s.kind, snapshot); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return fmt.Errorf("failed to persist %s stats: %w", s.kind, err)
	}

	return nil
}

// scheduleFlushLocked resets the debounce timer. Callers hold s.mu.
func (s *Store) scheduleFlushLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}

	s.timer = time.AfterFunc(s.debounce, func() {
		if err := s.Flush(context.Background()); err != nil {
			s.logger.Error("Failed to flush endpoint stats", "kind", s.kind, "error", err)
		}
	})
}
