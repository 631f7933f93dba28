package storage

import (
	"context"
	"sync"

	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/types"
)

// memoryStorage implements Storage using in-memory maps
type memoryStorage struct {
	mu        sync.RWMutex
	endpoints map[types.EndpointKind][]string
	stats     map[types.EndpointKind]map[string]*types.EndpointStats
}

// NewMemory creates a new in-memory storage instance
func NewMemory() types.Storage {
	return &memoryStorage{
		endpoints: make(map[types.EndpointKind][]string),
		stats:     make(map[types.EndpointKind]map[string]*types.EndpointStats),
	}
}

func (m *memoryStorage) LoadEndpoints(ctx context.Context, kind types.EndpointKind) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, exists := m.endpoints[kind]
	if !exists {
		return nil, nil
	}

	// Return a copy to prevent external modifications
	endpoints := make([]string, len(stored))
	copy(endpoints, stored)
	return endpoints, nil
}

func (m *memoryStorage) SaveEndpoints(ctx context.Context, kind types.EndpointKind, endpoints []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Store a copy
	stored := make([]string, len(endpoints))
	copy(stored, endpoints)
	m.endpoints[kind] = stored

	return nil
}

func (m *memoryStorage) LoadStats(ctx context.Context, kind types.EndpointKind) (map[string]*types.EndpointStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, exists := m.stats[kind]
	if !exists {
		return nil, nil
	}

	stats := make(map[string]*types.EndpointStats, len(stored))
	for address, s := range stored {
		stats[address] = s.Clone()
	}

	return stats, nil
}

func (m *memoryStorage) SaveStats(ctx context.Context, kind types.EndpointKind, stats map[string]*types.EndpointStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make(map[string]*types.EndpointStats, len(stats))
	for address, s := range stats {
		stored[address] = s.Clone()
	}
	m.stats[kind] = stored

	return nil
}

// Close closes the storage
func (m *memoryStorage) Close() error {
	return nil
}
