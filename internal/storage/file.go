// Package storage persists endpoint pools and their stats
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/types"
)

// fileStorage implements Storage using one JSON file per pool and per
// stats table. Unreadable or corrupt files are treated as absent so a
// damaged data directory never blocks startup.
type fileStorage struct {
	dir    string
	logger types.Logger
	mu     sync.Mutex
}

// NewFile creates a file-backed storage rooted at dir
func NewFile(dir string, logger types.Logger) (types.Storage, error) {
	if dir == "" {
		dir = "data"
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return &fileStorage{
		dir:    dir,
		logger: logger,
	}, nil
}

// endpointsFile returns the pool file for a kind
func endpointsFile(kind types.EndpointKind) string {
	if kind == types.KindProxy {
		return "proxies.json"
	}
	return "solvers.json"
}

// statsFile returns the stats file for a kind
func statsFile(kind types.EndpointKind) string {
	if kind == types.KindProxy {
		return "proxy_stats.json"
	}
	return "solver_stats.json"
}

func (f *fileStorage) LoadEndpoints(ctx context.Context, kind types.EndpointKind) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := filepath.Join(f.dir, endpointsFile(kind))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read endpoints: %w", err)
	}

	var endpoints []string
	if err := json.Unmarshal(data, &endpoints); err != nil {
		f.logger.Warn("Discarding corrupt endpoints file", "file", path, "error", err)
		return nil, nil
	}

	return endpoints, nil
}

func (f *fileStorage) SaveEndpoints(ctx context.Context, kind types.EndpointKind, endpoints []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if endpoints == nil {
		endpoints = []string{}
	}

	data, err := json.MarshalIndent(endpoints, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal endpoints: %w", err)
	}

	path := filepath.Join(f.dir, endpointsFile(kind))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write endpoints: %w", err)
	}

	return nil
}

func (f *fileStorage) LoadStats(ctx context.Context, kind types.EndpointKind) (map[string]*types.EndpointStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := filepath.Join(f.dir, statsFile(kind))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}

	var stats map[string]*types.EndpointStats
	if err := json.Unmarshal(data, &stats); err != nil {
		f.logger.Warn("Discarding corrupt stats file", "file", path, "error", err)
		return nil, nil
	}

	return stats, nil
}

func (f *fileStorage) SaveStats(ctx context.Context, kind types.EndpointKind, stats map[string]*types.EndpointStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if stats == nil {
		stats = map[string]*types.EndpointStats{}
	}

	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	path := filepath.Join(f.dir, statsFile(kind))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write stats: %w", err)
	}

	return nil
}

// Close closes the storage
func (f *fileStorage) Close() error {
	return nil
}
