// Package registry manages the persisted endpoint pools
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/types"
)

// defaultEndpoints seeds each pool on first run or when the persisted
// list is unusable
var defaultEndpoints = map[types.EndpointKind][]string{
	types.KindSolver: {"127.0.0.1:8080"},
	types.KindProxy:  {},
}

// Registry holds the endpoint pool for one kind. Mutations re-persist
// the whole list.
type Registry struct {
	kind    types.EndpointKind
	storage types.Storage
	logger  types.Logger
	seeds   []string

	mu        sync.RWMutex
	endpoints []*types.Endpoint
	byAddress map[string]*types.Endpoint

	onRemove func(address string)
}

// New creates a registry for the given kind. When seeds is nil the
// built-in default list applies.
func New(kind types.EndpointKind, storage types.Storage, logger types.Logger, seeds []string) *Registry {
	if seeds == nil {
		seeds = defaultEndpoints[kind]
	}

	return &Registry{
		kind:      kind,
		storage:   storage,
		logger:    logger,
		seeds:     seeds,
		byAddress: make(map[string]*types.Endpoint),
	}
}

// OnRemove registers a callback invoked after an endpoint leaves the pool
func (r *Registry) OnRemove(fn func(address string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRemove = fn
}

// Kind returns the pool's endpoint kind
func (r *Registry) Kind() types.EndpointKind {
	return r.kind
}

// Parse splits a compact endpoint string into its parts. Two segments
// give host:port, four add credentials; any other count fails.
func Parse(raw string, kind types.EndpointKind) (*types.Endpoint, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, ":")

	var ep *types.Endpoint
	switch len(parts) {
	case 2:
		ep = &types.Endpoint{
			Host: parts[0],
			Port: parts[1],
			Kind: kind,
		}
	case 4:
		ep = &types.Endpoint{
			Host:     parts[0],
			Port:     parts[1],
			Username: parts[2],
			Password: parts[3],
			Kind:     kind,
		}
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidEndpointFormat, raw)
	}

	if ep.Host == "" || ep.Port == "" {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidEndpointFormat, raw)
	}

	ep.Address = ep.Host + ":" + ep.Port
	return ep, nil
}

// normalizeAddress reduces a raw endpoint string to its host:port
func normalizeAddress(addr string, kind types.EndpointKind) string {
	if ep, err := Parse(addr, kind); err == nil {
		return ep.Address
	}
	return strings.TrimSpace(addr)
}

// Load reads the persisted pool. An absent or unusable list seeds the
// defaults and persists them.
func (r *Registry) Load(ctx context.Context) error {
	raws, err := r.storage.LoadEndpoints(ctx, r.kind)
	if err != nil {
		return fmt.Errorf("failed to load %s endpoints: %w", r.kind, err)
	}

	// A nil list means nothing usable was stored. An explicitly
	// persisted empty pool stays empty.
	parsed := parseAll(raws, r.kind, r.logger)
	if raws == nil || (len(raws) > 0 && len(parsed) == 0) {
		r.logger.Info("Seeding default endpoints", "kind", r.kind, "count", len(r.seeds))
		parsed = parseAll(r.seeds, r.kind, r.logger)

		if err := r.storage.SaveEndpoints(ctx, r.kind, compactAll(parsed)); err != nil {
			return fmt.Errorf("failed to persist seeded endpoints: %w", err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.endpoints = parsed
	r.byAddress = make(map[string]*types.Endpoint, len(parsed))
	for _, ep := range parsed {
		r.byAddress[ep.Address] = ep
	}

	r.logger.Info("Loaded endpoint pool", "kind", r.kind, "count", len(parsed))
	return nil
}

// parseAll parses every entry, dropping duplicates and unparsable lines
func parseAll(raws []string, kind types.EndpointKind, logger types.Logger) []*types.Endpoint {
	endpoints := make([]*types.Endpoint, 0, len(raws))
	seen := make(map[string]bool, len(raws))

	for _, raw := range raws {
		ep, err := Parse(raw, kind)
		if err != nil {
			logger.Warn("Skipping unparsable endpoint", "kind", kind, "raw", raw, "error", err)
			continue
		}
		if seen[ep.Address] {
			continue
		}
		seen[ep.Address] = true
		endpoints = append(endpoints, ep)
	}

	return endpoints
}

// compactAll re-serializes a pool for persistence
func compactAll(endpoints []*types.Endpoint) []string {
	raws := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		raws = append(raws, ep.String())
	}
	return raws
}

// Add parses and appends a new endpoint. A duplicate address returns
// false with no error.
func (r *Registry) Add(ctx context.Context, raw string) (bool, error) {
	ep, err := Parse(raw, r.kind)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	if _, exists := r.byAddress[ep.Address]; exists {
		r.mu.Unlock()
		return false, nil
	}

	r.endpoints = append(r.endpoints, ep)
	r.byAddress[ep.Address] = ep
	snapshot := compactAll(r.endpoints)
	r.mu.Unlock()

	if err := r.storage.SaveEndpoints(ctx, r.kind, snapshot); err != nil {
		return false, fmt.Errorf("failed to persist endpoints: %w", err)
	}

	r.logger.Info("Added endpoint", "kind", r.kind, "address", ep.Address)
	return true, nil
}

// Remove deletes an endpoint by address or raw form. Unknown addresses
// return false with no error. The removal callback also drops its stats.
func (r *Registry) Remove(ctx context.Context, addr string) (bool, error) {
	address := normalizeAddress(addr, r.kind)

	r.mu.Lock()
	if _, exists := r.byAddress[address]; !exists {
		r.mu.Unlock()
		return false, nil
	}

	delete(r.byAddress, address)
	for i, ep := range r.endpoints {
		if ep.Address == address {
			r.endpoints = append(r.endpoints[:i], r.endpoints[i+1:]...)
			break
		}
	}
	snapshot := compactAll(r.endpoints)
	onRemove := r.onRemove
	r.mu.Unlock()

	if err := r.storage.SaveEndpoints(ctx, r.kind, snapshot); err != nil {
		return false, fmt.Errorf("failed to persist endpoints: %w", err)
	}

	if onRemove != nil {
		onRemove(address)
	}

	r.logger.Info("Removed endpoint", "kind", r.kind, "address", address)
	return true, nil
}

// List returns a snapshot of the current pool
func (r *Registry) List() []*types.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	endpoints := make([]*types.Endpoint, len(r.endpoints))
	copy(endpoints, r.endpoints)
	return endpoints
}

// Lookup returns the endpoint registered under an address, or nil
func (r *Registry) Lookup(addr string) *types.Endpoint {
	address := normalizeAddress(addr, r.kind)

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byAddress[address]
}

// Len returns the pool size
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints)
}
