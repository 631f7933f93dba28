// Package api implements the REST API for earnd
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/types"
	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/version"
)

// Pool bundles the per-pool components the API exposes
type Pool struct {
	Registry types.Registry
	Stats    types.StatsTracker
	Selector types.Selector
	Prober   types.Prober
}

// ConfigLoader defines the interface for loading configuration
type ConfigLoader interface {
	LoadConfig() (*types.Config, error)
}

// Handler provides the REST API implementation
type Handler struct {
	engine       types.Engine
	pools        map[types.EndpointKind]*Pool
	metrics      types.MetricsCollector
	logger       types.Logger
	config       *types.Config
	limiter      *rateLimiter
	configLoader ConfigLoader
	onReload     func(*types.Config) error
}

// New creates a new API handler instance
func New(engine types.Engine, pools map[types.EndpointKind]*Pool, metrics types.MetricsCollector, logger types.Logger, config *types.Config) *Handler {
	h := &Handler{
		engine:  engine,
		pools:   pools,
		metrics: metrics,
		logger:  logger,
		config:  config,
	}

	if config.RateLimit.Enabled {
		h.limiter = newRateLimiter(config.RateLimit.RPS, config.RateLimit.Burst)
	}

	return h
}

// SetConfigLoader sets the configuration loader
func (h *Handler) SetConfigLoader(loader ConfigLoader) {
	h.configLoader = loader
}

// SetReloadCallback sets the reload callback function
func (h *Handler) SetReloadCallback(callback func(*types.Config) error) {
	h.onReload = callback
}

// Close stops background work owned by the handler
func (h *Handler) Close() {
	if h.limiter != nil {
		h.limiter.Stop()
	}
}

// Router returns the HTTP handler for the API
func (h *Handler) Router() http.Handler {
	mainRouter := mux.NewRouter()

	// Public endpoints (no auth required)
	publicRouter := mainRouter.PathPrefix("/").Subrouter()
	publicRouter.HandleFunc("/health", h.handleHealth).Methods("GET")

	// Prometheus metrics endpoint (no auth, no JSON middleware)
	if h.config.Metrics.Enabled && h.metrics != nil {
		mainRouter.Handle(h.config.Metrics.Path, h.metrics.Handler()).Methods("GET")
	}

	publicRouter.Use(func(next http.Handler) http.Handler {
		return corsMiddleware(jsonMiddleware(loggingMiddleware(next, h.logger, h.config.Logging.AccessLogs)), h.config.CORS.AllowedOrigins)
	})

	// Pool operations and management
	apiRouter := mainRouter.PathPrefix("/api/v1").Subrouter()

	apiRouter.HandleFunc("/solve", h.handleSolve).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/fetch", h.handleFetch).Methods("POST", "OPTIONS")

	apiRouter.HandleFunc("/endpoints", h.handleListEndpoints).Methods("GET", "OPTIONS")
	apiRouter.HandleFunc("/endpoints", h.handleAddEndpoint).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/endpoints/{kind}/{address}", h.handleRemoveEndpoint).Methods("DELETE", "OPTIONS")

	apiRouter.HandleFunc("/stats", h.handleStats).Methods("GET", "OPTIONS")
	apiRouter.HandleFunc("/stats/reset", h.handleResetStats).Methods("POST", "OPTIONS")

	apiRouter.HandleFunc("/probe", h.handleProbe).Methods("POST", "OPTIONS")

	// Admin endpoints
	adminRouter := apiRouter.PathPrefix("/admin").Subrouter()
	adminRouter.HandleFunc("/config", h.handleGetConfig).Methods("GET", "OPTIONS")
	adminRouter.HandleFunc("/reload", h.handleReload).Methods("POST", "OPTIONS")

	apiRouter.Use(func(next http.Handler) http.Handler {
		return requestIDMiddleware(next)
	})
	apiRouter.Use(func(next http.Handler) http.Handler {
		return loggingMiddleware(next, h.logger, h.config.Logging.AccessLogs)
	})
	apiRouter.Use(func(next http.Handler) http.Handler {
		return corsMiddleware(next, h.config.CORS.AllowedOrigins)
	})
	apiRouter.Use(func(next http.Handler) http.Handler {
		return jsonMiddleware(next)
	})

	if h.limiter != nil {
		apiRouter.Use(h.limiter.Middleware)
	}

	if h.config.API.Auth {
		apiRouter.Use(func(next http.Handler) http.Handler {
			return basicAuthMiddleware(next, h.config.API.Username, h.config.API.PasswordHash)
		})
	}

	return mainRouter
}

// handleHealth handles GET /health
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	versionInfo := version.GetInfo()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	pools := make(map[string]int, len(h.pools))
	for kind, pool := range h.pools {
		pools[string(kind)] = len(pool.Registry.List())
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   versionInfo.Version,
		"pools":     pools,
		"build": map[string]interface{}{
			"git_commit": versionInfo.GitCommit,
			"build_time": versionInfo.BuildTime,
			"go_version": versionInfo.GoVersion,
			"platform":   versionInfo.Platform,
		},
		"runtime": map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"gomaxprocs": runtime.GOMAXPROCS(0),
			"uptime":     versionInfo.Uptime,
			"memory_mb":  memStats.Alloc / 1024 / 1024,
			"gc_count":   memStats.NumGC,
		},
	}

	if breakers, ok := h.engine.(interface{ States() map[string]string }); ok {
		health["circuit"] = breakers.States()
	}

	respondJSON(w, http.StatusOK, health)
}

// handleSolve handles POST /api/v1/solve
func (h *Handler) handleSolve(w http.ResponseWriter, r *http.Request) {
	var req SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.engine.Solve(r.Context(), req.AudioURL, req.Lang)
	if err != nil {
		h.respondEngineError(w, r, "solve", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleFetch handles POST /api/v1/fetch
func (h *Handler) handleFetch(w http.ResponseWriter, r *http.Request) {
	var req FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.engine.Fetch(r.Context(), &types.FetchRequest{
		Method:  req.Method,
		URL:     req.URL,
		Headers: req.Headers,
		Body:    []byte(req.Body),
	})
	if err != nil {
		h.respondEngineError(w, r, "fetch", err)
		return
	}

	respondJSON(w, http.StatusOK, FetchResponse{
		Status:    result.Status,
		Headers:   result.Headers,
		Body:      string(result.Body),
		Endpoint:  result.Endpoint,
		Direct:    result.Direct,
		Attempts:  result.Attempts,
		ElapsedMs: result.ElapsedMs,
	})
}

// handleListEndpoints handles GET /api/v1/endpoints
func (h *Handler) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	kindParam := r.URL.Query().Get("kind")
	if kindParam != "" {
		pool, kind, ok := h.poolByName(kindParam)
		if !ok {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("Unknown pool kind: %s", kindParam))
			return
		}
		respondJSON(w, http.StatusOK, h.endpointList(pool, kind))
		return
	}

	all := make(map[string][]EndpointResponse, len(h.pools))
	for _, kind := range h.sortedKinds() {
		all[string(kind)] = h.endpointList(h.pools[kind], kind)
	}
	respondJSON(w, http.StatusOK, all)
}

// handleAddEndpoint handles POST /api/v1/endpoints
func (h *Handler) handleAddEndpoint(w http.ResponseWriter, r *http.Request) {
	pool, kind, ok := h.poolByName(r.URL.Query().Get("kind"))
	if !ok {
		respondError(w, http.StatusBadRequest, "Query parameter kind must be one of: solver, proxy")
		return
	}

	var req EndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	added, err := pool.Registry.Add(ctx, req.Address)
	if err != nil {
		if errors.Is(err, types.ErrInvalidEndpointFormat) {
			respondErrorWithCode(w, http.StatusBadRequest, err.Error(), "invalid_endpoint")
			return
		}
		h.logger.Error("Failed to add endpoint", "kind", kind, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to add endpoint")
		return
	}
	if !added {
		respondErrorWithCode(w, http.StatusConflict, "Endpoint already exists", "duplicate_endpoint")
		return
	}

	h.updateEndpointGauge(kind, pool)

	ep := pool.Registry.Lookup(req.Address)
	if ep == nil {
		respondJSON(w, http.StatusCreated, EndpointRequest{Address: req.Address})
		return
	}

	respondJSON(w, http.StatusCreated, h.endpointResponse(pool, ep, time.Now()))
}

// handleRemoveEndpoint handles DELETE /api/v1/endpoints/{kind}/{address}
func (h *Handler) handleRemoveEndpoint(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	pool, kind, ok := h.poolByName(vars["kind"])
	if !ok {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Unknown pool kind: %s", vars["kind"]))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	removed, err := pool.Registry.Remove(ctx, vars["address"])
	if err != nil {
		h.logger.Error("Failed to remove endpoint", "kind", kind, "address", vars["address"], "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to remove endpoint")
		return
	}
	if !removed {
		respondErrorWithCode(w, http.StatusNotFound, "Endpoint not found", "endpoint_not_found")
		return
	}

	h.updateEndpointGauge(kind, pool)

	respondJSON(w, http.StatusNoContent, nil)
}

// handleStats handles GET /api/v1/stats
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	kindParam := r.URL.Query().Get("kind")
	if kindParam != "" {
		pool, _, ok := h.poolByName(kindParam)
		if !ok {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("Unknown pool kind: %s", kindParam))
			return
		}
		respondJSON(w, http.StatusOK, pool.Stats.Snapshot())
		return
	}

	all := make(map[string]map[string]*types.EndpointStats, len(h.pools))
	for _, kind := range h.sortedKinds() {
		all[string(kind)] = h.pools[kind].Stats.Snapshot()
	}
	respondJSON(w, http.StatusOK, all)
}

// handleResetStats handles POST /api/v1/stats/reset
func (h *Handler) handleResetStats(w http.ResponseWriter, r *http.Request) {
	kindParam := r.URL.Query().Get("kind")

	kinds := h.sortedKinds()
	if kindParam != "" {
		_, kind, ok := h.poolByName(kindParam)
		if !ok {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("Unknown pool kind: %s", kindParam))
			return
		}
		kinds = []types.EndpointKind{kind}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	reset := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		if err := h.pools[kind].Stats.Reset(ctx); err != nil {
			h.logger.Error("Failed to reset stats", "kind", kind, "error", err)
			respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to reset %s stats", kind))
			return
		}
		reset = append(reset, string(kind))
	}

	h.logger.Info("Stats reset", "kinds", reset)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "reset",
		"kinds":  reset,
	})
}

// handleProbe handles POST /api/v1/probe
func (h *Handler) handleProbe(w http.ResponseWriter, r *http.Request) {
	pool, kind, ok := h.poolByName(r.URL.Query().Get("kind"))
	if !ok {
		respondError(w, http.StatusBadRequest, "Query parameter kind must be one of: solver, proxy")
		return
	}
	if pool.Prober == nil {
		respondError(w, http.StatusServiceUnavailable, "Probing is disabled")
		return
	}

	latencies := pool.Prober.ProbeAll(r.Context())
	if latencies == nil {
		respondErrorWithCode(w, http.StatusConflict, "A probe sweep is already running", "probe_in_progress")
		return
	}

	respondJSON(w, http.StatusOK, ProbeResponse{
		Kind:      string(kind),
		Latencies: latencies,
	})
}

// handleGetConfig handles GET /api/v1/admin/config
func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	// Serve a copy with credentials blanked
	config := *h.config

	if config.API.PasswordHash != "" {
		config.API.PasswordHash = "<redacted>"
	}
	if config.Storage.DSN != "" {
		config.Storage.DSN = "<redacted>"
	}

	respondJSON(w, http.StatusOK, config)
}

// handleReload handles POST /api/v1/admin/reload
func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Configuration reload requested")

	if h.configLoader == nil {
		respondError(w, http.StatusServiceUnavailable, "Configuration loader not available")
		return
	}

	newConfig, err := h.configLoader.LoadConfig()
	if err != nil {
		h.logger.Error("Failed to load configuration", "error", err)
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load configuration: %v", err))
		return
	}

	if h.onReload != nil {
		if err := h.onReload(newConfig); err != nil {
			h.logger.Error("Failed to apply configuration", "error", err)
			respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to apply configuration: %v", err))
			return
		}
	}

	h.config = newConfig

	h.logger.Info("Configuration reloaded successfully")

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"message":   "Configuration reloaded successfully",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"summary": map[string]interface{}{
			"listen_addr":     newConfig.ListenAddr,
			"max_retries":     newConfig.Retry.MaxRetries,
			"rate_limit":      newConfig.RateLimit.Enabled,
			"circuit_breaker": newConfig.CircuitBreaker.Enabled,
		},
	})
}

// respondEngineError maps chain errors onto HTTP statuses
func (h *Handler) respondEngineError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		respondErrorWithCode(w, http.StatusBadRequest, verr.Error(), "invalid_request")
		return
	}

	switch {
	case errors.Is(err, types.ErrNoEndpointsAvailable):
		respondErrorWithCode(w, http.StatusServiceUnavailable, err.Error(), "no_endpoints")
	case errors.Is(err, types.ErrCircuitBreakerOpen):
		respondErrorWithCode(w, http.StatusServiceUnavailable, err.Error(), "circuit_open")
	case errors.Is(err, types.ErrAllAttemptsFailed):
		respondErrorWithCode(w, http.StatusBadGateway, err.Error(), "all_attempts_failed")
	case errors.Is(err, context.DeadlineExceeded):
		respondErrorWithCode(w, http.StatusGatewayTimeout, err.Error(), "timeout")
	default:
		h.logger.Error("Operation failed", "op", op, "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// poolByName resolves a kind query or path value to its pool
func (h *Handler) poolByName(name string) (*Pool, types.EndpointKind, bool) {
	kind := types.EndpointKind(name)
	pool, exists := h.pools[kind]
	if !exists {
		return nil, "", false
	}
	return pool, kind, true
}

// sortedKinds returns pool kinds in stable order
func (h *Handler) sortedKinds() []types.EndpointKind {
	kinds := make([]types.EndpointKind, 0, len(h.pools))
	for kind := range h.pools {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// endpointList renders one pool ordered by descending score
func (h *Handler) endpointList(pool *Pool, kind types.EndpointKind) []EndpointResponse {
	now := time.Now()
	endpoints := pool.Registry.List()

	responses := make([]EndpointResponse, 0, len(endpoints))
	for _, ep := range endpoints {
		responses = append(responses, h.endpointResponse(pool, ep, now))
	}

	sort.Slice(responses, func(i, j int) bool {
		if responses[i].Score != responses[j].Score {
			return responses[i].Score > responses[j].Score
		}
		return responses[i].Address < responses[j].Address
	})

	return responses
}

// endpointResponse renders one endpoint with its stats and score
func (h *Handler) endpointResponse(pool *Pool, ep *types.Endpoint, now time.Time) EndpointResponse {
	stats := pool.Stats.Get(ep.Address)

	return EndpointResponse{
		Address:             ep.Address,
		Host:                ep.Host,
		Port:                ep.Port,
		HasAuth:             ep.HasAuth(),
		Score:               pool.Selector.Score(ep, now),
		TotalRequests:       stats.TotalRequests,
		SuccessfulRequests:  stats.SuccessfulRequests,
		ConsecutiveFailures: stats.ConsecutiveFailures,
		AvgResponseTimeMs:   stats.AverageResponseTimeMs,
		LastUsedAt:          stats.LastUsedAt,
	}
}

// updateEndpointGauge refreshes the pool size metric
func (h *Handler) updateEndpointGauge(kind types.EndpointKind, pool *Pool) {
	if h.metrics != nil {
		h.metrics.SetEndpointCount(string(kind), len(pool.Registry.List()))
	}
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent, nothing to recover here
			return
		}
	}
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
	})
}

// respondErrorWithCode writes an error response with error code
func respondErrorWithCode(w http.ResponseWriter, status int, message, code string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
