package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/types"
)

// Validate validates a Config
func Validate(cfg *types.Config) error {
	// Validate listen address
	if cfg.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}

	if _, _, err := net.SplitHostPort(cfg.ListenAddr); err != nil {
		return fmt.Errorf("invalid listen_addr: %w", err)
	}

	// Validate timeouts
	if cfg.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive")
	}

	if cfg.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}

	// Validate pools
	if cfg.Solvers.SolveTimeout <= 0 {
		return fmt.Errorf("solvers.solve_timeout must be positive")
	}

	if cfg.Solvers.Language == "" {
		return fmt.Errorf("solvers.language is required")
	}

	if cfg.Proxies.FetchTimeout <= 0 {
		return fmt.Errorf("proxies.fetch_timeout must be positive")
	}

	validProxySchemes := map[string]bool{
		"http":   true,
		"socks5": true,
	}

	if !validProxySchemes[cfg.Proxies.Scheme] {
		return fmt.Errorf("invalid proxies.scheme: %s", cfg.Proxies.Scheme)
	}

	// Validate retry chain
	if cfg.Retry.MaxRetries <= 0 {
		return fmt.Errorf("retry.max_retries must be positive")
	}

	if cfg.Retry.Backoff < 0 {
		return fmt.Errorf("retry.backoff must not be negative")
	}

	// Validate selection scoring
	if cfg.Selector.LatencyDivisor <= 0 {
		return fmt.Errorf("selector.latency_divisor must be positive")
	}

	if cfg.Selector.MinWeight <= 0 {
		return fmt.Errorf("selector.min_weight must be positive")
	}

	if cfg.Selector.RecencyWindow <= 0 {
		return fmt.Errorf("selector.recency_window must be positive")
	}

	// Validate probing
	if cfg.Probe.Enabled {
		if cfg.Probe.Timeout <= 0 {
			return fmt.Errorf("probe.timeout must be positive")
		}

		if cfg.Probe.Interval < 0 {
			return fmt.Errorf("probe.interval must not be negative")
		}

		if cfg.Probe.PenaltyMs <= 0 {
			return fmt.Errorf("probe.penalty_ms must be positive")
		}
	}

	// Validate stats persistence
	if cfg.Stats.DebounceWindow < 0 {
		return fmt.Errorf("stats.debounce_window must not be negative")
	}

	// Validate circuit breaker
	if cfg.CircuitBreaker.Enabled {
		if cfg.CircuitBreaker.FailureThreshold <= 0 {
			return fmt.Errorf("circuit_breaker.failure_threshold must be positive")
		}

		if cfg.CircuitBreaker.Timeout <= 0 {
			return fmt.Errorf("circuit_breaker.timeout must be positive")
		}
	}

	// Validate rate limiting
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RPS <= 0 {
			return fmt.Errorf("rate_limit.rps must be positive")
		}

		if cfg.RateLimit.Burst < cfg.RateLimit.RPS {
			return fmt.Errorf("rate_limit.burst must be >= rps")
		}
	}

	// Validate storage
	validStorageTypes := map[string]bool{
		"file":   true,
		"sqlite": true,
		"memory": true,
	}

	if !validStorageTypes[cfg.Storage.Type] {
		return fmt.Errorf("invalid storage.type: %s", cfg.Storage.Type)
	}

	if cfg.Storage.Type == "file" && cfg.Storage.Dir == "" {
		return fmt.Errorf("storage.dir is required for file storage")
	}

	if cfg.Storage.Type == "sqlite" && cfg.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required for sqlite storage")
	}

	// Validate API auth
	if cfg.API.Auth {
		if cfg.API.Username == "" || cfg.API.PasswordHash == "" {
			return fmt.Errorf("api.username and api.password_hash are required when auth is enabled")
		}
	}

	// Validate logging
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}

	if !validLogLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("invalid logging.level: %s", cfg.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}

	if !validLogFormats[strings.ToLower(cfg.Logging.Format)] {
		return fmt.Errorf("invalid logging.format: %s", cfg.Logging.Format)
	}

	return nil
}
