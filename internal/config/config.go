// Package config provides configuration management for earnd
package config

import (
	"github.com/spf13/viper"
)

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("listen_addr", "127.0.0.1:8642")
	viper.SetDefault("read_timeout", "30s")
	viper.SetDefault("write_timeout", "5m")
	viper.SetDefault("idle_timeout", "120s")
	viper.SetDefault("shutdown_timeout", "15s")

	// Solver pool defaults
	viper.SetDefault("solvers.language", "en-US")
	viper.SetDefault("solvers.solve_timeout", "60s")

	// Proxy pool defaults
	viper.SetDefault("proxies.scheme", "http")
	viper.SetDefault("proxies.fetch_timeout", "15s")

	// Retry defaults
	viper.SetDefault("retry.max_retries", 3)
	viper.SetDefault("retry.backoff", "1s")

	// Selection scoring defaults
	viper.SetDefault("selector.base_score", 100.0)
	viper.SetDefault("selector.success_weight", 50.0)
	viper.SetDefault("selector.latency_weight", 25.0)
	viper.SetDefault("selector.latency_divisor", 100.0)
	viper.SetDefault("selector.failure_penalty", 10.0)
	viper.SetDefault("selector.recency_bonus", 10.0)
	viper.SetDefault("selector.recency_window", "5m")
	viper.SetDefault("selector.min_weight", 1.0)

	// Probe defaults
	viper.SetDefault("probe.enabled", true)
	viper.SetDefault("probe.on_startup", true)
	viper.SetDefault("probe.interval", "0s")
	viper.SetDefault("probe.timeout", "6s")
	viper.SetDefault("probe.penalty_ms", 10000)

	// Stats persistence defaults
	viper.SetDefault("stats.debounce_window", "1500ms")

	// Transport defaults
	viper.SetDefault("transport.profile", "chrome_120")
	viper.SetDefault("transport.max_idle_conns", 100)
	viper.SetDefault("transport.max_idle_conns_per_host", 10)
	viper.SetDefault("transport.idle_conn_timeout", "90s")
	viper.SetDefault("transport.dial_timeout", "30s")
	viper.SetDefault("transport.keep_alive", "30s")

	// Circuit breaker defaults
	viper.SetDefault("circuit_breaker.enabled", false)
	viper.SetDefault("circuit_breaker.failure_threshold", 5)
	viper.SetDefault("circuit_breaker.timeout", "60s")

	// Rate limiting defaults
	viper.SetDefault("rate_limit.enabled", false)
	viper.SetDefault("rate_limit.rps", 50)
	viper.SetDefault("rate_limit.burst", 100)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.access_logs", true)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	// Storage defaults
	viper.SetDefault("storage.type", "file")
	viper.SetDefault("storage.dir", "data")
	viper.SetDefault("storage.dsn", "data/earnd.db")

	// API defaults
	viper.SetDefault("api.auth", false)

	// CORS defaults
	viper.SetDefault("cors.allowed_origins", []string{"*"})
}
