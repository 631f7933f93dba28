package types

import "time"

// Config represents the complete earnd configuration
type Config struct {
	// Server configuration
	ListenAddr      string        `mapstructure:"listen_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Solver pool
	Solvers struct {
		Defaults     []string      `mapstructure:"defaults"`
		Language     string        `mapstructure:"language"`
		SolveTimeout time.Duration `mapstructure:"solve_timeout"`
	} `mapstructure:"solvers"`

	// Proxy pool
	Proxies struct {
		Defaults     []string      `mapstructure:"defaults"`
		Scheme       string        `mapstructure:"scheme"` // http, socks5
		FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	} `mapstructure:"proxies"`

	// Retry chain
	Retry struct {
		MaxRetries int           `mapstructure:"max_retries"`
		Backoff    time.Duration `mapstructure:"backoff"`
	} `mapstructure:"retry"`

	// Selection scoring
	Selector struct {
		BaseScore      float64       `mapstructure:"base_score"`
		SuccessWeight  float64       `mapstructure:"success_weight"`
		LatencyWeight  float64       `mapstructure:"latency_weight"`
		LatencyDivisor float64       `mapstructure:"latency_divisor"`
		FailurePenalty float64       `mapstructure:"failure_penalty"`
		RecencyBonus   float64       `mapstructure:"recency_bonus"`
		RecencyWindow  time.Duration `mapstructure:"recency_window"`
		MinWeight      float64       `mapstructure:"min_weight"`
	} `mapstructure:"selector"`

	// Latency probing
	Probe struct {
		Enabled   bool          `mapstructure:"enabled"`
		OnStartup bool          `mapstructure:"on_startup"`
		Interval  time.Duration `mapstructure:"interval"`
		Timeout   time.Duration `mapstructure:"timeout"`
		PenaltyMs int64         `mapstructure:"penalty_ms"`
	} `mapstructure:"probe"`

	// Stats persistence
	Stats struct {
		DebounceWindow time.Duration `mapstructure:"debounce_window"`
	} `mapstructure:"stats"`

	// Outbound transport
	Transport struct {
		Profile             string        `mapstructure:"profile"` // browser profile for fetches
		MaxIdleConns        int           `mapstructure:"max_idle_conns"`
		MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
		IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
		DialTimeout         time.Duration `mapstructure:"dial_timeout"`
		KeepAlive           time.Duration `mapstructure:"keep_alive"`
	} `mapstructure:"transport"`

	// Circuit breaker over whole request chains
	CircuitBreaker struct {
		Enabled          bool          `mapstructure:"enabled"`
		FailureThreshold int           `mapstructure:"failure_threshold"`
		Timeout          time.Duration `mapstructure:"timeout"`
	} `mapstructure:"circuit_breaker"`

	// Rate limiting on the local API
	RateLimit struct {
		Enabled bool `mapstructure:"enabled"`
		RPS     int  `mapstructure:"rps"`
		Burst   int  `mapstructure:"burst"`
	} `mapstructure:"rate_limit"`

	// Logging and monitoring
	Logging struct {
		Level      string `mapstructure:"level"`
		Format     string `mapstructure:"format"` // json, text
		AccessLogs bool   `mapstructure:"access_logs"`
	} `mapstructure:"logging"`

	Metrics struct {
		Enabled bool   `mapstructure:"enabled"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"metrics"`

	// Storage backend
	Storage struct {
		Type string `mapstructure:"type"` // file, sqlite, memory
		Dir  string `mapstructure:"dir,omitempty"`
		DSN  string `mapstructure:"dsn,omitempty"`
	} `mapstructure:"storage"`

	// API access control
	API struct {
		Auth         bool   `mapstructure:"auth"`
		Username     string `mapstructure:"username,omitempty"`
		PasswordHash string `mapstructure:"password_hash,omitempty"`
	} `mapstructure:"api"`

	// CORS for browser callers
	CORS struct {
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"cors"`
}
