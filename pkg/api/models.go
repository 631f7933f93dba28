package api

// SolveRequest asks for one audio challenge transcription
type SolveRequest struct {
	AudioURL string `json:"audio_url"`
	Lang     string `json:"lang,omitempty"`
}

// FetchRequest relays one HTTP request through the proxy pool
type FetchRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// FetchResponse carries the relayed response back to the caller
type FetchResponse struct {
	Status    int                 `json:"status"`
	Headers   map[string][]string `json:"headers"`
	Body      string              `json:"body"`
	Endpoint  string              `json:"endpoint,omitempty"`
	Direct    bool                `json:"direct"`
	Attempts  int                 `json:"attempts"`
	ElapsedMs int64               `json:"elapsed_ms"`
}

// EndpointRequest adds one endpoint to a pool
type EndpointRequest struct {
	Address string `json:"address"`
}

// EndpointResponse describes one pool member with its live stats
type EndpointResponse struct {
	Address             string  `json:"address"`
	Host                string  `json:"host"`
	Port                string  `json:"port"`
	HasAuth             bool    `json:"has_auth"`
	Score               float64 `json:"score"`
	TotalRequests       int64   `json:"total_requests"`
	SuccessfulRequests  int64   `json:"successful_requests"`
	ConsecutiveFailures int64   `json:"consecutive_failures"`
	AvgResponseTimeMs   int64   `json:"avg_response_time_ms"`
	LastUsedAt          int64   `json:"last_used_at,omitempty"`
}

// ProbeResponse reports one sweep over a pool
type ProbeResponse struct {
	Kind      string           `json:"kind"`
	Latencies map[string]int64 `json:"latencies_ms"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
