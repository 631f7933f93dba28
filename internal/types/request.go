package types

// SolveResult is the final result of a captcha solve call
type SolveResult struct {
	Transcription string `json:"transcription"`
	Endpoint      string `json:"endpoint"`
	Attempts      int    `json:"attempts"`
	ElapsedMs     int64  `json:"elapsed_ms"`
}

// FetchRequest describes an outbound HTTP request to run through
// the proxy pool
type FetchRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    []byte            `json:"body,omitempty"`
}

// FetchResult is the final result of a proxied fetch
type FetchResult struct {
	Status    int                 `json:"status"`
	Headers   map[string][]string `json:"headers"`
	Body      []byte              `json:"body"`
	Endpoint  string              `json:"endpoint,omitempty"`
	Direct    bool                `json:"direct"`
	Attempts  int                 `json:"attempts"`
	ElapsedMs int64               `json:"elapsed_ms"`
}
