package types

import "time"

// EndpointStats tracks the rolling health profile of one endpoint.
// The JSON field names are the persisted wire format.
type EndpointStats struct {
	TotalRequests            int64 `json:"totalRequests"`
	SuccessfulRequests       int64 `json:"successfulRequests"`
	ConsecutiveFailures      int64 `json:"failures"`
	CumulativeResponseTimeMs int64 `json:"cumulativeResponseTimeMs"`
	AverageResponseTimeMs    int64 `json:"averageResponseTimeMs"`
	LastUsedAt               int64 `json:"lastUsedAt"`
}

// RecordSuccess counts a successful attempt. Response time feeds the
// cumulative sum and the derived average; the consecutive failure
// streak resets.
func (s *EndpointStats) RecordSuccess(elapsedMs int64, now time.Time) {
	s.TotalRequests++
	s.SuccessfulRequests++
	s.ConsecutiveFailures = 0
	s.CumulativeResponseTimeMs += elapsedMs
	s.AverageResponseTimeMs = s.CumulativeResponseTimeMs / s.SuccessfulRequests
	s.LastUsedAt = now.UnixMilli()
}

// RecordFailure counts a failed attempt. Failed attempts never touch
// the response time counters.
func (s *EndpointStats) RecordFailure(now time.Time) {
	s.TotalRequests++
	s.ConsecutiveFailures++
	s.LastUsedAt = now.UnixMilli()
}

// SuccessRate returns successes over total, 0 when nothing was recorded
func (s *EndpointStats) SuccessRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.SuccessfulRequests) / float64(s.TotalRequests)
}

// Clone returns an independent copy
func (s *EndpointStats) Clone() *EndpointStats {
	if s == nil {
		return &EndpointStats{}
	}
	c := *s
	return &c
}
