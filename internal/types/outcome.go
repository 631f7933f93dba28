package types

import (
	"net/http"
	"time"
)

// OutcomeClass classifies the result of a single HTTP attempt
type OutcomeClass int

const (
	// OutcomeOK is a 2xx response
	OutcomeOK OutcomeClass = iota
	// OutcomeHTTPError is a completed response outside 2xx
	OutcomeHTTPError
	// OutcomeNetworkError is a transport failure before a response arrived
	OutcomeNetworkError
	// OutcomeTimeout is an attempt cancelled by its deadline
	OutcomeTimeout
)

// String returns the metrics label for the class
func (c OutcomeClass) String() string {
	switch c {
	case OutcomeOK:
		return "ok"
	case OutcomeHTTPError:
		return "http_error"
	case OutcomeNetworkError:
		return "network_error"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one attempt. Err carries the
// wrapped transport or validation failure for the non-HTTP classes and
// is nil for completed responses.
type Outcome struct {
	Class   OutcomeClass
	Status  int
	Header  http.Header
	Body    []byte
	Err     error
	Elapsed time.Duration
}

// OK reports whether the attempt completed with a 2xx response
func (o *Outcome) OK() bool {
	return o.Class == OutcomeOK
}

// ElapsedMs returns the attempt duration in whole milliseconds
func (o *Outcome) ElapsedMs() int64 {
	return o.Elapsed.Milliseconds()
}
