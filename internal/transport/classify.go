package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/types"
)

// errOutcome classifies a transport-level failure. Deadline and
// timeout errors are kept apart from other network failures so the
// caller can report them distinctly.
func errOutcome(err error, elapsed time.Duration) *types.Outcome {
	class := types.OutcomeNetworkError
	sentinel := types.ErrNetworkFailure

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		class = types.OutcomeTimeout
		sentinel = types.ErrAttemptTimeout
	}

	return &types.Outcome{
		Class:   class,
		Err:     fmt.Errorf("%w: %v", sentinel, err),
		Elapsed: elapsed,
	}
}

// classifyResponse consumes a plain response whose body needs no
// decoding and classifies it by status code
func classifyResponse(resp *http.Response, start time.Time) *types.Outcome {
	defer resp.Body.Close()
	return classifyBody(resp.StatusCode, resp.Header, resp.Body, "", start)
}

// classifyBody reads and optionally decodes a response body, then
// classifies the attempt. Any 2xx status counts as success.
func classifyBody(status int, header http.Header, body io.Reader, encoding string, start time.Time) *types.Outcome {
	reader, err := decodeBody(body, encoding)
	if err != nil {
		return errOutcome(err, time.Since(start))
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return errOutcome(err, time.Since(start))
	}

	class := types.OutcomeHTTPError
	if status >= 200 && status < 300 {
		class = types.OutcomeOK
	}

	return &types.Outcome{
		Class:   class,
		Status:  status,
		Header:  header.Clone(),
		Body:    data,
		Elapsed: time.Since(start),
	}
}
