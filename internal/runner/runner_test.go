package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/types"
)

type testLogger struct{}

func (l *testLogger) Debug(msg string, fields ...interface{}) {}
func (l *testLogger) Info(msg string, fields ...interface{})  {}
func (l *testLogger) Warn(msg string, fields ...interface{})  {}
func (l *testLogger) Error(msg string, fields ...interface{}) {}
func (l *testLogger) With(fields ...interface{}) types.Logger { return l }

// fakeSelector serves a fixed pool honoring exclusions, in order
type fakeSelector struct {
	pool  []*types.Endpoint
	calls []map[string]bool
}

func (s *fakeSelector) Choose(excluded map[string]bool) *types.Endpoint {
	snapshot := make(map[string]bool, len(excluded))
	for k, v := range excluded {
		snapshot[k] = v
	}
	s.calls = append(s.calls, snapshot)

	for _, ep := range s.pool {
		if !excluded[ep.Address] {
			return ep
		}
	}
	if len(s.pool) > 0 {
		return s.pool[0]
	}
	return nil
}

func (s *fakeSelector) Score(ep *types.Endpoint, now time.Time) float64 { return 0 }
func (s *fakeSelector) SetLatencyHint(address string, latencyMs int64)  {}
func (s *fakeSelector) LatencyHint(address string) (int64, bool)        { return 0, false }

// fakeStats records the Record calls in order
type fakeStats struct {
	addresses []string
	successes []bool
}

func (f *fakeStats) Record(address string, success bool, elapsedMs int64) {
	f.addresses = append(f.addresses, address)
	f.successes = append(f.successes, success)
}

func (f *fakeStats) Get(address string) *types.EndpointStats          { return &types.EndpointStats{} }
func (f *fakeStats) Snapshot() map[string]*types.EndpointStats        { return nil }
func (f *fakeStats) Reset(ctx context.Context) error                  { return nil }
func (f *fakeStats) Remove(address string)                            {}
func (f *fakeStats) Flush(ctx context.Context) error                  { return nil }

// scriptedOp fails a set number of endpoint attempts before succeeding
type scriptedOp struct {
	failures      int
	attempts      int
	directCapable bool
	directOK      bool
	directCalls   int
}

func (o *scriptedOp) Name() string { return "test" }

func (o *scriptedOp) Attempt(ctx context.Context, ep *types.Endpoint) *types.Outcome {
	o.attempts++
	if o.attempts <= o.failures {
		return &types.Outcome{Class: types.OutcomeHTTPError, Status: 502}
	}
	return &types.Outcome{Class: types.OutcomeOK, Status: 200, Elapsed: 10 * time.Millisecond}
}

func (o *scriptedOp) DirectCapable() bool { return o.directCapable }

func (o *scriptedOp) Direct(ctx context.Context) *types.Outcome {
	o.directCalls++
	if o.directOK {
		return &types.Outcome{Class: types.OutcomeOK, Status: 200}
	}
	return &types.Outcome{Class: types.OutcomeNetworkError}
}

func endpoints(addresses ...string) []*types.Endpoint {
	eps := make([]*types.Endpoint, len(addresses))
	for i, addr := range addresses {
		eps[i] = &types.Endpoint{Address: addr, Kind: types.KindSolver}
	}
	return eps
}

func newTestRunner(sel types.Selector, st types.StatsTracker, maxRetries int) *Runner {
	return New(types.KindSolver, sel, st, nil, &testLogger{}, maxRetries, 0, time.Second)
}

func TestExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("first attempt success", func(t *testing.T) {
		sel := &fakeSelector{pool: endpoints("10.0.0.1:1", "10.0.0.2:2")}
		st := &fakeStats{}
		op := &scriptedOp{}

		res, err := newTestRunner(sel, st, 3).Execute(ctx, op)
		require.NoError(t, err)

		assert.Equal(t, "10.0.0.1:1", res.Endpoint)
		assert.Equal(t, 1, res.Attempts)
		assert.False(t, res.Direct)
		assert.Equal(t, []string{"10.0.0.1:1"}, st.addresses)
		assert.Equal(t, []bool{true}, st.successes)
	})

	t.Run("failed endpoints are excluded from the next draw", func(t *testing.T) {
		sel := &fakeSelector{pool: endpoints("10.0.0.1:1", "10.0.0.2:2", "10.0.0.3:3")}
		st := &fakeStats{}
		op := &scriptedOp{failures: 2}

		res, err := newTestRunner(sel, st, 3).Execute(ctx, op)
		require.NoError(t, err)

		assert.Equal(t, "10.0.0.3:3", res.Endpoint)
		assert.Equal(t, 3, res.Attempts)
		assert.Equal(t, []string{"10.0.0.1:1", "10.0.0.2:2", "10.0.0.3:3"}, st.addresses)
		assert.Equal(t, []bool{false, false, true}, st.successes)

		require.Len(t, sel.calls, 3)
		assert.Empty(t, sel.calls[0])
		assert.Equal(t, map[string]bool{"10.0.0.1:1": true}, sel.calls[1])
		assert.Equal(t, map[string]bool{"10.0.0.1:1": true, "10.0.0.2:2": true}, sel.calls[2])
	})

	t.Run("chain stops at max retries without a direct form", func(t *testing.T) {
		sel := &fakeSelector{pool: endpoints("10.0.0.1:1", "10.0.0.2:2", "10.0.0.3:3", "10.0.0.4:4")}
		st := &fakeStats{}
		op := &scriptedOp{failures: 99}

		res, err := newTestRunner(sel, st, 3).Execute(ctx, op)
		require.Error(t, err)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, types.ErrAllAttemptsFailed)
		assert.Equal(t, 3, op.attempts)
		assert.Equal(t, 0, op.directCalls)

		var relayErr *types.RelayError
		require.ErrorAs(t, err, &relayErr)
		assert.Equal(t, "test", relayErr.Op)
		assert.Equal(t, types.KindSolver, relayErr.Kind)
		assert.Equal(t, "10.0.0.3:3", relayErr.Endpoint)
	})

	t.Run("empty pool without a direct form fails fast", func(t *testing.T) {
		sel := &fakeSelector{}
		st := &fakeStats{}
		op := &scriptedOp{}

		_, err := newTestRunner(sel, st, 3).Execute(ctx, op)
		assert.ErrorIs(t, err, types.ErrNoEndpointsAvailable)
		assert.Zero(t, op.attempts)
		assert.Empty(t, st.addresses)
	})

	t.Run("empty pool with a direct form goes straight to direct", func(t *testing.T) {
		sel := &fakeSelector{}
		st := &fakeStats{}
		op := &scriptedOp{directCapable: true, directOK: true}

		res, err := newTestRunner(sel, st, 3).Execute(ctx, op)
		require.NoError(t, err)

		assert.True(t, res.Direct)
		assert.Empty(t, res.Endpoint)
		assert.Equal(t, 1, res.Attempts)
		assert.Empty(t, st.addresses, "direct attempts must not touch endpoint stats")
	})

	t.Run("direct fallback after the chain is spent", func(t *testing.T) {
		sel := &fakeSelector{pool: endpoints("10.0.0.1:1", "10.0.0.2:2")}
		st := &fakeStats{}
		op := &scriptedOp{failures: 99, directCapable: true, directOK: true}

		res, err := newTestRunner(sel, st, 2).Execute(ctx, op)
		require.NoError(t, err)

		assert.True(t, res.Direct)
		assert.Equal(t, 3, res.Attempts)
		assert.Equal(t, 2, op.attempts)
		assert.Equal(t, 1, op.directCalls)
		assert.Len(t, st.addresses, 2, "only endpoint attempts are recorded")
	})

	t.Run("direct failure reports the whole chain as failed", func(t *testing.T) {
		sel := &fakeSelector{pool: endpoints("10.0.0.1:1")}
		st := &fakeStats{}
		op := &scriptedOp{failures: 99, directCapable: true}

		_, err := newTestRunner(sel, st, 1).Execute(ctx, op)
		assert.ErrorIs(t, err, types.ErrAllAttemptsFailed)
		assert.Equal(t, 1, op.directCalls)
	})

	t.Run("small pool walks every retry then direct exactly once", func(t *testing.T) {
		sel := &fakeSelector{pool: endpoints("10.0.0.1:1", "10.0.0.2:2")}
		st := &fakeStats{}
		op := &scriptedOp{failures: 99, directCapable: true}

		res, err := newTestRunner(sel, st, 3).Execute(ctx, op)
		require.Error(t, err)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, types.ErrAllAttemptsFailed)

		// Three endpoint tries against a pool of two: the third draw
		// sees every address excluded and falls back into the pool.
		assert.Equal(t, 3, op.attempts)
		assert.Equal(t, 1, op.directCalls)
		assert.Equal(t, []string{"10.0.0.1:1", "10.0.0.2:2", "10.0.0.1:1"}, st.addresses)
		assert.Equal(t, []bool{false, false, false}, st.successes)

		require.Len(t, sel.calls, 3)
		assert.Empty(t, sel.calls[0])
		assert.Equal(t, map[string]bool{"10.0.0.1:1": true}, sel.calls[1])
		assert.Equal(t, map[string]bool{"10.0.0.1:1": true, "10.0.0.2:2": true}, sel.calls[2])
	})

	t.Run("direct is tried exactly once", func(t *testing.T) {
		sel := &fakeSelector{}
		st := &fakeStats{}
		op := &scriptedOp{directCapable: true}

		_, err := newTestRunner(sel, st, 3).Execute(ctx, op)
		assert.ErrorIs(t, err, types.ErrAllAttemptsFailed)
		assert.Equal(t, 1, op.directCalls)
	})

	t.Run("cancellation interrupts the backoff wait", func(t *testing.T) {
		sel := &fakeSelector{pool: endpoints("10.0.0.1:1", "10.0.0.2:2")}
		st := &fakeStats{}
		op := &scriptedOp{failures: 99}

		r := New(types.KindSolver, sel, st, nil, &testLogger{}, 3, 10*time.Second, time.Second)

		cancelCtx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()

		start := time.Now()
		_, err := r.Execute(cancelCtx, op)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("reloaded retry limits apply to the next call", func(t *testing.T) {
		sel := &fakeSelector{pool: endpoints("10.0.0.1:1", "10.0.0.2:2", "10.0.0.3:3")}
		st := &fakeStats{}
		op := &scriptedOp{failures: 99}

		r := newTestRunner(sel, st, 3)
		r.UpdateRetry(1, 0)

		_, err := r.Execute(ctx, op)
		assert.ErrorIs(t, err, types.ErrAllAttemptsFailed)
		assert.Equal(t, 1, op.attempts)
	})
}

func TestExecuteTimeout(t *testing.T) {
	t.Run("attempt deadline bounds a hanging operation", func(t *testing.T) {
		sel := &fakeSelector{pool: endpoints("10.0.0.1:1")}
		st := &fakeStats{}

		op := &hangingOp{}
		r := New(types.KindSolver, sel, st, nil, &testLogger{}, 1, 0, 50*time.Millisecond)

		start := time.Now()
		_, err := r.Execute(context.Background(), op)
		assert.ErrorIs(t, err, types.ErrAllAttemptsFailed)
		assert.Less(t, time.Since(start), time.Second)
	})
}

// hangingOp blocks until its context expires
type hangingOp struct{}

func (o *hangingOp) Name() string { return "hang" }

func (o *hangingOp) Attempt(ctx context.Context, ep *types.Endpoint) *types.Outcome {
	<-ctx.Done()
	return &types.Outcome{Class: types.OutcomeTimeout}
}

func (o *hangingOp) DirectCapable() bool                       { return false }
func (o *hangingOp) Direct(ctx context.Context) *types.Outcome { return nil }
