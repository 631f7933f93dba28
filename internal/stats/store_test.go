package stats

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/storage"
	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/types"
)

type testLogger struct{}

func (l *testLogger) Debug(msg string, fields ...interface{}) {}
func (l *testLogger) Info(msg string, fields ...interface{})  {}
func (l *testLogger) Warn(msg string, fields ...interface{})  {}
func (l *testLogger) Error(msg string, fields ...interface{}) {}
func (l *testLogger) With(fields ...interface{}) types.Logger { return l }

// countingStorage wraps a Storage and counts stats writes
type countingStorage struct {
	types.Storage
	saves int64
}

func (c *countingStorage) SaveStats(ctx context.Context, kind types.EndpointKind, stats map[string]*types.EndpointStats) error {
	atomic.AddInt64(&c.saves, 1)
	return c.Storage.SaveStats(ctx, kind, stats)
}

func (c *countingStorage) saveCount() int64 {
	return atomic.LoadInt64(&c.saves)
}

func newTestStore(debounce time.Duration) (*Store, *countingStorage) {
	backing := &countingStorage{Storage: storage.NewMemory()}
	return NewStore(types.KindSolver, backing, &testLogger{}, debounce), backing
}

func TestRecord(t *testing.T) {
	t.Run("success updates totals and average", func(t *testing.T) {
		s, _ := newTestStore(time.Hour)

		s.Record("10.0.0.1:8080", true, 100)
		s.Record("10.0.0.1:8080", true, 300)

		es := s.Get("10.0.0.1:8080")
		assert.Equal(t, int64(2), es.TotalRequests)
		assert.Equal(t, int64(2), es.SuccessfulRequests)
		assert.Equal(t, int64(0), es.ConsecutiveFailures)
		assert.Equal(t, int64(400), es.CumulativeResponseTimeMs)
		assert.Equal(t, int64(200), es.AverageResponseTimeMs)
		assert.NotZero(t, es.LastUsedAt)
	})

	t.Run("failures grow the streak but never touch latency", func(t *testing.T) {
		s, _ := newTestStore(time.Hour)

		s.Record("10.0.0.1:8080", true, 100)
		s.Record("10.0.0.1:8080", false, 9999)
		s.Record("10.0.0.1:8080", false, 9999)

		es := s.Get("10.0.0.1:8080")
		assert.Equal(t, int64(3), es.TotalRequests)
		assert.Equal(t, int64(1), es.SuccessfulRequests)
		assert.Equal(t, int64(2), es.ConsecutiveFailures)
		assert.Equal(t, int64(100), es.CumulativeResponseTimeMs)
		assert.Equal(t, int64(100), es.AverageResponseTimeMs)
	})

	t.Run("a success resets the failure streak", func(t *testing.T) {
		s, _ := newTestStore(time.Hour)

		s.Record("10.0.0.1:8080", false, 0)
		s.Record("10.0.0.1:8080", false, 0)
		s.Record("10.0.0.1:8080", true, 50)

		es := s.Get("10.0.0.1:8080")
		assert.Equal(t, int64(0), es.ConsecutiveFailures)
		assert.InDelta(t, 1.0/3.0, es.SuccessRate(), 0.001)
	})

	t.Run("average covers successful attempts only", func(t *testing.T) {
		s, _ := newTestStore(time.Hour)

		s.Record("10.0.0.1:8080", true, 100)
		s.Record("10.0.0.1:8080", false, 0)
		s.Record("10.0.0.1:8080", true, 200)

		es := s.Get("10.0.0.1:8080")
		assert.Equal(t, int64(150), es.AverageResponseTimeMs)
	})
}

func TestGet(t *testing.T) {
	t.Run("unknown address yields zero values", func(t *testing.T) {
		s, _ := newTestStore(time.Hour)

		es := s.Get("10.9.9.9:1")
		require.NotNil(t, es)
		assert.Equal(t, int64(0), es.TotalRequests)
		assert.Equal(t, float64(0), es.SuccessRate())
	})

	t.Run("returned stats are a copy", func(t *testing.T) {
		s, _ := newTestStore(time.Hour)
		s.Record("10.0.0.1:8080", true, 100)

		es := s.Get("10.0.0.1:8080")
		es.TotalRequests = 999

		assert.Equal(t, int64(1), s.Get("10.0.0.1:8080").TotalRequests)
	})
}

func TestDebounce(t *testing.T) {
	t.Run("rapid records coalesce into one write", func(t *testing.T) {
		s, backing := newTestStore(100 * time.Millisecond)

		for i := 0; i < 5; i++ {
			s.Record("10.0.0.1:8080", true, 50)
		}
		assert.Equal(t, int64(0), backing.saveCount())

		assert.Eventually(t, func() bool {
			return backing.saveCount() == 1
		}, time.Second, 10*time.Millisecond)

		loaded, err := backing.LoadStats(context.Background(), types.KindSolver)
		require.NoError(t, err)
		require.Contains(t, loaded, "10.0.0.1:8080")
		assert.Equal(t, int64(5), loaded["10.0.0.1:8080"].TotalRequests)
	})

	t.Run("flush writes immediately and cancels the timer", func(t *testing.T) {
		s, backing := newTestStore(time.Hour)

		s.Record("10.0.0.1:8080", true, 50)
		require.NoError(t, s.Flush(context.Background()))
		assert.Equal(t, int64(1), backing.saveCount())

		// Nothing dirty, flush is a no-op
		require.NoError(t, s.Flush(context.Background()))
		assert.Equal(t, int64(1), backing.saveCount())
	})
}

func TestReset(t *testing.T) {
	s, backing := newTestStore(time.Hour)
	ctx := context.Background()

	s.Record("10.0.0.1:8080", true, 100)
	s.Record("10.0.0.2:8080", false, 0)

	require.NoError(t, s.Reset(ctx))

	assert.Empty(t, s.Snapshot())
	assert.Equal(t, int64(0), s.Get("10.0.0.1:8080").TotalRequests)

	loaded, err := backing.LoadStats(ctx, types.KindSolver)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestRemove(t *testing.T) {
	s, _ := newTestStore(time.Hour)

	s.Record("10.0.0.1:8080", true, 100)
	s.Record("10.0.0.2:8080", true, 100)

	s.Remove("10.0.0.1:8080")

	snapshot := s.Snapshot()
	assert.NotContains(t, snapshot, "10.0.0.1:8080")
	assert.Contains(t, snapshot, "10.0.0.2:8080")
}

func TestLoad(t *testing.T) {
	t.Run("persisted stats come back", func(t *testing.T) {
		ctx := context.Background()
		backing := storage.NewMemory()
		require.NoError(t, backing.SaveStats(ctx, types.KindSolver, map[string]*types.EndpointStats{
			"10.0.0.1:8080": {TotalRequests: 7, SuccessfulRequests: 6, AverageResponseTimeMs: 120},
		}))

		s := NewStore(types.KindSolver, backing, &testLogger{}, time.Hour)
		require.NoError(t, s.Load(ctx))

		es := s.Get("10.0.0.1:8080")
		assert.Equal(t, int64(7), es.TotalRequests)
		assert.Equal(t, int64(6), es.SuccessfulRequests)
		assert.Equal(t, int64(120), es.AverageResponseTimeMs)
	})

	t.Run("nothing persisted starts an empty table", func(t *testing.T) {
		s, _ := newTestStore(time.Hour)
		require.NoError(t, s.Load(context.Background()))
		assert.Empty(t, s.Snapshot())
	})
}

func TestSnapshot(t *testing.T) {
	s, _ := newTestStore(time.Hour)
	s.Record("10.0.0.1:8080", true, 100)

	snapshot := s.Snapshot()
	snapshot["10.0.0.1:8080"].TotalRequests = 999

	assert.Equal(t, int64(1), s.Get("10.0.0.1:8080").TotalRequests)
}
