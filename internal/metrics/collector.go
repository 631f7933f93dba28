// Package metrics exports Prometheus metrics for the attempt chains
// plus process-level CPU and memory samples.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// GlobalCollector is the process-wide collector instance
var GlobalCollector *Collector
var once sync.Once

// InitGlobalCollector initializes the global collector (safe to call
// multiple times)
func InitGlobalCollector() *Collector {
	once.Do(func() {
		GlobalCollector = NewCollector()
	})
	return GlobalCollector
}

// Collector tracks attempt outcomes, selections and system metrics
type Collector struct {
	totalAttempts atomic.Uint64
	totalFailures atomic.Uint64

	latencies   []float64
	latenciesMu sync.RWMutex

	cpuPercent  atomic.Value // float64
	memoryUsage atomic.Value // float64

	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	selectionsTotal *prometheus.CounterVec
	solvesTotal     *prometheus.CounterVec
	endpointCount   *prometheus.GaugeVec
	cpuGauge        prometheus.Gauge
	memGauge        prometheus.Gauge

	startTime time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a metrics collector and starts the system
// metrics updater
func NewCollector() *Collector {
	c := &Collector{
		latencies: make([]float64, 0, 10000),
		startTime: time.Now(),
		stopCh:    make(chan struct{}),

		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "earnd_attempts_total",
				Help: "Endpoint attempts by pool and outcome",
			},
			[]string{"kind", "outcome"},
		),

		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "earnd_attempt_duration_seconds",
				Help:    "Attempt duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind", "outcome"},
		),

		selectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "earnd_selections_total",
				Help: "Endpoint selections by pool, split by full-pool fallback draws",
			},
			[]string{"kind", "fallback"},
		),

		solvesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "earnd_solves_total",
				Help: "Completed solve operations by result",
			},
			[]string{"result"},
		),

		endpointCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "earnd_endpoints",
				Help: "Endpoints currently in each pool",
			},
			[]string{"kind"},
		),

		cpuGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "earnd_cpu_percent",
				Help: "Process host CPU usage percent",
			},
		),

		memGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "earnd_memory_used_mb",
				Help: "Host memory used in MB",
			},
		),
	}

	c.cpuPercent.Store(0.0)
	c.memoryUsage.Store(0.0)

	// Ignore errors if already registered
	_ = prometheus.Register(c.attemptsTotal)
	_ = prometheus.Register(c.attemptDuration)
	_ = prometheus.Register(c.selectionsTotal)
	_ = prometheus.Register(c.solvesTotal)
	_ = prometheus.Register(c.endpointCount)
	_ = prometheus.Register(c.cpuGauge)
	_ = prometheus.Register(c.memGauge)

	c.startSystemMetricsUpdater()

	return c
}

// RecordAttempt records one endpoint or direct attempt
func (c *Collector) RecordAttempt(kind, outcome string, duration time.Duration) {
	c.totalAttempts.Add(1)
	if outcome != "ok" {
		c.totalFailures.Add(1)
	}

	c.attemptsTotal.WithLabelValues(kind, outcome).Inc()
	c.attemptDuration.WithLabelValues(kind, outcome).Observe(duration.Seconds())

	c.latenciesMu.Lock()
	c.latencies = append(c.latencies, duration.Seconds()*1000)
	if len(c.latencies) > 10000 {
		c.latencies = c.latencies[len(c.latencies)-10000:]
	}
	c.latenciesMu.Unlock()
}

// RecordSelection records one selector draw
func (c *Collector) RecordSelection(kind string, fallback bool) {
	label := "false"
	if fallback {
		label = "true"
	}
	c.selectionsTotal.WithLabelValues(kind, label).Inc()
}

// RecordSolve records one completed solve operation
func (c *Collector) RecordSolve(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.solvesTotal.WithLabelValues(result).Inc()
}

// SetEndpointCount updates the pool size gauge
func (c *Collector) SetEndpointCount(kind string, count int) {
	c.endpointCount.WithLabelValues(kind).Set(float64(count))
}

// Handler returns the Prometheus scrape handler
func (c *Collector) Handler() http.Handler {
	return promhttp.Handler()
}

// Stats holds a point-in-time snapshot for the health surface
type Stats struct {
	TotalAttempts uint64        `json:"total_attempts"`
	TotalFailures uint64        `json:"total_failures"`
	FailureRate   float64       `json:"failure_rate"`
	AvgLatencyMs  float64       `json:"avg_latency_ms"`
	P95LatencyMs  float64       `json:"p95_latency_ms"`
	CPUPercent    float64       `json:"cpu_percent"`
	MemoryUsageMB float64       `json:"memory_usage_mb"`
	Uptime        time.Duration `json:"uptime"`
}

// GetStats returns current statistics
func (c *Collector) GetStats() Stats {
	total := c.totalAttempts.Load()
	failures := c.totalFailures.Load()

	failureRate := 0.0
	if total > 0 {
		failureRate = float64(failures) / float64(total) * 100
	}

	return Stats{
		TotalAttempts: total,
		TotalFailures: failures,
		FailureRate:   failureRate,
		AvgLatencyMs:  c.calculateAvgLatency(),
		P95LatencyMs:  c.calculatePercentile(95),
		CPUPercent:    c.cpuPercent.Load().(float64),
		MemoryUsageMB: c.memoryUsage.Load().(float64),
		Uptime:        time.Since(c.startTime),
	}
}

// calculateAvgLatency calculates average attempt latency
func (c *Collector) calculateAvgLatency() float64 {
	c.latenciesMu.RLock()
	defer c.latenciesMu.RUnlock()

	if len(c.latencies) == 0 {
		return 0
	}

	sum := 0.0
	for _, l := range c.latencies {
		sum += l
	}
	return sum / float64(len(c.latencies))
}

// calculatePercentile calculates the given percentile
func (c *Collector) calculatePercentile(p int) float64 {
	c.latenciesMu.RLock()
	defer c.latenciesMu.RUnlock()

	if len(c.latencies) == 0 {
		return 0
	}

	index := len(c.latencies) * p / 100
	if index >= len(c.latencies) {
		index = len(c.latencies) - 1
	}

	return c.latencies[index]
}

// startSystemMetricsUpdater starts a goroutine to sample host metrics
func (c *Collector) startSystemMetricsUpdater() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if percent, err := cpu.Percent(0, false); err == nil && len(percent) > 0 {
					c.cpuPercent.Store(percent[0])
					c.cpuGauge.Set(percent[0])
				}

				if vmStat, err := mem.VirtualMemory(); err == nil {
					usedMB := float64(vmStat.Used) / 1024 / 1024
					c.memoryUsage.Store(usedMB)
					c.memGauge.Set(usedMB)
				}

			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop stops the system metrics updater
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}
