// ============================================================================
// Beaver-Raft Metrics - Prometheus Monitoring
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Collect and expose system metrics for Prometheus monitoring
//
// Monitoring Philosophy:
//   Based on RED (Rate, Errors, Duration) and USE (Utilization, Saturation, Errors)
//   Provides comprehensive system observability
//
// Metric Categories:
//
//   1. Job Counters - Cumulative, monotonically increasing:
//      - queue_jobs_enqueued_total: Total enqueued jobs
//      - queue_jobs_dispatched_total: Total dispatched jobs
//      - queue_jobs_completed_total: Total completed jobs
//      - queue_jobs_failed_total: Total failed jobs
//      - queue_jobs_dead_total: Total dead letter jobs
//
//   2. Performance Metrics (Histogram) - Distribution stats:
//      - queue_job_latency_seconds: Job processing latency distribution
//        * Buckets: 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10
//        * For SLA monitoring and performance analysis
//
//   3. Status Metrics (Gauge) - Instantaneous values:
//      - queue_recovery_time_seconds: Last recovery time
//      - queue_jobs_pending: Current pending jobs
//      - queue_jobs_in_flight: Current executing jobs
//
// Use Cases:
//
//   Alerting:
//   - queue_job_latency_seconds > 5s  → Performance degradation
//   - queue_jobs_failed_total rate increase → Error rate alert
//   - queue_jobs_pending continuous growth → Insufficient capacity
//   - queue_recovery_time_seconds > 3s → Recovery SLA breach
//
//   Capacity Planning:
//   - queue_jobs_completed_total / time → Throughput trends
//   - queue_jobs_in_flight / worker_count → Worker utilization
//   - queue_jobs_pending peaks → Required worker count
//
//   Troubleshooting:
//   - queue_jobs_dead_total spike → Check business logic
//   - job_latency anomaly → Check system load
//   - recovery_time increase → Check WAL/Snapshot performance
//
// Prometheus Query Examples:
//
//   # Jobs per minute
//   rate(queue_jobs_completed_total[1m])
//
//   # 95th percentile latency
//   histogram_quantile(0.95, queue_job_latency_seconds_bucket)
//
//   # Error rate
//   rate(queue_jobs_failed_total[5m]) / rate(queue_jobs_dispatched_total[5m])
//
//   # Job backlog
//   queue_jobs_pending + queue_jobs_in_flight
//
// HTTP Endpoint:
//   Exposed via /metrics endpoint, scraped by Prometheus
//   Port: the port argument of StartServer (no default is applied)
//   Format: OpenMetrics / Prometheus text format
//
// Performance:
//   - Counter/Gauge operations are atomic, thread-safe
//   - Histogram calculates multiple buckets with overhead
//   - Collector methods take no lock; Collector.mu is not used
//
// Future Extensions:
//   Possible additional metrics:
//   - WAL write latency
//   - Snapshot size and creation time
//   - Worker pool saturation
//   - Memory usage
//
// ============================================================================
// Metrics Module
// Responsibility: Collect and expose Prometheus metrics
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects Prometheus metrics
type Collector struct {
	// Job-related metrics
	jobsEnqueued   prometheus.Counter
	jobsDispatched prometheus.Counter
	jobsCompleted  prometheus.Counter
	jobsFailed     prometheus.Counter
	jobsDead       prometheus.Counter

	// Performance metrics
	jobLatency   prometheus.Histogram
	recoveryTime prometheus.Gauge

	// Status metrics
	jobsPending  prometheus.Gauge
	jobsInFlight prometheus.Gauge

	// Client pool / bounded executor metrics (pkg/pool, pkg/executor)
	poolSize             prometheus.Gauge
	poolEvictionsTotal   prometheus.Counter
	poolDisconnectsTotal prometheus.Counter
	executorInFlight     prometheus.Gauge
	executorQueueWait    prometheus.Histogram

	mu sync.Mutex
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	c := &Collector{
		jobsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queue_jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		}),
		jobsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queue_jobs_dispatched_total",
			Help: "Total number of jobs dispatched to workers",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queue_jobs_completed_total",
			Help: "Total number of jobs completed successfully",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queue_jobs_failed_total",
			Help: "Total number of jobs failed",
		}),
		jobsDead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queue_jobs_dead_total",
			Help: "Total number of jobs moved to dead letter queue",
		}),
		jobLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "queue_job_latency_seconds",
			Help:    "Job processing latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		recoveryTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_recovery_time_seconds",
			Help: "Time taken to recover from crash in seconds",
		}),
		jobsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_jobs_pending",
			Help: "Current number of pending jobs",
		}),
		jobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_jobs_in_flight",
			Help: "Current number of in-flight jobs",
		}),
		poolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pool_size",
			Help: "Current number of cached RPC client connections",
		}),
		poolEvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pool_evictions_total",
			Help: "Total number of idle connections evicted from the client pool",
		}),
		poolDisconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pool_disconnects_total",
			Help: "Total number of connections explicitly disconnected (e.g. liveness probe)",
		}),
		executorInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "executor_in_flight",
			Help: "Current number of closures running on the bounded executor",
		}),
		executorQueueWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "executor_queue_wait_seconds",
			Help:    "Time a Post call spent blocked waiting for a free executor slot",
			Buckets: prometheus.DefBuckets,
		}),
	}

	// Register all metrics
	prometheus.MustRegister(c.jobsEnqueued)
	prometheus.MustRegister(c.jobsDispatched)
	prometheus.MustRegister(c.jobsCompleted)
	prometheus.MustRegister(c.jobsFailed)
	prometheus.MustRegister(c.jobsDead)
	prometheus.MustRegister(c.jobLatency)
	prometheus.MustRegister(c.recoveryTime)
	prometheus.MustRegister(c.jobsPending)
	prometheus.MustRegister(c.jobsInFlight)
	prometheus.MustRegister(c.poolSize)
	prometheus.MustRegister(c.poolEvictionsTotal)
	prometheus.MustRegister(c.poolDisconnectsTotal)
	prometheus.MustRegister(c.executorInFlight)
	prometheus.MustRegister(c.executorQueueWait)

	return c
}

// RecordEnqueue records job enqueue event
func (c *Collector) RecordEnqueue() {
	c.jobsEnqueued.Inc()
}

// RecordDispatch records job dispatch event
func (c *Collector) RecordDispatch() {
	c.jobsDispatched.Inc()
}

// RecordCompleted records job completion with latency
func (c *Collector) RecordCompleted(latencySeconds float64) {
	c.jobsCompleted.Inc()
	c.jobLatency.Observe(latencySeconds)
}

// RecordFailed records job failure event
func (c *Collector) RecordFailed() {
	c.jobsFailed.Inc()
}

// RecordDead records job moved to dead letter queue
func (c *Collector) RecordDead() {
	c.jobsDead.Inc()
}

// SetRecoveryTime sets recovery time metric
func (c *Collector) SetRecoveryTime(seconds float64) {
	c.recoveryTime.Set(seconds)
}

// UpdateQueueStats updates queue status statistics
func (c *Collector) UpdateQueueStats(pending, inFlight int) {
	c.jobsPending.Set(float64(pending))
	c.jobsInFlight.Set(float64(inFlight))
}

// SetPoolSize records the client pool's current entry count.
func (c *Collector) SetPoolSize(size int) {
	c.poolSize.Set(float64(size))
}

// RecordPoolEviction records one idle-eviction from the client pool.
func (c *Collector) RecordPoolEviction() {
	c.poolEvictionsTotal.Inc()
}

// RecordPoolDisconnect records one explicit Disconnect call (e.g. from a
// liveness-probe callback).
func (c *Collector) RecordPoolDisconnect() {
	c.poolDisconnectsTotal.Inc()
}

// SetExecutorInFlight records the bounded executor's current in-flight
// closure count.
func (c *Collector) SetExecutorInFlight(n int) {
	c.executorInFlight.Set(float64(n))
}

// ObserveExecutorQueueWait records how long a Post call blocked waiting for
// a free executor slot.
func (c *Collector) ObserveExecutorQueueWait(seconds float64) {
	c.executorQueueWait.Observe(seconds)
}

// PoolSink adapts a Collector to pkg/pool.MetricsSink.
type PoolSink struct{ c *Collector }

// NewPoolSink returns a pool.MetricsSink backed by c.
func NewPoolSink(c *Collector) PoolSink { return PoolSink{c: c} }

func (s PoolSink) SetSize(n int)     { s.c.SetPoolSize(n) }
func (s PoolSink) RecordEviction()   { s.c.RecordPoolEviction() }
func (s PoolSink) RecordDisconnect() { s.c.RecordPoolDisconnect() }

// ExecutorSink adapts a Collector to pkg/executor.MetricsSink.
type ExecutorSink struct{ c *Collector }

// NewExecutorSink returns an executor.MetricsSink backed by c.
func NewExecutorSink(c *Collector) ExecutorSink { return ExecutorSink{c: c} }

func (s ExecutorSink) SetInFlight(n int)                { s.c.SetExecutorInFlight(n) }
func (s ExecutorSink) ObserveQueueWait(seconds float64) { s.c.ObserveExecutorQueueWait(seconds) }

// StartServer starts Prometheus metrics HTTP server
//
// Parameters:
//   - port: HTTP server port
//
// Returns:
//   - error: Error on startup failure
func StartServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, nil)
}
