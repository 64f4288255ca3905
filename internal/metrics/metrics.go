// ============================================================================
// Job Scheduler Metrics - Prometheus Monitoring
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Collect and expose scheduler/job lifecycle metrics for Prometheus
//
// Metric Categories:
//
//   1. Job Counters - cumulative, monotonically increasing:
//      - jobsched_jobs_scheduled_total
//      - jobsched_jobs_dispatched_total
//      - jobsched_jobs_completed_total
//      - jobsched_jobs_failed_total
//      - jobsched_jobs_timed_out_total
//
//   2. Performance metrics (Histogram):
//      - jobsched_job_latency_seconds: wall-clock time from dispatch to
//        completion/failure, buckets tuned for sub-second to multi-second work
//
//   3. Status metrics (Gauge) - instantaneous values:
//      - jobsched_pending: current pending job count
//      - jobsched_running: current running job count
//      - jobsched_pool_size: configured pool size
//
// Prometheus query examples:
//
//   # Completions per minute
//   rate(jobsched_jobs_completed_total[1m])
//
//   # Failure rate
//   rate(jobsched_jobs_failed_total[5m]) / rate(jobsched_jobs_dispatched_total[5m])
//
//   # 95th percentile latency
//   histogram_quantile(0.95, jobsched_job_latency_seconds_bucket)
//
// HTTP endpoint: exposed via /metrics, scraped by Prometheus.
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects Prometheus metrics for a running Scheduler.
type Collector struct {
	jobsScheduled  prometheus.Counter
	jobsDispatched prometheus.Counter
	jobsCompleted  prometheus.Counter
	jobsFailed     prometheus.Counter
	jobsTimedOut   prometheus.Counter

	jobLatency prometheus.Histogram

	pending  prometheus.Gauge
	running  prometheus.Gauge
	poolSize prometheus.Gauge
}

// NewCollector builds and registers a fresh Collector against the
// default Prometheus registry.
func NewCollector() *Collector {
	c := &Collector{
		jobsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobsched_jobs_scheduled_total",
			Help: "Total number of jobs admitted via Schedule",
		}),
		jobsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobsched_jobs_dispatched_total",
			Help: "Total number of jobs moved from pending to running",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobsched_jobs_completed_total",
			Help: "Total number of jobs that reached COMPLETED",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobsched_jobs_failed_total",
			Help: "Total number of jobs that reached FAILED, including cascaded auto-failures",
		}),
		jobsTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobsched_jobs_timed_out_total",
			Help: "Total number of jobs that failed due to exceeding max working time",
		}),
		jobLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jobsched_job_latency_seconds",
			Help:    "Time from dispatch to completion or failure, in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobsched_pending",
			Help: "Current number of pending jobs",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobsched_running",
			Help: "Current number of running jobs",
		}),
		poolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobsched_pool_size",
			Help: "Configured scheduler pool size",
		}),
	}

	prometheus.MustRegister(
		c.jobsScheduled,
		c.jobsDispatched,
		c.jobsCompleted,
		c.jobsFailed,
		c.jobsTimedOut,
		c.jobLatency,
		c.pending,
		c.running,
		c.poolSize,
	)

	return c
}

// RecordScheduled records a job admitted via Schedule.
func (c *Collector) RecordScheduled() {
	c.jobsScheduled.Inc()
}

// RecordDispatched records a job moved from pending to running.
func (c *Collector) RecordDispatched() {
	c.jobsDispatched.Inc()
}

// RecordCompleted records a job reaching COMPLETED.
func (c *Collector) RecordCompleted() {
	c.jobsCompleted.Inc()
}

// RecordFailed records a job reaching FAILED, whether by its own retry
// exhaustion or by dependency cascade.
func (c *Collector) RecordFailed() {
	c.jobsFailed.Inc()
}

// RecordTimedOut records a job failing its timeout guard. Also counts
// toward RecordFailed at the call site.
func (c *Collector) RecordTimedOut() {
	c.jobsTimedOut.Inc()
}

// ObserveLatency records the dispatch-to-completion duration of a job.
func (c *Collector) ObserveLatency(d time.Duration) {
	c.jobLatency.Observe(d.Seconds())
}

// UpdatePoolStats sets the current pending/running gauges.
func (c *Collector) UpdatePoolStats(pending, running int) {
	c.pending.Set(float64(pending))
	c.running.Set(float64(running))
}

// SetPoolSize sets the configured pool size gauge.
func (c *Collector) SetPoolSize(size int) {
	c.poolSize.Set(float64(size))
}

// StartServer starts a Prometheus metrics HTTP server on port, blocking
// until it errors or the process exits.
func StartServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, nil)
}
