package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	SchedulerBatchDeferredReasonLockHeld  = "lock_held"
	SchedulerBatchDeferredReasonNoClients = "no_clients"
)

// SchedulerMetrics captures background job health for the SLA engine.
type SchedulerMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobTimeouts    *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	batchProcessed *prometheus.CounterVec
	batchDeferred  *prometheus.CounterVec
	runLoopLag     prometheus.Observer
	lockWait       *prometheus.HistogramVec
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the singleton scheduler metrics registry.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig returns the singleton scheduler metrics registry using config labels.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

// ResetSchedulerMetricsForTest resets the scheduler metrics singleton for tests.
func ResetSchedulerMetricsForTest() {
	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = nil
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = "orderdesk"
	}
	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = "unknown"
	}
	labels := prometheus.Labels{"service": service, "env": env}

	counter := func(name, help string, vars ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderdesk", Subsystem: "scheduler", Name: name, Help: help, ConstLabels: labels,
		}, vars)
	}
	histogram := func(name, help string, buckets []float64, vars ...string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "orderdesk", Subsystem: "scheduler", Name: name, Help: help, Buckets: buckets, ConstLabels: labels,
		}, vars)
	}

	m := &SchedulerMetrics{}
	m.jobRuns = counter("job_runs_total", "Scheduler job runs by name.", "job")
	m.jobTimeouts = counter("job_timeouts_total", "Scheduler jobs that hit their deadline.", "job")
	m.jobErrors = counter("job_errors_total", "Scheduler job errors by low-cardinality reason.", "job", "reason")
	m.jobDuration = histogram("job_duration_seconds", "Scheduler job latency. A slow sweep delays SLA status freshness.",
		[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60}, "job")
	m.batchProcessed = counter("batch_processed_total", "Items processed per job and resource.", "job", "resource")
	m.batchDeferred = counter("batch_deferred_total", "Scheduler runs skipped, by reason.", "job", "reason")
	m.lockWait = histogram("lock_wait_seconds", "Time spent acquiring the Redis sweep lock.",
		[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}, "resource")
	runLoopLag := histogram("runloop_lag_seconds", "How late a job tick started relative to its interval.",
		[]float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60})
	m.runLoopLag = runLoopLag.WithLabelValues()

	registerer.MustRegister(m.jobRuns, m.jobDuration, m.jobTimeouts, m.jobErrors,
		m.batchProcessed, m.batchDeferred, runLoopLag, m.lockWait)
	return m
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m != nil {
		m.jobRuns.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m != nil {
		m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
	}
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m != nil {
		m.jobTimeouts.WithLabelValues(job).Inc()
	}
}

// IncJobError labels the failure with ClassifySchedulerError's reason.
func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m != nil && err != nil {
		m.jobErrors.WithLabelValues(job, ClassifySchedulerError(err).Reason).Inc()
	}
}

// AddBatchProcessed adds count items of resource handled by job, e.g. orders
// updated by sla_sweep.
func (m *SchedulerMetrics) AddBatchProcessed(job, resource string, count int) {
	if m != nil && count > 0 {
		m.batchProcessed.WithLabelValues(job, resource).Add(float64(count))
	}
}

func (m *SchedulerMetrics) IncBatchDeferred(job, reason string) {
	if m != nil {
		m.batchDeferred.WithLabelValues(job, reason).Inc()
	}
}

func (m *SchedulerMetrics) ObserveRunLoopLag(d time.Duration) {
	if m != nil {
		m.runLoopLag.Observe(max(d, 0).Seconds())
	}
}

func (m *SchedulerMetrics) ObserveLockWait(resource string, d time.Duration) {
	if m != nil {
		m.lockWait.WithLabelValues(resource).Observe(d.Seconds())
	}
}
