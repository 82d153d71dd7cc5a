package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/orderdesk/internal/config"
)

const (
	JobSLASweep          = "sla_sweep"
	JobDashboardPush     = "dashboard_push"
	JobBreachCheck       = "breach_check"
	JobEscalationPending = "escalation_pending"
	JobEscalationRetry   = "escalation_retry"
	JobConnectionStats   = "connection_stats"
	JobMetricsExport     = "metrics_export"
)

// Config controls per-job intervals and which jobs run in this process.
type Config struct {
	Intervals   map[string]time.Duration
	JobTimeout  time.Duration
	EnabledJobs []string
}

func DefaultIntervals() map[string]time.Duration {
	return map[string]time.Duration{
		JobSLASweep:          time.Minute,
		JobDashboardPush:     30 * time.Second,
		JobBreachCheck:       time.Minute,
		JobEscalationPending: time.Minute,
		JobEscalationRetry:   5 * time.Minute,
		JobConnectionStats:   5 * time.Minute,
		JobMetricsExport:     time.Minute,
	}
}

func DefaultConfig() Config {
	return Config{
		Intervals:  DefaultIntervals(),
		JobTimeout: 30 * time.Second,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Intervals:   cfg.Scheduler.Intervals,
		EnabledJobs: cfg.Scheduler.EnabledJobs,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	intervals := make(map[string]time.Duration, len(defaults.Intervals))
	for name, d := range defaults.Intervals {
		intervals[name] = d
	}
	for name, d := range c.Intervals {
		if d > 0 {
			intervals[strings.ToLower(name)] = d
		}
	}
	c.Intervals = intervals
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}

func (c Config) interval(job string) time.Duration {
	return c.Intervals[job]
}
