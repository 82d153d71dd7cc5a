package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/internal/clock"
	escalationdomain "github.com/smallbiznis/orderdesk/internal/escalation/domain"
	obsmetrics "github.com/smallbiznis/orderdesk/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	"github.com/smallbiznis/orderdesk/internal/ratelimit"
	"github.com/smallbiznis/orderdesk/internal/realtime"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: invalid config")

const leaseReleaseTimeout = 5 * time.Second

// LivePublisher is the slice of the realtime publisher the scheduler drives.
type LivePublisher interface {
	PushDashboard(ctx context.Context) (bool, error)
	CheckBreaches(ctx context.Context) (int, error)
	LogStats() realtime.Stats
}

type MetricsExporter interface {
	Enabled() bool
	Export(ctx context.Context) error
}

type Params struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	GenID       *snowflake.Node
	Orders      orderdomain.Service
	Escalations escalationdomain.Service
	Publisher   LivePublisher         `optional:"true"`
	Guard       *ratelimit.SweepGuard `optional:"true"`
	Exporter    MetricsExporter       `optional:"true"`
	Config      Config                `optional:"true"`
}

type Scheduler struct {
	log         *zap.Logger
	cfg         Config
	genID       *snowflake.Node
	clock       clock.Clock
	orders      orderdomain.Service
	escalations escalationdomain.Service
	publisher   LivePublisher
	guard       *ratelimit.SweepGuard
	exporter    MetricsExporter

	cancel context.CancelFunc
	wg     sync.WaitGroup

	leaseMu sync.Mutex
	leases  map[string]string
}

type job struct {
	name string
	run  func(context.Context) error
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.GenID == nil || p.Orders == nil || p.Escalations == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         p.Config.withDefaults(),
		genID:       p.GenID,
		clock:       p.Clock,
		orders:      p.Orders,
		escalations: p.Escalations,
		publisher:   p.Publisher,
		guard:       p.Guard,
		exporter:    p.Exporter,
		leases:      make(map[string]string),
	}, nil
}

func (s *Scheduler) jobs() []job {
	return []job{
		{JobSLASweep, s.SLASweepJob},
		{JobDashboardPush, s.DashboardPushJob},
		{JobBreachCheck, s.BreachCheckJob},
		{JobEscalationPending, s.EscalationPendingJob},
		{JobEscalationRetry, s.EscalationRetryJob},
		{JobConnectionStats, s.ConnectionStatsJob},
		{JobMetricsExport, s.MetricsExportJob},
	}
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		s.finishRun(ctx, run, err)
	}
	if err == nil {
		return nil
	}

	schedMetrics.IncJobError(name, err)
	// deadline is a soft timeout; the next tick retries
	if runOutcome(err) == outcomeTimeout {
		schedMetrics.IncJobTimeout(name)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job once, in order, and joins their errors.
// Leases taken for the run are released before it returns.
func (s *Scheduler) RunOnce(parent context.Context) error {
	defer s.releaseLeases(context.WithoutCancel(parent))

	var err error
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, j.name, s.cfg.JobTimeout, j.run))
	}
	return err
}

// Start launches one ticker loop per enabled job. Stop cancels them.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) {
			continue
		}
		interval := s.cfg.interval(j.name)
		s.log.Info("scheduler job registered", zap.String("job", j.name), zap.Duration("interval", interval))
		s.wg.Add(1)
		go s.loop(ctx, j, interval)
	}
}

func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), leaseReleaseTimeout)
	defer cancel()
	s.releaseLeases(ctx)
}

func (s *Scheduler) loop(ctx context.Context, j job, interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(interval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if lag := s.clock.Now().Sub(nextRun); lag > 0 {
			schedMetrics.ObserveRunLoopLag(lag)
		}
		if err := s.runJob(ctx, j.name, s.cfg.JobTimeout, j.run); err != nil {
			s.log.Warn("scheduler job failed", zap.String("job", j.name), zap.Error(err))
		}
		nextRun = s.clock.Now().Add(interval)
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// an empty list enables every job
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), jobName) {
			return true
		}
	}
	return false
}

// leaderOnly runs fn on the one replica holding the job's lease. The lease
// outlives the run, so a replica keeps the job until it stops or stalls for
// longer than the lease.
func (s *Scheduler) leaderOnly(ctx context.Context, jobName string, fn func(context.Context) error) error {
	schedMetrics := obsmetrics.Scheduler()

	s.leaseMu.Lock()
	token := s.leases[jobName]
	s.leaseMu.Unlock()

	lockStart := s.clock.Now()
	token, held, err := s.guard.Hold(ctx, jobName, token, s.leaseTTL(jobName))
	schedMetrics.ObserveLockWait(jobName, s.clock.Now().Sub(lockStart))

	s.leaseMu.Lock()
	if held && token != "" {
		s.leases[jobName] = token
	} else {
		delete(s.leases, jobName)
	}
	s.leaseMu.Unlock()

	if err != nil {
		return err
	}
	if !held {
		schedMetrics.IncBatchDeferred(jobName, obsmetrics.SchedulerBatchDeferredReasonLockHeld)
		s.logger(ctx).Debug("job skipped, lease held by another replica")
		return nil
	}
	return fn(ctx)
}

func (s *Scheduler) leaseTTL(jobName string) time.Duration {
	return 2*s.cfg.interval(jobName) + s.cfg.JobTimeout
}

// releaseLeases hands every held lease back so another replica can take
// the jobs on its next tick.
func (s *Scheduler) releaseLeases(ctx context.Context) {
	s.leaseMu.Lock()
	leases := s.leases
	s.leases = make(map[string]string)
	s.leaseMu.Unlock()

	for jobName, token := range leases {
		if err := s.guard.Release(ctx, jobName, token); err != nil {
			s.log.Warn("release job lease failed", zap.String("job", jobName), zap.Error(err))
		}
	}
}

// SLASweepJob recomputes SLA fields for active orders. With Redis configured
// only the replica holding the sweep lease runs it.
func (s *Scheduler) SLASweepJob(ctx context.Context) error {
	ctx, run, _ := s.ensureJobRun(ctx, JobSLASweep)
	return s.leaderOnly(ctx, JobSLASweep, func(ctx context.Context) error {
		res, err := s.orders.UpdateSLAStatuses(ctx)
		if err != nil {
			return err
		}
		run.AddProcessed(res.Updated)
		obsmetrics.Scheduler().AddBatchProcessed(JobSLASweep, "orders", res.Updated)
		return nil
	})
}

// DashboardPushJob runs on one replica; the backplane fans the refresh out
// to clients on every replica.
func (s *Scheduler) DashboardPushJob(ctx context.Context) error {
	ctx, run, _ := s.ensureJobRun(ctx, JobDashboardPush)
	if s.publisher == nil {
		return nil
	}
	return s.leaderOnly(ctx, JobDashboardPush, func(ctx context.Context) error {
		pushed, err := s.publisher.PushDashboard(ctx)
		if err != nil {
			return err
		}
		if !pushed {
			obsmetrics.Scheduler().IncBatchDeferred(JobDashboardPush, obsmetrics.SchedulerBatchDeferredReasonNoClients)
			return nil
		}
		run.AddProcessed(1)
		return nil
	})
}

func (s *Scheduler) BreachCheckJob(ctx context.Context) error {
	ctx, run, _ := s.ensureJobRun(ctx, JobBreachCheck)
	if s.publisher == nil {
		return nil
	}
	return s.leaderOnly(ctx, JobBreachCheck, func(ctx context.Context) error {
		n, err := s.publisher.CheckBreaches(ctx)
		if err != nil {
			return err
		}
		run.AddProcessed(n)
		obsmetrics.Scheduler().AddBatchProcessed(JobBreachCheck, "breach_alerts", n)
		return nil
	})
}

func (s *Scheduler) EscalationPendingJob(ctx context.Context) error {
	ctx, run, _ := s.ensureJobRun(ctx, JobEscalationPending)
	return s.leaderOnly(ctx, JobEscalationPending, func(ctx context.Context) error {
		res, err := s.escalations.ProcessPending(ctx)
		run.AddProcessed(res.Attempted)
		obsmetrics.Scheduler().AddBatchProcessed(JobEscalationPending, "escalations", res.Sent)
		if res.Failed > 0 {
			s.logger(ctx).Warn("escalation deliveries failed",
				zap.Int("attempted", res.Attempted),
				zap.Int("failed", res.Failed),
			)
		}
		return err
	})
}

func (s *Scheduler) EscalationRetryJob(ctx context.Context) error {
	ctx, run, _ := s.ensureJobRun(ctx, JobEscalationRetry)
	return s.leaderOnly(ctx, JobEscalationRetry, func(ctx context.Context) error {
		res, err := s.escalations.RetryFailed(ctx)
		run.AddProcessed(res.Attempted)
		obsmetrics.Scheduler().AddBatchProcessed(JobEscalationRetry, "escalations", res.Sent)
		return err
	})
}

func (s *Scheduler) ConnectionStatsJob(ctx context.Context) error {
	if s.publisher == nil {
		return nil
	}
	s.publisher.LogStats()
	return nil
}

func (s *Scheduler) MetricsExportJob(ctx context.Context) error {
	if s.exporter == nil || !s.exporter.Enabled() {
		return nil
	}
	return s.exporter.Export(ctx)
}
