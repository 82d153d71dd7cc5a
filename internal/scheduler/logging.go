package scheduler

import (
	"context"
	"errors"
	"time"

	obscontext "github.com/smallbiznis/orderdesk/internal/observability/context"
	obslogger "github.com/smallbiznis/orderdesk/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	outcomeOK      = "ok"
	outcomeTimeout = "timeout"
	outcomeError   = "error"
)

// jobRun tallies one execution of a job. A job invoked inside another run
// (RunOnce, or a test calling the job directly under runJob) joins that run.
type jobRun struct {
	job       string
	id        string
	startedAt time.Time
	processed int
	failures  int
}

type jobRunKey struct{}

func (r *jobRun) AddProcessed(n int) {
	if r != nil && n > 0 {
		r.processed += n
	}
}

func (r *jobRun) IncError() {
	if r != nil {
		r.failures++
	}
}

// ensureJobRun returns the run carried by ctx, or starts a new one. owner is
// true when this call started it and so must finish it.
func (s *Scheduler) ensureJobRun(ctx context.Context, job string) (_ context.Context, run *jobRun, owner bool) {
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok {
		return ctx, run, false
	}
	run = &jobRun{
		job:       job,
		id:        s.genID.Generate().String(),
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = obscontext.WithJobRun(ctx, job, run.id)
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	return ctx, run, true
}

// logger carries job and run_id once ctx has been through ensureJobRun.
func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func runOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return outcomeTimeout
	default:
		return outcomeError
	}
}

// finishRun writes the run summary. Clean runs log at debug so a 10s
// dashboard push does not flood the log; anything else is a warning.
func (s *Scheduler) finishRun(ctx context.Context, run *jobRun, err error) {
	outcome := runOutcome(err)
	if err != nil && run.failures == 0 {
		run.IncError()
	}
	fields := []zap.Field{
		zap.String("outcome", outcome),
		zap.Duration("duration", s.clock.Now().Sub(run.startedAt)),
		zap.Int("processed", run.processed),
		zap.Int("errors", run.failures),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	log := s.logger(ctx)
	if outcome == outcomeOK && run.failures == 0 {
		log.Debug("scheduler job finished", fields...)
		return
	}
	log.Warn("scheduler job finished", fields...)
}
