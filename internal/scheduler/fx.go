package scheduler

import (
	"context"

	"github.com/smallbiznis/orderdesk/internal/metricsexport"
	"github.com/smallbiznis/orderdesk/internal/realtime"
	"go.uber.org/fx"
)

// Providers builds the scheduler without starting its tickers. One-shot
// commands use it to call RunOnce.
var Providers = fx.Options(
	fx.Provide(ProvideConfig),
	fx.Provide(func(p *realtime.Publisher) LivePublisher { return p }),
	fx.Provide(func(e *metricsexport.Exporter) MetricsExporter { return e }),
	fx.Provide(New),
)

var Module = fx.Module("scheduler",
	Providers,
	fx.Invoke(NewScheduler),
)

func NewScheduler(lc fx.Lifecycle, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			sched.Start(context.Background())
			return nil
		},
		OnStop: func(context.Context) error {
			sched.Stop()
			return nil
		},
	})
}
