package escalation

import (
	"context"

	"github.com/smallbiznis/orderdesk/internal/escalation/domain"
	"github.com/smallbiznis/orderdesk/internal/escalation/repository"
	"github.com/smallbiznis/orderdesk/internal/escalation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("escalation.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Invoke(drainOnStop),
)

func drainOnStop(lc fx.Lifecycle, svc domain.Service) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			done := make(chan struct{})
			go func() {
				svc.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
