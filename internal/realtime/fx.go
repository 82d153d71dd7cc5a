package realtime

import (
	"context"

	escalationdomain "github.com/smallbiznis/orderdesk/internal/escalation/domain"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("realtime",
	fx.Provide(NewBackplane),
	fx.Provide(NewHub),
	fx.Provide(NewCursorStore),
	fx.Provide(NewPublisher),
	fx.Provide(
		fx.Annotate(
			func(p *Publisher) orderdomain.SLAObserver { return p },
			fx.ResultTags(`group:"order_sla_observers"`),
		),
	),
	fx.Provide(func(p *Publisher) escalationdomain.AlertBroadcaster { return p }),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, hub *Hub, backplane *Backplane) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if backplane == nil {
				return nil
			}
			return backplane.Start(ctx, func(b Broadcast) { hub.Deliver(b) })
		},
		OnStop: func(ctx context.Context) error {
			if backplane != nil {
				backplane.Stop()
			}
			hub.Close()
			return nil
		},
	})
}
