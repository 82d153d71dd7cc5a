package metricsexport

import (
	"github.com/smallbiznis/orderdesk/internal/realtime"
	"go.uber.org/fx"
)

var Module = fx.Module("metrics.export",
	fx.Provide(NewPusher),
	fx.Provide(func(h *realtime.Hub) ConnectionCounter { return h }),
	fx.Provide(New),
)
