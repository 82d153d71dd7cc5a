package dashboard

import (
	"github.com/smallbiznis/orderdesk/internal/dashboard/domain"
	"github.com/smallbiznis/orderdesk/internal/dashboard/repository"
	"github.com/smallbiznis/orderdesk/internal/dashboard/service"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("dashboard.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(s *service.Service) domain.Service { return s }),
	fx.Provide(
		fx.Annotate(
			func(s *service.Service) orderdomain.CacheInvalidator { return s },
			fx.ResultTags(`group:"order_cache_invalidators"`),
		),
	),
)
