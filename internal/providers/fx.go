package providers

import (
	"github.com/smallbiznis/orderdesk/internal/providers/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	webhook.Module,
)
