package metricsexport

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushgatewayPusher replaces the job's group on every push, so a gauge that
// drops to zero is not left stale on the gateway.
type PushgatewayPusher struct {
	endpoint string
	job      string
	grouping map[string]string
}

func NewPushgatewayPusher(endpoint, job string, grouping map[string]string) *PushgatewayPusher {
	return &PushgatewayPusher{endpoint: endpoint, job: job, grouping: grouping}
}

func (p *PushgatewayPusher) Push(ctx context.Context, registry *prometheus.Registry) error {
	if p.job == "" {
		return errors.New("pushgateway: job name is empty")
	}
	pusher := push.New(p.endpoint, p.job).Gatherer(registry)
	for k, v := range p.grouping {
		if v != "" {
			pusher = pusher.Grouping(k, v)
		}
	}
	return pusher.PushContext(ctx)
}
