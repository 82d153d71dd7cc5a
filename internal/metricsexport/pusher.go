package metricsexport

import (
	"context"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/orderdesk/internal/config"
	"go.uber.org/zap"
)

const (
	ExporterRemoteWrite = "prometheus_remote_write"
	ExporterPushgateway = "prometheus_pushgateway"
)

// Pusher ships a gathered registry somewhere outside the process.
type Pusher interface {
	Push(ctx context.Context, registry *prometheus.Registry) error
}

// NewPusher picks the exporter named by METRICS_EXPORT_EXPORTER. Any
// misconfiguration disables export with a warning; the API keeps serving.
func NewPusher(cfg config.Config, log *zap.Logger) Pusher {
	ec := cfg.MetricsExport
	if !ec.Enabled {
		return nil
	}
	log = log.Named("metricsexport").With(zap.String("exporter", ec.Exporter))
	if ec.Endpoint == "" {
		log.Warn("metrics export disabled: METRICS_EXPORT_ENDPOINT is empty")
		return nil
	}

	job := strings.TrimSpace(cfg.AppName)
	env := strings.TrimSpace(cfg.Environment)
	switch ec.Exporter {
	case ExporterRemoteWrite:
		if _, err := url.ParseRequestURI(ec.Endpoint); err != nil {
			log.Warn("metrics export disabled: bad remote write endpoint", zap.Error(err))
			return nil
		}
		return NewRemoteWritePusher(ec.Endpoint, ec.AuthToken,
			prompb.Label{Name: "job", Value: job},
			prompb.Label{Name: "environment", Value: env},
		)
	case ExporterPushgateway:
		return NewPushgatewayPusher(ec.Endpoint, job, map[string]string{"environment": env})
	default:
		log.Warn("metrics export disabled: unknown exporter")
		return nil
	}
}
