package observability

import (
	"github.com/smallbiznis/orderdesk/internal/config"
	"github.com/smallbiznis/orderdesk/internal/observability/logger"
	"github.com/smallbiznis/orderdesk/internal/observability/metrics"
	"github.com/smallbiznis/orderdesk/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module provides the zap logger, the OTel tracer and meter providers, and
// the Prometheus HTTP and scheduler collectors, all derived from config.Config.
var Module = fx.Module("observability",
	fx.Provide(
		loggerConfig,
		logger.New,
		tracingConfig,
		tracing.NewProvider,
		metricsConfig,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
	fx.Invoke(func(cfg metrics.Config) { metrics.SchedulerWithConfig(cfg) }),
)

func serviceName(cfg config.Config) string {
	if cfg.AppName == "" {
		return "orderdesk"
	}
	return cfg.AppName
}

func loggerConfig(cfg config.Config) logger.Config {
	return logger.Config{
		ServiceName:  serviceName(cfg),
		Environment:  cfg.Environment,
		Version:      cfg.AppVersion,
		Level:        cfg.Log.Level,
		Format:       cfg.Log.Format,
		StackOnError: cfg.Verbose(),
	}
}

func tracingConfig(cfg config.Config) tracing.Config {
	return tracing.Config{
		Enabled:          cfg.OTel.Enabled,
		ServiceName:      serviceName(cfg),
		ServiceVersion:   cfg.AppVersion,
		Environment:      cfg.Environment,
		ExporterEndpoint: cfg.OTel.Endpoint,
		ExporterProtocol: cfg.OTel.Protocol,
		SamplingRatio:    cfg.OTel.SamplingRatio,
	}
}

func metricsConfig(cfg config.Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.OTel.Enabled,
		ExporterEndpoint: cfg.OTel.Endpoint,
		ExporterProtocol: cfg.OTel.Protocol,
		ServiceName:      serviceName(cfg),
		Environment:      cfg.Environment,
	}
}
